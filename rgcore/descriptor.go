// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rgcore

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// PassType identifies the kind of work a pass records.
type PassType uint8

const (
	// PassDraw records into a render command encoder.
	PassDraw PassType = iota + 1

	// PassCompute records into a compute command encoder.
	PassCompute

	// PassBlit records into a blit/copy command encoder.
	PassBlit

	// PassExternal hands an externally recorded command stream to the
	// frame at this position.
	PassExternal

	// PassCPU runs on the CPU and submits no GPU commands.
	PassCPU
)

// String returns the string representation of PassType.
func (t PassType) String() string {
	switch t {
	case PassDraw:
		return "Draw"
	case PassCompute:
		return "Compute"
	case PassBlit:
		return "Blit"
	case PassExternal:
		return "External"
	case PassCPU:
		return "CPU"
	default:
		return fmt.Sprintf("PassType(%d)", uint8(t))
	}
}

// Submits reports whether passes of this type produce GPU commands.
func (t PassType) Submits() bool {
	return t != PassCPU
}

// BufferDescriptor describes a buffer resource.
type BufferDescriptor struct {
	// Label is an optional debug name.
	Label string

	// Length is the buffer size in bytes.
	Length uint64

	// Usage specifies how the buffer will be used.
	Usage gputypes.BufferUsage
}

// TextureDescriptor describes a texture resource.
type TextureDescriptor struct {
	// Label is an optional debug name.
	Label string

	// Size is the texture extent. DepthOrArrayLayers is 1 for plain 2D.
	Size gputypes.Extent3D

	// MipLevelCount is the number of mip levels. 0 means 1.
	MipLevelCount uint32

	// SampleCount is the multisample count. 0 means 1.
	SampleCount uint32

	// Dimension is the texture dimensionality.
	Dimension gputypes.TextureDimension

	// Format is the pixel format.
	Format gputypes.TextureFormat

	// Usage specifies how the texture will be used. The scheduler widens
	// it with the usages it observes during a frame before materializing.
	Usage gputypes.TextureUsage
}

// DefaultTextureDescriptor returns a 2D, single-sample, single-mip
// descriptor for the given size and format.
func DefaultTextureDescriptor(width, height uint32, format gputypes.TextureFormat) TextureDescriptor {
	return TextureDescriptor{
		Size: gputypes.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
	}
}

// ColorAttachment is one color slot of a render target.
type ColorAttachment struct {
	// Texture is the attachment texture.
	Texture Texture

	// LoadOp specifies what happens to the attachment at encoder start.
	LoadOp gputypes.LoadOp

	// StoreOp specifies what happens to the attachment at encoder end.
	StoreOp gputypes.StoreOp

	// ClearValue is the clear color when LoadOp is clear.
	ClearValue gputypes.Color
}

// DepthStencilAttachment is the depth/stencil slot of a render target.
type DepthStencilAttachment struct {
	// Texture is the attachment texture.
	Texture Texture

	// DepthLoadOp and DepthStoreOp control the depth aspect.
	DepthLoadOp  gputypes.LoadOp
	DepthStoreOp gputypes.StoreOp

	// DepthClearValue is the depth clear value when DepthLoadOp is clear.
	DepthClearValue float32
}

// RenderTargetDescriptor describes the attachments a draw encoder renders
// into. Consecutive draw passes sharing a compatible descriptor coalesce
// into one encoder.
type RenderTargetDescriptor struct {
	// ColorAttachments are the color slots, in attachment order.
	ColorAttachments []ColorAttachment

	// DepthStencilAttachment is the optional depth/stencil slot.
	DepthStencilAttachment *DepthStencilAttachment

	// SampleCount is the multisample count shared by all attachments.
	// 0 means 1.
	SampleCount uint32
}

// Clone returns a deep copy of the descriptor. Encoder coalescing merges
// store operations into its own copy so the caller's descriptor stays
// untouched.
func (d *RenderTargetDescriptor) Clone() *RenderTargetDescriptor {
	if d == nil {
		return nil
	}
	cp := *d
	cp.ColorAttachments = append([]ColorAttachment(nil), d.ColorAttachments...)
	if d.DepthStencilAttachment != nil {
		da := *d.DepthStencilAttachment
		cp.DepthStencilAttachment = &da
	}
	return &cp
}

// CompatibleWith reports whether two descriptors can share one encoder:
// identical attachment textures in identical slots and the same sample
// count. Load/store operations may differ; the merged encoder keeps the
// first pass's loads and the last pass's stores.
func (d *RenderTargetDescriptor) CompatibleWith(other *RenderTargetDescriptor) bool {
	if d == nil || other == nil {
		return d == other
	}
	if d.sampleCount() != other.sampleCount() {
		return false
	}
	if len(d.ColorAttachments) != len(other.ColorAttachments) {
		return false
	}
	for i := range d.ColorAttachments {
		if d.ColorAttachments[i].Texture != other.ColorAttachments[i].Texture {
			return false
		}
	}
	da, db := d.DepthStencilAttachment, other.DepthStencilAttachment
	if (da == nil) != (db == nil) {
		return false
	}
	if da != nil && da.Texture != db.Texture {
		return false
	}
	return true
}

// ReferencesWindowHandle reports whether any attachment is backed by a
// swapchain drawable. Encoders for which this is true are presentation
// work and may not share a command buffer with offscreen work.
func (d *RenderTargetDescriptor) ReferencesWindowHandle() bool {
	if d == nil {
		return false
	}
	for i := range d.ColorAttachments {
		if d.ColorAttachments[i].Texture.IsWindowHandle() {
			return true
		}
	}
	if d.DepthStencilAttachment != nil && d.DepthStencilAttachment.Texture.IsWindowHandle() {
		return true
	}
	return false
}

func (d *RenderTargetDescriptor) sampleCount() uint32 {
	if d.SampleCount == 0 {
		return 1
	}
	return d.SampleCount
}
