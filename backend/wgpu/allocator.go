// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/rgcore"
)

// argumentBufferStride is the byte size reserved per argument table
// entry. Matches the largest descriptor the table can reference.
const argumentBufferStride = 32

// Backing wrappers. Distinct types keep buffers, textures, and views
// apart even when the underlying HAL interfaces share method sets.

type bufferBacking struct{ buffer hal.Buffer }

type textureBacking struct{ texture hal.Texture }

type viewBacking struct{ view hal.TextureView }

// HALBuffer unwraps a scheduler backing to its hal.Buffer, for pass
// payloads that record against the HAL directly.
func HALBuffer(b rgcore.Backing) (hal.Buffer, bool) {
	if bb, ok := b.(*bufferBacking); ok {
		return bb.buffer, true
	}
	return nil, false
}

// HALTexture unwraps a scheduler backing to its hal.Texture.
func HALTexture(b rgcore.Backing) (hal.Texture, bool) {
	if tb, ok := b.(*textureBacking); ok {
		return tb.texture, true
	}
	return nil, false
}

// HALTextureView unwraps a scheduler backing to its hal.TextureView.
func HALTextureView(b rgcore.Backing) (hal.TextureView, bool) {
	if vb, ok := b.(*viewBacking); ok {
		return vb.view, true
	}
	return nil, false
}

// halAllocator implements rgcore.Allocator over hal.Device.
type halAllocator struct {
	device hal.Device
}

// AllocateBuffer implements rgcore.Allocator.
func (a *halAllocator) AllocateBuffer(desc rgcore.BufferDescriptor) (rgcore.Backing, error) {
	buffer, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Length,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer: %w", err)
	}
	return &bufferBacking{buffer: buffer}, nil
}

// AllocateTexture implements rgcore.Allocator.
func (a *halAllocator) AllocateTexture(desc rgcore.TextureDescriptor, usage gputypes.TextureUsage) (rgcore.Backing, error) {
	mipLevelCount := desc.MipLevelCount
	if mipLevelCount == 0 {
		mipLevelCount = 1
	}
	sampleCount := desc.SampleCount
	if sampleCount == 0 {
		sampleCount = 1
	}
	depthOrArrayLayers := desc.Size.DepthOrArrayLayers
	if depthOrArrayLayers == 0 {
		depthOrArrayLayers = 1
	}

	texture, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Size.Width,
			Height:             desc.Size.Height,
			DepthOrArrayLayers: depthOrArrayLayers,
		},
		MipLevelCount: mipLevelCount,
		SampleCount:   sampleCount,
		Dimension:     desc.Dimension,
		Format:        desc.Format,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture: %w", err)
	}
	return &textureBacking{texture: texture}, nil
}

// AllocateTextureView implements rgcore.Allocator.
func (a *halAllocator) AllocateTextureView(base rgcore.Backing, desc rgcore.TextureDescriptor, _ gputypes.TextureUsage) (rgcore.Backing, error) {
	texture, ok := HALTexture(base)
	if !ok {
		return nil, fmt.Errorf("view base is %T, not a texture backing", base)
	}
	view, err := a.device.CreateTextureView(texture, &hal.TextureViewDescriptor{
		Label:  desc.Label,
		Format: desc.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture view: %w", err)
	}
	return &viewBacking{view: view}, nil
}

// AllocateArgumentBuffer implements rgcore.Allocator. Argument tables
// are plain storage buffers sized per entry.
func (a *halAllocator) AllocateArgumentBuffer(entries int) (rgcore.Backing, error) {
	if entries < 1 {
		entries = 1
	}
	buffer, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "argument buffer",
		Size:  uint64(entries) * argumentBufferStride,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create argument buffer: %w", err)
	}
	return &bufferBacking{buffer: buffer}, nil
}

// Dispose implements rgcore.Allocator.
func (a *halAllocator) Dispose(b rgcore.Backing) {
	switch v := b.(type) {
	case *viewBacking:
		a.device.DestroyTextureView(v.view)
	case *textureBacking:
		a.device.DestroyTexture(v.texture)
	case *bufferBacking:
		a.device.DestroyBuffer(v.buffer)
	}
}

var _ rgcore.Allocator = (*halAllocator)(nil)
