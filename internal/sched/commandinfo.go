// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sched

import (
	"github.com/gogpu/rendergraph/rgcore"
)

// EncoderInfo describes one encoder: a maximal run of consecutive active
// passes with a compatible type.
type EncoderInfo struct {
	// PassRange is the half-open span of pass indices the encoder covers.
	PassRange Range

	// Type is the shared pass type.
	Type rgcore.PassType

	// RenderTarget is the merged render target for draw encoders.
	RenderTarget *rgcore.RenderTargetDescriptor

	// CommandRange is the span of frame command indices the encoder's
	// passes occupy.
	CommandRange Range

	// CommandBufferIndex is the command buffer the encoder records into.
	CommandBufferIndex int

	// QueueCommandWaitIndices[q] is the highest queue-q command index
	// that must complete before the encoder's command buffer executes.
	// Zero means no wait. Raised during pre-frame command execution.
	QueueCommandWaitIndices [rgcore.MaxQueues]uint64
}

// Presents reports whether the encoder renders to a swapchain drawable.
func (e *EncoderInfo) Presents() bool {
	return e.RenderTarget.ReferencesWindowHandle()
}

// CommandInfo is the frame's structural skeleton: the encoder partition
// of the pass list and the command-buffer partition of the encoders.
type CommandInfo struct {
	// Passes is the frame's pass list.
	Passes []PassRecord

	// Encoders is the ordered encoder list.
	Encoders []EncoderInfo

	// CommandBufferCount is the number of command buffers the frame
	// submits.
	CommandBufferCount int

	// InitialSignalValue is the signal value of the frame's first command
	// buffer; later buffers count up from it.
	InitialSignalValue uint64

	// CommandCount is the total number of frame command indices.
	CommandCount int

	passToEncoder []int
}

// NewCommandInfo partitions the frame's passes into encoders and command
// buffers and assigns signal values starting at initialSignalValue.
//
// A new encoder begins when the pass type changes, when consecutive draw
// passes disagree on their render target, and always around external and
// cpu passes. A new command buffer begins before the first encoder that
// presents a swapchain drawable and after the last one, so presentation
// work never shares a buffer with offscreen work.
func NewCommandInfo(passes []PassRecord, initialSignalValue uint64) *CommandInfo {
	info := &CommandInfo{
		Passes:             passes,
		InitialSignalValue: initialSignalValue,
		passToEncoder:      make([]int, len(passes)),
	}
	for i := range info.passToEncoder {
		info.passToEncoder[i] = -1
	}

	// Encoder partition.
	for i := 0; i < len(passes); i++ {
		p := &passes[i]
		if !p.Active {
			continue
		}
		if len(info.Encoders) > 0 {
			e := &info.Encoders[len(info.Encoders)-1]
			if e.PassRange.Hi == i && coalesces(e, p) {
				e.PassRange.Hi = i + 1
				e.CommandRange.Hi = p.CommandRange.Hi
				mergeStoreOps(e.RenderTarget, p.RenderTarget)
				info.passToEncoder[i] = len(info.Encoders) - 1
				continue
			}
		}
		info.passToEncoder[i] = len(info.Encoders)
		info.Encoders = append(info.Encoders, EncoderInfo{
			PassRange: Range{Lo: i, Hi: i + 1},
			Type:      p.Type,
			// The encoder owns a copy: coalescing rewrites its store
			// operations as later passes join.
			RenderTarget: p.RenderTarget.Clone(),
			CommandRange: p.CommandRange,
		})
	}

	if len(passes) > 0 {
		info.CommandCount = passes[len(passes)-1].CommandRange.Hi
	}

	// Command buffer partition around the presentation span.
	firstPresent, lastPresent := -1, -1
	for i := range info.Encoders {
		if info.Encoders[i].Presents() {
			if firstPresent < 0 {
				firstPresent = i
			}
			lastPresent = i
		}
	}
	cb := 0
	for i := range info.Encoders {
		if i > 0 && (i == firstPresent || i == lastPresent+1) {
			cb++
		}
		info.Encoders[i].CommandBufferIndex = cb
	}
	if len(info.Encoders) > 0 {
		info.CommandBufferCount = cb + 1
	}

	return info
}

// coalesces reports whether the pass extends the encoder. Draw passes
// coalesce only when their render targets are compatible; external and
// cpu passes never coalesce.
func coalesces(e *EncoderInfo, p *PassRecord) bool {
	if p.StartsNewEncoder || e.Type != p.Type {
		return false
	}
	switch p.Type {
	case rgcore.PassExternal, rgcore.PassCPU:
		return false
	case rgcore.PassDraw:
		return e.RenderTarget.CompatibleWith(p.RenderTarget)
	default:
		return true
	}
}

// mergeStoreOps adopts the joining pass's store operations into the
// encoder's render target: the merged encoder keeps the first pass's
// loads and the last pass's stores. Attachment counts match; coalesces
// already verified compatibility.
func mergeStoreOps(dst, src *rgcore.RenderTargetDescriptor) {
	if dst == nil || src == nil {
		return
	}
	for i := range dst.ColorAttachments {
		dst.ColorAttachments[i].StoreOp = src.ColorAttachments[i].StoreOp
	}
	if dst.DepthStencilAttachment != nil && src.DepthStencilAttachment != nil {
		dst.DepthStencilAttachment.DepthStoreOp = src.DepthStencilAttachment.DepthStoreOp
	}
}

// EncoderIndexForPass returns the encoder a pass records into, or -1 for
// inactive passes.
func (c *CommandInfo) EncoderIndexForPass(passIndex int) int {
	return c.passToEncoder[passIndex]
}

// EncoderIndexForCommand returns the encoder whose command range covers
// the given frame command index, or -1 if none does.
func (c *CommandInfo) EncoderIndexForCommand(i int) int {
	for e := range c.Encoders {
		if c.Encoders[e].CommandRange.Contains(i) {
			return e
		}
	}
	return -1
}

// SignalValue returns the signal value of the command buffer at index cb.
func (c *CommandInfo) SignalValue(cb int) uint64 {
	return c.InitialSignalValue + uint64(cb)
}

// LastSignalValue returns the signal value of the frame's final command
// buffer.
func (c *CommandInfo) LastSignalValue() uint64 {
	if c.CommandBufferCount == 0 {
		return c.InitialSignalValue
	}
	return c.SignalValue(c.CommandBufferCount - 1)
}

// RaiseQueueWait lifts an encoder's wait index for queue q to at least v.
func (c *CommandInfo) RaiseQueueWait(encoderIndex int, q rgcore.QueueIndex, v uint64) {
	if v > c.Encoders[encoderIndex].QueueCommandWaitIndices[q] {
		c.Encoders[encoderIndex].QueueCommandWaitIndices[q] = v
	}
}
