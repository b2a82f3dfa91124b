// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/rgcore"
)

// commandBuffer implements rgcore.CommandBuffer over one HAL command
// encoder. The encoder is finished and submitted at Commit with the
// queue's timeline fence value.
type commandBuffer struct {
	backend *Backend
	encoder hal.CommandEncoder
	label   string

	// signalValue is the timeline value Submit signals, set by
	// SignalEvent before Commit.
	signalValue uint64

	// waits are the timeline values that must complete before this
	// command buffer executes.
	waits []uint64

	presents  []rgcore.Drawable
	committed bool
}

// BeginPass implements rgcore.CommandBuffer.
func (cb *commandBuffer) BeginPass(t rgcore.PassType, rt *rgcore.RenderTargetDescriptor, attachments []rgcore.Backing) (rgcore.PassEncoder, error) {
	if cb.committed {
		return nil, fmt.Errorf("wgpu: begin pass on committed command buffer")
	}

	pe := &passEncoder{cb: cb, typ: t}

	if t == rgcore.PassDraw {
		desc, views, err := cb.renderPassDescriptor(rt, attachments)
		if err != nil {
			return nil, err
		}
		pe.views = views
		pe.renderPass = cb.encoder.BeginRenderPass(desc)
	}
	return pe, nil
}

// renderPassDescriptor builds the HAL render pass descriptor, creating
// one transient view per attachment.
func (cb *commandBuffer) renderPassDescriptor(rt *rgcore.RenderTargetDescriptor, attachments []rgcore.Backing) (*hal.RenderPassDescriptor, []hal.TextureView, error) {
	desc := &hal.RenderPassDescriptor{Label: cb.label}
	var views []hal.TextureView

	view := func(backing rgcore.Backing, label string) (hal.TextureView, error) {
		if tv, ok := HALTextureView(backing); ok {
			return tv, nil
		}
		texture, ok := HALTexture(backing)
		if !ok {
			return nil, fmt.Errorf("wgpu: attachment backing is %T", backing)
		}
		tv, err := cb.backend.device.CreateTextureView(texture, &hal.TextureViewDescriptor{Label: label})
		if err != nil {
			return nil, fmt.Errorf("attachment view: %w", err)
		}
		views = append(views, tv)
		return tv, nil
	}

	for i := range rt.ColorAttachments {
		ca := &rt.ColorAttachments[i]
		tv, err := view(attachments[i], "color attachment")
		if err != nil {
			return nil, nil, err
		}
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       tv,
			LoadOp:     ca.LoadOp,
			StoreOp:    ca.StoreOp,
			ClearValue: ca.ClearValue,
		})
	}
	if d := rt.DepthStencilAttachment; d != nil {
		tv, err := view(attachments[len(rt.ColorAttachments)], "depth attachment")
		if err != nil {
			return nil, nil, err
		}
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:            tv,
			DepthLoadOp:     d.DepthLoadOp,
			DepthStoreOp:    d.DepthStoreOp,
			DepthClearValue: d.DepthClearValue,
		}
	}
	return desc, views, nil
}

// SignalEvent implements rgcore.CommandBuffer.
func (cb *commandBuffer) SignalEvent(_ rgcore.QueueIndex, value uint64) {
	cb.signalValue = value
}

// WaitEvent implements rgcore.CommandBuffer. The wait is resolved on the
// CPU at commit time: the single HAL queue executes submissions in
// order, so a fence wait before submission is sufficient.
func (cb *commandBuffer) WaitEvent(_ rgcore.QueueIndex, value uint64) {
	cb.waits = append(cb.waits, value)
}

// Present implements rgcore.CommandBuffer.
func (cb *commandBuffer) Present(d rgcore.Drawable) {
	cb.presents = append(cb.presents, d)
}

// Commit implements rgcore.CommandBuffer: finish encoding, resolve
// waits, submit with the timeline value, then complete asynchronously
// once the fence reaches it.
func (cb *commandBuffer) Commit(onComplete func(error)) error {
	if cb.committed {
		return fmt.Errorf("wgpu: command buffer committed twice")
	}
	cb.committed = true
	b := cb.backend

	cmdBuf, err := cb.encoder.EndEncoding()
	if err != nil {
		err = fmt.Errorf("end encoding: %w", err)
		onComplete(err)
		return err
	}

	for _, w := range cb.waits {
		if done, waitErr := b.device.Wait(b.fence, w, b.timeout); waitErr != nil || !done {
			err := fmt.Errorf("wait for timeline value %d: %w", w, errOr(waitErr, ErrCompletionTimeout))
			b.device.FreeCommandBuffer(cmdBuf)
			onComplete(err)
			return err
		}
	}

	if err := b.queue.Submit([]hal.CommandBuffer{cmdBuf}, b.fence, cb.signalValue); err != nil {
		err = fmt.Errorf("submit: %w", err)
		b.device.FreeCommandBuffer(cmdBuf)
		onComplete(err)
		return err
	}

	for _, d := range cb.presents {
		d.Present()
	}

	// Completion is driven by a watcher goroutine polling the timeline
	// fence; the queue registry's condition variable then wakes CPU
	// waiters.
	go func() {
		done, waitErr := b.device.Wait(b.fence, cb.signalValue, b.timeout)
		b.device.FreeCommandBuffer(cmdBuf)
		switch {
		case waitErr != nil:
			onComplete(fmt.Errorf("completion wait: %w", waitErr))
		case !done:
			onComplete(ErrCompletionTimeout)
		default:
			onComplete(nil)
		}
	}()
	return nil
}

func errOr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}

// passEncoder implements rgcore.PassEncoder over the command buffer's
// HAL encoder.
type passEncoder struct {
	cb  *commandBuffer
	typ rgcore.PassType

	renderPass hal.RenderPassEncoder
	views      []hal.TextureView
	ended      bool
}

// HALEncoder exposes the underlying command encoder so pass payloads can
// record dispatches and copies directly.
func (pe *passEncoder) HALEncoder() hal.CommandEncoder {
	return pe.cb.encoder
}

// RenderPass exposes the open HAL render pass for draw payloads.
func (pe *passEncoder) RenderPass() hal.RenderPassEncoder {
	return pe.renderPass
}

// UseResource implements rgcore.PassEncoder. WebGPU tracks residency
// itself; the declaration encodes to nothing.
func (pe *passEncoder) UseResource(_ rgcore.Resource, _ rgcore.Backing, _ rgcore.UseKind, _ rgcore.RenderStages) {
}

// MemoryBarrier implements rgcore.PassEncoder. Texture barriers become
// usage transitions; buffer hazards within a queue are ordered by
// WebGPU's execution model.
func (pe *passEncoder) MemoryBarrier(_ rgcore.Resource, backing rgcore.Backing, _, _ rgcore.RenderStages) {
	if pe.typ == rgcore.PassDraw {
		// Transitions are not legal inside a render pass; attachment
		// reads go through the input attachment path instead.
		return
	}
	texture, ok := HALTexture(backing)
	if !ok {
		return
	}
	pe.cb.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: texture,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageStorageBinding,
			NewUsage: gputypes.TextureUsageTextureBinding,
		},
	}})
}

// SignalFence implements rgcore.PassEncoder. One in-order HAL queue
// subsumes intra-queue encoder fences.
func (pe *passEncoder) SignalFence(_ int, _ rgcore.RenderStages) {}

// WaitFence implements rgcore.PassEncoder.
func (pe *passEncoder) WaitFence(_ int, _ rgcore.RenderStages) {}

// End implements rgcore.PassEncoder.
func (pe *passEncoder) End() error {
	if pe.ended {
		return fmt.Errorf("wgpu: pass encoder ended twice")
	}
	pe.ended = true
	if pe.renderPass != nil {
		pe.renderPass.End()
	}
	for _, v := range pe.views {
		pe.cb.backend.device.DestroyTextureView(v)
	}
	pe.views = nil
	return nil
}

var (
	_ rgcore.CommandBuffer = (*commandBuffer)(nil)
	_ rgcore.PassEncoder   = (*passEncoder)(nil)
)
