// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sched

import (
	"fmt"
	"sync"

	"github.com/gogpu/rendergraph/rgcore"
)

// drawableBackingSetter is the optional registry capability the executor
// uses to install acquired drawables as window texture backing.
type drawableBackingSetter interface {
	SetBacking(res rgcore.Resource, backing rgcore.Backing)
}

// Executor walks a compiled frame: it opens command buffers and encoders
// in order, replays the in-frame stream, runs pass payloads, and wires
// completion back into the queue timeline.
type Executor struct {
	Backend   rgcore.Backend
	Queue     *rgcore.Queue
	Table     *rgcore.ResourceTable
	Transient rgcore.TransientRegistry

	// DrawableMissing, when set, is invoked for every encoder skipped
	// because its swapchain drawable could not be acquired.
	DrawableMissing func(encoderIndex int)
}

// frameCompletion fans the per-command-buffer completions into the
// caller's single callback, which fires with the first error once the
// final command buffer completes.
type frameCompletion struct {
	mu       sync.Mutex
	firstErr error
	done     bool
	complete func(error)
}

func (fc *frameCompletion) noteError(err error) {
	fc.mu.Lock()
	if fc.firstErr == nil {
		fc.firstErr = err
	}
	fc.mu.Unlock()
}

func (fc *frameCompletion) finish() {
	fc.mu.Lock()
	if fc.done {
		fc.mu.Unlock()
		return
	}
	fc.done = true
	err := fc.firstErr
	fc.mu.Unlock()
	fc.complete(err)
}

// Execute submits the compiled frame. onComplete runs exactly once, after
// the final command buffer completes on the GPU (or immediately on a
// submission failure that prevents the frame from committing; in that
// case Execute also returns the error).
func (e *Executor) Execute(cf *CompiledFrame, onComplete func(error)) error {
	fc := &frameCompletion{complete: onComplete}

	if err := e.run(cf, fc); err != nil {
		fc.noteError(err)
		fc.finish()
		return err
	}
	return nil
}

func (e *Executor) run(cf *CompiledFrame, fc *frameCompletion) error {
	info := cf.Info
	own := e.Queue.Index()
	reg := e.Queue.Registry()

	next := 0 // cursor into the sorted in-frame stream

	for cbIndex := 0; cbIndex < info.CommandBufferCount; cbIndex++ {
		var cb rgcore.CommandBuffer
		var drawables []rgcore.Drawable
		var waitedFor [rgcore.MaxQueues]uint64
		signal := info.SignalValue(cbIndex)
		last := cbIndex == info.CommandBufferCount-1

		for encIndex := range info.Encoders {
			enc := &info.Encoders[encIndex]
			if enc.CommandBufferIndex != cbIndex {
				continue
			}

			if enc.Type == rgcore.PassCPU {
				// CPU passes are non-submitting; their payloads run in
				// order with no backend encoder.
				if err := e.runPasses(info, enc, nil, cf, &next); err != nil {
					return err
				}
				continue
			}

			if cb == nil {
				var err error
				cb, err = e.Backend.NewCommandBuffer(own, fmt.Sprintf("frame cb %d", cbIndex))
				if err != nil {
					return fmt.Errorf("command buffer %d: %w", cbIndex, err)
				}
			}

			// Cross-queue waits this command buffer has not yet encoded.
			for q := rgcore.QueueIndex(0); q < rgcore.MaxQueues; q++ {
				w := enc.QueueCommandWaitIndices[q]
				if w == 0 || w <= waitedFor[q] || reg.LastCompletedCommand(q) >= w {
					continue
				}
				if e.Backend.IsPeerQueue(q) {
					cb.WaitEvent(q, w)
				} else {
					// Queues outside the backend have no shareable sync
					// event; block until their timeline catches up.
					reg.WaitForCommand(q, w)
				}
				waitedFor[q] = w
			}

			// Resolve render target attachments, acquiring drawables for
			// window handle textures.
			attachments, ds, ok, err := e.resolveAttachments(enc)
			if err != nil {
				return err
			}
			if !ok {
				// No drawable this frame: skip the encoder, keep the frame.
				slogger().Warn("rendergraph: drawable unavailable, skipping encoder", "encoder", encIndex)
				if e.DrawableMissing != nil {
					e.DrawableMissing(encIndex)
				}
				skipCommands(cf, &next, enc.CommandRange.Hi)
				continue
			}
			drawables = append(drawables, ds...)

			pe, err := cb.BeginPass(enc.Type, enc.RenderTarget, attachments)
			if err != nil {
				return fmt.Errorf("encoder %d: %w", encIndex, err)
			}
			if err := e.runPasses(info, enc, pe, cf, &next); err != nil {
				pe.End()
				return err
			}
			if err := pe.End(); err != nil {
				return fmt.Errorf("encoder %d: %w", encIndex, err)
			}
		}

		if cb == nil {
			// Nothing submitted (cpu-only command buffer); the timeline
			// still advances so waiters observe the signal value.
			e.Queue.CommandSubmitted(signal)
			e.Queue.CommandCompleted(signal)
			if last {
				e.applyWaitIndexUpdates(cf)
				fc.finish()
			}
			continue
		}

		for _, d := range drawables {
			cb.Present(d)
		}
		cb.SignalEvent(own, signal)

		queue := e.Queue
		queue.CommandSubmitted(signal)
		commitErr := cb.Commit(func(err error) {
			if err != nil {
				fc.noteError(err)
			}
			// The timeline advances even on error so waiters never
			// deadlock on a failed submission.
			queue.CommandCompleted(signal)
			if last {
				fc.finish()
			}
		})
		if commitErr != nil {
			return fmt.Errorf("commit command buffer %d: %w", cbIndex, commitErr)
		}
		if last {
			e.applyWaitIndexUpdates(cf)
		}
	}
	return nil
}

// resolveAttachments returns the backings of a draw encoder's render
// target attachments in descriptor order, acquiring swapchain drawables
// as needed. ok is false when a drawable is unavailable.
func (e *Executor) resolveAttachments(enc *EncoderInfo) (attachments []rgcore.Backing, drawables []rgcore.Drawable, ok bool, err error) {
	rt := enc.RenderTarget
	if rt == nil {
		return nil, nil, true, nil
	}

	resolve := func(tex rgcore.Texture) (rgcore.Backing, bool, error) {
		if backing := e.Transient.Backing(tex.Resource); backing != nil {
			return backing, true, nil
		}
		if !tex.IsWindowHandle() {
			return nil, true, nil
		}
		d, err := e.Backend.AcquireDrawable(tex, e.Table.TextureDescriptor(tex))
		if err != nil {
			return nil, false, err
		}
		if d == nil {
			return nil, false, nil
		}
		drawables = append(drawables, d)
		backing := d.Texture()
		if setter, ok := e.Transient.(drawableBackingSetter); ok {
			setter.SetBacking(tex.Resource, backing)
		}
		return backing, true, nil
	}

	for i := range rt.ColorAttachments {
		backing, found, err := resolve(rt.ColorAttachments[i].Texture)
		if err != nil || !found {
			return nil, nil, false, err
		}
		attachments = append(attachments, backing)
	}
	if rt.DepthStencilAttachment != nil {
		backing, found, err := resolve(rt.DepthStencilAttachment.Texture)
		if err != nil || !found {
			return nil, nil, false, err
		}
		attachments = append(attachments, backing)
	}
	return attachments, drawables, true, nil
}

// runPasses replays the in-frame stream interleaved with the encoder's
// pass payloads: commands ordered before a pass's range run first, then
// the payload, then commands ordered after.
func (e *Executor) runPasses(info *CommandInfo, enc *EncoderInfo, pe rgcore.PassEncoder, cf *CompiledFrame, next *int) error {
	for p := enc.PassRange.Lo; p < enc.PassRange.Hi; p++ {
		pass := &info.Passes[p]
		if !pass.Active {
			continue
		}

		e.replay(cf, next, pass.CommandRange, OrderBefore, pe)

		if pass.Execute != nil {
			if err := pass.Execute(pe); err != nil {
				return fmt.Errorf("pass %q: %w", pass.Name, err)
			}
		}

		e.replay(cf, next, pass.CommandRange, OrderAfter, pe)
	}
	return nil
}

// replay issues in-frame commands attached to the pass's command range.
// In the OrderBefore phase, commands ordered after an index inside the
// range stay queued for the post-payload sweep.
func (e *Executor) replay(cf *CompiledFrame, next *int, r Range, phase CommandOrder, pe rgcore.PassEncoder) {
	for *next < len(cf.InFrame) {
		cmd := &cf.InFrame[*next]
		if cmd.Index >= r.Hi {
			break
		}
		if phase == OrderBefore && cmd.Order == OrderAfter && cmd.Index >= r.Lo {
			break
		}
		*next++
		if pe == nil {
			continue
		}
		switch cmd.Kind {
		case FrameCmdUseResource:
			pe.UseResource(cmd.Resource, e.Transient.Backing(cmd.Resource), cmd.UseKind, cmd.Stages)
		case FrameCmdMemoryBarrier:
			pe.MemoryBarrier(cmd.Resource, e.Transient.Backing(cmd.Resource), cmd.AfterStages, cmd.BeforeStages)
		case FrameCmdUpdateFence:
			pe.SignalFence(cmd.Fence, cmd.AfterStages)
		case FrameCmdWaitForFence:
			pe.WaitFence(cmd.Fence, cmd.BeforeStages)
		}
	}
}

// skipCommands drops the stream entries of a skipped encoder.
func skipCommands(cf *CompiledFrame, next *int, hi int) {
	for *next < len(cf.InFrame) && cf.InFrame[*next].Index < hi {
		*next++
	}
}

// applyWaitIndexUpdates publishes this frame's signal values into the
// wait indices of the persistent resources it touched.
func (e *Executor) applyWaitIndexUpdates(cf *CompiledFrame) {
	own := e.Queue.Index()
	for i := range cf.WaitIndexUpdates {
		upd := &cf.WaitIndexUpdates[i]
		if upd.Read {
			e.Table.RaiseWaitIndex(upd.Resource, own, rgcore.WaitRead, upd.SignalValue)
		}
		if upd.Write {
			e.Table.RaiseWaitIndex(upd.Resource, own, rgcore.WaitWrite, upd.SignalValue)
		}
		if upd.Read && upd.Write {
			e.Table.RaiseWaitIndex(upd.Resource, own, rgcore.WaitReadWrite, upd.SignalValue)
		}
	}
}
