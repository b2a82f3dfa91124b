// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph/internal/sched"
	"github.com/gogpu/rendergraph/rgcore"
)

// Frame collects passes and their resource usages until submission.
// Frames are single-use: record, submit, discard.
//
// Frame is not safe for concurrent use.
type Frame struct {
	scheduler *Scheduler
	passes    []sched.PassRecord
	usages    *sched.ResourceUsages
	transient []rgcore.Resource
	submitted bool
}

// NewBuffer creates a buffer valid only within this frame.
func (f *Frame) NewBuffer(desc rgcore.BufferDescriptor) rgcore.Buffer {
	b := f.scheduler.table.NewBuffer(desc, 0)
	f.transient = append(f.transient, b.Resource)
	return b
}

// NewTexture creates a texture valid only within this frame.
func (f *Frame) NewTexture(desc rgcore.TextureDescriptor) rgcore.Texture {
	t := f.scheduler.table.NewTexture(desc, 0)
	f.transient = append(f.transient, t.Resource)
	return t
}

// NewTextureView creates a view over another texture's backing, valid
// only within this frame.
func (f *Frame) NewTextureView(base rgcore.Texture, desc rgcore.TextureDescriptor) rgcore.Texture {
	t := f.scheduler.table.NewTextureView(base, desc)
	f.transient = append(f.transient, t.Resource)
	return t
}

// NewArgumentBuffer creates an argument buffer valid only within this
// frame.
func (f *Frame) NewArgumentBuffer(entries int) rgcore.ArgumentBuffer {
	ab := f.scheduler.table.NewArgumentBuffer(entries, 0)
	f.transient = append(f.transient, ab.Resource)
	return ab
}

func (f *Frame) addPass(t rgcore.PassType, name string, rt *rgcore.RenderTargetDescriptor) *Pass {
	if f.submitted {
		panic(ErrFrameSubmitted)
	}
	index := len(f.passes)
	f.passes = append(f.passes, sched.PassRecord{
		Index:        index,
		Type:         t,
		Name:         name,
		Active:       true,
		RenderTarget: rt,
		CommandRange: sched.Range{Lo: index, Hi: index + 1},
	})
	return &Pass{frame: f, index: index}
}

// AddDrawPass appends a draw pass rendering into the given target. The
// target's attachments are declared as render-target usages
// automatically, derived from their load and store operations.
func (f *Frame) AddDrawPass(name string, rt *rgcore.RenderTargetDescriptor) *Pass {
	if rt == nil {
		panic("rendergraph: draw pass requires a render target descriptor")
	}
	p := f.addPass(rgcore.PassDraw, name, rt)

	for i := range rt.ColorAttachments {
		ca := &rt.ColorAttachments[i]
		p.declare(ca.Texture.Resource, attachmentAccess(ca.LoadOp, ca.StoreOp), rgcore.StageFragment, false)
	}
	if d := rt.DepthStencilAttachment; d != nil {
		p.declare(d.Texture.Resource, attachmentAccess(d.DepthLoadOp, d.DepthStoreOp), rgcore.StageFragment, false)
	}
	return p
}

// attachmentAccess derives the render-target access type from the
// attachment's load and store operations.
func attachmentAccess(load gputypes.LoadOp, store gputypes.StoreOp) rgcore.AccessType {
	stores := store == gputypes.StoreOpStore
	loads := load == gputypes.LoadOpLoad
	switch {
	case loads && stores:
		return rgcore.AccessReadWriteRenderTarget
	case stores:
		return rgcore.AccessWriteOnlyRenderTarget
	case loads:
		return rgcore.AccessInputAttachmentRenderTarget
	default:
		return rgcore.AccessUnusedRenderTarget
	}
}

// AddComputePass appends a compute pass.
func (f *Frame) AddComputePass(name string) *Pass {
	return f.addPass(rgcore.PassCompute, name, nil)
}

// AddBlitPass appends a blit/copy pass.
func (f *Frame) AddBlitPass(name string) *Pass {
	return f.addPass(rgcore.PassBlit, name, nil)
}

// AddExternalPass appends a pass whose commands are recorded outside the
// scheduler.
func (f *Frame) AddExternalPass(name string) *Pass {
	return f.addPass(rgcore.PassExternal, name, nil)
}

// AddCPUPass appends a CPU-side pass. CPU passes submit no GPU commands;
// their payload runs in order on the executing goroutine.
func (f *Frame) AddCPUPass(name string) *Pass {
	return f.addPass(rgcore.PassCPU, name, nil)
}

// finalize stamps usages with resolved pass state.
func (f *Frame) finalize() error {
	if f.submitted {
		return ErrFrameSubmitted
	}
	f.submitted = true
	f.usages.Finalize(f.passes)
	return nil
}

// Pass is the builder for one pass's usage declarations and payload.
type Pass struct {
	frame *Frame
	index int
}

// Name returns the pass's debug name.
func (p *Pass) Name() string {
	return p.frame.passes[p.index].Name
}

func (p *Pass) record() *sched.PassRecord {
	return &p.frame.passes[p.index]
}

func (p *Pass) declare(res rgcore.Resource, access rgcore.AccessType, stages rgcore.RenderStages, inArgBuf bool) {
	if p.frame.submitted {
		panic(ErrFrameSubmitted)
	}
	if access.IsWrite() {
		p.checkWritable(res)
	}
	p.frame.usages.Record(res, sched.Usage{
		PassIndex:        p.index,
		Access:           access,
		Stages:           stages,
		InArgumentBuffer: inArgBuf,
	})
}

// checkWritable enforces the immutable-once-initialized promise: writing
// such a resource after initialization is a caller bug.
func (p *Pass) checkWritable(res rgcore.Resource) {
	if res.Flags()&rgcore.FlagImmutableOnceInitialized == 0 {
		return
	}
	if p.frame.scheduler.table.IsInitialized(res) {
		panic(fmt.Sprintf("rendergraph: write to immutable resource %v after initialization", res))
	}
}

// Reads declares a read of the resource at the given stages.
func (p *Pass) Reads(res rgcore.Resource, stages rgcore.RenderStages) *Pass {
	p.declare(res, rgcore.AccessRead, stages, false)
	return p
}

// Writes declares a write of the resource at the given stages.
func (p *Pass) Writes(res rgcore.Resource, stages rgcore.RenderStages) *Pass {
	p.declare(res, rgcore.AccessWrite, stages, false)
	return p
}

// ReadsWrites declares a read-modify-write of the resource.
func (p *Pass) ReadsWrites(res rgcore.Resource, stages rgcore.RenderStages) *Pass {
	p.declare(res, rgcore.AccessReadWrite, stages, false)
	return p
}

// ReadsThrough declares a read of res bound through the given argument
// buffer. The argument buffer itself is read at the same stages.
func (p *Pass) ReadsThrough(ab rgcore.ArgumentBuffer, res rgcore.Resource, stages rgcore.RenderStages) *Pass {
	p.declare(ab.Resource, rgcore.AccessRead, stages, false)
	p.declare(res, rgcore.AccessRead, stages, true)
	return p
}

// WritesThrough declares a write of res bound through the given argument
// buffer.
func (p *Pass) WritesThrough(ab rgcore.ArgumentBuffer, res rgcore.Resource, stages rgcore.RenderStages) *Pass {
	p.declare(ab.Resource, rgcore.AccessRead, stages, false)
	p.declare(res, rgcore.AccessWrite, stages, true)
	return p
}

// BreaksEncoder forces the pass into a new encoder even when it would
// coalesce with its predecessor. Useful for spreading long compute
// chains across encoders the GPU can overlap.
func (p *Pass) BreaksEncoder() *Pass {
	p.record().StartsNewEncoder = true
	return p
}

// SetActive toggles the pass. Inactive passes contribute no encoders, no
// hazards, and no resource lifetimes.
func (p *Pass) SetActive(active bool) *Pass {
	p.record().Active = active
	return p
}

// SetExecute installs the pass's payload, invoked with the open encoder
// at execution time. CPU pass payloads receive a nil encoder.
func (p *Pass) SetExecute(fn func(rgcore.PassEncoder) error) *Pass {
	p.record().Execute = fn
	return p
}
