// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package null provides a backend that records every adapter call and
// completes command buffers synchronously. It backs the scheduler's
// tests, headless schedule inspection, and dry runs on machines without
// a GPU.
package null

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph/rgcore"
)

// ErrAllocationFailed is returned by the allocator when FailAllocations
// is set, simulating backend memory exhaustion.
var ErrAllocationFailed = errors.New("null: allocation failed")

// Backend is a recording no-op backend.
//
// Backend is safe for concurrent use.
type Backend struct {
	mu sync.Mutex

	alloc *Allocator

	// CommandBuffers records every command buffer in creation order.
	CommandBuffers []*CommandBuffer

	// DrawableAvailable controls AcquireDrawable: when false, acquisition
	// reports no drawable and the scheduler skips the encoder.
	DrawableAvailable bool

	// SubmitError, when non-nil, is delivered through every subsequent
	// command buffer's completion callback.
	SubmitError error

	drawables atomic.Int64
}

// New creates a null backend with drawables available.
func New() *Backend {
	return &Backend{
		alloc:             &Allocator{},
		DrawableAvailable: true,
	}
}

// Allocator implements rgcore.Allocator, handing out counted stub
// allocations.
type Allocator struct {
	mu sync.Mutex

	// Live is the number of allocations not yet disposed.
	Live int

	// Total counts every allocation ever made.
	Total int

	// FailAllocations makes every allocation return
	// ErrAllocationFailed.
	FailAllocations bool

	next int
}

// Allocation is the stub backing handed out by the null allocator.
type Allocation struct {
	// ID is unique per allocation.
	ID int

	// Kind describes what was allocated ("buffer", "texture", "view",
	// "argument", "drawable").
	Kind string
}

func (a *Allocator) allocate(kind string) (rgcore.Backing, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.FailAllocations {
		return nil, ErrAllocationFailed
	}
	a.next++
	a.Live++
	a.Total++
	return &Allocation{ID: a.next, Kind: kind}, nil
}

// AllocateBuffer implements rgcore.Allocator.
func (a *Allocator) AllocateBuffer(rgcore.BufferDescriptor) (rgcore.Backing, error) {
	return a.allocate("buffer")
}

// AllocateTexture implements rgcore.Allocator.
func (a *Allocator) AllocateTexture(rgcore.TextureDescriptor, gputypes.TextureUsage) (rgcore.Backing, error) {
	return a.allocate("texture")
}

// AllocateTextureView implements rgcore.Allocator.
func (a *Allocator) AllocateTextureView(base rgcore.Backing, _ rgcore.TextureDescriptor, _ gputypes.TextureUsage) (rgcore.Backing, error) {
	if base == nil {
		return nil, errors.New("null: view of nil backing")
	}
	return a.allocate("view")
}

// AllocateArgumentBuffer implements rgcore.Allocator.
func (a *Allocator) AllocateArgumentBuffer(int) (rgcore.Backing, error) {
	return a.allocate("argument")
}

// Dispose implements rgcore.Allocator.
func (a *Allocator) Dispose(b rgcore.Backing) {
	if b == nil {
		return
	}
	a.mu.Lock()
	a.Live--
	a.mu.Unlock()
}

// Allocator returns the backend's allocator.
func (b *Backend) Allocator() rgcore.Allocator {
	return b.alloc
}

// NullAllocator returns the allocator with its counters exposed.
func (b *Backend) NullAllocator() *Allocator {
	return b.alloc
}

// NewCommandBuffer implements rgcore.Backend.
func (b *Backend) NewCommandBuffer(q rgcore.QueueIndex, label string) (rgcore.CommandBuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb := &CommandBuffer{backend: b, Queue: q, Label: label}
	b.CommandBuffers = append(b.CommandBuffers, cb)
	return cb, nil
}

// AcquireDrawable implements rgcore.Backend.
func (b *Backend) AcquireDrawable(t rgcore.Texture, _ rgcore.TextureDescriptor) (rgcore.Drawable, error) {
	b.mu.Lock()
	available := b.DrawableAvailable
	b.mu.Unlock()
	if !available {
		return nil, nil
	}
	id := b.drawables.Add(1)
	return &Drawable{id: id, texture: &Allocation{ID: int(id), Kind: "drawable"}}, nil
}

// IsPeerQueue implements rgcore.Backend: the null backend drives every
// queue.
func (b *Backend) IsPeerQueue(rgcore.QueueIndex) bool {
	return true
}

// Drawable is a stub swapchain image.
type Drawable struct {
	id        int64
	texture   *Allocation
	presented atomic.Bool
}

// Texture implements rgcore.Drawable.
func (d *Drawable) Texture() rgcore.Backing {
	return d.texture
}

// Present implements rgcore.Drawable.
func (d *Drawable) Present() {
	d.presented.Store(true)
}

// Presented reports whether Present was called.
func (d *Drawable) Presented() bool {
	return d.presented.Load()
}

// EncoderOp is one recorded encoder operation.
type EncoderOp struct {
	Op       string // "useResource", "memoryBarrier", "signalFence", "waitFence"
	Resource rgcore.Resource
	UseKind  rgcore.UseKind
	Stages   rgcore.RenderStages
	After    rgcore.RenderStages
	Before   rgcore.RenderStages
	Fence    int
}

// Encoder is a recording pass encoder.
type Encoder struct {
	Type   rgcore.PassType
	Target *rgcore.RenderTargetDescriptor
	Ops    []EncoderOp
	Ended  bool
}

// UseResource implements rgcore.PassEncoder.
func (e *Encoder) UseResource(res rgcore.Resource, _ rgcore.Backing, kind rgcore.UseKind, stages rgcore.RenderStages) {
	e.Ops = append(e.Ops, EncoderOp{Op: "useResource", Resource: res, UseKind: kind, Stages: stages})
}

// MemoryBarrier implements rgcore.PassEncoder.
func (e *Encoder) MemoryBarrier(res rgcore.Resource, _ rgcore.Backing, after, before rgcore.RenderStages) {
	e.Ops = append(e.Ops, EncoderOp{Op: "memoryBarrier", Resource: res, After: after, Before: before})
}

// SignalFence implements rgcore.PassEncoder.
func (e *Encoder) SignalFence(fence int, after rgcore.RenderStages) {
	e.Ops = append(e.Ops, EncoderOp{Op: "signalFence", Fence: fence, After: after})
}

// WaitFence implements rgcore.PassEncoder.
func (e *Encoder) WaitFence(fence int, before rgcore.RenderStages) {
	e.Ops = append(e.Ops, EncoderOp{Op: "waitFence", Fence: fence, Before: before})
}

// End implements rgcore.PassEncoder.
func (e *Encoder) End() error {
	if e.Ended {
		return fmt.Errorf("null: encoder ended twice")
	}
	e.Ended = true
	return nil
}

// EventOp is a recorded signal or wait on a queue sync event.
type EventOp struct {
	Op    string // "signal", "wait"
	Queue rgcore.QueueIndex
	Value uint64
}

// CommandBuffer is a recording command buffer that completes
// synchronously on commit.
type CommandBuffer struct {
	backend *Backend

	Queue     rgcore.QueueIndex
	Label     string
	Encoders  []*Encoder
	Events    []EventOp
	Presented []rgcore.Drawable
	Committed bool
}

// BeginPass implements rgcore.CommandBuffer.
func (cb *CommandBuffer) BeginPass(t rgcore.PassType, rt *rgcore.RenderTargetDescriptor, _ []rgcore.Backing) (rgcore.PassEncoder, error) {
	e := &Encoder{Type: t, Target: rt}
	cb.Encoders = append(cb.Encoders, e)
	return e, nil
}

// SignalEvent implements rgcore.CommandBuffer.
func (cb *CommandBuffer) SignalEvent(q rgcore.QueueIndex, value uint64) {
	cb.Events = append(cb.Events, EventOp{Op: "signal", Queue: q, Value: value})
}

// WaitEvent implements rgcore.CommandBuffer.
func (cb *CommandBuffer) WaitEvent(q rgcore.QueueIndex, value uint64) {
	cb.Events = append(cb.Events, EventOp{Op: "wait", Queue: q, Value: value})
}

// Present implements rgcore.CommandBuffer.
func (cb *CommandBuffer) Present(d rgcore.Drawable) {
	cb.Presented = append(cb.Presented, d)
	d.Present()
}

// Commit implements rgcore.CommandBuffer: the completion callback runs
// synchronously with the backend's configured submit error.
func (cb *CommandBuffer) Commit(onComplete func(error)) error {
	if cb.Committed {
		return fmt.Errorf("null: command buffer committed twice")
	}
	cb.Committed = true
	cb.backend.mu.Lock()
	err := cb.backend.SubmitError
	cb.backend.mu.Unlock()
	onComplete(err)
	return nil
}

var (
	_ rgcore.Backend       = (*Backend)(nil)
	_ rgcore.CommandBuffer = (*CommandBuffer)(nil)
	_ rgcore.PassEncoder   = (*Encoder)(nil)
	_ rgcore.Allocator     = (*Allocator)(nil)
)
