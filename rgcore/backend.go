// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rgcore

import "github.com/gogpu/gputypes"

// Backing is an opaque backend allocation (a hal buffer, texture, bind
// group, or drawable texture). The scheduler never inspects it; it only
// threads it between the allocator, the registry, and pass encoders.
type Backing any

// FenceDependency records one side of a synchronization edge left behind
// on aliased heap memory: the position and stages after which the guarded
// work signals, plus the queue timeline value that backs the same wait
// across frames.
type FenceDependency struct {
	// FrameIndex is the frame that recorded the dependency. Within the
	// same frame the encoder edge applies; across frames the queue wait
	// applies instead.
	FrameIndex uint64

	// EncoderIndex and CommandIndex locate the signal inside the
	// recording frame.
	EncoderIndex int
	CommandIndex int

	// Stages are the pipeline stages after which the signal fires.
	Stages RenderStages

	// Queue and SignalValue identify the command buffer whose completion
	// makes the guarded memory safe for a later frame.
	Queue       QueueIndex
	SignalValue uint64
}

// Drawable is a swapchain image acquired for one frame.
type Drawable interface {
	// Texture returns the drawable's backing texture allocation.
	Texture() Backing

	// Present schedules the drawable for presentation after the command
	// buffer that rendered to it commits.
	Present()
}

// PassEncoder records the commands of one encoder. Implementations wrap
// the native render, compute, blit, or external command encoder.
//
// PassEncoder is not safe for concurrent use.
type PassEncoder interface {
	// UseResource declares residency and access for a resource used by
	// the encoder outside of render-target attachment.
	UseResource(res Resource, backing Backing, kind UseKind, stages RenderStages)

	// MemoryBarrier orders writes before afterStages against reads from
	// beforeStages within this encoder.
	MemoryBarrier(res Resource, backing Backing, afterStages, beforeStages RenderStages)

	// SignalFence makes fence visible once the encoder's work through
	// afterStages completes.
	SignalFence(fence int, afterStages RenderStages)

	// WaitFence stalls work at beforeStages until fence is visible.
	WaitFence(fence int, beforeStages RenderStages)

	// End finishes the encoder.
	End() error
}

// CommandBuffer is a unit of submission to a native queue.
//
// CommandBuffer is not safe for concurrent use.
type CommandBuffer interface {
	// BeginPass opens a recording encoder for the given pass type. The
	// render target descriptor is non-nil exactly for draw encoders;
	// attachments carries the resolved backing per attachment in
	// descriptor order (colors first, then depth).
	BeginPass(t PassType, rt *RenderTargetDescriptor, attachments []Backing) (PassEncoder, error)

	// SignalEvent makes the queue's sync event visible at value once the
	// command buffer completes.
	SignalEvent(q QueueIndex, value uint64)

	// WaitEvent defers the command buffer's execution until the queue's
	// sync event reaches value.
	WaitEvent(q QueueIndex, value uint64)

	// Present schedules a drawable for presentation after commit.
	Present(d Drawable)

	// Commit submits the command buffer. onComplete runs exactly once
	// when the GPU finishes the buffer (or submission fails), with the
	// submission or execution error.
	Commit(onComplete func(error)) error
}

// Allocator provides raw backing memory. The transient resource registry
// layers pooling, aliasing, and wait-event tracking on top of it.
type Allocator interface {
	// AllocateBuffer allocates backing for a buffer descriptor.
	AllocateBuffer(desc BufferDescriptor) (Backing, error)

	// AllocateTexture allocates backing for a texture descriptor with the
	// given accumulated usage flags.
	AllocateTexture(desc TextureDescriptor, usage gputypes.TextureUsage) (Backing, error)

	// AllocateTextureView creates a view of base with the given usage.
	AllocateTextureView(base Backing, desc TextureDescriptor, usage gputypes.TextureUsage) (Backing, error)

	// AllocateArgumentBuffer allocates an argument table with room for
	// the given number of entries.
	AllocateArgumentBuffer(entries int) (Backing, error)

	// Dispose releases an allocation obtained from this allocator.
	Dispose(b Backing)
}

// TransientRegistry materializes and recycles transient resources for the
// compiler. The default implementation lives in the scheduler; backends
// may substitute their own (for example, one backed by placement heaps).
//
// All methods are called from the frame's compilation thread only.
type TransientRegistry interface {
	// AllocateBufferIfNeeded ensures the buffer has backing memory and
	// returns the queue timeline value the caller must wait on before
	// using the acquired slot.
	AllocateBufferIfNeeded(b Buffer) (waitEvent uint64, err error)

	// AllocateTextureIfNeeded ensures the texture has backing memory,
	// widened to the given usage, and returns the slot's wait event.
	AllocateTextureIfNeeded(t Texture, usage gputypes.TextureUsage) (waitEvent uint64, err error)

	// AllocateTextureViewIfNeeded ensures a texture view over an already
	// materialized base texture.
	AllocateTextureViewIfNeeded(t Texture, usage gputypes.TextureUsage) (waitEvent uint64, err error)

	// AllocateArgumentBufferIfNeeded ensures the argument buffer has
	// backing memory. The resources it references must already be
	// materialized.
	AllocateArgumentBufferIfNeeded(ab ArgumentBuffer) (waitEvent uint64, err error)

	// DisposeBuffer returns the buffer's backing to the pool, tagged so
	// reuse waits on waitEvent.
	DisposeBuffer(b Buffer, waitEvent uint64)

	// DisposeTexture returns the texture's backing to the pool, tagged so
	// reuse waits on waitEvent.
	DisposeTexture(t Texture, waitEvent uint64)

	// DisposeArgumentBuffer returns the argument buffer's backing to the
	// pool, tagged so reuse waits on waitEvent.
	DisposeArgumentBuffer(ab ArgumentBuffer, waitEvent uint64)

	// IsAliasedHeapResource reports whether the resource's backing is
	// sub-allocated from a shared heap and therefore interferes with
	// other heap users.
	IsAliasedHeapResource(res Resource) bool

	// WithHeapAliasingFences invokes fn with each fence dependency
	// currently guarding memory that aliases the resource.
	WithHeapAliasingFences(res Resource, fn func(FenceDependency))

	// SetDisposalFences records the fences downstream aliasing users of
	// the resource's memory must wait on.
	SetDisposalFences(res Resource, deps []FenceDependency)

	// RegisterInitializedHistoryBufferForDisposal schedules the history
	// buffer's backing for release at the end of this frame even though
	// the resource is persistent.
	RegisterInitializedHistoryBufferForDisposal(res Resource)

	// Backing returns the current backing of a materialized resource, or
	// nil if the resource has none.
	Backing(res Resource) Backing

	// PrepareFrame runs before compilation of each frame.
	PrepareFrame()

	// CycleFrames runs after a frame is submitted: transient backings not
	// claimed by the next frame become reusable once their wait events
	// complete.
	CycleFrames()

	// ClearSwapChains drops cached swapchain state.
	ClearSwapChains()

	// ClearDrawables drops drawables acquired for the current frame.
	ClearDrawables()
}

// Backend is the full adapter contract a native API binding provides.
type Backend interface {
	// Allocator returns the backend's raw memory allocator.
	Allocator() Allocator

	// NewCommandBuffer opens a command buffer on the given queue.
	NewCommandBuffer(q QueueIndex, label string) (CommandBuffer, error)

	// AcquireDrawable obtains the swapchain image backing a window-handle
	// texture. Returning a nil Drawable without error means the drawable
	// is unavailable this frame; the affected encoder is skipped.
	AcquireDrawable(t Texture, desc TextureDescriptor) (Drawable, error)

	// IsPeerQueue reports whether the queue is driven by this backend,
	// and can therefore be waited on with an encoded event rather than a
	// blocking CPU-side wait.
	IsPeerQueue(q QueueIndex) bool
}
