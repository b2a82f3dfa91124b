// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rgcore

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// WaitAccess selects which cross-frame wait index of a resource an
// operation touches. Read, write, and read-write indices are tracked
// separately; profiling may later justify collapsing them.
type WaitAccess uint8

const (
	// WaitRead is the index gating subsequent reads.
	WaitRead WaitAccess = iota

	// WaitWrite is the index gating subsequent writes.
	WaitWrite

	// WaitReadWrite is the index gating subsequent read-modify-writes.
	WaitReadWrite

	waitAccessCount
)

// resourceSlot is the registry-side state of one resource. The handle's
// generation must match the slot's before any access.
type resourceSlot struct {
	generation uint32
	live       bool
	typ        ResourceType
	flags      ResourceFlags

	buffer  BufferDescriptor
	texture TextureDescriptor

	// viewOf is set for texture views: the base texture whose backing the
	// view reinterprets.
	viewOf Resource

	// argEntries is the slot count of an argument buffer.
	argEntries int

	// initialized flips to true after the first frame that writes the
	// resource completes compilation. Guarded writes for history buffers
	// and immutable resources key off it.
	initialized atomic.Bool

	// waitIndices[queue][access] is the command-buffer signal value that
	// must complete on the queue before the next access of that kind.
	// Written by one queue's executor at a time, read concurrently.
	waitIndices [MaxQueues][waitAccessCount]atomic.Uint64
}

// ResourceTable owns the metadata of every live resource handle: type,
// flags, descriptors, initialization state, and cross-frame wait indices.
// Handles index into it by generation and slot.
//
// ResourceTable is safe for concurrent use.
type ResourceTable struct {
	mu    sync.Mutex
	slots []*resourceSlot
	free  []uint32
}

// NewResourceTable creates an empty table.
func NewResourceTable() *ResourceTable {
	return &ResourceTable{}
}

func (t *ResourceTable) newSlot(typ ResourceType, flags ResourceFlags) (*resourceSlot, uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var index uint32
	var slot *resourceSlot
	if n := len(t.free); n > 0 {
		index = t.free[n-1]
		t.free = t.free[:n-1]
		slot = t.slots[index]
	} else {
		if len(t.slots) > MaxResourceIndex {
			panic("rendergraph: resource table is full")
		}
		index = uint32(len(t.slots))
		slot = &resourceSlot{}
		t.slots = append(t.slots, slot)
	}

	slot.live = true
	slot.typ = typ
	slot.flags = flags
	slot.buffer = BufferDescriptor{}
	slot.texture = TextureDescriptor{}
	slot.viewOf = Resource{}
	slot.initialized.Store(false)
	for q := range slot.waitIndices {
		for a := range slot.waitIndices[q] {
			slot.waitIndices[q][a].Store(0)
		}
	}
	return slot, index
}

// NewBuffer registers a buffer and returns its handle. History buffers
// are persistent by definition; the flag is widened here so callers can
// pass FlagHistoryBuffer alone.
func (t *ResourceTable) NewBuffer(desc BufferDescriptor, flags ResourceFlags) Buffer {
	flags = normalizeFlags(flags)
	slot, index := t.newSlot(ResourceTypeBuffer, flags)
	slot.buffer = desc
	return Buffer{MakeResource(ResourceTypeBuffer, flags, index, slot.generation)}
}

// NewTexture registers a texture and returns its handle.
func (t *ResourceTable) NewTexture(desc TextureDescriptor, flags ResourceFlags) Texture {
	flags = normalizeFlags(flags)
	slot, index := t.newSlot(ResourceTypeTexture, flags)
	slot.texture = desc
	return Texture{MakeResource(ResourceTypeTexture, flags, index, slot.generation)}
}

// NewTextureView registers a view over an existing texture's backing.
// Views share their base texture's lifetime flags.
func (t *ResourceTable) NewTextureView(base Texture, desc TextureDescriptor) Texture {
	flags := base.Flags()
	slot, index := t.newSlot(ResourceTypeTexture, flags)
	slot.texture = desc
	slot.viewOf = base.Resource
	return Texture{MakeResource(ResourceTypeTexture, flags, index, slot.generation)}
}

// ViewBase returns the base texture a view was created over, if any.
func (t *ResourceTable) ViewBase(tex Texture) (Texture, bool) {
	base := t.lookup(tex.Resource).viewOf
	if !base.IsValid() {
		return Texture{}, false
	}
	return Texture{base}, true
}

// NewArgumentBuffer registers an argument buffer with the given slot
// count and returns its handle.
func (t *ResourceTable) NewArgumentBuffer(entries int, flags ResourceFlags) ArgumentBuffer {
	flags = normalizeFlags(flags)
	slot, index := t.newSlot(ResourceTypeArgumentBuffer, flags)
	slot.argEntries = entries
	return ArgumentBuffer{MakeResource(ResourceTypeArgumentBuffer, flags, index, slot.generation)}
}

// NewArgumentBufferArray registers an argument buffer array and returns
// its handle.
func (t *ResourceTable) NewArgumentBufferArray(entries int, flags ResourceFlags) ArgumentBuffer {
	flags = normalizeFlags(flags)
	slot, index := t.newSlot(ResourceTypeArgumentBufferArray, flags)
	slot.argEntries = entries
	return ArgumentBuffer{MakeResource(ResourceTypeArgumentBufferArray, flags, index, slot.generation)}
}

// ArgumentBufferEntries returns the slot count an argument buffer was
// created with.
func (t *ResourceTable) ArgumentBufferEntries(ab ArgumentBuffer) int {
	return t.lookup(ab.Resource).argEntries
}

func normalizeFlags(flags ResourceFlags) ResourceFlags {
	if flags&FlagHistoryBuffer != 0 {
		flags |= FlagPersistent
	}
	return flags
}

// Dispose invalidates the handle, bumps the slot generation, and recycles
// the slot. Outstanding copies of the handle become stale.
func (t *ResourceTable) Dispose(res Resource) {
	slot := t.lookup(res)

	t.mu.Lock()
	defer t.mu.Unlock()
	slot.live = false
	slot.generation = (slot.generation + 1) & handleGenerationMask
	t.free = append(t.free, res.Index())
}

// lookup resolves a handle to its slot, panicking on stale or invalid
// handles: using a disposed resource is a caller bug.
func (t *ResourceTable) lookup(res Resource) *resourceSlot {
	if !res.IsValid() {
		panic("rendergraph: use of invalid resource handle")
	}
	t.mu.Lock()
	index := res.Index()
	if index >= uint32(len(t.slots)) {
		t.mu.Unlock()
		panic(fmt.Sprintf("rendergraph: resource index %d out of range", index))
	}
	slot := t.slots[index]
	t.mu.Unlock()
	if !slot.live || slot.generation != res.Generation() {
		panic(fmt.Sprintf("rendergraph: stale resource handle %v", res))
	}
	return slot
}

// BufferDescriptor returns the descriptor the buffer was created with.
func (t *ResourceTable) BufferDescriptor(b Buffer) BufferDescriptor {
	return t.lookup(b.Resource).buffer
}

// TextureDescriptor returns the descriptor the texture was created with.
func (t *ResourceTable) TextureDescriptor(tex Texture) TextureDescriptor {
	return t.lookup(tex.Resource).texture
}

// IsInitialized reports whether the resource has been written by a
// completed frame.
func (t *ResourceTable) IsInitialized(res Resource) bool {
	return t.lookup(res).initialized.Load()
}

// MarkInitialized flags the resource as written. Called by the compiler
// at end of frame for persistent and history resources.
func (t *ResourceTable) MarkInitialized(res Resource) {
	t.lookup(res).initialized.Store(true)
}

// WaitIndex returns the stored wait index for one queue and access kind.
func (t *ResourceTable) WaitIndex(res Resource, q QueueIndex, access WaitAccess) uint64 {
	return t.lookup(res).waitIndices[q][access].Load()
}

// RequiredWaitIndex returns the command-buffer signal value the caller
// must wait on before accessing the resource on queue q. Reads are gated
// by prior writes; writes are gated by everything prior.
func (t *ResourceTable) RequiredWaitIndex(res Resource, q QueueIndex, read, write bool) uint64 {
	slot := t.lookup(res)
	var v uint64
	if read {
		v = max(v, slot.waitIndices[q][WaitWrite].Load(), slot.waitIndices[q][WaitReadWrite].Load())
	}
	if write {
		for a := WaitRead; a < waitAccessCount; a++ {
			v = max(v, slot.waitIndices[q][a].Load())
		}
	}
	return v
}

// RaiseWaitIndex lifts the stored wait index for (queue, access) to at
// least v. Concurrent raisers settle on the maximum.
func (t *ResourceTable) RaiseWaitIndex(res Resource, q QueueIndex, access WaitAccess, v uint64) {
	idx := &t.lookup(res).waitIndices[q][access]
	for {
		old := idx.Load()
		if old >= v || idx.CompareAndSwap(old, v) {
			return
		}
	}
}
