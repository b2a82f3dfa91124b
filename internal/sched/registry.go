// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sched

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph/internal/pool"
	"github.com/gogpu/rendergraph/rgcore"
)

// slotKey is the shape of a pooled allocation. Two resources whose keys
// match can recycle each other's backing.
type slotKey struct {
	typ     rgcore.ResourceType
	length  uint64
	bufUse  gputypes.BufferUsage
	size    gputypes.Extent3D
	mips    uint32
	samples uint32
	dim     gputypes.TextureDimension
	format  gputypes.TextureFormat
	texUse  gputypes.TextureUsage
	entries int
}

// slot carries one backing allocation through materialize, dispose, and
// reuse.
type slot struct {
	key     slotKey
	backing rgcore.Backing

	// window marks a swapchain-backed slot; its backing is a drawable
	// acquired by the executor, never an allocator object.
	window bool

	// view marks a texture view; views are destroyed on dispose rather
	// than pooled.
	view bool

	// waitEvent is the queue timeline value that must complete before
	// the slot's memory may be touched by a new owner.
	waitEvent uint64

	// fences are the dependencies left behind by the previous owner for
	// aliasing coordination.
	fences []rgcore.FenceDependency
}

// RegistryOptions configures the default transient registry.
type RegistryOptions struct {
	// HeapAliasing turns on aliased reuse: disposed slots become
	// available within the same frame, coordinated through fences.
	// Without it, disposed slots cool down for one frame and reuse is
	// gated by wait events alone.
	HeapAliasing bool

	// PooledSlotLimit bounds idle pooled slots. 0 means unlimited.
	PooledSlotLimit int
}

// Registry is the default transient resource registry: pooled slots per
// descriptor shape, wait-event tagging, optional heap-alias coordination,
// and history buffer pinning. It implements rgcore.TransientRegistry on
// top of a backend allocator.
//
// Registry mutation is single-threaded, serialized by the frame boundary.
type Registry struct {
	table *rgcore.ResourceTable
	alloc rgcore.Allocator
	opts  RegistryOptions

	pooled  *pool.Pool[slotKey, *slot]
	live    map[rgcore.Resource]*slot
	cooling []*slot

	// retired keeps disposed resources' backings resolvable until the
	// frame cycles: disposal runs at compile time, but encoders still
	// reference the backing while the frame records.
	retired map[rgcore.Resource]rgcore.Backing

	// retiredViews are view objects destroyed at the frame cycle; views
	// are never pooled.
	retiredViews []rgcore.Backing

	// pendingFences holds SetDisposalFences output until the resource's
	// dispose command attaches it to the freed slot.
	pendingFences map[rgcore.Resource][]rgcore.FenceDependency

	// aliasFences holds the fences a resource inherited from its slot's
	// previous owner at materialize time.
	aliasFences map[rgcore.Resource][]rgcore.FenceDependency

	// historyPinned marks history buffers whose backing outlives the
	// frame that initialized them.
	historyPinned map[rgcore.Resource]bool
}

var _ rgcore.TransientRegistry = (*Registry)(nil)

// NewRegistry creates a registry over the given metadata table and
// allocator.
func NewRegistry(table *rgcore.ResourceTable, alloc rgcore.Allocator, opts RegistryOptions) *Registry {
	r := &Registry{
		table:         table,
		alloc:         alloc,
		opts:          opts,
		live:          make(map[rgcore.Resource]*slot),
		retired:       make(map[rgcore.Resource]rgcore.Backing),
		pendingFences: make(map[rgcore.Resource][]rgcore.FenceDependency),
		aliasFences:   make(map[rgcore.Resource][]rgcore.FenceDependency),
		historyPinned: make(map[rgcore.Resource]bool),
	}
	r.pooled = pool.New[slotKey, *slot](opts.PooledSlotLimit, func(s *slot) {
		if s.backing != nil {
			r.alloc.Dispose(s.backing)
		}
	})
	return r
}

func bufferKey(desc rgcore.BufferDescriptor) slotKey {
	return slotKey{typ: rgcore.ResourceTypeBuffer, length: desc.Length, bufUse: desc.Usage}
}

func textureKey(desc rgcore.TextureDescriptor, usage gputypes.TextureUsage) slotKey {
	return slotKey{
		typ:     rgcore.ResourceTypeTexture,
		size:    desc.Size,
		mips:    desc.MipLevelCount,
		samples: desc.SampleCount,
		dim:     desc.Dimension,
		format:  desc.Format,
		texUse:  usage,
	}
}

func argumentKey(entries int) slotKey {
	return slotKey{typ: rgcore.ResourceTypeArgumentBuffer, entries: entries}
}

// acquire finds or allocates a slot for the key, transferring any
// aliasing fences from the slot's previous owner to res.
func (r *Registry) acquire(res rgcore.Resource, key slotKey, allocate func() (rgcore.Backing, error)) (*slot, error) {
	if s, ok := r.pooled.Get(key); ok {
		if len(s.fences) > 0 {
			r.aliasFences[res] = s.fences
			s.fences = nil
		}
		r.live[res] = s
		return s, nil
	}

	backing, err := allocate()
	if err != nil {
		return nil, err
	}
	s := &slot{key: key, backing: backing}
	r.live[res] = s
	return s, nil
}

// AllocateBufferIfNeeded implements rgcore.TransientRegistry.
func (r *Registry) AllocateBufferIfNeeded(b rgcore.Buffer) (uint64, error) {
	if s, ok := r.live[b.Resource]; ok {
		return s.waitEvent, nil
	}
	desc := r.table.BufferDescriptor(b)
	s, err := r.acquire(b.Resource, bufferKey(desc), func() (rgcore.Backing, error) {
		return r.alloc.AllocateBuffer(desc)
	})
	if err != nil {
		return 0, err
	}
	return s.waitEvent, nil
}

// AllocateTextureIfNeeded implements rgcore.TransientRegistry. Window
// handle textures get a placeholder slot; the executor resolves their
// backing to a drawable when the presenting encoder opens.
func (r *Registry) AllocateTextureIfNeeded(t rgcore.Texture, usage gputypes.TextureUsage) (uint64, error) {
	if s, ok := r.live[t.Resource]; ok {
		return s.waitEvent, nil
	}
	if t.IsWindowHandle() {
		r.live[t.Resource] = &slot{window: true}
		return 0, nil
	}
	desc := r.table.TextureDescriptor(t)
	s, err := r.acquire(t.Resource, textureKey(desc, usage), func() (rgcore.Backing, error) {
		return r.alloc.AllocateTexture(desc, usage)
	})
	if err != nil {
		return 0, err
	}
	return s.waitEvent, nil
}

// AllocateTextureViewIfNeeded implements rgcore.TransientRegistry. The
// base texture must already be materialized; views are created directly
// on its backing and never pooled.
func (r *Registry) AllocateTextureViewIfNeeded(t rgcore.Texture, usage gputypes.TextureUsage) (uint64, error) {
	if s, ok := r.live[t.Resource]; ok {
		return s.waitEvent, nil
	}
	base, ok := r.table.ViewBase(t)
	if !ok {
		return 0, fmt.Errorf("rendergraph: texture %v is not a view", t.Resource)
	}
	baseSlot, ok := r.live[base.Resource]
	if !ok || baseSlot.backing == nil {
		return 0, fmt.Errorf("rendergraph: view base %v is not materialized", base.Resource)
	}
	backing, err := r.alloc.AllocateTextureView(baseSlot.backing, r.table.TextureDescriptor(t), usage)
	if err != nil {
		return 0, err
	}
	r.live[t.Resource] = &slot{backing: backing, view: true}
	return baseSlot.waitEvent, nil
}

// AllocateArgumentBufferIfNeeded implements rgcore.TransientRegistry.
func (r *Registry) AllocateArgumentBufferIfNeeded(ab rgcore.ArgumentBuffer) (uint64, error) {
	if s, ok := r.live[ab.Resource]; ok {
		return s.waitEvent, nil
	}
	entries := r.table.ArgumentBufferEntries(ab)
	s, err := r.acquire(ab.Resource, argumentKey(entries), func() (rgcore.Backing, error) {
		return r.alloc.AllocateArgumentBuffer(entries)
	})
	if err != nil {
		return 0, err
	}
	return s.waitEvent, nil
}

// release detaches the slot from the resource, tags it with the wait
// event and any disposal fences, and routes it to the free pool (aliased
// reuse) or the cooling list (reuse next frame).
func (r *Registry) release(res rgcore.Resource, waitEvent uint64) {
	s, ok := r.live[res]
	if !ok {
		return
	}
	delete(r.live, res)
	delete(r.aliasFences, res)
	r.retired[res] = s.backing

	if s.window {
		return
	}
	if s.view {
		// The view object must outlive the recording frame; destruction
		// happens at the frame cycle.
		r.retiredViews = append(r.retiredViews, s.backing)
		return
	}

	s.waitEvent = waitEvent
	if deps, ok := r.pendingFences[res]; ok {
		s.fences = deps
		delete(r.pendingFences, res)
	}

	if r.opts.HeapAliasing {
		r.pooled.Put(s.key, s)
	} else {
		r.cooling = append(r.cooling, s)
	}
}

// DisposeBuffer implements rgcore.TransientRegistry.
func (r *Registry) DisposeBuffer(b rgcore.Buffer, waitEvent uint64) {
	r.release(b.Resource, waitEvent)
}

// DisposeTexture implements rgcore.TransientRegistry.
func (r *Registry) DisposeTexture(t rgcore.Texture, waitEvent uint64) {
	r.release(t.Resource, waitEvent)
}

// DisposeArgumentBuffer implements rgcore.TransientRegistry.
func (r *Registry) DisposeArgumentBuffer(ab rgcore.ArgumentBuffer, waitEvent uint64) {
	r.release(ab.Resource, waitEvent)
}

// IsAliasedHeapResource implements rgcore.TransientRegistry.
func (r *Registry) IsAliasedHeapResource(res rgcore.Resource) bool {
	if !r.opts.HeapAliasing || !res.Transient() || res.IsWindowHandle() {
		return false
	}
	switch res.Type() {
	case rgcore.ResourceTypeBuffer, rgcore.ResourceTypeTexture:
		return true
	}
	return false
}

// WithHeapAliasingFences implements rgcore.TransientRegistry.
func (r *Registry) WithHeapAliasingFences(res rgcore.Resource, fn func(rgcore.FenceDependency)) {
	for _, dep := range r.aliasFences[res] {
		fn(dep)
	}
}

// SetDisposalFences implements rgcore.TransientRegistry.
func (r *Registry) SetDisposalFences(res rgcore.Resource, deps []rgcore.FenceDependency) {
	if len(deps) == 0 {
		delete(r.pendingFences, res)
		return
	}
	r.pendingFences[res] = deps
}

// RegisterInitializedHistoryBufferForDisposal implements
// rgcore.TransientRegistry. The backing stays live across frames; it is
// released when the resource itself is disposed.
func (r *Registry) RegisterInitializedHistoryBufferForDisposal(res rgcore.Resource) {
	r.historyPinned[res] = true
}

// ReleasePersistent frees the backing of a persistent resource that the
// client has disposed.
func (r *Registry) ReleasePersistent(res rgcore.Resource, waitEvent uint64) {
	delete(r.historyPinned, res)
	r.release(res, waitEvent)
}

// Backing implements rgcore.TransientRegistry.
func (r *Registry) Backing(res rgcore.Resource) rgcore.Backing {
	if s, ok := r.live[res]; ok {
		return s.backing
	}
	// Disposed this frame but still referenced by recording encoders.
	return r.retired[res]
}

// SetBacking installs externally acquired backing (a drawable texture)
// for a window handle resource.
func (r *Registry) SetBacking(res rgcore.Resource, backing rgcore.Backing) {
	if s, ok := r.live[res]; ok {
		s.backing = backing
		return
	}
	r.live[res] = &slot{window: true, backing: backing}
}

// PrepareFrame implements rgcore.TransientRegistry.
func (r *Registry) PrepareFrame() {}

// CycleFrames implements rgcore.TransientRegistry. Slots disposed during
// the frame become poolable, retired lookups and views are dropped, and
// any transient backing that escaped a dispose command is reclaimed
// unconditionally.
func (r *Registry) CycleFrames() {
	for res, s := range r.live {
		if res.Transient() && !s.window {
			r.release(res, s.waitEvent)
		}
	}
	for _, s := range r.cooling {
		r.pooled.Put(s.key, s)
	}
	r.cooling = r.cooling[:0]

	for _, v := range r.retiredViews {
		r.alloc.Dispose(v)
	}
	r.retiredViews = r.retiredViews[:0]
	clear(r.retired)

	r.ClearDrawables()
}

// ClearSwapChains implements rgcore.TransientRegistry.
func (r *Registry) ClearSwapChains() {
	r.ClearDrawables()
}

// ClearDrawables implements rgcore.TransientRegistry.
func (r *Registry) ClearDrawables() {
	for res, s := range r.live {
		if s.window {
			delete(r.live, res)
		}
	}
}

// Shutdown releases every pooled and cooling allocation. Live persistent
// backings are released as well; the registry is unusable afterwards.
func (r *Registry) Shutdown() {
	for res, s := range r.live {
		if s.backing != nil && !s.window {
			r.alloc.Dispose(s.backing)
		}
		delete(r.live, res)
	}
	for _, s := range r.cooling {
		if s.backing != nil {
			r.alloc.Dispose(s.backing)
		}
	}
	r.cooling = nil
	for _, v := range r.retiredViews {
		r.alloc.Dispose(v)
	}
	r.retiredViews = nil
	clear(r.retired)
	r.pooled.Clear()
}
