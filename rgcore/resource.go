// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rgcore

import "fmt"

// ResourceType tags the kind of logical resource a handle refers to.
type ResourceType uint8

const (
	// ResourceTypeInvalid is the zero value; no valid handle carries it.
	ResourceTypeInvalid ResourceType = iota

	// ResourceTypeBuffer is a linear allocation of GPU-visible memory.
	ResourceTypeBuffer

	// ResourceTypeTexture is an image resource with format and dimensions.
	ResourceTypeTexture

	// ResourceTypeArgumentBuffer is an indirect argument table referencing
	// other resources (a bind group / argument buffer).
	ResourceTypeArgumentBuffer

	// ResourceTypeArgumentBufferArray is an array of argument buffers that
	// share one layout.
	ResourceTypeArgumentBufferArray
)

// String returns the string representation of ResourceType.
func (t ResourceType) String() string {
	switch t {
	case ResourceTypeBuffer:
		return "Buffer"
	case ResourceTypeTexture:
		return "Texture"
	case ResourceTypeArgumentBuffer:
		return "ArgumentBuffer"
	case ResourceTypeArgumentBufferArray:
		return "ArgumentBufferArray"
	default:
		return fmt.Sprintf("Invalid(%d)", uint8(t))
	}
}

// ResourceFlags carry per-resource lifetime and access promises.
// Flags are fixed at creation and packed into the handle.
type ResourceFlags uint8

const (
	// FlagPersistent marks a resource that lives across frames and must be
	// disposed explicitly. Resources without it are transient: valid only
	// within the frame that created them.
	FlagPersistent ResourceFlags = 1 << iota

	// FlagHistoryBuffer marks a persistent resource that is materialized
	// fresh in the first frame that uses it and preserved across frames
	// once initialized.
	FlagHistoryBuffer

	// FlagImmutableOnceInitialized promises that after the resource's first
	// write completes, no further write usage will ever be declared.
	FlagImmutableOnceInitialized

	// FlagWindowHandle marks a texture whose backing is a swapchain
	// drawable acquired per frame.
	FlagWindowHandle
)

// String returns the set flags in a fixed order, "|"-separated.
func (f ResourceFlags) String() string {
	if f == 0 {
		return "0"
	}
	var s string
	add := func(name string) {
		if s != "" {
			s += "|"
		}
		s += name
	}
	if f&FlagPersistent != 0 {
		add("Persistent")
	}
	if f&FlagHistoryBuffer != 0 {
		add("HistoryBuffer")
	}
	if f&FlagImmutableOnceInitialized != 0 {
		add("ImmutableOnceInitialized")
	}
	if f&FlagWindowHandle != 0 {
		add("WindowHandle")
	}
	return s
}

// Handle bit layout. Index and generation get 24 bits each: enough for
// sixteen million live resources with stale-handle detection that survives
// sixteen million reuses of one slot.
const (
	handleIndexBits      = 24
	handleGenerationBits = 24

	handleIndexShift      = 0
	handleGenerationShift = handleIndexShift + handleIndexBits
	handleFlagsShift      = handleGenerationShift + handleGenerationBits
	handleTypeShift       = handleFlagsShift + 8

	handleIndexMask      = 1<<handleIndexBits - 1
	handleGenerationMask = 1<<handleGenerationBits - 1

	// MaxResourceIndex is the largest registry slot a handle can address.
	MaxResourceIndex = handleIndexMask
)

// Resource is an opaque value-typed handle to a logical resource. The
// handle packs the resource type, creation flags, and a generation/index
// pair into a registry. The zero Resource is invalid.
//
// Handles are cheap to copy and compare; they never own the resource.
// Dereferencing a handle whose generation no longer matches the registry
// slot is a caller bug and panics.
type Resource struct {
	bits uint64
}

// MakeResource assembles a handle from its parts. Index and generation
// values that do not fit their 24-bit fields are a caller bug and panic.
func MakeResource(t ResourceType, flags ResourceFlags, index, generation uint32) Resource {
	if index > handleIndexMask {
		panic(fmt.Sprintf("rendergraph: resource index %d exceeds %d", index, uint32(handleIndexMask)))
	}
	if generation > handleGenerationMask {
		panic(fmt.Sprintf("rendergraph: resource generation %d exceeds %d", generation, uint32(handleGenerationMask)))
	}
	return Resource{
		bits: uint64(index)<<handleIndexShift |
			uint64(generation)<<handleGenerationShift |
			uint64(flags)<<handleFlagsShift |
			uint64(t)<<handleTypeShift,
	}
}

// Type returns the resource type tag.
func (r Resource) Type() ResourceType {
	return ResourceType(r.bits >> handleTypeShift)
}

// Flags returns the creation flags packed into the handle.
func (r Resource) Flags() ResourceFlags {
	return ResourceFlags(r.bits >> handleFlagsShift)
}

// Index returns the registry slot index.
func (r Resource) Index() uint32 {
	return uint32(r.bits>>handleIndexShift) & handleIndexMask
}

// Generation returns the handle's generation for stale-handle detection.
func (r Resource) Generation() uint32 {
	return uint32(r.bits>>handleGenerationShift) & handleGenerationMask
}

// IsValid reports whether the handle refers to any resource at all.
// It does not check the generation against the registry.
func (r Resource) IsValid() bool {
	return r.Type() != ResourceTypeInvalid
}

// Persistent reports whether the resource lives across frames
// (FlagPersistent or FlagHistoryBuffer).
func (r Resource) Persistent() bool {
	return r.Flags()&(FlagPersistent|FlagHistoryBuffer) != 0
}

// Transient reports whether the resource is valid only within one frame.
func (r Resource) Transient() bool {
	return !r.Persistent()
}

// IsHistoryBuffer reports whether FlagHistoryBuffer is set.
func (r Resource) IsHistoryBuffer() bool {
	return r.Flags()&FlagHistoryBuffer != 0
}

// IsWindowHandle reports whether the resource is backed by a swapchain
// drawable.
func (r Resource) IsWindowHandle() bool {
	return r.Flags()&FlagWindowHandle != 0
}

// String returns a short debug form like "Texture(3@1,Persistent)".
func (r Resource) String() string {
	if !r.IsValid() {
		return "Resource(invalid)"
	}
	return fmt.Sprintf("%s(%d@%d,%s)", r.Type(), r.Index(), r.Generation(), r.Flags())
}

// Buffer is a typed handle to a buffer resource.
type Buffer struct {
	Resource
}

// Texture is a typed handle to a texture resource.
type Texture struct {
	Resource
}

// ArgumentBuffer is a typed handle to an argument buffer or argument
// buffer array resource.
type ArgumentBuffer struct {
	Resource
}
