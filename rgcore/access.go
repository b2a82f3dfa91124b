// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rgcore

import "fmt"

// AccessType describes how a pass touches a resource.
type AccessType uint8

const (
	// AccessNone is the zero value; declared usages never carry it.
	AccessNone AccessType = iota

	// AccessRead is a read outside of render-target attachment.
	AccessRead

	// AccessWrite is a write outside of render-target attachment.
	AccessWrite

	// AccessReadWrite is a combined read-modify-write access.
	AccessReadWrite

	// AccessReadWriteRenderTarget is a render-target attachment that both
	// loads and stores.
	AccessReadWriteRenderTarget

	// AccessWriteOnlyRenderTarget is a render-target attachment that only
	// stores (load is don't-care or clear).
	AccessWriteOnlyRenderTarget

	// AccessInputAttachmentRenderTarget reads the attachment in-place from
	// within the same render pass (framebuffer fetch / input attachment).
	AccessInputAttachmentRenderTarget

	// AccessUnusedRenderTarget is an attachment slot that the pass binds
	// but neither loads from nor stores to.
	AccessUnusedRenderTarget
)

// String returns the string representation of AccessType.
func (a AccessType) String() string {
	switch a {
	case AccessRead:
		return "Read"
	case AccessWrite:
		return "Write"
	case AccessReadWrite:
		return "ReadWrite"
	case AccessReadWriteRenderTarget:
		return "ReadWriteRenderTarget"
	case AccessWriteOnlyRenderTarget:
		return "WriteOnlyRenderTarget"
	case AccessInputAttachmentRenderTarget:
		return "InputAttachmentRenderTarget"
	case AccessUnusedRenderTarget:
		return "UnusedRenderTarget"
	default:
		return fmt.Sprintf("AccessType(%d)", uint8(a))
	}
}

// IsRead reports whether the access observes the resource's contents.
func (a AccessType) IsRead() bool {
	switch a {
	case AccessRead, AccessReadWrite, AccessReadWriteRenderTarget, AccessInputAttachmentRenderTarget:
		return true
	}
	return false
}

// IsWrite reports whether the access may modify the resource's contents.
func (a AccessType) IsWrite() bool {
	switch a {
	case AccessWrite, AccessReadWrite, AccessReadWriteRenderTarget, AccessWriteOnlyRenderTarget:
		return true
	}
	return false
}

// IsRenderTarget reports whether the access is through a render-target
// attachment rather than a shader binding.
func (a AccessType) IsRenderTarget() bool {
	switch a {
	case AccessReadWriteRenderTarget, AccessWriteOnlyRenderTarget,
		AccessInputAttachmentRenderTarget, AccessUnusedRenderTarget:
		return true
	}
	return false
}

// AffectsGPUBarriers reports whether the access participates in hazard
// tracking. Unused attachment slots bind no memory traffic.
func (a AccessType) AffectsGPUBarriers() bool {
	return a != AccessNone && a != AccessUnusedRenderTarget
}

// MergeAccess combines two access types declared by the same pass for the
// same resource. A read merged with a write widens to the read-write form;
// render-target accesses widen within the render-target family.
func MergeAccess(a, b AccessType) AccessType {
	if a == b {
		return a
	}
	if a.IsRenderTarget() || b.IsRenderTarget() {
		switch {
		case a == AccessUnusedRenderTarget:
			return b
		case b == AccessUnusedRenderTarget:
			return a
		default:
			return AccessReadWriteRenderTarget
		}
	}
	read := a.IsRead() || b.IsRead()
	write := a.IsWrite() || b.IsWrite()
	switch {
	case read && write:
		return AccessReadWrite
	case write:
		return AccessWrite
	default:
		return AccessRead
	}
}

// RenderStages is a bitmask of pipeline stages an access is scoped to.
type RenderStages uint8

const (
	// StageVertex covers vertex shading and earlier geometry work.
	StageVertex RenderStages = 1 << iota

	// StageFragment covers fragment shading and attachment output.
	StageFragment

	// StageCompute covers compute dispatches.
	StageCompute

	// StageBlit covers copy and blit transfers.
	StageBlit

	// StageCPUBeforeRender marks CPU-side access that completes before any
	// GPU work in the frame is recorded.
	StageCPUBeforeRender
)

// String returns the set stages in pipeline order, "|"-separated.
func (s RenderStages) String() string {
	if s == 0 {
		return "0"
	}
	var out string
	add := func(name string) {
		if out != "" {
			out += "|"
		}
		out += name
	}
	if s&StageCPUBeforeRender != 0 {
		add("CPUBeforeRender")
	}
	if s&StageVertex != 0 {
		add("Vertex")
	}
	if s&StageFragment != 0 {
		add("Fragment")
	}
	if s&StageCompute != 0 {
		add("Compute")
	}
	if s&StageBlit != 0 {
		add("Blit")
	}
	return out
}

// First returns the earliest set stage, for scoping fence waits.
func (s RenderStages) First() RenderStages {
	return s & -s
}

// Last returns the latest set stage, for scoping fence signals.
func (s RenderStages) Last() RenderStages {
	if s == 0 {
		return 0
	}
	last := RenderStages(1)
	for v := s; v > 1; v >>= 1 {
		last <<= 1
	}
	return last
}

// IsCPUOnly reports whether the stages describe only CPU-side access.
func (s RenderStages) IsCPUOnly() bool {
	return s != 0 && s&^StageCPUBeforeRender == 0
}

// UseKind is the residency hint attached to a use-resource command: the
// union of access directions a resource sees within one encoder.
type UseKind uint8

const (
	// UseRead marks the resource as read through a shader binding.
	UseRead UseKind = 1 << iota

	// UseWrite marks the resource as written through a shader binding.
	UseWrite

	// UseSample marks a texture as sampled, implying read residency plus
	// sampler access.
	UseSample
)

// String returns the set kinds, "|"-separated.
func (k UseKind) String() string {
	if k == 0 {
		return "0"
	}
	var out string
	add := func(name string) {
		if out != "" {
			out += "|"
		}
		out += name
	}
	if k&UseRead != 0 {
		add("Read")
	}
	if k&UseWrite != 0 {
		add("Write")
	}
	if k&UseSample != 0 {
		add("Sample")
	}
	return out
}
