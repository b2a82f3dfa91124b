// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sched

import (
	"sort"

	"github.com/gogpu/rendergraph/rgcore"
)

// Range is a half-open span [Lo, Hi) of frame command indices.
type Range struct {
	Lo, Hi int
}

// Contains reports whether the command index falls inside the range.
func (r Range) Contains(i int) bool {
	return i >= r.Lo && i < r.Hi
}

// union widens the range to cover both operands.
func (r Range) union(other Range) Range {
	return Range{Lo: min(r.Lo, other.Lo), Hi: max(r.Hi, other.Hi)}
}

// PassRecord is one declared pass of a frame.
type PassRecord struct {
	// Index is the pass's position in the frame.
	Index int

	// Type selects the encoder kind the pass records into.
	Type rgcore.PassType

	// Name is a debug label.
	Name string

	// Active is false for passes culled before compilation; inactive
	// passes contribute no encoders and no hazards.
	Active bool

	// RenderTarget is non-nil exactly for draw passes.
	RenderTarget *rgcore.RenderTargetDescriptor

	// StartsNewEncoder forces an encoder split before this pass even
	// when it would coalesce with its predecessor.
	StartsNewEncoder bool

	// CommandRange is the span of frame command indices the pass's
	// recorded commands occupy.
	CommandRange Range

	// Execute records the pass's commands at execution time.
	Execute func(rgcore.PassEncoder) error
}

// Usage is one entry of a resource's per-frame usage list.
type Usage struct {
	// PassIndex is the declaring pass.
	PassIndex int

	// PassType mirrors the declaring pass's type.
	PassType rgcore.PassType

	// Active mirrors the declaring pass's active flag.
	Active bool

	// Range is the command span the access covers.
	Range Range

	// Access is the declared access type.
	Access rgcore.AccessType

	// Stages are the pipeline stages the access is scoped to.
	Stages rgcore.RenderStages

	// InArgumentBuffer is true when the access happens through an
	// argument buffer rather than a direct binding.
	InArgumentBuffer bool
}

// affectsGPUBarriers reports whether the usage participates in hazard
// tracking: it must be active, non-CPU, and carry a barrier-relevant
// access type.
func (u *Usage) affectsGPUBarriers() bool {
	return u.Active && u.Access.AffectsGPUBarriers() && !u.Stages.IsCPUOnly()
}

// ResourceUsages is the per-resource ordered usage table built during
// pass recording. Iteration order is the order resources were first
// declared, keeping compilation deterministic.
type ResourceUsages struct {
	index map[rgcore.Resource]int
	keys  []rgcore.Resource
	lists [][]Usage
}

// NewResourceUsages creates an empty usage table.
func NewResourceUsages() *ResourceUsages {
	return &ResourceUsages{index: make(map[rgcore.Resource]int)}
}

// Record appends a usage for the resource. A usage declared by the same
// pass with the same binding path merges with the existing entry: access
// types widen, stages and ranges union.
func (ru *ResourceUsages) Record(res rgcore.Resource, u Usage) {
	i, ok := ru.index[res]
	if !ok {
		i = len(ru.keys)
		ru.index[res] = i
		ru.keys = append(ru.keys, res)
		ru.lists = append(ru.lists, nil)
	}

	list := ru.lists[i]
	if n := len(list); n > 0 {
		last := &list[n-1]
		if last.PassIndex == u.PassIndex && last.InArgumentBuffer == u.InArgumentBuffer {
			last.Access = rgcore.MergeAccess(last.Access, u.Access)
			last.Stages |= u.Stages
			last.Range = last.Range.union(u.Range)
			return
		}
	}
	ru.lists[i] = append(list, u)
}

// Finalize stamps every usage with its declaring pass's resolved command
// range, type, and active flag, and puts each list in frame order.
// Clients may interleave declarations across pass builders, so recording
// order is not authoritative. Called once, after recording and before
// compilation.
func (ru *ResourceUsages) Finalize(passes []PassRecord) {
	for i := range ru.lists {
		list := ru.lists[i]
		for j := range list {
			u := &list[j]
			p := &passes[u.PassIndex]
			u.Range = p.CommandRange
			u.PassType = p.Type
			u.Active = p.Active
		}
		sort.SliceStable(list, func(a, b int) bool {
			return list[a].Range.Lo < list[b].Range.Lo
		})
	}
}

// Usages returns the usage list recorded for the resource.
func (ru *ResourceUsages) Usages(res rgcore.Resource) []Usage {
	if i, ok := ru.index[res]; ok {
		return ru.lists[i]
	}
	return nil
}

// Len returns the number of distinct resources with usages.
func (ru *ResourceUsages) Len() int {
	return len(ru.keys)
}

// ForEach invokes fn for every resource in first-declaration order.
func (ru *ResourceUsages) ForEach(fn func(res rgcore.Resource, usages []Usage)) {
	for i, res := range ru.keys {
		fn(res, ru.lists[i])
	}
}
