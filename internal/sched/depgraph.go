// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sched

import (
	"github.com/gogpu/rendergraph/rgcore"
)

// FencePoint locates one side of a dependency: a command index within an
// encoder and the pipeline stages involved.
type FencePoint struct {
	EncoderIndex int
	CommandIndex int
	Stages       rgcore.RenderStages
}

// Dependency is one edge of the encoder dependency table: the producing
// encoder signals at Signal, the dependent encoder waits at Wait.
type Dependency struct {
	Signal FencePoint
	Wait   FencePoint
}

// merge combines two dependencies between the same encoder pair, keeping
// the latest signal position and the earliest wait position. That pair is
// the minimal one still covering every underlying access.
func (d *Dependency) merge(other Dependency) {
	switch {
	case other.Signal.CommandIndex > d.Signal.CommandIndex:
		d.Signal = other.Signal
	case other.Signal.CommandIndex == d.Signal.CommandIndex:
		d.Signal.Stages |= other.Signal.Stages
	}
	switch {
	case other.Wait.CommandIndex < d.Wait.CommandIndex:
		d.Wait = other.Wait
	case other.Wait.CommandIndex == d.Wait.CommandIndex:
		d.Wait.Stages |= other.Wait.Stages
	}
}

// DependencyTable is the lower-triangular matrix of encoder dependencies:
// entry (dependent, producer) with dependent > producer. Dense storage is
// fine at frame scale; a few hundred encoders is the practical ceiling.
type DependencyTable struct {
	n       int
	entries []*Dependency
}

// NewDependencyTable creates a table for n encoders.
func NewDependencyTable(n int) *DependencyTable {
	return &DependencyTable{
		n:       n,
		entries: make([]*Dependency, n*(n-1)/2+n), // triangle plus n spare slots
	}
}

// EncoderCount returns the table dimension.
func (t *DependencyTable) EncoderCount() int {
	return t.n
}

func (t *DependencyTable) slot(dependent, producer int) int {
	if dependent <= producer {
		panic("rendergraph: dependency must run from a later encoder to an earlier one")
	}
	return dependent*(dependent-1)/2 + producer
}

// Add inserts or merges a dependency from the dependent encoder onto the
// producer.
func (t *DependencyTable) Add(dependent, producer int, d Dependency) {
	i := t.slot(dependent, producer)
	if existing := t.entries[i]; existing != nil {
		existing.merge(d)
		return
	}
	cp := d
	t.entries[i] = &cp
}

// Get returns the dependency between the pair, or nil.
func (t *DependencyTable) Get(dependent, producer int) *Dependency {
	return t.entries[t.slot(dependent, producer)]
}

// ForEach invokes fn for every edge, producers ascending within each
// dependent encoder.
func (t *DependencyTable) ForEach(fn func(dependent, producer int, d *Dependency)) {
	for dep := 1; dep < t.n; dep++ {
		for prod := 0; prod < dep; prod++ {
			if d := t.entries[t.slot(dep, prod)]; d != nil {
				fn(dep, prod, d)
			}
		}
	}
}

// Reduce drops every edge implied by a path through intermediate
// encoders, returning the surviving edges. The implementation runs
// Floyd–Warshall over the strict triangle to get shortest path lengths,
// derives reachability, then removes edge (i, k) whenever some j with
// k < j < i reaches both ends.
func (t *DependencyTable) Reduce() []ReducedDependency {
	n := t.n
	if n == 0 {
		return nil
	}
	maxDistance := n + 1

	// dist[i*n+j], i > j: 1 for a direct edge, maxDistance for none.
	dist := make([]int, n*n)
	for i := range dist {
		dist[i] = maxDistance
	}
	for dep := 1; dep < n; dep++ {
		for prod := 0; prod < dep; prod++ {
			if t.entries[t.slot(dep, prod)] != nil {
				dist[dep*n+prod] = 1
			}
		}
	}

	// Paths only ever step downward in encoder index, so relaxation can
	// stay inside the strict triangle: j > i > k.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if dist[j*n+i] >= maxDistance {
				continue
			}
			for k := 0; k < i; k++ {
				if d := dist[j*n+i] + dist[i*n+k]; d < dist[j*n+k] {
					dist[j*n+k] = d
				}
			}
		}
	}

	reachable := func(from, to int) bool {
		return from > to && dist[from*n+to] < maxDistance
	}

	var out []ReducedDependency
	for i := 1; i < n; i++ {
		for k := 0; k < i; k++ {
			d := t.entries[t.slot(i, k)]
			if d == nil {
				continue
			}
			redundant := false
			for j := k + 1; j < i; j++ {
				if reachable(i, j) && reachable(j, k) {
					redundant = true
					break
				}
			}
			if !redundant {
				out = append(out, ReducedDependency{
					Dependent:  i,
					Producer:   k,
					Dependency: *d,
				})
			}
		}
	}
	return out
}

// ReducedDependency is one surviving edge after transitive reduction.
type ReducedDependency struct {
	Dependent  int
	Producer   int
	Dependency Dependency
}
