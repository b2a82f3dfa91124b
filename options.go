// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"github.com/gogpu/rendergraph/rgcore"
)

// Option configures a Scheduler during creation.
//
// Example:
//
//	s, err := rendergraph.New(backend,
//	    rendergraph.WithInflightFrames(3),
//	    rendergraph.WithHeapAliasing(true))
type Option func(*options)

// options holds optional configuration for Scheduler creation.
type options struct {
	inflightFrames     int
	initialSignalValue uint64
	heapAliasing       bool
	pooledSlotLimit    int
	queueRegistry      *rgcore.QueueRegistry
	transient          rgcore.TransientRegistry
}

// defaultOptions returns the default scheduler options.
func defaultOptions() options {
	return options{
		inflightFrames:     2,
		initialSignalValue: 1,
		queueRegistry:      rgcore.Queues,
	}
}

// WithInflightFrames bounds how many frames may be in flight at once.
// Submit blocks once the bound is reached until an earlier frame
// completes. The default is 2.
func WithInflightFrames(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.inflightFrames = n
		}
	}
}

// WithInitialSignalValue sets the signal value of the first command
// buffer the scheduler submits. The default is 1, leaving 0 to mean
// "never waited".
func WithInitialSignalValue(v uint64) Option {
	return func(o *options) {
		o.initialSignalValue = v
	}
}

// WithHeapAliasing lets transient resources with disjoint lifetimes
// share backing memory within a frame, coordinated through fences. Off
// by default; aliased memory requires every transient resource to be
// written before it is read.
func WithHeapAliasing(enabled bool) Option {
	return func(o *options) {
		o.heapAliasing = enabled
	}
}

// WithPooledSlotLimit bounds the number of idle transient backings the
// registry keeps for reuse. 0 (the default) means unlimited.
func WithPooledSlotLimit(n int) Option {
	return func(o *options) {
		o.pooledSlotLimit = n
	}
}

// WithQueueRegistry allocates the scheduler's queue from the given
// registry instead of the process-wide one. Primarily for tests that
// need timeline isolation.
func WithQueueRegistry(r *rgcore.QueueRegistry) Option {
	return func(o *options) {
		if r != nil {
			o.queueRegistry = r
		}
	}
}

// WithTransientRegistry substitutes a custom transient resource registry
// for the built-in pooled one. Use this for backends with their own
// placement heap implementation.
func WithTransientRegistry(tr rgcore.TransientRegistry) Option {
	return func(o *options) {
		o.transient = tr
	}
}
