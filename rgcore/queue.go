// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rgcore

import (
	"fmt"
	"math/bits"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// MaxQueues is the number of logical submission queues a process can have
// in flight at once. Queue indices fit in 3 bits of a packed handle.
const MaxQueues = 8

// QueueIndex identifies a logical submission queue, 0..<MaxQueues.
type QueueIndex uint8

// spinLock guards the queue allocation bitmap. Allocation is rare and the
// critical section is a handful of instructions, so a CAS loop beats a
// mutex here.
type spinLock struct {
	held atomic.Bool
}

func (l *spinLock) lock() {
	for !l.held.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (l *spinLock) unlock() {
	l.held.Store(false)
}

// queueState holds one queue's timeline. Counters use relaxed atomics;
// only the owning queue's producer thread advances them, but any thread
// may read. The condition variable broadcasts completion so waiters block
// instead of spinning.
type queueState struct {
	lastSubmitted atomic.Uint64
	lastCompleted atomic.Uint64

	// Unix nanoseconds of the most recent submission / completion.
	lastSubmitTime   atomic.Int64
	lastCompleteTime atomic.Int64

	mu   sync.Mutex
	cond *sync.Cond
}

// QueueRegistry is the process-wide table of logical submission queues.
// Use the package-level Queues registry unless a test needs isolation.
type QueueRegistry struct {
	lock      spinLock
	allocated uint8 // bitmap of live queue indices
	states    [MaxQueues]queueState
}

// Queues is the process-wide queue registry.
var Queues = NewQueueRegistry()

// NewQueueRegistry creates an empty registry. Production code shares the
// package-level Queues; tests allocate their own to avoid cross-test
// interference.
func NewQueueRegistry() *QueueRegistry {
	r := &QueueRegistry{}
	for i := range r.states {
		s := &r.states[i]
		s.cond = sync.NewCond(&s.mu)
	}
	return r
}

// Allocate claims the lowest free queue index and zeroes its timeline.
// Allocating more than MaxQueues live queues is a caller bug and panics.
func (r *QueueRegistry) Allocate() *Queue {
	r.lock.lock()
	free := ^r.allocated
	if free == 0 {
		r.lock.unlock()
		panic(fmt.Sprintf("rendergraph: all %d queues are in use", MaxQueues))
	}
	index := uint8(bits.TrailingZeros8(free))
	r.allocated |= 1 << index
	r.lock.unlock()

	s := &r.states[index]
	s.lastSubmitted.Store(0)
	s.lastCompleted.Store(0)
	s.lastSubmitTime.Store(0)
	s.lastCompleteTime.Store(0)

	return &Queue{registry: r, index: QueueIndex(index)}
}

// LastCompletedCommand returns the highest completed command index of
// the queue at the given registry index. Readable for disposed queues
// until their index is reallocated.
func (r *QueueRegistry) LastCompletedCommand(q QueueIndex) uint64 {
	return r.states[q].lastCompleted.Load()
}

// WaitForCommand blocks until the queue at the given index has completed
// command index i.
func (r *QueueRegistry) WaitForCommand(q QueueIndex, i uint64) {
	s := &r.states[q]
	if s.lastCompleted.Load() >= i {
		return
	}
	s.mu.Lock()
	for s.lastCompleted.Load() < i {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// Queue is a logical submission channel with its own command timeline.
type Queue struct {
	registry *QueueRegistry
	index    QueueIndex
}

// Registry returns the registry the queue was allocated from.
func (q *Queue) Registry() *QueueRegistry {
	return q.registry
}

// Index returns the queue's registry index.
func (q *Queue) Index() QueueIndex {
	return q.index
}

// Dispose releases the queue index for reuse. The timeline counters stay
// readable until the index is reallocated.
func (q *Queue) Dispose() {
	q.registry.lock.lock()
	q.registry.allocated &^= 1 << q.index
	q.registry.lock.unlock()
}

func (q *Queue) state() *queueState {
	return &q.registry.states[q.index]
}

// LastSubmittedCommand returns the highest command index submitted on
// this queue.
func (q *Queue) LastSubmittedCommand() uint64 {
	return q.state().lastSubmitted.Load()
}

// LastCompletedCommand returns the highest command index the GPU has
// completed on this queue.
func (q *Queue) LastCompletedCommand() uint64 {
	return q.state().lastCompleted.Load()
}

// LastSubmissionTime returns the time of the most recent submission, or
// the zero time if nothing has been submitted.
func (q *Queue) LastSubmissionTime() time.Time {
	ns := q.state().lastSubmitTime.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// LastCompletionTime returns the time of the most recent completion, or
// the zero time if nothing has completed.
func (q *Queue) LastCompletionTime() time.Time {
	ns := q.state().lastCompleteTime.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// CommandSubmitted records that command index i has been handed to the
// underlying API queue. Indices must not go backwards.
func (q *Queue) CommandSubmitted(i uint64) {
	s := q.state()
	if prev := s.lastSubmitted.Load(); i < prev {
		panic(fmt.Sprintf("rendergraph: queue %d submission index went backwards (%d < %d)", q.index, i, prev))
	}
	s.lastSubmitted.Store(i)
	s.lastSubmitTime.Store(time.Now().UnixNano())
}

// CommandCompleted records that the GPU has finished command index i and
// wakes every waiter. Indices must not go backwards.
func (q *Queue) CommandCompleted(i uint64) {
	s := q.state()
	if prev := s.lastCompleted.Load(); i < prev {
		panic(fmt.Sprintf("rendergraph: queue %d completion index went backwards (%d < %d)", q.index, i, prev))
	}
	s.mu.Lock()
	s.lastCompleted.Store(i)
	s.lastCompleteTime.Store(time.Now().UnixNano())
	s.mu.Unlock()
	s.cond.Broadcast()
}

// WaitForCommand blocks until the queue has completed command index i.
// The predicate is re-checked in a loop around the condition variable, so
// spurious wakeups are harmless.
func (q *Queue) WaitForCommand(i uint64) {
	q.registry.WaitForCommand(q.index, i)
}
