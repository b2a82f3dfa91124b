// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"fmt"
	"sync"

	"github.com/gogpu/rendergraph/internal/sched"
	"github.com/gogpu/rendergraph/rgcore"
)

// Scheduler owns one submission queue and turns declared frames into
// committed command buffers. Create one per logical queue; frames on one
// scheduler are compiled single-threaded, while up to the configured
// number of frames overlap on the GPU.
type Scheduler struct {
	opts    options
	backend rgcore.Backend
	queue   *rgcore.Queue
	table   *rgcore.ResourceTable

	transient rgcore.TransientRegistry
	registry  *sched.Registry // non-nil when transient is the built-in one

	// accessSemaphore bounds frames in flight: acquired at frame begin,
	// released in the completion handler of the frame's last command
	// buffer.
	accessSemaphore chan struct{}

	mu         sync.Mutex
	nextSignal uint64
	frameIndex uint64
	closed     bool

	// OnDrawableMissing, when set, is called for every encoder skipped
	// because its swapchain drawable could not be acquired.
	OnDrawableMissing func(encoderIndex int)
}

// New creates a scheduler over the given backend.
func New(backend rgcore.Backend, opts ...Option) (*Scheduler, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &Scheduler{
		opts:            o,
		backend:         backend,
		queue:           o.queueRegistry.Allocate(),
		table:           rgcore.NewResourceTable(),
		accessSemaphore: make(chan struct{}, o.inflightFrames),
		nextSignal:      o.initialSignalValue,
		frameIndex:      1,
	}

	if o.transient != nil {
		s.transient = o.transient
	} else {
		s.registry = sched.NewRegistry(s.table, backend.Allocator(), sched.RegistryOptions{
			HeapAliasing:    o.heapAliasing,
			PooledSlotLimit: o.pooledSlotLimit,
		})
		s.transient = s.registry
	}

	slogger().Info("rendergraph: scheduler created",
		"queue", s.queue.Index(),
		"inflightFrames", o.inflightFrames,
		"heapAliasing", o.heapAliasing)

	return s, nil
}

// Queue returns the scheduler's submission queue for timeline queries:
// LastSubmittedCommand, LastCompletedCommand, WaitForCommand.
func (s *Scheduler) Queue() *rgcore.Queue {
	return s.queue
}

// Resources returns the scheduler's resource table.
func (s *Scheduler) Resources() *rgcore.ResourceTable {
	return s.table
}

// NewBuffer creates a persistent buffer and materializes it immediately;
// the compiler only gates access to it afterwards. History buffers are
// the exception: they materialize in their first frame. Transient
// buffers are created on a Frame instead.
func (s *Scheduler) NewBuffer(desc rgcore.BufferDescriptor, flags rgcore.ResourceFlags) (rgcore.Buffer, error) {
	b := s.table.NewBuffer(desc, requirePersistent(flags))
	if !b.IsHistoryBuffer() {
		if _, err := s.transient.AllocateBufferIfNeeded(b); err != nil {
			s.table.Dispose(b.Resource)
			return rgcore.Buffer{}, err
		}
	}
	return b, nil
}

// NewTexture creates a persistent texture. Window handle textures are
// persistent handles whose backing is reacquired every frame; history
// buffers materialize in their first frame. Everything else is
// materialized immediately.
func (s *Scheduler) NewTexture(desc rgcore.TextureDescriptor, flags rgcore.ResourceFlags) (rgcore.Texture, error) {
	if flags&rgcore.FlagWindowHandle != 0 {
		return s.table.NewTexture(desc, flags), nil
	}
	t := s.table.NewTexture(desc, requirePersistent(flags))
	if !t.IsHistoryBuffer() {
		if _, err := s.transient.AllocateTextureIfNeeded(t, desc.Usage); err != nil {
			s.table.Dispose(t.Resource)
			return rgcore.Texture{}, err
		}
	}
	return t, nil
}

// NewArgumentBuffer creates a persistent argument buffer with the given
// number of entries. Argument buffers materialize at first use, not at
// creation: their contents reference resources that must exist first.
func (s *Scheduler) NewArgumentBuffer(entries int, flags rgcore.ResourceFlags) rgcore.ArgumentBuffer {
	return s.table.NewArgumentBuffer(entries, requirePersistent(flags))
}

func requirePersistent(flags rgcore.ResourceFlags) rgcore.ResourceFlags {
	if flags&(rgcore.FlagPersistent|rgcore.FlagHistoryBuffer) == 0 {
		panic("rendergraph: scheduler-level resources must be persistent; create transient resources on a Frame")
	}
	return flags
}

// DisposePersistent releases a persistent resource. Its backing returns
// to the pool tagged with the resource's outstanding wait indices, so
// reuse never races the final frames that touched it.
func (s *Scheduler) DisposePersistent(res rgcore.Resource) {
	if !res.Persistent() {
		panic(fmt.Sprintf("rendergraph: %v is not persistent", res))
	}
	if s.registry != nil {
		var wait uint64
		for q := rgcore.QueueIndex(0); q < rgcore.MaxQueues; q++ {
			wait = max(wait, s.table.RequiredWaitIndex(res, q, true, true))
		}
		s.registry.ReleasePersistent(res, wait)
	}
	s.table.Dispose(res)
}

// Frame opens a new frame for pass recording.
func (s *Scheduler) Frame() *Frame {
	return &Frame{scheduler: s, usages: sched.NewResourceUsages()}
}

// Submit compiles and executes a recorded frame. It blocks while the
// inflight-frame bound is reached, returns once the frame's command
// buffers are submitted, and runs onComplete when the last command
// buffer completes on the GPU. An empty frame completes immediately.
//
// On a compilation or submission error the frame is aborted: onComplete
// receives the error and the inflight slot is released. Persistent
// resources stay materialized across failures; transient backings are
// reclaimed unconditionally.
//
// Compilation is single-threaded: Submit must not be called
// concurrently on one scheduler. Completed frames overlap on the GPU up
// to the inflight bound.
func (s *Scheduler) Submit(f *Frame, onComplete func(error)) error {
	if onComplete == nil {
		onComplete = func(error) {}
	}
	if err := f.finalize(); err != nil {
		onComplete(err)
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		onComplete(ErrClosed)
		return ErrClosed
	}
	s.mu.Unlock()

	s.accessSemaphore <- struct{}{}
	release := func() { <-s.accessSemaphore }

	active := 0
	for i := range f.passes {
		if f.passes[i].Active {
			active++
		}
	}
	if active == 0 {
		release()
		onComplete(nil)
		return nil
	}

	s.mu.Lock()
	info := sched.NewCommandInfo(f.passes, s.nextSignal)
	compiler := &sched.Compiler{
		Table:      s.table,
		Transient:  s.transient,
		Queue:      s.queue,
		FrameIndex: s.frameIndex,
	}
	s.nextSignal += uint64(info.CommandBufferCount)
	s.frameIndex++
	s.mu.Unlock()

	cf, err := compiler.Compile(info, f.usages)
	if err != nil {
		s.transient.CycleFrames()
		release()
		onComplete(err)
		return err
	}

	executor := &sched.Executor{
		Backend:         s.backend,
		Queue:           s.queue,
		Table:           s.table,
		Transient:       s.transient,
		DrawableMissing: s.OnDrawableMissing,
	}
	execErr := executor.Execute(cf, func(err error) {
		onComplete(err)
		release()
	})

	s.transient.CycleFrames()
	return execErr
}

// Close disposes the scheduler's queue and releases pooled transient
// memory. In-flight frames run to completion first.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	// Drain the semaphore so every in-flight frame has completed.
	for i := 0; i < s.opts.inflightFrames; i++ {
		s.accessSemaphore <- struct{}{}
	}

	if s.registry != nil {
		s.registry.Shutdown()
	}
	s.queue.Dispose()

	slogger().Info("rendergraph: scheduler closed", "queue", s.queue.Index())
}
