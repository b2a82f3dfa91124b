// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu adapts the rendergraph scheduler to gogpu/wgpu's HAL.
//
// Command buffers map to HAL command encoders submitted with a timeline
// fence value; the scheduler's queue sync events map to waits on that
// fence. Encoder fences within one queue are subsumed by WebGPU's
// in-order execution and encode to nothing. Memory barriers on textures
// become usage transitions.
package wgpu

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/rgcore"
)

// Backend errors.
var (
	// ErrNilDevice is returned when creating a backend without a device.
	ErrNilDevice = errors.New("wgpu: device is nil")

	// ErrNilQueue is returned when creating a backend without a queue.
	ErrNilQueue = errors.New("wgpu: queue is nil")

	// ErrNoHALProvider is returned when a device provider does not expose
	// HAL handles.
	ErrNoHALProvider = errors.New("wgpu: provider does not expose HAL device and queue")

	// ErrCompletionTimeout is returned through the completion callback
	// when the GPU does not reach a submission's fence value in time.
	ErrCompletionTimeout = errors.New("wgpu: timed out waiting for command buffer completion")
)

// defaultCompletionTimeout bounds the wait for one command buffer.
const defaultCompletionTimeout = 5 * time.Second

// DrawableSource supplies swapchain textures for window handle
// resources. present is invoked after the rendering command buffer
// commits; no release callback is returned.
type DrawableSource func(t rgcore.Texture, desc rgcore.TextureDescriptor) (texture hal.Texture, present func(), ok bool)

// Backend drives a hal.Device / hal.Queue pair.
//
// Backend is safe for concurrent use.
type Backend struct {
	device hal.Device
	queue  hal.Queue
	alloc  *halAllocator

	// fence is the timeline fence backing every sync event value the
	// scheduler signals on this queue.
	fence hal.Fence

	// source supplies swapchain drawables; nil means headless.
	source DrawableSource

	// timeout bounds completion waits.
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// New creates a backend over an explicit HAL device and queue.
func New(device hal.Device, queue hal.Queue) (*Backend, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if queue == nil {
		return nil, ErrNilQueue
	}

	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("create timeline fence: %w", err)
	}

	return &Backend{
		device:  device,
		queue:   queue,
		alloc:   &halAllocator{device: device},
		fence:   fence,
		timeout: defaultCompletionTimeout,
	}, nil
}

// FromProvider creates a backend from a host application's device
// provider. The provider must also expose HAL handles via
// HalDevice()/HalQueue(); this is how a gogpu application shares its
// GPU device with the scheduler instead of the scheduler creating its
// own.
func FromProvider(provider gpucontext.DeviceProvider) (*Backend, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALProvider)
	}
	return New(device, queue)
}

// SetDrawableSource installs the swapchain texture supplier.
func (b *Backend) SetDrawableSource(source DrawableSource) {
	b.mu.Lock()
	b.source = source
	b.mu.Unlock()
}

// SetCompletionTimeout adjusts how long completion callbacks wait for
// the GPU before reporting ErrCompletionTimeout.
func (b *Backend) SetCompletionTimeout(d time.Duration) {
	if d > 0 {
		b.mu.Lock()
		b.timeout = d
		b.mu.Unlock()
	}
}

// Allocator implements rgcore.Backend.
func (b *Backend) Allocator() rgcore.Allocator {
	return b.alloc
}

// NewCommandBuffer implements rgcore.Backend.
func (b *Backend) NewCommandBuffer(_ rgcore.QueueIndex, label string) (rgcore.CommandBuffer, error) {
	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	return &commandBuffer{backend: b, encoder: encoder, label: label}, nil
}

// AcquireDrawable implements rgcore.Backend.
func (b *Backend) AcquireDrawable(t rgcore.Texture, desc rgcore.TextureDescriptor) (rgcore.Drawable, error) {
	b.mu.Lock()
	source := b.source
	b.mu.Unlock()
	if source == nil {
		return nil, nil
	}
	texture, present, ok := source(t, desc)
	if !ok {
		return nil, nil
	}
	return &drawable{texture: texture, present: present}, nil
}

// IsPeerQueue implements rgcore.Backend. Every command buffer goes to
// the adapter's single HAL queue, so every queue index is reported as a
// peer.
func (b *Backend) IsPeerQueue(_ rgcore.QueueIndex) bool {
	return true
}

// WaitIdle blocks until the given value on the backend's timeline fence
// has completed, returning ErrCompletionTimeout if the completion
// timeout elapses first.
func (b *Backend) WaitIdle(value uint64) error {
	done, err := b.device.Wait(b.fence, value, b.timeout)
	if err != nil {
		return err
	}
	if !done {
		return ErrCompletionTimeout
	}
	return nil
}

// Close destroys the timeline fence. Command buffers must have
// completed.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.device.DestroyFence(b.fence)
}

// drawable wraps a swapchain texture and its present hook.
type drawable struct {
	texture hal.Texture
	present func()
}

// Texture implements rgcore.Drawable.
func (d *drawable) Texture() rgcore.Backing {
	return &textureBacking{texture: d.texture}
}

// Present implements rgcore.Drawable.
func (d *drawable) Present() {
	if d.present != nil {
		d.present()
	}
}

var _ rgcore.Backend = (*Backend)(nil)
