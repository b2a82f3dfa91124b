// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rgcore

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestResourceTableCreateAndDescribe(t *testing.T) {
	table := NewResourceTable()

	b := table.NewBuffer(BufferDescriptor{Label: "vertices", Length: 1024}, FlagPersistent)
	if got := table.BufferDescriptor(b).Length; got != 1024 {
		t.Errorf("BufferDescriptor().Length = %d", got)
	}

	desc := DefaultTextureDescriptor(64, 64, gputypes.TextureFormatRGBA8Unorm)
	tex := table.NewTexture(desc, FlagPersistent)
	if got := table.TextureDescriptor(tex).Size.Width; got != 64 {
		t.Errorf("TextureDescriptor().Size.Width = %d", got)
	}

	ab := table.NewArgumentBuffer(8, 0)
	if got := table.ArgumentBufferEntries(ab); got != 8 {
		t.Errorf("ArgumentBufferEntries() = %d", got)
	}
}

func TestResourceTableHistoryImpliesPersistent(t *testing.T) {
	table := NewResourceTable()
	b := table.NewBuffer(BufferDescriptor{Length: 16}, FlagHistoryBuffer)
	if !b.Persistent() {
		t.Error("history buffer handle should carry FlagPersistent")
	}
}

func TestResourceTableStaleHandlePanics(t *testing.T) {
	table := NewResourceTable()
	b := table.NewBuffer(BufferDescriptor{Length: 16}, FlagPersistent)
	table.Dispose(b.Resource)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on stale handle")
		}
	}()
	table.BufferDescriptor(b)
}

func TestResourceTableSlotReuseBumpsGeneration(t *testing.T) {
	table := NewResourceTable()
	b1 := table.NewBuffer(BufferDescriptor{Length: 16}, FlagPersistent)
	table.Dispose(b1.Resource)
	b2 := table.NewBuffer(BufferDescriptor{Length: 32}, FlagPersistent)

	if b1.Index() != b2.Index() {
		t.Fatalf("expected slot reuse, indices %d and %d", b1.Index(), b2.Index())
	}
	if b1.Generation() == b2.Generation() {
		t.Error("generation should change across slot reuse")
	}
}

func TestResourceTableInitialized(t *testing.T) {
	table := NewResourceTable()
	b := table.NewBuffer(BufferDescriptor{Length: 16}, FlagPersistent|FlagImmutableOnceInitialized)

	if table.IsInitialized(b.Resource) {
		t.Error("fresh resource should not be initialized")
	}
	table.MarkInitialized(b.Resource)
	if !table.IsInitialized(b.Resource) {
		t.Error("MarkInitialized not observed")
	}
}

func TestResourceTableWaitIndices(t *testing.T) {
	table := NewResourceTable()
	b := table.NewBuffer(BufferDescriptor{Length: 16}, FlagPersistent)

	table.RaiseWaitIndex(b.Resource, 0, WaitWrite, 7)
	table.RaiseWaitIndex(b.Resource, 0, WaitRead, 5)

	// Raising to a lower value is a no-op.
	table.RaiseWaitIndex(b.Resource, 0, WaitWrite, 3)
	if got := table.WaitIndex(b.Resource, 0, WaitWrite); got != 7 {
		t.Errorf("WaitIndex(write) = %d, want 7", got)
	}

	// A reader is gated by prior writes only.
	if got := table.RequiredWaitIndex(b.Resource, 0, true, false); got != 7 {
		t.Errorf("RequiredWaitIndex(read) = %d, want 7", got)
	}
	// A writer is gated by everything.
	table.RaiseWaitIndex(b.Resource, 0, WaitRead, 9)
	if got := table.RequiredWaitIndex(b.Resource, 0, false, true); got != 9 {
		t.Errorf("RequiredWaitIndex(write) = %d, want 9", got)
	}
	// Other queues are independent.
	if got := table.RequiredWaitIndex(b.Resource, 3, true, true); got != 0 {
		t.Errorf("RequiredWaitIndex(queue 3) = %d, want 0", got)
	}
}

func TestResourceTableTextureView(t *testing.T) {
	table := NewResourceTable()
	base := table.NewTexture(DefaultTextureDescriptor(32, 32, gputypes.TextureFormatRGBA8Unorm), FlagPersistent)
	view := table.NewTextureView(base, DefaultTextureDescriptor(32, 32, gputypes.TextureFormatRGBA8UnormSrgb))

	got, ok := table.ViewBase(view)
	if !ok || got != base {
		t.Errorf("ViewBase() = %v, %v", got, ok)
	}
	if _, ok := table.ViewBase(base); ok {
		t.Error("base texture should not report a view base")
	}
}
