// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sched

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph/rgcore"
)

// stubAllocator counts allocations and can be told to fail.
type stubAllocator struct {
	live  int
	total int
	fail  bool
}

type stubBacking struct {
	id   int
	kind string
}

var errStubAlloc = errors.New("stub allocator failure")

func (a *stubAllocator) allocate(kind string) (rgcore.Backing, error) {
	if a.fail {
		return nil, errStubAlloc
	}
	a.total++
	a.live++
	return &stubBacking{id: a.total, kind: kind}, nil
}

func (a *stubAllocator) AllocateBuffer(rgcore.BufferDescriptor) (rgcore.Backing, error) {
	return a.allocate("buffer")
}

func (a *stubAllocator) AllocateTexture(rgcore.TextureDescriptor, gputypes.TextureUsage) (rgcore.Backing, error) {
	return a.allocate("texture")
}

func (a *stubAllocator) AllocateTextureView(rgcore.Backing, rgcore.TextureDescriptor, gputypes.TextureUsage) (rgcore.Backing, error) {
	return a.allocate("view")
}

func (a *stubAllocator) AllocateArgumentBuffer(int) (rgcore.Backing, error) {
	return a.allocate("argument")
}

func (a *stubAllocator) Dispose(rgcore.Backing) {
	a.live--
}

// testEnv wires a compiler over fresh state.
type testEnv struct {
	table    *rgcore.ResourceTable
	queue    *rgcore.Queue
	alloc    *stubAllocator
	registry *Registry
	compiler *Compiler
}

func newTestEnv(aliasing bool) *testEnv {
	table := rgcore.NewResourceTable()
	queue := rgcore.NewQueueRegistry().Allocate()
	alloc := &stubAllocator{}
	registry := NewRegistry(table, alloc, RegistryOptions{HeapAliasing: aliasing})
	return &testEnv{
		table:    table,
		queue:    queue,
		alloc:    alloc,
		registry: registry,
		compiler: &Compiler{Table: table, Transient: registry, Queue: queue, FrameIndex: 1},
	}
}

func (e *testEnv) compile(t *testing.T, passes []PassRecord, usages *ResourceUsages, initialSignal uint64) *CompiledFrame {
	t.Helper()
	usages.Finalize(passes)
	info := NewCommandInfo(passes, initialSignal)
	cf, err := e.compiler.Compile(info, usages)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return cf
}

func preCmds(cf *CompiledFrame, kind PreFrameCommandKind) []PreFrameCommand {
	var out []PreFrameCommand
	for _, c := range cf.PreFrame {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func inCmds(cf *CompiledFrame, kind FrameCommandKind) []FrameCommand {
	var out []FrameCommand
	for _, c := range cf.InFrame {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// TestLinearPipeline: one pass writes a buffer, the next reads it, each
// on its own encoder. Exactly one fence pair, no memory barriers.
func TestLinearPipeline(t *testing.T) {
	env := newTestEnv(false)
	b := env.table.NewBuffer(rgcore.BufferDescriptor{Length: 256}, 0)

	p1 := pass(1, rgcore.PassCompute)
	p1.StartsNewEncoder = true
	passes := []PassRecord{pass(0, rgcore.PassCompute), p1}

	usages := NewResourceUsages()
	usages.Record(b.Resource, Usage{PassIndex: 0, Access: rgcore.AccessWrite, Stages: rgcore.StageCompute})
	usages.Record(b.Resource, Usage{PassIndex: 1, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})

	cf := env.compile(t, passes, usages, 1)

	if len(cf.Info.Encoders) != 2 {
		t.Fatalf("encoder count = %d, want 2", len(cf.Info.Encoders))
	}
	if len(cf.Fences) != 1 {
		t.Fatalf("fence count = %d, want 1", len(cf.Fences))
	}

	updates := inCmds(cf, FrameCmdUpdateFence)
	waits := inCmds(cf, FrameCmdWaitForFence)
	if len(updates) != 1 || len(waits) != 1 {
		t.Fatalf("fence commands = %d updates, %d waits", len(updates), len(waits))
	}
	if updates[0].Index != 0 || updates[0].Order != OrderAfter || updates[0].AfterStages != rgcore.StageCompute {
		t.Errorf("updateFence = %v", updates[0])
	}
	if waits[0].Index != 1 || waits[0].Order != OrderBefore || waits[0].BeforeStages != rgcore.StageCompute {
		t.Errorf("waitForFence = %v", waits[0])
	}
	if got := len(inCmds(cf, FrameCmdMemoryBarrier)); got != 0 {
		t.Errorf("memory barriers = %d, want 0", got)
	}

	// The fence is bound to the producer's command buffer signal value.
	if cf.Fences[0].CommandBufferSignalValue != 1 {
		t.Errorf("fence signal value = %d", cf.Fences[0].CommandBufferSignalValue)
	}
}

// TestFusedDraws: three draw passes sharing a render target read one
// texture. One encoder, one useResource with read and sample access at
// fragment stages, no fences.
func TestFusedDraws(t *testing.T) {
	env := newTestEnv(false)
	rtTex := env.table.NewTexture(rgcore.DefaultTextureDescriptor(64, 64, gputypes.TextureFormatRGBA8Unorm), 0)
	sampled := env.table.NewTexture(rgcore.DefaultTextureDescriptor(32, 32, gputypes.TextureFormatRGBA8Unorm), 0)

	rt := &rgcore.RenderTargetDescriptor{
		ColorAttachments: []rgcore.ColorAttachment{{
			Texture: rtTex,
			LoadOp:  gputypes.LoadOpClear,
			StoreOp: gputypes.StoreOpStore,
		}},
	}

	var passes []PassRecord
	usages := NewResourceUsages()
	for i := 0; i < 3; i++ {
		passes = append(passes, drawPass(i, rt))
		usages.Record(rtTex.Resource, Usage{PassIndex: i, Access: rgcore.AccessWriteOnlyRenderTarget, Stages: rgcore.StageFragment})
		usages.Record(sampled.Resource, Usage{PassIndex: i, Access: rgcore.AccessRead, Stages: rgcore.StageFragment})
	}

	cf := env.compile(t, passes, usages, 1)

	if len(cf.Info.Encoders) != 1 {
		t.Fatalf("encoder count = %d, want 1", len(cf.Info.Encoders))
	}

	uses := inCmds(cf, FrameCmdUseResource)
	if len(uses) != 1 {
		t.Fatalf("useResource count = %d, want 1", len(uses))
	}
	u := uses[0]
	if u.Resource != sampled.Resource {
		t.Errorf("useResource for %v, want sampled texture", u.Resource)
	}
	if u.UseKind != rgcore.UseRead|rgcore.UseSample {
		t.Errorf("UseKind = %v, want Read|Sample", u.UseKind)
	}
	if u.Stages != rgcore.StageFragment {
		t.Errorf("Stages = %v, want Fragment", u.Stages)
	}
	if got := len(cf.Fences); got != 0 {
		t.Errorf("fences = %d, want 0", got)
	}
}

// TestWriteReadSameEncoder: a compute encoder writes then reads one
// buffer. One memory barrier, no fences.
func TestWriteReadSameEncoder(t *testing.T) {
	env := newTestEnv(false)
	b := env.table.NewBuffer(rgcore.BufferDescriptor{Length: 64}, 0)

	passes := []PassRecord{pass(0, rgcore.PassCompute), pass(1, rgcore.PassCompute)}
	usages := NewResourceUsages()
	usages.Record(b.Resource, Usage{PassIndex: 0, Access: rgcore.AccessWrite, Stages: rgcore.StageCompute})
	usages.Record(b.Resource, Usage{PassIndex: 1, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})

	cf := env.compile(t, passes, usages, 1)

	if len(cf.Info.Encoders) != 1 {
		t.Fatalf("encoder count = %d, want 1", len(cf.Info.Encoders))
	}

	barriers := inCmds(cf, FrameCmdMemoryBarrier)
	if len(barriers) != 1 {
		t.Fatalf("barrier count = %d, want 1", len(barriers))
	}
	mb := barriers[0]
	if mb.Resource != b.Resource || mb.AfterStages != rgcore.StageCompute || mb.BeforeStages != rgcore.StageCompute {
		t.Errorf("memoryBarrier = %v", mb)
	}
	if mb.Index != 1 || mb.Order != OrderBefore {
		t.Errorf("barrier position = %d.%v", mb.Index, mb.Order)
	}
	if got := len(cf.Fences); got != 0 {
		t.Errorf("fences = %d, want 0", got)
	}
}

// TestTransitiveReductionEndToEnd: chained encoders E0->E1->E2 plus a
// direct E0->E2 data dependency; the long fence is redundant.
func TestTransitiveReductionEndToEnd(t *testing.T) {
	env := newTestEnv(false)
	r1 := env.table.NewBuffer(rgcore.BufferDescriptor{Length: 64}, 0)
	r2 := env.table.NewBuffer(rgcore.BufferDescriptor{Length: 64}, 0)
	r3 := env.table.NewBuffer(rgcore.BufferDescriptor{Length: 64}, 0)

	var passes []PassRecord
	for i := 0; i < 3; i++ {
		p := pass(i, rgcore.PassCompute)
		p.StartsNewEncoder = true
		passes = append(passes, p)
	}

	usages := NewResourceUsages()
	usages.Record(r1.Resource, Usage{PassIndex: 0, Access: rgcore.AccessWrite, Stages: rgcore.StageCompute})
	usages.Record(r1.Resource, Usage{PassIndex: 1, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})
	usages.Record(r2.Resource, Usage{PassIndex: 1, Access: rgcore.AccessWrite, Stages: rgcore.StageCompute})
	usages.Record(r2.Resource, Usage{PassIndex: 2, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})
	usages.Record(r3.Resource, Usage{PassIndex: 0, Access: rgcore.AccessWrite, Stages: rgcore.StageCompute})
	usages.Record(r3.Resource, Usage{PassIndex: 2, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})

	cf := env.compile(t, passes, usages, 1)

	direct := 0
	cf.Deps.ForEach(func(int, int, *Dependency) { direct++ })
	if direct != 3 {
		t.Fatalf("direct edges = %d, want 3", direct)
	}
	if len(cf.Edges) != 2 {
		t.Fatalf("reduced edges = %d, want 2", len(cf.Edges))
	}
	for _, e := range cf.Edges {
		if e.Dependent == 2 && e.Producer == 0 {
			t.Error("transitive E0->E2 fence survived")
		}
	}
	if len(cf.Fences) != 2 {
		t.Errorf("fences = %d, want 2", len(cf.Fences))
	}
}

// TestMaterializeBeforeUseAndDisposeAfterLastUse: backing exists before
// the first referencing command and outlives the last.
func TestMaterializeBeforeUseAndDisposeAfterLastUse(t *testing.T) {
	env := newTestEnv(false)
	b := env.table.NewBuffer(rgcore.BufferDescriptor{Length: 64}, 0)

	passes := []PassRecord{
		pass(0, rgcore.PassCompute),
		pass(1, rgcore.PassCompute),
		pass(2, rgcore.PassCompute),
	}
	usages := NewResourceUsages()
	usages.Record(b.Resource, Usage{PassIndex: 1, Access: rgcore.AccessWrite, Stages: rgcore.StageCompute})
	usages.Record(b.Resource, Usage{PassIndex: 2, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})

	cf := env.compile(t, passes, usages, 1)

	mats := preCmds(cf, PreCmdMaterializeBuffer)
	if len(mats) != 1 {
		t.Fatalf("materialize count = %d", len(mats))
	}
	disposes := preCmds(cf, PreCmdDisposeResource)
	if len(disposes) != 1 {
		t.Fatalf("dispose count = %d", len(disposes))
	}

	if mats[0].Index != 1 || mats[0].Order != OrderBefore {
		t.Errorf("materialize at %d.%v, want 1.before", mats[0].Index, mats[0].Order)
	}
	if disposes[0].Index != 2 || disposes[0].Order != OrderAfter {
		t.Errorf("dispose at %d.%v, want 2.after", disposes[0].Index, disposes[0].Order)
	}

	for _, c := range cf.InFrame {
		if c.Resource == b.Resource && c.Index < mats[0].Index {
			t.Errorf("in-frame command %v precedes materialization", c)
		}
	}

	// The dispose wait event is the frame's signal value.
	if disposes[0].SignalValue != 1 {
		t.Errorf("dispose wait event = %d, want 1", disposes[0].SignalValue)
	}
}

// TestArgumentBufferOrdering: at one position, plain materializations
// precede argument buffer ones.
func TestArgumentBufferOrdering(t *testing.T) {
	env := newTestEnv(false)
	b := env.table.NewBuffer(rgcore.BufferDescriptor{Length: 64}, 0)
	ab := env.table.NewArgumentBuffer(4, 0)

	passes := []PassRecord{pass(0, rgcore.PassCompute)}
	usages := NewResourceUsages()
	// Declared argument buffer first: sorting must still put the plain
	// buffer's materialization ahead of it.
	usages.Record(ab.Resource, Usage{PassIndex: 0, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})
	usages.Record(b.Resource, Usage{PassIndex: 0, Access: rgcore.AccessRead, Stages: rgcore.StageCompute, InArgumentBuffer: true})

	cf := env.compile(t, passes, usages, 1)

	abPos, bufPos := -1, -1
	for i, c := range cf.PreFrame {
		switch c.Kind {
		case PreCmdMaterializeArgumentBuffer:
			abPos = i
		case PreCmdMaterializeBuffer:
			bufPos = i
		}
	}
	if abPos < 0 || bufPos < 0 {
		t.Fatalf("missing materializations (ab %d, buf %d)", abPos, bufPos)
	}
	if bufPos > abPos {
		t.Error("argument buffer materialized before the buffer it references")
	}
}

// TestWriteAfterReadAcrossEncoders: a write following reads on other
// encoders synchronizes against every reader.
func TestWriteAfterReadAcrossEncoders(t *testing.T) {
	env := newTestEnv(false)
	b := env.table.NewBuffer(rgcore.BufferDescriptor{Length: 64}, 0)

	var passes []PassRecord
	for i := 0; i < 3; i++ {
		p := pass(i, rgcore.PassCompute)
		p.StartsNewEncoder = true
		passes = append(passes, p)
	}

	usages := NewResourceUsages()
	usages.Record(b.Resource, Usage{PassIndex: 0, Access: rgcore.AccessWrite, Stages: rgcore.StageCompute})
	usages.Record(b.Resource, Usage{PassIndex: 1, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})
	usages.Record(b.Resource, Usage{PassIndex: 2, Access: rgcore.AccessWrite, Stages: rgcore.StageCompute})

	cf := env.compile(t, passes, usages, 1)

	// Write-after-read: E2 depends on E1; read-after-write: E1 on E0;
	// write-after-write: E2 on E0 (reduced away through E1).
	if cf.Deps.Get(1, 0) == nil {
		t.Error("missing read-after-write edge E1->E0")
	}
	if cf.Deps.Get(2, 1) == nil {
		t.Error("missing write-after-read edge E2->E1")
	}
	for _, e := range cf.Edges {
		if e.Dependent == 2 && e.Producer == 0 {
			t.Error("redundant E2->E0 fence survived reduction")
		}
	}
}

// TestPersistentWaitAndUpdate exercises the cross-frame wait-index
// protocol for persistent resources at the compiler level.
func TestPersistentWaitAndUpdate(t *testing.T) {
	env := newTestEnv(false)
	b := env.table.NewBuffer(rgcore.BufferDescriptor{Length: 64}, rgcore.FlagPersistent)

	// A previous frame on this queue wrote the buffer at signal 5.
	env.table.RaiseWaitIndex(b.Resource, env.queue.Index(), rgcore.WaitWrite, 5)

	passes := []PassRecord{pass(0, rgcore.PassCompute)}
	usages := NewResourceUsages()
	usages.Record(b.Resource, Usage{PassIndex: 0, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})

	cf := env.compile(t, passes, usages, 10)

	waits := preCmds(cf, PreCmdWaitForCommandBuffer)
	if len(waits) != 1 {
		t.Fatalf("waitForCommandBuffer count = %d, want 1", len(waits))
	}
	if waits[0].Queue != env.queue.Index() || waits[0].WaitIndex != 5 {
		t.Errorf("wait = queue %d index %d, want queue %d index 5", waits[0].Queue, waits[0].WaitIndex, env.queue.Index())
	}

	// The wait lands on the encoder's queue wait indices.
	if got := cf.Info.Encoders[0].QueueCommandWaitIndices[env.queue.Index()]; got != 5 {
		t.Errorf("encoder wait index = %d, want 5", got)
	}

	updates := cf.WaitIndexUpdates
	if len(updates) != 1 {
		t.Fatalf("wait index updates = %d, want 1", len(updates))
	}
	if updates[0].SignalValue != 10 {
		t.Errorf("update signal value = %d, want 10", updates[0].SignalValue)
	}
	if !updates[0].Read || updates[0].Write {
		t.Errorf("update accesses = read %v write %v", updates[0].Read, updates[0].Write)
	}

	// No materialization or disposal for persistent resources.
	if got := len(preCmds(cf, PreCmdMaterializeBuffer)); got != 0 {
		t.Errorf("persistent buffer materialized %d times", got)
	}
	if got := len(preCmds(cf, PreCmdDisposeResource)); got != 0 {
		t.Errorf("persistent buffer disposed %d times", got)
	}
}

// TestHeapAliasingWithinFrame: a second transient texture reusing the
// first one's slot gains a dependency edge and a fence onto the first
// texture's last reader.
func TestHeapAliasingWithinFrame(t *testing.T) {
	env := newTestEnv(true)
	desc := rgcore.DefaultTextureDescriptor(64, 64, gputypes.TextureFormatRGBA8Unorm)
	t1 := env.table.NewTexture(desc, 0)
	t2 := env.table.NewTexture(desc, 0)

	var passes []PassRecord
	for i := 0; i < 4; i++ {
		p := pass(i, rgcore.PassCompute)
		p.StartsNewEncoder = true
		passes = append(passes, p)
	}

	usages := NewResourceUsages()
	usages.Record(t1.Resource, Usage{PassIndex: 0, Access: rgcore.AccessWrite, Stages: rgcore.StageCompute})
	usages.Record(t1.Resource, Usage{PassIndex: 1, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})
	usages.Record(t2.Resource, Usage{PassIndex: 2, Access: rgcore.AccessWrite, Stages: rgcore.StageCompute})
	usages.Record(t2.Resource, Usage{PassIndex: 3, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})

	cf := env.compile(t, passes, usages, 1)

	// One texture allocation: t2 reused t1's slot.
	if env.alloc.total != 1 {
		t.Fatalf("allocations = %d, want 1 (slot reuse)", env.alloc.total)
	}

	// t2's first use waits on t1's last reader via an encoder edge.
	if cf.Deps.Get(2, 1) == nil {
		t.Error("missing aliasing edge E2->E1")
	}
	found := false
	for _, e := range cf.Edges {
		if e.Dependent == 2 && e.Producer == 1 {
			found = true
		}
	}
	if !found {
		t.Error("aliasing edge did not survive reduction into a fence")
	}
}

// TestHeapAliasingAcrossFrames: frame 2's texture landing in frame 1's
// slot gates on frame 1's disposal fence through the encoder's queue
// wait index.
func TestHeapAliasingAcrossFrames(t *testing.T) {
	env := newTestEnv(true)
	desc := rgcore.DefaultTextureDescriptor(64, 64, gputypes.TextureFormatRGBA8Unorm)

	// Frame 1: T1 written, then disposed with its store fence.
	t1 := env.table.NewTexture(desc, 0)
	passes := []PassRecord{pass(0, rgcore.PassCompute)}
	usages := NewResourceUsages()
	usages.Record(t1.Resource, Usage{PassIndex: 0, Access: rgcore.AccessWrite, Stages: rgcore.StageCompute})
	cf1 := env.compile(t, passes, usages, 1)
	if got := len(preCmds(cf1, PreCmdDisposeResource)); got != 1 {
		t.Fatalf("frame 1 disposals = %d", got)
	}
	env.registry.CycleFrames()

	// Frame 2: T2 lands in the same slot.
	env.compiler.FrameIndex = 2
	t2 := env.table.NewTexture(desc, 0)
	passes2 := []PassRecord{pass(0, rgcore.PassCompute)}
	usages2 := NewResourceUsages()
	usages2.Record(t2.Resource, Usage{PassIndex: 0, Access: rgcore.AccessWrite, Stages: rgcore.StageCompute})
	cf2 := env.compile(t, passes2, usages2, 2)

	if env.alloc.total != 1 {
		t.Fatalf("allocations = %d, want 1 (cross-frame slot reuse)", env.alloc.total)
	}

	// Frame 1 committed at signal 1; frame 2's encoder must wait on it.
	if got := cf2.Info.Encoders[0].QueueCommandWaitIndices[env.queue.Index()]; got != 1 {
		t.Errorf("cross-frame wait index = %d, want 1", got)
	}
}

// TestAliasedReadBeforeWritePanics: aliased memory must be fully
// written before it is observed.
func TestAliasedReadBeforeWritePanics(t *testing.T) {
	env := newTestEnv(true)
	b := env.table.NewBuffer(rgcore.BufferDescriptor{Length: 64}, 0)

	passes := []PassRecord{pass(0, rgcore.PassCompute)}
	usages := NewResourceUsages()
	usages.Record(b.Resource, Usage{PassIndex: 0, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for read-before-write on aliased memory")
		}
	}()
	env.compile(t, passes, usages, 1)
}

// TestHistoryBuffer drives a history buffer through its first two
// frames at the compiler level.
func TestHistoryBuffer(t *testing.T) {
	env := newTestEnv(false)
	h := env.table.NewBuffer(rgcore.BufferDescriptor{Length: 128}, rgcore.FlagHistoryBuffer)

	// Frame N: uninitialized history buffer is materialized fresh and
	// not disposed in-stream.
	passes := []PassRecord{pass(0, rgcore.PassCompute)}
	usages := NewResourceUsages()
	usages.Record(h.Resource, Usage{PassIndex: 0, Access: rgcore.AccessWrite, Stages: rgcore.StageCompute})
	cf1 := env.compile(t, passes, usages, 3)

	if got := len(preCmds(cf1, PreCmdMaterializeBuffer)); got != 1 {
		t.Fatalf("frame N materializations = %d, want 1", got)
	}
	if got := len(preCmds(cf1, PreCmdDisposeResource)); got != 0 {
		t.Errorf("frame N disposals = %d, want 0", got)
	}
	if !env.table.IsInitialized(h.Resource) {
		t.Fatal("history buffer not marked initialized after writing frame")
	}
	if !env.registry.historyPinned[h.Resource] {
		t.Error("history buffer not registered for deferred disposal")
	}

	// Apply frame N's wait index updates the way the executor would.
	for _, upd := range cf1.WaitIndexUpdates {
		env.table.RaiseWaitIndex(upd.Resource, env.queue.Index(), rgcore.WaitWrite, upd.SignalValue)
	}
	env.registry.CycleFrames()

	// Frame N+1 reads: no materialization, cross-frame wait on frame
	// N's signal value.
	env.compiler.FrameIndex = 2
	passes2 := []PassRecord{pass(0, rgcore.PassCompute)}
	usages2 := NewResourceUsages()
	usages2.Record(h.Resource, Usage{PassIndex: 0, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})
	cf2 := env.compile(t, passes2, usages2, 4)

	if got := len(preCmds(cf2, PreCmdMaterializeBuffer)); got != 0 {
		t.Errorf("frame N+1 materializations = %d, want 0", got)
	}
	waits := preCmds(cf2, PreCmdWaitForCommandBuffer)
	if len(waits) != 1 || waits[0].WaitIndex != 3 {
		t.Fatalf("frame N+1 waits = %+v, want one wait at signal 3", waits)
	}
	if env.alloc.live != 1 {
		t.Errorf("history backing not preserved: live = %d", env.alloc.live)
	}
}

// TestInitializedImmutableSkipsWaits: once initialized, an immutable
// resource needs no cross-frame gating.
func TestInitializedImmutableSkipsWaits(t *testing.T) {
	env := newTestEnv(false)
	b := env.table.NewBuffer(rgcore.BufferDescriptor{Length: 64}, rgcore.FlagPersistent|rgcore.FlagImmutableOnceInitialized)
	env.table.MarkInitialized(b.Resource)
	env.table.RaiseWaitIndex(b.Resource, env.queue.Index(), rgcore.WaitWrite, 9)

	passes := []PassRecord{pass(0, rgcore.PassCompute)}
	usages := NewResourceUsages()
	usages.Record(b.Resource, Usage{PassIndex: 0, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})
	cf := env.compile(t, passes, usages, 20)

	if got := len(preCmds(cf, PreCmdWaitForCommandBuffer)); got != 0 {
		t.Errorf("initialized immutable emitted %d waits", got)
	}
	if got := len(cf.WaitIndexUpdates); got != 0 {
		t.Errorf("initialized immutable emitted %d wait index updates", got)
	}
}

// TestCPUOnlyUsagesEmitNoResidency: cpu-before-render access produces
// no GPU residency declarations.
func TestCPUOnlyUsagesEmitNoResidency(t *testing.T) {
	env := newTestEnv(false)
	b := env.table.NewBuffer(rgcore.BufferDescriptor{Length: 64}, 0)

	passes := []PassRecord{pass(0, rgcore.PassCPU), pass(1, rgcore.PassCompute)}
	usages := NewResourceUsages()
	usages.Record(b.Resource, Usage{PassIndex: 0, Access: rgcore.AccessWrite, Stages: rgcore.StageCPUBeforeRender})
	usages.Record(b.Resource, Usage{PassIndex: 1, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})

	cf := env.compile(t, passes, usages, 1)

	uses := inCmds(cf, FrameCmdUseResource)
	if len(uses) != 1 || uses[0].Index != 1 {
		t.Errorf("useResource commands = %+v, want one at index 1", uses)
	}
}

// TestAllocationFailureAborts: materialization failure surfaces as a
// compile error.
func TestAllocationFailureAborts(t *testing.T) {
	env := newTestEnv(false)
	env.alloc.fail = true
	b := env.table.NewBuffer(rgcore.BufferDescriptor{Length: 64}, 0)

	passes := []PassRecord{pass(0, rgcore.PassCompute)}
	usages := NewResourceUsages()
	usages.Record(b.Resource, Usage{PassIndex: 0, Access: rgcore.AccessWrite, Stages: rgcore.StageCompute})
	usages.Finalize(passes)

	info := NewCommandInfo(passes, 1)
	_, err := env.compiler.Compile(info, usages)
	if !errors.Is(err, errStubAlloc) {
		t.Fatalf("Compile error = %v, want stub allocator failure", err)
	}
}

// TestInactiveUsagesIgnored: an inactive pass contributes nothing.
func TestInactiveUsagesIgnored(t *testing.T) {
	env := newTestEnv(false)
	b := env.table.NewBuffer(rgcore.BufferDescriptor{Length: 64}, 0)

	culled := pass(0, rgcore.PassCompute)
	culled.Active = false
	passes := []PassRecord{culled, pass(1, rgcore.PassCompute)}

	usages := NewResourceUsages()
	usages.Record(b.Resource, Usage{PassIndex: 0, Access: rgcore.AccessWrite, Stages: rgcore.StageCompute})
	usages.Record(b.Resource, Usage{PassIndex: 1, Access: rgcore.AccessWrite, Stages: rgcore.StageCompute})

	cf := env.compile(t, passes, usages, 1)

	mats := preCmds(cf, PreCmdMaterializeBuffer)
	if len(mats) != 1 || mats[0].Index != 1 {
		t.Errorf("materializations = %+v, want one at index 1", mats)
	}
}

// TestLeadingReadPromotion: contiguous leading read-only usages promote
// the earliest command index as the true first access.
func TestLeadingReadPromotion(t *testing.T) {
	env := newTestEnv(false)
	b := env.table.NewBuffer(rgcore.BufferDescriptor{Length: 64}, rgcore.FlagPersistent)
	env.table.RaiseWaitIndex(b.Resource, env.queue.Index(), rgcore.WaitWrite, 2)

	passes := []PassRecord{pass(0, rgcore.PassCompute), pass(1, rgcore.PassCompute)}
	usages := NewResourceUsages()
	// Declared out of order: pass 1 first, then pass 0.
	usages.Record(b.Resource, Usage{PassIndex: 1, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})
	usages.Record(b.Resource, Usage{PassIndex: 0, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})

	cf := env.compile(t, passes, usages, 5)

	waits := preCmds(cf, PreCmdWaitForCommandBuffer)
	if len(waits) != 1 {
		t.Fatalf("waits = %d", len(waits))
	}
	if waits[0].Index != 0 {
		t.Errorf("wait position = %d, want 0 (promoted first read)", waits[0].Index)
	}
}
