// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sched

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph/rgcore"
)

// CompiledFrame is the output of compilation: the frame skeleton, both
// command streams, the fence table, and the reduced dependency edges.
type CompiledFrame struct {
	Info *CommandInfo

	// PreFrame is the sorted pre-frame stream. It has already executed
	// against the transient registry by the time Compile returns.
	PreFrame []PreFrameCommand

	// InFrame is the sorted in-frame stream, fences included.
	InFrame []FrameCommand

	// Fences is the frame's fence table, indexed by FrameCommand.Fence.
	Fences []Fence

	// Deps is the unreduced encoder dependency table.
	Deps *DependencyTable

	// Edges are the dependency edges that survived transitive reduction.
	Edges []ReducedDependency

	// WaitIndexUpdates are the updateCommandBufferWaitIndex commands to
	// apply once the frame has been submitted.
	WaitIndexUpdates []PreFrameCommand
}

// Compiler turns a frame's usage lists into a CompiledFrame. One compiler
// serves one scheduler; compilation is single-threaded per frame.
type Compiler struct {
	// Table resolves resource metadata and cross-frame wait indices.
	Table *rgcore.ResourceTable

	// Transient materializes and recycles transient backing memory.
	Transient rgcore.TransientRegistry

	// Queue is the scheduler's submission queue.
	Queue *rgcore.Queue

	// FrameIndex counts submitted frames, keying same-frame aliasing
	// edges apart from cross-frame ones.
	FrameIndex uint64
}

// Compile builds and executes the pre-frame stream, fills and reduces the
// dependency table, and returns the ready-to-execute frame.
func (c *Compiler) Compile(info *CommandInfo, usages *ResourceUsages) (*CompiledFrame, error) {
	cf := &CompiledFrame{
		Info: info,
		Deps: NewDependencyTable(len(info.Encoders)),
	}

	c.Transient.PrepareFrame()

	var firstErr error
	usages.ForEach(func(res rgcore.Resource, us []Usage) {
		if firstErr == nil {
			firstErr = c.compileResource(cf, res, us)
		}
	})
	if firstErr != nil {
		return nil, firstErr
	}

	sortPreFrameCommands(cf.PreFrame)
	if err := c.runPreFrame(cf); err != nil {
		return nil, err
	}

	c.emitFences(cf)
	sortFrameCommands(cf.InFrame)

	slogger().Debug("rendergraph: frame compiled",
		"frame", c.FrameIndex,
		"encoders", len(info.Encoders),
		"commandBuffers", info.CommandBufferCount,
		"preFrameCommands", len(cf.PreFrame),
		"inFrameCommands", len(cf.InFrame),
		"fences", len(cf.Fences))

	return cf, nil
}

// compileResource runs the per-resource algorithm: residency, first-use
// determination, the hazard walk, and materialize/dispose emission.
func (c *Compiler) compileResource(cf *CompiledFrame, res rgcore.Resource, us []Usage) error {
	info := cf.Info

	active := make([]*Usage, 0, len(us))
	for i := range us {
		if us[i].Active {
			active = append(active, &us[i])
		}
	}
	if len(active) == 0 {
		return nil
	}

	encOf := func(u *Usage) int { return info.EncoderIndexForPass(u.PassIndex) }

	// Residency: one useResource per encoder that binds the resource
	// outside of render-target attachment, with unioned kinds and stages.
	c.emitResidency(cf, res, active, encOf)

	// First usage: the first active usage, with contiguous leading reads
	// collapsed onto the one starting earliest.
	first := active[0]
	if first.Access.IsRead() && !first.Access.IsWrite() {
		for _, u := range active[1:] {
			if !u.Access.IsRead() || u.Access.IsWrite() {
				break
			}
			if u.Range.Lo < first.Range.Lo {
				first = u
			}
		}
	}

	// Heap aliasing: memory inherited from another resource must be
	// fully overwritten before it is observed.
	aliased := c.Transient.IsAliasedHeapResource(res)
	if aliased {
		if !first.Access.IsWrite() && first.Access != rgcore.AccessUnusedRenderTarget {
			panic(fmt.Sprintf("rendergraph: aliased resource %v must be written before it is read", res))
		}
		cf.PreFrame = append(cf.PreFrame, PreFrameCommand{
			Kind:         PreCmdWaitForHeapAliasingFences,
			Index:        first.Range.Lo,
			Order:        OrderBefore,
			Resource:     res,
			EncoderIndex: encOf(first),
			Stages:       first.Stages,
		})
	}

	// Hazard walk.
	walk := c.walkDependencies(cf, res, active, encOf)

	// Materialize / dispose emission.
	wasInitialized := res.Persistent() && c.Table.IsInitialized(res)
	c.emitLifecycle(cf, res, active, first, encOf, wasInitialized)

	// Store fences for downstream aliasing users of this memory.
	if aliased {
		c.Transient.SetDisposalFences(res, c.storeFences(info, walk, encOf))
	}

	if walk.hasWrite && res.Persistent() {
		c.Table.MarkInitialized(res)
	}
	return nil
}

// emitResidency implements the residency pass over non-attachment usages.
func (c *Compiler) emitResidency(cf *CompiledFrame, res rgcore.Resource, active []*Usage, encOf func(*Usage) int) {
	curEnc := -1
	var kind rgcore.UseKind
	var stages rgcore.RenderStages
	minIdx := 0

	flush := func() {
		if curEnc >= 0 && kind != 0 {
			cf.InFrame = append(cf.InFrame, FrameCommand{
				Kind:     FrameCmdUseResource,
				Index:    minIdx,
				Order:    OrderBefore,
				Resource: res,
				UseKind:  kind,
				Stages:   stages,
			})
		}
	}

	for _, u := range active {
		if u.Access.IsRenderTarget() || u.Stages.IsCPUOnly() || u.PassType == rgcore.PassExternal {
			continue
		}
		e := encOf(u)
		if e != curEnc {
			flush()
			curEnc, kind, stages, minIdx = e, 0, 0, u.Range.Lo
		}
		if u.Access.IsRead() {
			kind |= rgcore.UseRead
			if res.Type() == rgcore.ResourceTypeTexture {
				kind |= rgcore.UseSample
			}
		}
		if u.Access.IsWrite() {
			kind |= rgcore.UseWrite
		}
		stages |= u.Stages
		minIdx = min(minIdx, u.Range.Lo)
	}
	flush()
}

// walkState is what the hazard walk leaves behind for store-fence and
// initialization handling.
type walkState struct {
	hasWrite            bool
	previousWrite       *Usage
	readsSinceLastWrite []*Usage
}

// walkDependencies performs the hazard walk: cross-encoder dependencies
// into the table, same-encoder read-after-write barriers into the
// in-frame stream.
func (c *Compiler) walkDependencies(cf *CompiledFrame, res rgcore.Resource, active []*Usage, encOf func(*Usage) int) walkState {
	var ws walkState

	barrier := make([]*Usage, 0, len(active))
	for _, u := range active {
		if u.affectsGPUBarriers() {
			barrier = append(barrier, u)
		}
		if u.Access.IsWrite() {
			ws.hasWrite = true
		}
	}
	if len(barrier) == 0 {
		return ws
	}

	if first := barrier[0]; first.Access.IsWrite() {
		ws.previousWrite = first
	} else if first.Access.IsRead() {
		ws.readsSinceLastWrite = append(ws.readsSinceLastWrite, first)
	}

	addDep := func(dependent, producer int, prod, cons *Usage) {
		if dependent == producer {
			return
		}
		cf.Deps.Add(dependent, producer, Dependency{
			Signal: FencePoint{
				EncoderIndex: producer,
				CommandIndex: prod.Range.Hi - 1,
				Stages:       prod.Stages,
			},
			Wait: FencePoint{
				EncoderIndex: dependent,
				CommandIndex: cons.Range.Lo,
				Stages:       cons.Stages,
			},
		})
	}

	for _, u := range barrier[1:] {
		ue := encOf(u)

		if u.Access.IsWrite() {
			// Writes must wait for every read since the last write that
			// happened on another encoder.
			for _, r := range ws.readsSinceLastWrite {
				if re := encOf(r); re != ue {
					addDep(ue, re, r, u)
				}
			}
		}

		if pw := ws.previousWrite; pw != nil {
			pe := encOf(pw)
			if u.Access.IsRead() && pe == ue {
				// Read after write within one encoder: a memory barrier,
				// unless the attachment store feeds the attachment read
				// in place.
				if !(pw.Access.IsRenderTarget() && u.Access.IsRenderTarget()) {
					cf.InFrame = append(cf.InFrame, FrameCommand{
						Kind:         FrameCmdMemoryBarrier,
						Index:        u.Range.Lo,
						Order:        OrderBefore,
						Resource:     res,
						AfterStages:  pw.Stages,
						BeforeStages: u.Stages,
					})
				}
			}
			if (u.Access.IsRead() || u.Access.IsWrite()) && pe != ue {
				addDep(ue, pe, pw, u)
			}
		}

		if u.Access.IsWrite() {
			ws.readsSinceLastWrite = ws.readsSinceLastWrite[:0]
			ws.previousWrite = u
		}
		if u.Access.IsRead() && !u.Access.IsWrite() {
			ws.readsSinceLastWrite = append(ws.readsSinceLastWrite, u)
		}
	}
	return ws
}

// storeFences computes the fence dependencies left on the resource's
// memory for later aliasing users: one per read since the last write, or
// one for the last write when nothing read it (external passes excluded).
func (c *Compiler) storeFences(info *CommandInfo, ws walkState, encOf func(*Usage) int) []rgcore.FenceDependency {
	mk := func(u *Usage) rgcore.FenceDependency {
		e := encOf(u)
		return rgcore.FenceDependency{
			FrameIndex:   c.FrameIndex,
			EncoderIndex: e,
			CommandIndex: u.Range.Hi - 1,
			Stages:       u.Stages,
			Queue:        c.Queue.Index(),
			SignalValue:  info.SignalValue(info.Encoders[e].CommandBufferIndex),
		}
	}

	if len(ws.readsSinceLastWrite) > 0 {
		deps := make([]rgcore.FenceDependency, 0, len(ws.readsSinceLastWrite))
		for _, r := range ws.readsSinceLastWrite {
			deps = append(deps, mk(r))
		}
		return deps
	}
	if ws.previousWrite != nil && ws.previousWrite.PassType != rgcore.PassExternal {
		return []rgcore.FenceDependency{mk(ws.previousWrite)}
	}
	return nil
}

// emitLifecycle emits the materialize, dispose, and cross-frame wait
// commands for one resource.
func (c *Compiler) emitLifecycle(cf *CompiledFrame, res rgcore.Resource, active []*Usage, first *Usage, encOf func(*Usage) int, wasInitialized bool) {
	info := cf.Info

	firstIdx, firstEnc := first.Range.Lo, encOf(first)
	last := active[0]
	hasRead, hasWrite := false, false
	for _, u := range active {
		if u.Range.Hi > last.Range.Hi {
			last = u
		}
		hasRead = hasRead || u.Access.IsRead()
		hasWrite = hasWrite || u.Access.IsWrite()
	}
	lastIdx, lastEnc := last.Range.Hi-1, encOf(last)
	lastSignal := info.SignalValue(info.Encoders[lastEnc].CommandBufferIndex)

	materialize := func(kind PreFrameCommandKind, usage gputypes.TextureUsage) {
		cf.PreFrame = append(cf.PreFrame, PreFrameCommand{
			Kind:         kind,
			Index:        firstIdx,
			Order:        OrderBefore,
			Resource:     res,
			EncoderIndex: firstEnc,
			TextureUsage: usage,
		})
	}
	dispose := func() {
		cf.PreFrame = append(cf.PreFrame, PreFrameCommand{
			Kind:        PreCmdDisposeResource,
			Index:       lastIdx,
			Order:       OrderAfter,
			Resource:    res,
			SignalValue: lastSignal,
		})
	}
	persistentWaits := func() {
		for q := rgcore.QueueIndex(0); q < rgcore.MaxQueues; q++ {
			if w := c.Table.RequiredWaitIndex(res, q, hasRead, hasWrite); w > 0 {
				cf.PreFrame = append(cf.PreFrame, PreFrameCommand{
					Kind:         PreCmdWaitForCommandBuffer,
					Index:        firstIdx,
					Order:        OrderBefore,
					Resource:     res,
					EncoderIndex: firstEnc,
					Queue:        q,
					WaitIndex:    w,
				})
			}
		}
	}
	updateWaitIndex := func() {
		cf.PreFrame = append(cf.PreFrame, PreFrameCommand{
			Kind:        PreCmdUpdateCommandBufferWaitIndex,
			Index:       lastIdx,
			Order:       OrderAfter,
			Resource:    res,
			SignalValue: lastSignal,
			Read:        hasRead,
			Write:       hasWrite,
		})
	}

	switch res.Type() {
	case rgcore.ResourceTypeArgumentBuffer, rgcore.ResourceTypeArgumentBufferArray:
		// Argument buffers materialize at first use, not first
		// declaration: their contents reference resources that must be
		// materialized first.
		kind := PreCmdMaterializeArgumentBuffer
		if res.Type() == rgcore.ResourceTypeArgumentBufferArray {
			kind = PreCmdMaterializeArgumentBufferArray
		}
		materialize(kind, 0)
		if res.Transient() || (res.IsHistoryBuffer() && !wasInitialized) {
			dispose()
		} else {
			persistentWaits()
			updateWaitIndex()
		}

	case rgcore.ResourceTypeBuffer:
		if res.Transient() {
			materialize(PreCmdMaterializeBuffer, 0)
			dispose()
			return
		}
		c.emitPersistentLifecycle(cf, res, wasInitialized, func() { materialize(PreCmdMaterializeBuffer, 0) }, persistentWaits, updateWaitIndex)

	case rgcore.ResourceTypeTexture:
		usage := c.accumulateTextureUsage(res, active)
		kind := PreCmdMaterializeTexture
		if _, ok := c.Table.ViewBase(rgcore.Texture{Resource: res}); ok {
			kind = PreCmdMaterializeTextureView
		}
		if res.Transient() || res.IsWindowHandle() {
			materialize(kind, usage)
			dispose()
			return
		}
		c.emitPersistentLifecycle(cf, res, wasInitialized, func() { materialize(kind, usage) }, persistentWaits, updateWaitIndex)
	}
}

// emitPersistentLifecycle handles persistent buffers and textures,
// including both history buffer phases.
func (c *Compiler) emitPersistentLifecycle(cf *CompiledFrame, res rgcore.Resource, wasInitialized bool, materialize, persistentWaits, updateWaitIndex func()) {
	switch {
	case res.IsHistoryBuffer() && !wasInitialized:
		// First frame of a history buffer: materialized fresh, and its
		// backing handed to the registry for deferred release instead of
		// an in-stream dispose.
		materialize()
		c.Transient.RegisterInitializedHistoryBufferForDisposal(res)
		updateWaitIndex()

	case res.Flags()&rgcore.FlagImmutableOnceInitialized != 0 && wasInitialized:
		// Initialized immutable resources promise no further writes;
		// no waits and no index updates are needed.

	default:
		persistentWaits()
		updateWaitIndex()
	}
}

// accumulateTextureUsage widens a texture's declared usage with the
// usages the frame observes, so materialization requests every capability
// the frame needs.
func (c *Compiler) accumulateTextureUsage(res rgcore.Resource, active []*Usage) gputypes.TextureUsage {
	usage := c.Table.TextureDescriptor(rgcore.Texture{Resource: res}).Usage
	for _, u := range active {
		switch {
		case u.Access.IsRenderTarget():
			usage |= gputypes.TextureUsageRenderAttachment
		case u.PassType == rgcore.PassBlit:
			if u.Access.IsRead() {
				usage |= gputypes.TextureUsageCopySrc
			}
			if u.Access.IsWrite() {
				usage |= gputypes.TextureUsageCopyDst
			}
		default:
			if u.Access.IsRead() {
				usage |= gputypes.TextureUsageTextureBinding
			}
			if u.Access.IsWrite() {
				usage |= gputypes.TextureUsageStorageBinding
			}
		}
	}
	return usage
}

// runPreFrame executes the sorted pre-frame stream against the transient
// registry, raising encoder wait indices as materializations report their
// wait events and aliasing fences insert their edges.
func (c *Compiler) runPreFrame(cf *CompiledFrame) error {
	info := cf.Info
	own := c.Queue.Index()

	for i := range cf.PreFrame {
		cmd := &cf.PreFrame[i]
		switch cmd.Kind {
		case PreCmdMaterializeBuffer:
			ev, err := c.Transient.AllocateBufferIfNeeded(rgcore.Buffer{Resource: cmd.Resource})
			if err != nil {
				return fmt.Errorf("materialize %v: %w", cmd.Resource, err)
			}
			info.RaiseQueueWait(cmd.EncoderIndex, own, ev)

		case PreCmdMaterializeTexture:
			ev, err := c.Transient.AllocateTextureIfNeeded(rgcore.Texture{Resource: cmd.Resource}, cmd.TextureUsage)
			if err != nil {
				return fmt.Errorf("materialize %v: %w", cmd.Resource, err)
			}
			info.RaiseQueueWait(cmd.EncoderIndex, own, ev)

		case PreCmdMaterializeTextureView:
			ev, err := c.Transient.AllocateTextureViewIfNeeded(rgcore.Texture{Resource: cmd.Resource}, cmd.TextureUsage)
			if err != nil {
				return fmt.Errorf("materialize view %v: %w", cmd.Resource, err)
			}
			info.RaiseQueueWait(cmd.EncoderIndex, own, ev)

		case PreCmdMaterializeArgumentBuffer, PreCmdMaterializeArgumentBufferArray:
			ev, err := c.Transient.AllocateArgumentBufferIfNeeded(rgcore.ArgumentBuffer{Resource: cmd.Resource})
			if err != nil {
				return fmt.Errorf("materialize %v: %w", cmd.Resource, err)
			}
			info.RaiseQueueWait(cmd.EncoderIndex, own, ev)

		case PreCmdDisposeResource:
			switch cmd.Resource.Type() {
			case rgcore.ResourceTypeBuffer:
				c.Transient.DisposeBuffer(rgcore.Buffer{Resource: cmd.Resource}, cmd.SignalValue)
			case rgcore.ResourceTypeTexture:
				c.Transient.DisposeTexture(rgcore.Texture{Resource: cmd.Resource}, cmd.SignalValue)
			default:
				c.Transient.DisposeArgumentBuffer(rgcore.ArgumentBuffer{Resource: cmd.Resource}, cmd.SignalValue)
			}

		case PreCmdWaitForCommandBuffer:
			info.RaiseQueueWait(cmd.EncoderIndex, cmd.Queue, cmd.WaitIndex)

		case PreCmdUpdateCommandBufferWaitIndex:
			cf.WaitIndexUpdates = append(cf.WaitIndexUpdates, *cmd)

		case PreCmdWaitForHeapAliasingFences:
			c.Transient.WithHeapAliasingFences(cmd.Resource, func(dep rgcore.FenceDependency) {
				if dep.FrameIndex == c.FrameIndex && dep.EncoderIndex != cmd.EncoderIndex {
					cf.Deps.Add(cmd.EncoderIndex, dep.EncoderIndex, Dependency{
						Signal: FencePoint{
							EncoderIndex: dep.EncoderIndex,
							CommandIndex: dep.CommandIndex,
							Stages:       dep.Stages,
						},
						Wait: FencePoint{
							EncoderIndex: cmd.EncoderIndex,
							CommandIndex: cmd.Index,
							Stages:       cmd.Stages,
						},
					})
				} else if dep.FrameIndex != c.FrameIndex {
					// The signaling encoder belongs to an earlier frame;
					// gate on its command buffer's completion instead.
					info.RaiseQueueWait(cmd.EncoderIndex, dep.Queue, dep.SignalValue)
				}
			})
		}
	}
	return nil
}

// emitFences reduces the dependency table and appends one update/wait
// pair per surviving edge to the in-frame stream.
func (c *Compiler) emitFences(cf *CompiledFrame) {
	cf.Edges = cf.Deps.Reduce()
	for _, e := range cf.Edges {
		producer := &cf.Info.Encoders[e.Producer]
		f := Fence{
			Index:                    len(cf.Fences),
			Queue:                    c.Queue.Index(),
			CommandBufferSignalValue: cf.Info.SignalValue(producer.CommandBufferIndex),
		}
		cf.Fences = append(cf.Fences, f)

		cf.InFrame = append(cf.InFrame,
			FrameCommand{
				Kind:        FrameCmdUpdateFence,
				Index:       e.Dependency.Signal.CommandIndex,
				Order:       OrderAfter,
				Fence:       f.Index,
				AfterStages: e.Dependency.Signal.Stages,
			},
			FrameCommand{
				Kind:         FrameCmdWaitForFence,
				Index:        e.Dependency.Wait.CommandIndex,
				Order:        OrderBefore,
				Fence:        f.Index,
				BeforeStages: e.Dependency.Wait.Stages,
			})
	}
}
