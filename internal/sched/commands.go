// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sched

import (
	"fmt"
	"sort"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph/rgcore"
)

// CommandOrder positions a command relative to the command index it is
// attached to.
type CommandOrder uint8

const (
	// OrderBefore runs ahead of the command at the index.
	OrderBefore CommandOrder = iota

	// OrderAfter runs behind the command at the index.
	OrderAfter
)

// String returns "before" or "after".
func (o CommandOrder) String() string {
	if o == OrderBefore {
		return "before"
	}
	return "after"
}

// PreFrameCommandKind enumerates the pre-frame command stream variants.
type PreFrameCommandKind uint8

const (
	// PreCmdMaterializeBuffer acquires backing for a buffer.
	PreCmdMaterializeBuffer PreFrameCommandKind = iota + 1

	// PreCmdMaterializeTexture acquires backing for a texture.
	PreCmdMaterializeTexture

	// PreCmdMaterializeTextureView acquires a view over a materialized
	// base texture.
	PreCmdMaterializeTextureView

	// PreCmdMaterializeArgumentBuffer acquires and populates an argument
	// buffer. Always ordered after plain materializations at the same
	// position.
	PreCmdMaterializeArgumentBuffer

	// PreCmdMaterializeArgumentBufferArray is the array variant.
	PreCmdMaterializeArgumentBufferArray

	// PreCmdDisposeResource returns backing to the registry, tagged with
	// the frame's signal value as the reuse wait event.
	PreCmdDisposeResource

	// PreCmdWaitForCommandBuffer raises an encoder's wait index on a
	// queue to gate on a prior frame's completion.
	PreCmdWaitForCommandBuffer

	// PreCmdUpdateCommandBufferWaitIndex records this frame's signal
	// value into a persistent resource's wait indices after the frame.
	PreCmdUpdateCommandBufferWaitIndex

	// PreCmdWaitForHeapAliasingFences inserts dependency edges for every
	// fence guarding memory aliased with the resource.
	PreCmdWaitForHeapAliasingFences
)

// String returns the string representation of PreFrameCommandKind.
func (k PreFrameCommandKind) String() string {
	switch k {
	case PreCmdMaterializeBuffer:
		return "materializeBuffer"
	case PreCmdMaterializeTexture:
		return "materializeTexture"
	case PreCmdMaterializeTextureView:
		return "materializeTextureView"
	case PreCmdMaterializeArgumentBuffer:
		return "materializeArgumentBuffer"
	case PreCmdMaterializeArgumentBufferArray:
		return "materializeArgumentBufferArray"
	case PreCmdDisposeResource:
		return "disposeResource"
	case PreCmdWaitForCommandBuffer:
		return "waitForCommandBuffer"
	case PreCmdUpdateCommandBufferWaitIndex:
		return "updateCommandBufferWaitIndex"
	case PreCmdWaitForHeapAliasingFences:
		return "waitForHeapAliasingFences"
	default:
		return fmt.Sprintf("PreFrameCommandKind(%d)", uint8(k))
	}
}

// PreFrameCommand is one entry of the pre-frame stream, executed against
// the transient registry before any GPU recording.
type PreFrameCommand struct {
	Kind  PreFrameCommandKind
	Index int
	Order CommandOrder

	// Resource is the subject of every variant.
	Resource rgcore.Resource

	// EncoderIndex is the encoder whose wait indices the command raises
	// (materialize, waitForCommandBuffer, waitForHeapAliasingFences).
	EncoderIndex int

	// TextureUsage carries the accumulated usage flags for texture
	// materialization.
	TextureUsage gputypes.TextureUsage

	// Queue and WaitIndex parameterize waitForCommandBuffer.
	Queue     rgcore.QueueIndex
	WaitIndex uint64

	// SignalValue parameterizes disposeResource and
	// updateCommandBufferWaitIndex.
	SignalValue uint64

	// Stages are the pipeline stages of the first use, scoping the wait
	// side of heap aliasing edges.
	Stages rgcore.RenderStages

	// Accesses records which wait indices an update command raises.
	Read, Write bool
}

func (c PreFrameCommand) String() string {
	return fmt.Sprintf("%s(%v)@%d.%s", c.Kind, c.Resource, c.Index, c.Order)
}

// kindPriority breaks ties within one (index, order) position. Disposals
// free slots before materializations look for them; argument buffer
// materializations come after every other materialization because they
// are populated from resources that must already exist; waits and index
// updates run once everything at the position is materialized.
func (c *PreFrameCommand) kindPriority() int {
	switch c.Kind {
	case PreCmdDisposeResource:
		return 0
	case PreCmdMaterializeBuffer, PreCmdMaterializeTexture, PreCmdMaterializeTextureView:
		return 1
	case PreCmdMaterializeArgumentBuffer, PreCmdMaterializeArgumentBufferArray:
		return 2
	default:
		return 3
	}
}

// sortPreFrameCommands orders the stream by (index, order, kind
// priority). The sort is stable so commands for distinct resources keep
// their emission order.
func sortPreFrameCommands(cmds []PreFrameCommand) {
	sort.SliceStable(cmds, func(i, j int) bool {
		a, b := &cmds[i], &cmds[j]
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.kindPriority() < b.kindPriority()
	})
}

// FrameCommandKind enumerates the in-frame command stream variants.
type FrameCommandKind uint8

const (
	// FrameCmdUseResource declares residency for one encoder.
	FrameCmdUseResource FrameCommandKind = iota + 1

	// FrameCmdMemoryBarrier orders a write before a read within one
	// encoder.
	FrameCmdMemoryBarrier

	// FrameCmdUpdateFence signals a fence after given stages.
	FrameCmdUpdateFence

	// FrameCmdWaitForFence stalls given stages until a fence signals.
	FrameCmdWaitForFence
)

// String returns the string representation of FrameCommandKind.
func (k FrameCommandKind) String() string {
	switch k {
	case FrameCmdUseResource:
		return "useResource"
	case FrameCmdMemoryBarrier:
		return "memoryBarrier"
	case FrameCmdUpdateFence:
		return "updateFence"
	case FrameCmdWaitForFence:
		return "waitForFence"
	default:
		return fmt.Sprintf("FrameCommandKind(%d)", uint8(k))
	}
}

// FrameCommand is one entry of the in-frame stream, replayed into the
// encoder whose command range covers its index.
type FrameCommand struct {
	Kind  FrameCommandKind
	Index int
	Order CommandOrder

	// Resource is the subject of useResource and memoryBarrier.
	Resource rgcore.Resource

	// UseKind and Stages parameterize useResource.
	UseKind rgcore.UseKind
	Stages  rgcore.RenderStages

	// AfterStages and BeforeStages scope barriers and fences.
	AfterStages  rgcore.RenderStages
	BeforeStages rgcore.RenderStages

	// Fence indexes the frame's fence table for updateFence and
	// waitForFence.
	Fence int
}

func (c FrameCommand) String() string {
	switch c.Kind {
	case FrameCmdUseResource:
		return fmt.Sprintf("useResource(%v,%v,%v)@%d.%s", c.Resource, c.UseKind, c.Stages, c.Index, c.Order)
	case FrameCmdMemoryBarrier:
		return fmt.Sprintf("memoryBarrier(%v,%v->%v)@%d.%s", c.Resource, c.AfterStages, c.BeforeStages, c.Index, c.Order)
	case FrameCmdUpdateFence:
		return fmt.Sprintf("updateFence(#%d,%v)@%d.%s", c.Fence, c.AfterStages, c.Index, c.Order)
	case FrameCmdWaitForFence:
		return fmt.Sprintf("waitForFence(#%d,%v)@%d.%s", c.Fence, c.BeforeStages, c.Index, c.Order)
	}
	return fmt.Sprintf("FrameCommand(%d)", uint8(c.Kind))
}

// sortFrameCommands orders the in-frame stream by (index, order),
// stable within a position.
func sortFrameCommands(cmds []FrameCommand) {
	sort.SliceStable(cmds, func(i, j int) bool {
		a, b := &cmds[i], &cmds[j]
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.Order < b.Order
	})
}

// Fence is a synchronization primitive bound to the command buffer of
// its signaling encoder: one encoder updates it after given stages,
// another waits on it before given stages.
type Fence struct {
	// Index is the fence's position in the frame's fence table.
	Index int

	// Queue is the queue whose timeline backs the fence.
	Queue rgcore.QueueIndex

	// CommandBufferSignalValue is the signal value of the command buffer
	// containing the signaling encoder.
	CommandBufferSignalValue uint64
}
