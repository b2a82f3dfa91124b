// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sched

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rendergraph/rgcore"
)

func pass(i int, t rgcore.PassType) PassRecord {
	return PassRecord{
		Index:        i,
		Type:         t,
		Active:       true,
		CommandRange: Range{Lo: i, Hi: i + 1},
	}
}

func drawPass(i int, rt *rgcore.RenderTargetDescriptor) PassRecord {
	p := pass(i, rgcore.PassDraw)
	p.RenderTarget = rt
	return p
}

func offscreenTarget(index uint32) *rgcore.RenderTargetDescriptor {
	return &rgcore.RenderTargetDescriptor{
		ColorAttachments: []rgcore.ColorAttachment{{
			Texture: rgcore.Texture{Resource: rgcore.MakeResource(rgcore.ResourceTypeTexture, 0, index, 0)},
		}},
	}
}

func swapchainTarget(index uint32) *rgcore.RenderTargetDescriptor {
	return &rgcore.RenderTargetDescriptor{
		ColorAttachments: []rgcore.ColorAttachment{{
			Texture: rgcore.Texture{Resource: rgcore.MakeResource(rgcore.ResourceTypeTexture, rgcore.FlagWindowHandle, index, 0)},
		}},
	}
}

func TestCommandInfoTypeChangeSplitsEncoders(t *testing.T) {
	info := NewCommandInfo([]PassRecord{
		pass(0, rgcore.PassCompute),
		pass(1, rgcore.PassCompute),
		pass(2, rgcore.PassBlit),
		pass(3, rgcore.PassCompute),
	}, 1)

	if got := len(info.Encoders); got != 3 {
		t.Fatalf("encoder count = %d, want 3", got)
	}
	if info.Encoders[0].PassRange != (Range{Lo: 0, Hi: 2}) {
		t.Errorf("encoder 0 pass range = %+v", info.Encoders[0].PassRange)
	}
	if info.Encoders[1].Type != rgcore.PassBlit {
		t.Errorf("encoder 1 type = %v", info.Encoders[1].Type)
	}
}

func TestCommandInfoDrawCoalescing(t *testing.T) {
	shared := offscreenTarget(1)
	other := offscreenTarget(2)

	info := NewCommandInfo([]PassRecord{
		drawPass(0, shared),
		drawPass(1, shared),
		drawPass(2, other),
	}, 1)

	if got := len(info.Encoders); got != 2 {
		t.Fatalf("encoder count = %d, want 2", got)
	}
	if info.Encoders[0].PassRange != (Range{Lo: 0, Hi: 2}) {
		t.Errorf("compatible draws did not coalesce: %+v", info.Encoders[0].PassRange)
	}
}

// TestCommandInfoDrawCoalescingMergesStoreOps: two coalesced draw passes
// with distinct descriptors keep the first pass's loads and adopt the
// last pass's stores, without mutating the callers' descriptors.
func TestCommandInfoDrawCoalescingMergesStoreOps(t *testing.T) {
	color := rgcore.Texture{Resource: rgcore.MakeResource(rgcore.ResourceTypeTexture, 0, 1, 0)}
	depth := rgcore.Texture{Resource: rgcore.MakeResource(rgcore.ResourceTypeTexture, 0, 2, 0)}

	first := &rgcore.RenderTargetDescriptor{
		ColorAttachments: []rgcore.ColorAttachment{{
			Texture: color,
			LoadOp:  gputypes.LoadOpClear,
			StoreOp: gputypes.StoreOpDiscard,
		}},
		DepthStencilAttachment: &rgcore.DepthStencilAttachment{
			Texture:      depth,
			DepthLoadOp:  gputypes.LoadOpClear,
			DepthStoreOp: gputypes.StoreOpStore,
		},
	}
	second := &rgcore.RenderTargetDescriptor{
		ColorAttachments: []rgcore.ColorAttachment{{
			Texture: color,
			LoadOp:  gputypes.LoadOpLoad,
			StoreOp: gputypes.StoreOpStore,
		}},
		DepthStencilAttachment: &rgcore.DepthStencilAttachment{
			Texture:      depth,
			DepthLoadOp:  gputypes.LoadOpLoad,
			DepthStoreOp: gputypes.StoreOpDiscard,
		},
	}

	info := NewCommandInfo([]PassRecord{
		drawPass(0, first),
		drawPass(1, second),
	}, 1)

	if got := len(info.Encoders); got != 1 {
		t.Fatalf("encoder count = %d, want 1 (coalesced)", got)
	}
	rt := info.Encoders[0].RenderTarget
	if rt == first || rt == second {
		t.Fatal("encoder must own a copy of the render target descriptor")
	}

	ca := rt.ColorAttachments[0]
	if ca.LoadOp != gputypes.LoadOpClear {
		t.Errorf("merged color LoadOp = %v, want the first pass's Clear", ca.LoadOp)
	}
	if ca.StoreOp != gputypes.StoreOpStore {
		t.Errorf("merged color StoreOp = %v, want the last pass's Store", ca.StoreOp)
	}
	if got := rt.DepthStencilAttachment.DepthLoadOp; got != gputypes.LoadOpClear {
		t.Errorf("merged depth load = %v, want the first pass's Clear", got)
	}
	if got := rt.DepthStencilAttachment.DepthStoreOp; got != gputypes.StoreOpDiscard {
		t.Errorf("merged depth store = %v, want the last pass's Discard", got)
	}

	// The callers' descriptors are untouched.
	if first.ColorAttachments[0].StoreOp != gputypes.StoreOpDiscard {
		t.Error("first pass descriptor was mutated")
	}
	if second.ColorAttachments[0].LoadOp != gputypes.LoadOpLoad {
		t.Error("second pass descriptor was mutated")
	}
}

func TestCommandInfoExternalAndCPUStayAlone(t *testing.T) {
	info := NewCommandInfo([]PassRecord{
		pass(0, rgcore.PassExternal),
		pass(1, rgcore.PassExternal),
		pass(2, rgcore.PassCPU),
		pass(3, rgcore.PassCPU),
	}, 1)

	if got := len(info.Encoders); got != 4 {
		t.Fatalf("encoder count = %d, want 4", got)
	}
}

func TestCommandInfoInactivePassesSkipped(t *testing.T) {
	inactive := pass(1, rgcore.PassCompute)
	inactive.Active = false

	info := NewCommandInfo([]PassRecord{
		pass(0, rgcore.PassCompute),
		inactive,
		pass(2, rgcore.PassCompute),
	}, 1)

	if got := len(info.Encoders); got != 2 {
		t.Fatalf("encoder count = %d, want 2 (inactive pass breaks the run)", got)
	}
	if info.EncoderIndexForPass(1) != -1 {
		t.Error("inactive pass should map to no encoder")
	}
}

func TestCommandInfoForcedSplit(t *testing.T) {
	second := pass(1, rgcore.PassCompute)
	second.StartsNewEncoder = true

	info := NewCommandInfo([]PassRecord{
		pass(0, rgcore.PassCompute),
		second,
	}, 1)

	if got := len(info.Encoders); got != 2 {
		t.Fatalf("encoder count = %d, want 2", got)
	}
}

func TestCommandInfoPresentationSplitsCommandBuffers(t *testing.T) {
	info := NewCommandInfo([]PassRecord{
		pass(0, rgcore.PassCompute),
		drawPass(1, swapchainTarget(1)),
		pass(2, rgcore.PassBlit),
	}, 10)

	if got := info.CommandBufferCount; got != 3 {
		t.Fatalf("command buffer count = %d, want 3", got)
	}
	if info.Encoders[0].CommandBufferIndex != 0 ||
		info.Encoders[1].CommandBufferIndex != 1 ||
		info.Encoders[2].CommandBufferIndex != 2 {
		t.Errorf("command buffer partition = %d/%d/%d",
			info.Encoders[0].CommandBufferIndex,
			info.Encoders[1].CommandBufferIndex,
			info.Encoders[2].CommandBufferIndex)
	}

	// Signal values count up from the initial value.
	if info.SignalValue(0) != 10 || info.SignalValue(2) != 12 {
		t.Errorf("signal values = %d..%d", info.SignalValue(0), info.SignalValue(2))
	}
	if info.LastSignalValue() != 12 {
		t.Errorf("LastSignalValue() = %d", info.LastSignalValue())
	}
}

func TestCommandInfoOffscreenOnlySingleCommandBuffer(t *testing.T) {
	info := NewCommandInfo([]PassRecord{
		pass(0, rgcore.PassCompute),
		drawPass(1, offscreenTarget(1)),
		pass(2, rgcore.PassBlit),
	}, 1)

	if got := info.CommandBufferCount; got != 1 {
		t.Fatalf("command buffer count = %d, want 1", got)
	}
}

func TestCommandInfoPassLookups(t *testing.T) {
	info := NewCommandInfo([]PassRecord{
		pass(0, rgcore.PassCompute),
		pass(1, rgcore.PassCompute),
		pass(2, rgcore.PassBlit),
	}, 1)

	if got := info.EncoderIndexForPass(1); got != 0 {
		t.Errorf("EncoderIndexForPass(1) = %d", got)
	}
	if got := info.EncoderIndexForPass(2); got != 1 {
		t.Errorf("EncoderIndexForPass(2) = %d", got)
	}
	if got := info.EncoderIndexForCommand(2); got != 1 {
		t.Errorf("EncoderIndexForCommand(2) = %d", got)
	}
	if got := info.EncoderIndexForCommand(99); got != -1 {
		t.Errorf("EncoderIndexForCommand(99) = %d", got)
	}
	if info.CommandCount != 3 {
		t.Errorf("CommandCount = %d", info.CommandCount)
	}
}

func TestCommandInfoQueueWaitRaise(t *testing.T) {
	info := NewCommandInfo([]PassRecord{pass(0, rgcore.PassCompute)}, 1)

	info.RaiseQueueWait(0, 2, 5)
	info.RaiseQueueWait(0, 2, 3) // lower value is a no-op
	if got := info.Encoders[0].QueueCommandWaitIndices[2]; got != 5 {
		t.Errorf("wait index = %d, want 5", got)
	}
}

func TestCommandInfoEmpty(t *testing.T) {
	info := NewCommandInfo(nil, 7)
	if len(info.Encoders) != 0 || info.CommandBufferCount != 0 {
		t.Errorf("empty frame: %d encoders, %d command buffers", len(info.Encoders), info.CommandBufferCount)
	}
	if got := info.LastSignalValue(); got != 7 {
		t.Errorf("LastSignalValue() = %d", got)
	}
}
