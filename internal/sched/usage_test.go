// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sched

import (
	"testing"

	"github.com/gogpu/rendergraph/rgcore"
)

func testBuffer(index uint32, flags rgcore.ResourceFlags) rgcore.Resource {
	return rgcore.MakeResource(rgcore.ResourceTypeBuffer, flags, index, 0)
}

func TestResourceUsagesRecordOrder(t *testing.T) {
	ru := NewResourceUsages()
	a := testBuffer(1, 0)
	b := testBuffer(2, 0)

	ru.Record(b, Usage{PassIndex: 0, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})
	ru.Record(a, Usage{PassIndex: 1, Access: rgcore.AccessWrite, Stages: rgcore.StageCompute})
	ru.Record(b, Usage{PassIndex: 2, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})

	if ru.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ru.Len())
	}

	var order []rgcore.Resource
	ru.ForEach(func(res rgcore.Resource, usages []Usage) {
		order = append(order, res)
	})
	if order[0] != b || order[1] != a {
		t.Errorf("iteration order = %v, want first-declaration order", order)
	}
	if got := len(ru.Usages(b)); got != 2 {
		t.Errorf("len(Usages(b)) = %d, want 2", got)
	}
}

func TestResourceUsagesMergeSamePass(t *testing.T) {
	ru := NewResourceUsages()
	res := testBuffer(1, 0)

	ru.Record(res, Usage{PassIndex: 0, Access: rgcore.AccessRead, Stages: rgcore.StageVertex})
	ru.Record(res, Usage{PassIndex: 0, Access: rgcore.AccessWrite, Stages: rgcore.StageFragment})

	usages := ru.Usages(res)
	if len(usages) != 1 {
		t.Fatalf("same-pass usages not merged: %d entries", len(usages))
	}
	u := usages[0]
	if u.Access != rgcore.AccessReadWrite {
		t.Errorf("merged access = %v, want ReadWrite", u.Access)
	}
	if u.Stages != rgcore.StageVertex|rgcore.StageFragment {
		t.Errorf("merged stages = %v", u.Stages)
	}
}

func TestResourceUsagesNoMergeAcrossBindingPath(t *testing.T) {
	ru := NewResourceUsages()
	res := testBuffer(1, 0)

	ru.Record(res, Usage{PassIndex: 0, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})
	ru.Record(res, Usage{PassIndex: 0, Access: rgcore.AccessRead, Stages: rgcore.StageCompute, InArgumentBuffer: true})

	if got := len(ru.Usages(res)); got != 2 {
		t.Errorf("argument-buffer usage merged with direct usage: %d entries", got)
	}
}

func TestResourceUsagesFinalize(t *testing.T) {
	ru := NewResourceUsages()
	res := testBuffer(1, 0)
	ru.Record(res, Usage{PassIndex: 0, Access: rgcore.AccessWrite, Stages: rgcore.StageCompute})
	ru.Record(res, Usage{PassIndex: 1, Access: rgcore.AccessRead, Stages: rgcore.StageCompute})

	passes := []PassRecord{
		{Index: 0, Type: rgcore.PassCompute, Active: true, CommandRange: Range{Lo: 0, Hi: 1}},
		{Index: 1, Type: rgcore.PassCompute, Active: false, CommandRange: Range{Lo: 1, Hi: 2}},
	}
	ru.Finalize(passes)

	usages := ru.Usages(res)
	if usages[0].Range != (Range{Lo: 0, Hi: 1}) || !usages[0].Active {
		t.Errorf("usage 0 = %+v", usages[0])
	}
	if usages[1].Active {
		t.Error("usage of inactive pass should be inactive")
	}
	if usages[1].PassType != rgcore.PassCompute {
		t.Errorf("PassType = %v", usages[1].PassType)
	}
}

func TestRangeHelpers(t *testing.T) {
	r := Range{Lo: 2, Hi: 5}
	if !r.Contains(2) || !r.Contains(4) || r.Contains(5) || r.Contains(1) {
		t.Error("Contains misbehaves at boundaries")
	}
	if got := r.union(Range{Lo: 0, Hi: 3}); got != (Range{Lo: 0, Hi: 5}) {
		t.Errorf("union = %+v", got)
	}
}
