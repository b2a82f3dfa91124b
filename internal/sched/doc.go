// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package sched turns a declared frame into an executable schedule.
//
// The pipeline runs in four steps, all on the submitting goroutine:
//
//  1. CommandInfo partitions the pass list into encoders and encoders
//     into command buffers, and assigns signal values.
//  2. The compiler walks every resource's usage list and emits a
//     pre-frame command stream (materialize, dispose, cross-frame waits)
//     and an in-frame command stream (residency, barriers), filling the
//     encoder dependency table as it goes. Pre-frame commands execute
//     immediately against the transient registry.
//  3. The dependency table is reduced (Floyd–Warshall shortest paths,
//     then transitive reduction) and the surviving edges become fence
//     update/wait pairs in the in-frame stream.
//  4. The executor replays the in-frame stream into backend encoders,
//     commits command buffers, and wires completion back into the queue
//     timeline.
package sched
