// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rendergraph schedules declared GPU frames onto an explicit
// graphics API.
//
// A frame is a list of passes (draw, compute, blit, external, cpu), each
// declaring how it accesses logical resources. On submission the
// scheduler partitions passes into encoders and command buffers,
// materializes transient resources just in time (recycling aliased
// memory when safe), inserts the minimal fences and memory barriers the
// declared accesses require, and tracks queue command indices so
// persistent resources stay safe across frames.
//
// The package deliberately stops at scheduling: shader compilation,
// image codecs, windowing, and rendering algorithms live with the host
// application. Backends adapt the scheduler to a concrete API through
// the contracts in rgcore; backend/wgpu drives gogpu/wgpu, backend/null
// records schedules for tests and dry runs.
//
// A minimal frame:
//
//	backend := null.New()
//	s, _ := rendergraph.New(backend)
//	defer s.Close()
//
//	frame := s.Frame()
//	data := frame.NewBuffer(rgcore.BufferDescriptor{Length: 4096})
//	fill := frame.AddComputePass("fill")
//	fill.Writes(data.Resource, rgcore.StageCompute)
//	use := frame.AddComputePass("use")
//	use.Reads(data.Resource, rgcore.StageCompute)
//
//	s.Submit(frame, func(err error) { ... })
package rendergraph
