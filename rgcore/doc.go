// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rgcore defines the value types shared between the rendergraph
// scheduler and its backends: resource handles, access types, pipeline
// stages, descriptors, queue timelines, and the backend adapter contracts.
//
// The package is intentionally free of scheduling logic. Backends import
// rgcore without pulling in the compiler; the root rendergraph package and
// internal/sched build on it.
package rgcore
