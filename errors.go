// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import "errors"

// Scheduler errors.
var (
	// ErrNilBackend is returned when creating a scheduler without a
	// backend.
	ErrNilBackend = errors.New("rendergraph: backend is nil")

	// ErrClosed is returned when submitting to a closed scheduler.
	ErrClosed = errors.New("rendergraph: scheduler is closed")

	// ErrFrameSubmitted is returned when a frame is submitted or
	// modified after submission.
	ErrFrameSubmitted = errors.New("rendergraph: frame already submitted")
)
