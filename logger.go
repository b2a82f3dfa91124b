// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/rendergraph/internal/sched"
)

// nopHandler drops every record. Enabled reports false, so callers
// never even format messages while logging is off.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr holds the active logger behind an atomic pointer so
// SetLogger can race freely with logging goroutines.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// slogger returns the root package's logger; the scheduler internals
// carry their own copy via sched.SetLogger.
func slogger() *slog.Logger { return loggerPtr.Load() }

// SetLogger installs the logger used by rendergraph and its
// sub-packages; the scheduler is silent until one is set. A nil logger
// restores silence. Safe to call from any goroutine at any time.
//
// Debug carries per-frame compiler diagnostics (encoder counts, command
// stream sizes, fence counts), Info scheduler lifecycle, and Warn
// skipped encoders and drawable loss.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	sched.SetLogger(l)
}
