// Copyright (C) 2025 LymphHub contributors (ops@lyckabc.xyz)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tojiuni/lymphhub/cmd/hubctl/internal/util"
	"github.com/tojiuni/lymphhub/pkg/logging"
)

// =============================================================================
// Diagnostic Reporter
// =============================================================================

// DiagnosticReporter captures container log tails on failure.
//
// # Description
//
// Best effort by design: a service whose container never started, or
// whose logs cannot be read, is skipped with a note rather than
// failing the dump. The dump is the operator's first view of what
// went wrong, so it must never be the thing that breaks.
type DiagnosticReporter interface {
	// DumpLogs writes each service's recent log lines to w.
	DumpLogs(ctx context.Context, w io.Writer, services []string)
}

// DefaultDiagnosticReporter reads logs through the container runtime.
type DefaultDiagnosticReporter struct {
	runtime ContainerRuntime
	tail    int
	log     *logging.Logger
}

// NewDefaultDiagnosticReporter creates a reporter keeping tail lines
// per service.
func NewDefaultDiagnosticReporter(runtime ContainerRuntime, tail int, log *logging.Logger) *DefaultDiagnosticReporter {
	if tail <= 0 {
		tail = 20
	}
	return &DefaultDiagnosticReporter{runtime: runtime, tail: tail, log: log}
}

// DumpLogs writes a bounded log section per service.
func (d *DefaultDiagnosticReporter) DumpLogs(ctx context.Context, w io.Writer, services []string) {
	for _, service := range services {
		fmt.Fprintf(w, "---- %s (last %d lines) ----\n", service, d.tail)

		exists, err := d.runtime.ContainerExists(ctx, service)
		if err != nil {
			fmt.Fprintf(w, "  (cannot inspect container: %v)\n", err)
			continue
		}
		if !exists {
			fmt.Fprintf(w, "  (container never started)\n")
			continue
		}

		out, err := d.runtime.ComposeLogs(ctx, service, d.tail)
		if err != nil {
			fmt.Fprintf(w, "  (cannot read logs: %v)\n", err)
			d.log.Warn("log capture failed", "service", service, "error", err)
			continue
		}

		for _, line := range tailLines(string(out), d.tail) {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

// tailLines bounds text to its last n non-empty-trailing lines. The
// compose CLI already honors --tail, but older versions over-deliver
// when a service restarted, so the bound is enforced here too.
func tailLines(text string, n int) []string {
	buffer := util.NewRingBuffer[string](n)
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		buffer.Push(line)
	}
	return buffer.ToSlice()
}

var _ DiagnosticReporter = (*DefaultDiagnosticReporter)(nil)

// =============================================================================
// Mock Implementation
// =============================================================================

// MockDiagnosticReporter is a test double recording dump requests.
type MockDiagnosticReporter struct {
	DumpLogsFunc func(ctx context.Context, w io.Writer, services []string)

	// Dumps records the service lists passed to DumpLogs.
	Dumps [][]string
}

func (m *MockDiagnosticReporter) DumpLogs(ctx context.Context, w io.Writer, services []string) {
	m.Dumps = append(m.Dumps, services)
	if m.DumpLogsFunc != nil {
		m.DumpLogsFunc(ctx, w, services)
	}
}

var _ DiagnosticReporter = (*MockDiagnosticReporter)(nil)
