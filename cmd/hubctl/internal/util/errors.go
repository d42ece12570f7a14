// Copyright (C) 2025 LymphHub contributors (ops@lyckabc.xyz)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package util

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Command Error Type
// =============================================================================

// CommandError wraps a command execution failure with stderr context.
//
// # Description
//
// Carries the command that failed, its exit code, and trimmed stderr
// output so callers can build remediation messages without re-running
// the command. Implements the error interface and supports unwrapping
// via errors.Is/As.
//
// # Example
//
//	err := NewCommandError("docker compose up", 1, "network not found", raw)
//	fmt.Println(err.Error()) // "docker compose up (exit 1): network not found"
//
//	var cmdErr *CommandError
//	if errors.As(err, &cmdErr) {
//	    fmt.Println(cmdErr.ExitCode)
//	}
//
// # Limitations
//
//   - Stderr is captured as a single string, not streamed
type CommandError struct {
	// Command is the command that was executed.
	Command string

	// ExitCode is the process exit code (-1 if unknown).
	ExitCode int

	// Stderr contains the standard error output (trimmed).
	Stderr string

	// Wrapped is the underlying error (may be nil).
	Wrapped error
}

// Error renders the failure as "command (exit N): stderr".
func (e *CommandError) Error() string {
	var b strings.Builder
	b.WriteString(e.Command)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if e.Stderr != "" {
		b.WriteString(": ")
		b.WriteString(e.Stderr)
	} else if e.Wrapped != nil {
		b.WriteString(": ")
		b.WriteString(e.Wrapped.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// HasStderr reports whether any stderr output was captured.
func (e *CommandError) HasStderr() bool {
	return strings.TrimSpace(e.Stderr) != ""
}

var _ error = (*CommandError)(nil)

// NewCommandError builds a CommandError with trimmed stderr.
//
// # Inputs
//
//   - cmd: The command string that was executed
//   - exitCode: Process exit code, or -1 if the process never ran
//   - stderr: Raw stderr output (will be trimmed)
//   - wrapped: Underlying error, may be nil
func NewCommandError(cmd string, exitCode int, stderr string, wrapped error) *CommandError {
	return &CommandError{
		Command:  cmd,
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(stderr),
		Wrapped:  wrapped,
	}
}

// ExtractStderr pulls captured stderr out of an error chain.
//
// Returns the empty string when the chain contains no CommandError
// or the CommandError carries no stderr.
func ExtractStderr(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Stderr
	}
	return ""
}

// ExtractExitCode pulls the process exit code out of an error chain.
//
// Returns -1 when the chain contains no CommandError.
func ExtractExitCode(err error) int {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	return -1
}
