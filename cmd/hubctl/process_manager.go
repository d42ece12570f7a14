// Copyright (C) 2025 LymphHub contributors (ops@lyckabc.xyz)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"

	"github.com/tojiuni/lymphhub/cmd/hubctl/internal/util"
)

// =============================================================================
// Process Manager Interface
// =============================================================================

// ProcessManager abstracts process execution for testability.
type ProcessManager interface {
	// Run executes a command synchronously and returns its stdout.
	//
	// # Description
	//
	// Executes the specified command with arguments and waits for
	// completion. On failure the returned error is a *util.CommandError
	// carrying the exit code and trimmed stderr.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - name: The executable name or path
	//   - args: Command arguments (variadic)
	//
	// # Outputs
	//
	//   - []byte: Stdout output
	//   - error: Non-nil if the command fails or is cancelled
	//
	// # Examples
	//
	//   output, err := pm.Run(ctx, "docker", "compose", "ps", "-q")
	//   if err != nil {
	//       return fmt.Errorf("failed to list containers: %w", err)
	//   }
	//
	// # Limitations
	//
	//   - Large output is buffered entirely in memory
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunWithInput executes a command with data piped to stdin.
	//
	// # Description
	//
	// Like Run, but writes input to the process's stdin first. Useful
	// for commands that read configuration or secrets from stdin.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - name: The executable name or path
	//   - input: Data to write to stdin
	//   - args: Command arguments (variadic)
	//
	// # Outputs
	//
	//   - []byte: Stdout output
	//   - error: Non-nil if the command fails, stdin write fails, or cancelled
	RunWithInput(ctx context.Context, name string, input []byte, args ...string) ([]byte, error)
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultProcessManager executes real processes using os/exec.
type DefaultProcessManager struct{}

// NewDefaultProcessManager creates a ProcessManager backed by os/exec.
func NewDefaultProcessManager() *DefaultProcessManager {
	return &DefaultProcessManager{}
}

// Run executes a command synchronously and returns its stdout.
func (pm *DefaultProcessManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return pm.run(ctx, name, nil, args)
}

// RunWithInput executes a command with data piped to stdin.
func (pm *DefaultProcessManager) RunWithInput(ctx context.Context, name string, input []byte, args ...string) ([]byte, error) {
	return pm.run(ctx, name, input, args)
}

// run is the shared execution path behind Run and RunWithInput.
func (pm *DefaultProcessManager) run(ctx context.Context, name string, input []byte, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if input != nil {
		cmd.Stdin = bytes.NewReader(input)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		display := name
		if len(args) > 0 {
			display = name + " " + strings.Join(args, " ")
		}
		return nil, util.NewCommandError(display, exitCode, stderr.String(), err)
	}

	return stdout.Bytes(), nil
}

var _ ProcessManager = (*DefaultProcessManager)(nil)

// =============================================================================
// Mock Implementation
// =============================================================================

// MockProcessManager is a test double with function fields.
type MockProcessManager struct {
	// RunFunc is called when Run is invoked
	RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunWithInputFunc is called when RunWithInput is invoked
	RunWithInputFunc func(ctx context.Context, name string, input []byte, args ...string) ([]byte, error)

	// Calls records all method invocations for verification
	Calls []ProcessManagerCall

	// mu protects Calls for concurrent access
	mu sync.Mutex
}

// ProcessManagerCall records a single method invocation.
type ProcessManagerCall struct {
	Method string
	Name   string
	Args   []string
	Input  []byte
}

// Run delegates to RunFunc and records the call.
func (m *MockProcessManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, ProcessManagerCall{
		Method: "Run",
		Name:   name,
		Args:   args,
	})
	m.mu.Unlock()
	if m.RunFunc == nil {
		panic("MockProcessManager.RunFunc not set")
	}
	return m.RunFunc(ctx, name, args...)
}

// RunWithInput delegates to RunWithInputFunc and records the call.
func (m *MockProcessManager) RunWithInput(ctx context.Context, name string, input []byte, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, ProcessManagerCall{
		Method: "RunWithInput",
		Name:   name,
		Args:   args,
		Input:  input,
	})
	m.mu.Unlock()
	if m.RunWithInputFunc == nil {
		panic("MockProcessManager.RunWithInputFunc not set")
	}
	return m.RunWithInputFunc(ctx, name, input, args...)
}

// Reset clears all recorded calls.
func (m *MockProcessManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// GetCalls returns a copy of recorded calls.
func (m *MockProcessManager) GetCalls() []ProcessManagerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]ProcessManagerCall, len(m.Calls))
	copy(calls, m.Calls)
	return calls
}

var _ ProcessManager = (*MockProcessManager)(nil)
