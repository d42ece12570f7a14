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
	"strconv"
	"strings"
	"sync"

	"github.com/tojiuni/lymphhub/cmd/hubctl/internal/util"
)

// =============================================================================
// Container Runtime Interface
// =============================================================================

// ContainerRuntime abstracts the docker CLI surface hubctl depends on.
//
// # Description
//
// Wraps docker and docker compose invocations behind one interface so
// orchestration code can be tested without a daemon. Every method maps
// to a single CLI call; failures surface as *util.CommandError through
// the underlying ProcessManager.
//
// # Limitations
//
//   - Requires docker with the compose plugin on PATH
//   - No API-socket client; everything goes through the CLI
type ContainerRuntime interface {
	// ComposeUp starts the stack detached, building images as needed.
	ComposeUp(ctx context.Context) error

	// ComposeDown stops and removes the stack's containers.
	ComposeDown(ctx context.Context) error

	// ComposeLogs returns log output for one service, bounded to the
	// last tail lines.
	ComposeLogs(ctx context.Context, service string, tail int) ([]byte, error)

	// ListContainers returns container IDs belonging to the project.
	ListContainers(ctx context.Context) ([]string, error)

	// ContainerState returns the runtime state ("running", "exited",
	// "restarting", ...) of a container by ID or name.
	ContainerState(ctx context.Context, nameOrID string) (string, error)

	// ContainerName resolves a container ID to its name, without the
	// leading slash docker prepends.
	ContainerName(ctx context.Context, id string) (string, error)

	// ContainerHealth returns the healthcheck status ("healthy",
	// "unhealthy", "starting") or the empty string when the container
	// defines no healthcheck.
	ContainerHealth(ctx context.Context, nameOrID string) (string, error)

	// ContainerExists reports whether a container with this name is known
	// to the daemon, running or not.
	ContainerExists(ctx context.Context, name string) (bool, error)

	// Exec runs a command inside a running container and returns stdout.
	Exec(ctx context.Context, container string, cmd ...string) ([]byte, error)

	// NetworkExists reports whether a docker network with this name exists.
	NetworkExists(ctx context.Context, name string) (bool, error)

	// NetworkCreate creates a bridge network with this name.
	NetworkCreate(ctx context.Context, name string) error
}

// =============================================================================
// Docker Implementation
// =============================================================================

// DockerRuntime drives the docker CLI for one compose project.
type DockerRuntime struct {
	proc        ProcessManager
	composeFile string
	project     string
}

// NewDockerRuntime creates a runtime bound to a compose file and project.
func NewDockerRuntime(proc ProcessManager, composeFile, project string) *DockerRuntime {
	return &DockerRuntime{
		proc:        proc,
		composeFile: composeFile,
		project:     project,
	}
}

// composeArgs prefixes args with the file and project flags.
func (r *DockerRuntime) composeArgs(args ...string) []string {
	base := []string{"compose", "-f", r.composeFile, "-p", r.project}
	return append(base, args...)
}

// ComposeUp starts the stack detached, building images as needed.
func (r *DockerRuntime) ComposeUp(ctx context.Context) error {
	upCtx, cancel := context.WithTimeout(ctx, util.DefaultComposeUpTimeout)
	defer cancel()
	_, err := r.proc.Run(upCtx, "docker", r.composeArgs("up", "-d", "--build")...)
	return err
}

// ComposeDown stops and removes the stack's containers.
func (r *DockerRuntime) ComposeDown(ctx context.Context) error {
	_, err := r.proc.Run(ctx, "docker", r.composeArgs("down")...)
	return err
}

// ComposeLogs returns the last tail lines of one service's logs.
func (r *DockerRuntime) ComposeLogs(ctx context.Context, service string, tail int) ([]byte, error) {
	return r.proc.Run(ctx, "docker",
		r.composeArgs("logs", "--no-color", "--tail", strconv.Itoa(tail), service)...)
}

// ListContainers returns container IDs belonging to the project.
// Includes stopped containers so crashed services still show up.
func (r *DockerRuntime) ListContainers(ctx context.Context) ([]string, error) {
	out, err := r.proc.Run(ctx, "docker", r.composeArgs("ps", "-a", "-q")...)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range strings.Split(string(out), "\n") {
		if id := strings.TrimSpace(line); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ContainerState returns the runtime state of a container.
func (r *DockerRuntime) ContainerState(ctx context.Context, nameOrID string) (string, error) {
	out, err := r.proc.Run(ctx, "docker",
		"inspect", "--format", "{{.State.Status}}", nameOrID)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ContainerName resolves a container ID to its name.
func (r *DockerRuntime) ContainerName(ctx context.Context, id string) (string, error) {
	out, err := r.proc.Run(ctx, "docker",
		"inspect", "--format", "{{.Name}}", id)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(strings.TrimSpace(string(out)), "/"), nil
}

// ContainerHealth returns the healthcheck status, or "" without one.
func (r *DockerRuntime) ContainerHealth(ctx context.Context, nameOrID string) (string, error) {
	out, err := r.proc.Run(ctx, "docker",
		"inspect", "--format", "{{with .State.Health}}{{.Status}}{{end}}", nameOrID)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ContainerExists reports whether the daemon knows this container name.
func (r *DockerRuntime) ContainerExists(ctx context.Context, name string) (bool, error) {
	_, err := r.proc.Run(ctx, "docker", "inspect", "--format", "{{.Id}}", name)
	if err != nil {
		// inspect exits 1 for unknown names; other exit codes mean the
		// daemon itself is misbehaving
		if util.ExtractExitCode(err) == 1 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Exec runs a command inside a running container.
func (r *DockerRuntime) Exec(ctx context.Context, container string, cmd ...string) ([]byte, error) {
	if len(cmd) == 0 {
		return nil, fmt.Errorf("exec in %s: empty command", container)
	}
	args := append([]string{"exec", container}, cmd...)
	return r.proc.Run(ctx, "docker", args...)
}

// NetworkExists reports whether a docker network with this name exists.
func (r *DockerRuntime) NetworkExists(ctx context.Context, name string) (bool, error) {
	_, err := r.proc.Run(ctx, "docker", "network", "inspect", name)
	if err != nil {
		if util.ExtractExitCode(err) == 1 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// NetworkCreate creates a bridge network with this name.
func (r *DockerRuntime) NetworkCreate(ctx context.Context, name string) error {
	_, err := r.proc.Run(ctx, "docker", "network", "create", name)
	return err
}

var _ ContainerRuntime = (*DockerRuntime)(nil)

// =============================================================================
// Mock Implementation
// =============================================================================

// MockContainerRuntime is a test double with function fields.
type MockContainerRuntime struct {
	ComposeUpFunc       func(ctx context.Context) error
	ComposeDownFunc     func(ctx context.Context) error
	ComposeLogsFunc     func(ctx context.Context, service string, tail int) ([]byte, error)
	ListContainersFunc  func(ctx context.Context) ([]string, error)
	ContainerStateFunc  func(ctx context.Context, nameOrID string) (string, error)
	ContainerNameFunc   func(ctx context.Context, id string) (string, error)
	ContainerHealthFunc func(ctx context.Context, nameOrID string) (string, error)
	ContainerExistsFunc func(ctx context.Context, name string) (bool, error)
	ExecFunc            func(ctx context.Context, container string, cmd ...string) ([]byte, error)
	NetworkExistsFunc   func(ctx context.Context, name string) (bool, error)
	NetworkCreateFunc   func(ctx context.Context, name string) error

	// Calls records method names in invocation order.
	Calls []string

	mu sync.Mutex
}

func (m *MockContainerRuntime) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, method)
}

func (m *MockContainerRuntime) ComposeUp(ctx context.Context) error {
	m.record("ComposeUp")
	if m.ComposeUpFunc == nil {
		panic("MockContainerRuntime.ComposeUpFunc not set")
	}
	return m.ComposeUpFunc(ctx)
}

func (m *MockContainerRuntime) ComposeDown(ctx context.Context) error {
	m.record("ComposeDown")
	if m.ComposeDownFunc == nil {
		panic("MockContainerRuntime.ComposeDownFunc not set")
	}
	return m.ComposeDownFunc(ctx)
}

func (m *MockContainerRuntime) ComposeLogs(ctx context.Context, service string, tail int) ([]byte, error) {
	m.record("ComposeLogs")
	if m.ComposeLogsFunc == nil {
		panic("MockContainerRuntime.ComposeLogsFunc not set")
	}
	return m.ComposeLogsFunc(ctx, service, tail)
}

func (m *MockContainerRuntime) ListContainers(ctx context.Context) ([]string, error) {
	m.record("ListContainers")
	if m.ListContainersFunc == nil {
		panic("MockContainerRuntime.ListContainersFunc not set")
	}
	return m.ListContainersFunc(ctx)
}

func (m *MockContainerRuntime) ContainerState(ctx context.Context, nameOrID string) (string, error) {
	m.record("ContainerState")
	if m.ContainerStateFunc == nil {
		panic("MockContainerRuntime.ContainerStateFunc not set")
	}
	return m.ContainerStateFunc(ctx, nameOrID)
}

func (m *MockContainerRuntime) ContainerName(ctx context.Context, id string) (string, error) {
	m.record("ContainerName")
	if m.ContainerNameFunc == nil {
		panic("MockContainerRuntime.ContainerNameFunc not set")
	}
	return m.ContainerNameFunc(ctx, id)
}

func (m *MockContainerRuntime) ContainerHealth(ctx context.Context, nameOrID string) (string, error) {
	m.record("ContainerHealth")
	if m.ContainerHealthFunc == nil {
		panic("MockContainerRuntime.ContainerHealthFunc not set")
	}
	return m.ContainerHealthFunc(ctx, nameOrID)
}

func (m *MockContainerRuntime) ContainerExists(ctx context.Context, name string) (bool, error) {
	m.record("ContainerExists")
	if m.ContainerExistsFunc == nil {
		panic("MockContainerRuntime.ContainerExistsFunc not set")
	}
	return m.ContainerExistsFunc(ctx, name)
}

func (m *MockContainerRuntime) Exec(ctx context.Context, container string, cmd ...string) ([]byte, error) {
	m.record("Exec")
	if m.ExecFunc == nil {
		panic("MockContainerRuntime.ExecFunc not set")
	}
	return m.ExecFunc(ctx, container, cmd...)
}

func (m *MockContainerRuntime) NetworkExists(ctx context.Context, name string) (bool, error) {
	m.record("NetworkExists")
	if m.NetworkExistsFunc == nil {
		panic("MockContainerRuntime.NetworkExistsFunc not set")
	}
	return m.NetworkExistsFunc(ctx, name)
}

func (m *MockContainerRuntime) NetworkCreate(ctx context.Context, name string) error {
	m.record("NetworkCreate")
	if m.NetworkCreateFunc == nil {
		panic("MockContainerRuntime.NetworkCreateFunc not set")
	}
	return m.NetworkCreateFunc(ctx, name)
}

var _ ContainerRuntime = (*MockContainerRuntime)(nil)
