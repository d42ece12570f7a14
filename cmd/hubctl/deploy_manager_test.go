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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tojiuni/lymphhub/cmd/hubctl/config"
)

// deployFixture bundles a fully mocked manager and its collaborators.
type deployFixture struct {
	manager     *DefaultDeployManager
	runtime     *MockContainerRuntime
	preflight   *MockPreflightChecker
	waiter      *MockReadinessWaiter
	probers     []*MockHealthProber
	storage     *MockStorageChecker
	validator   *MockPostDeployValidator
	diagnostics *MockDiagnosticReporter
	out         *bytes.Buffer
}

func newDeployFixture(t *testing.T) *deployFixture {
	t.Helper()

	cfgVal := config.DefaultConfig()
	cfg := &cfgVal
	dir := t.TempDir()
	cfg.Project.AutheliaConfig = filepath.Join(dir, "configuration.yml")
	require.NoError(t, os.WriteFile(cfg.Project.AutheliaConfig,
		[]byte("storage:\n  postgres:\n    address: 'tcp://postgres:5432'\n"), 0o644))

	env := &config.Env{
		NetworkName: "lymphhub",
		OverlayUser: "toji",
		FileFound:   true,
	}

	f := &deployFixture{
		runtime: &MockContainerRuntime{
			ComposeUpFunc:   func(ctx context.Context) error { return nil },
			ComposeDownFunc: func(ctx context.Context) error { return nil },
		},
		preflight: &MockPreflightChecker{
			RunFunc: func(ctx context.Context) (*PreflightReport, error) {
				return &PreflightReport{}, nil
			},
		},
		waiter: &MockReadinessWaiter{
			WaitForRunningFunc: func(ctx context.Context, opts WaitOptions) (*ReadinessResult, error) {
				return &ReadinessResult{Converged: true, Ticks: 2}, nil
			},
		},
		storage: &MockStorageChecker{
			Result: &StorageCheckResult{Reachable: true, Tier: 1, Message: "reachable from authelia"},
		},
		validator:   &MockPostDeployValidator{},
		diagnostics: &MockDiagnosticReporter{},
		out:         &bytes.Buffer{},
	}

	for _, name := range []string{"traefik", "authelia", "headscale"} {
		f.probers = append(f.probers, &MockHealthProber{
			ServiceName: name,
			Result:      &HealthResult{Service: name, State: StateHealthy, HTTPStatus: 200, Critical: true},
		})
	}

	probers := make([]HealthProber, len(f.probers))
	for i, p := range f.probers {
		probers[i] = p
	}

	f.manager = NewDefaultDeployManager(
		cfg, env, f.runtime, f.preflight, f.waiter,
		probers, f.storage, f.validator, f.diagnostics, quietLog(),
	)
	f.manager.SetOutput(f.out)
	return f
}

func TestDeploy_HappyPath(t *testing.T) {
	f := newDeployFixture(t)

	result, err := f.manager.Deploy(context.Background(), DeployOptions{})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.RunID)
	assert.True(t, result.Readiness.Converged)
	assert.Len(t, result.Health, 3)
	require.NotNil(t, result.Storage)
	assert.True(t, result.Storage.Reachable)

	assert.Equal(t, 1, f.preflight.Calls)
	assert.Contains(t, f.runtime.Calls, "ComposeUp")
	assert.Equal(t, 1, f.waiter.Calls)
	for _, p := range f.probers {
		assert.Equal(t, 1, p.Calls)
	}
	assert.Equal(t, []string{"ValidateAuthConfig", "EnsureOverlayUser"}, f.validator.Calls)
	assert.Empty(t, f.diagnostics.Dumps, "no diagnostics on a clean run")

	assert.Contains(t, f.out.String(), "deploy verified")
	assert.Contains(t, f.out.String(), result.RunID)
}

func TestDeploy_PreflightFailureAborts(t *testing.T) {
	f := newDeployFixture(t)
	f.preflight.RunFunc = func(ctx context.Context) (*PreflightReport, error) {
		return nil, errors.New("docker not found")
	}

	result, err := f.manager.Deploy(context.Background(), DeployOptions{})
	require.ErrorIs(t, err, ErrPreflightFailed)
	assert.Nil(t, result)

	assert.NotContains(t, f.runtime.Calls, "ComposeUp")
	require.Len(t, f.diagnostics.Dumps, 1)
	assert.Contains(t, f.diagnostics.Dumps[0], "traefik")
	assert.Contains(t, f.out.String(), "diagnostics after preflight failure")
}

func TestDeploy_LaunchFailureAborts(t *testing.T) {
	f := newDeployFixture(t)
	f.runtime.ComposeUpFunc = func(ctx context.Context) error {
		return errors.New("image build failed")
	}

	_, err := f.manager.Deploy(context.Background(), DeployOptions{})
	require.ErrorIs(t, err, ErrLaunchFailed)

	assert.Equal(t, 0, f.waiter.Calls)
	require.Len(t, f.diagnostics.Dumps, 1)
	assert.Contains(t, f.out.String(), "diagnostics after launch failure")
}

func TestDeploy_ReadinessTimeoutAborts(t *testing.T) {
	f := newDeployFixture(t)
	f.waiter.WaitForRunningFunc = func(ctx context.Context, opts WaitOptions) (*ReadinessResult, error) {
		return &ReadinessResult{Ticks: 24, LastSnapshot: ReadinessSnapshot{"postgres": "restarting"}},
			ErrReadinessTimeout
	}

	result, err := f.manager.Deploy(context.Background(), DeployOptions{})
	require.ErrorIs(t, err, ErrReadinessTimeout)
	assert.Nil(t, result)

	for _, p := range f.probers {
		assert.Equal(t, 0, p.Calls, "probes must not run before containers converge")
	}
	require.Len(t, f.diagnostics.Dumps, 1)
}

func TestDeploy_CriticalUnreachableCompletesWithFailure(t *testing.T) {
	f := newDeployFixture(t)
	f.probers[1].Result = &HealthResult{
		Service:  "authelia",
		State:    StateUnreachable,
		Critical: true,
		Message:  "connection refused",
	}

	result, err := f.manager.Deploy(context.Background(), DeployOptions{})
	require.NoError(t, err, "check failures complete the run rather than abort it")

	assert.False(t, result.Success)
	assert.Equal(t, []string{"authelia"}, result.failedCritical())

	// post-deploy still runs so the operator sees every problem at once
	assert.Equal(t, []string{"ValidateAuthConfig", "EnsureOverlayUser"}, f.validator.Calls)
	require.Len(t, f.diagnostics.Dumps, 1)
	assert.Contains(t, f.out.String(), "deploy completed with failures")
}

func TestDeploy_DegradedCriticalStillSucceeds(t *testing.T) {
	f := newDeployFixture(t)
	f.probers[1].Result = &HealthResult{
		Service:    "authelia",
		State:      StateDegraded,
		HTTPStatus: 401,
		Critical:   true,
	}

	result, err := f.manager.Deploy(context.Background(), DeployOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, f.diagnostics.Dumps)
}

func TestDeploy_StorageUnreachableFailsRun(t *testing.T) {
	f := newDeployFixture(t)
	f.storage.Result = &StorageCheckResult{
		Reachable:   false,
		Message:     "postgres:5432 unreachable from every tier",
		Remediation: []string{"docker network inspect lymphhub"},
	}

	result, err := f.manager.Deploy(context.Background(), DeployOptions{})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, f.out.String(), "try: docker network inspect lymphhub")
}

func TestDeploy_SkipHealthChecks(t *testing.T) {
	f := newDeployFixture(t)

	result, err := f.manager.Deploy(context.Background(), DeployOptions{SkipHealthChecks: true})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.Health)
	assert.Nil(t, result.Storage)
	assert.Equal(t, 0, f.storage.Calls)
	for _, p := range f.probers {
		assert.Equal(t, 0, p.Calls)
	}
}

func TestDeploy_SkipPostDeploy(t *testing.T) {
	f := newDeployFixture(t)

	_, err := f.manager.Deploy(context.Background(), DeployOptions{SkipPostDeploy: true})
	require.NoError(t, err)
	assert.Empty(t, f.validator.Calls)
}

func TestDeploy_OptionsOverrideReadinessBudget(t *testing.T) {
	f := newDeployFixture(t)
	var seen WaitOptions
	f.waiter.WaitForRunningFunc = func(ctx context.Context, opts WaitOptions) (*ReadinessResult, error) {
		seen = opts
		return &ReadinessResult{Converged: true, Ticks: 1}, nil
	}

	_, err := f.manager.Deploy(context.Background(), DeployOptions{
		MaxWait:      30 * time.Second,
		PollInterval: 2 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, seen.MaxWait)
	assert.Equal(t, 2*time.Second, seen.PollInterval)
}

func TestDeploy_ConfigDrivesDefaultReadinessBudget(t *testing.T) {
	f := newDeployFixture(t)
	var seen WaitOptions
	f.waiter.WaitForRunningFunc = func(ctx context.Context, opts WaitOptions) (*ReadinessResult, error) {
		seen = opts
		return &ReadinessResult{Converged: true, Ticks: 1}, nil
	}

	_, err := f.manager.Deploy(context.Background(), DeployOptions{})
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, seen.MaxWait)
	assert.Equal(t, 5*time.Second, seen.PollInterval)
}

func TestDeploy_MissingAuthConfigSkipsStorageCheck(t *testing.T) {
	f := newDeployFixture(t)
	f.manager.cfg.Project.AutheliaConfig = filepath.Join(t.TempDir(), "absent.yml")

	result, err := f.manager.Deploy(context.Background(), DeployOptions{})
	require.NoError(t, err)

	require.NotNil(t, result.Storage)
	assert.True(t, result.Storage.Skipped)
	assert.Equal(t, 0, f.storage.Calls)
	assert.True(t, result.Success, "a skipped storage check never fails the run")
}

func TestDeploy_WarningFindingsInSummary(t *testing.T) {
	f := newDeployFixture(t)
	f.preflight.RunFunc = func(ctx context.Context) (*PreflightReport, error) {
		return &PreflightReport{Findings: []Finding{{
			Severity:  SeverityWarning,
			Component: "auth broker",
			Message:   "users database still contains the placeholder password",
		}}}, nil
	}

	result, err := f.manager.Deploy(context.Background(), DeployOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success, "warnings never fail the run")
	assert.Contains(t, f.out.String(), "placeholder password")
}

func TestDeploy_NilDependencyRejected(t *testing.T) {
	f := newDeployFixture(t)
	f.manager.waiter = nil

	_, err := f.manager.Deploy(context.Background(), DeployOptions{})
	require.ErrorIs(t, err, ErrNilDependency)
	assert.Equal(t, 0, f.preflight.Calls)
}

func TestDeploy_PanicRecoveredAsError(t *testing.T) {
	f := newDeployFixture(t)
	f.preflight.RunFunc = func(ctx context.Context) (*PreflightReport, error) {
		panic("boom")
	}

	_, err := f.manager.Deploy(context.Background(), DeployOptions{})
	require.ErrorIs(t, err, ErrPanicRecovered)
	assert.Contains(t, err.Error(), "boom")
}

// TestDeploy_FreshEnvironmentEndToEnd wires the real preflight checker
// and secret provisioner into the manager: no secrets directory, the
// external network absent, everything else healthy.
func TestDeploy_FreshEnvironmentEndToEnd(t *testing.T) {
	dir := t.TempDir()

	cfgVal := config.DefaultConfig()
	cfg := &cfgVal
	cfg.Project.SecretsDir = filepath.Join(dir, "secrets")
	cfg.Project.AutheliaConfig = filepath.Join(dir, "configuration.yml")
	cfg.Project.UsersDatabase = filepath.Join(dir, "users_database.yml")
	require.NoError(t, os.WriteFile(cfg.Project.AutheliaConfig, []byte(
		"server:\n  address: tcp://0.0.0.0:9091\n"+
			"storage:\n  postgres:\n    address: tcp://postgres:5432\n"), 0o600))
	require.NoError(t, os.WriteFile(cfg.Project.UsersDatabase,
		[]byte("users:\n  toji:\n    password: $argon2id$v=19$hash\n"), 0o600))

	env := &config.Env{
		NetworkName: "lymphhub",
		DBPort:      5432,
		OverlayUser: "toji",
		FileFound:   true,
	}

	networkCreated := false
	runtime := &MockContainerRuntime{
		ComposeUpFunc: func(ctx context.Context) error { return nil },
		NetworkExistsFunc: func(ctx context.Context, name string) (bool, error) {
			return networkCreated, nil
		},
		NetworkCreateFunc: func(ctx context.Context, name string) error {
			networkCreated = true
			return nil
		},
	}
	proc := &MockProcessManager{
		RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte("ok"), nil
		},
	}
	secrets := NewDefaultSecretProvisioner(cfg.Project.SecretsDir, "")
	preflight := NewDefaultPreflightChecker(cfg, env, proc, runtime, secrets, quietLog())
	waiter := &MockReadinessWaiter{
		WaitForRunningFunc: func(ctx context.Context, opts WaitOptions) (*ReadinessResult, error) {
			return &ReadinessResult{Converged: true, Ticks: 3}, nil
		},
	}
	var probers []HealthProber
	for _, name := range []string{"traefik", "authelia", "headscale"} {
		probers = append(probers, &MockHealthProber{
			ServiceName: name,
			Result:      &HealthResult{Service: name, State: StateHealthy, HTTPStatus: 200, Critical: true},
		})
	}
	storage := &MockStorageChecker{
		Result: &StorageCheckResult{Reachable: true, Tier: 1, Message: "reachable from authelia"},
	}

	manager := NewDefaultDeployManager(cfg, env, runtime, preflight, waiter,
		probers, storage, &MockPostDeployValidator{}, &MockDiagnosticReporter{}, quietLog())
	manager.SetOutput(&bytes.Buffer{})

	result, err := manager.Deploy(context.Background(), DeployOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)

	assert.True(t, networkCreated, "preflight must create the absent network")
	for _, name := range KnownSecrets {
		data, err := os.ReadFile(filepath.Join(cfg.Project.SecretsDir, name))
		require.NoError(t, err, name)
		assert.NotEmpty(t, data)
	}

	var warnings []string
	for _, finding := range result.Findings {
		if finding.Severity == SeverityWarning {
			warnings = append(warnings, finding.Message)
		}
	}
	require.Len(t, warnings, 1, "a generated storage password must warn")
	assert.Contains(t, warnings[0], "STORAGE_PASSWORD")
}

// TestDeploy_BrokerNeverOpensPortEndToEnd covers the failing scenario:
// the auth broker's port never answers, the run completes with logs
// dumped and Success=false while every other check still executes.
func TestDeploy_BrokerNeverOpensPortEndToEnd(t *testing.T) {
	f := newDeployFixture(t)
	f.probers[1].Result = &HealthResult{
		Service:  "authelia",
		State:    StateUnreachable,
		Critical: true,
		Message:  "no response: dial tcp 127.0.0.1:9091: connection refused",
	}

	result, err := f.manager.Deploy(context.Background(), DeployOptions{})
	require.NoError(t, err)
	assert.False(t, result.Success)

	// remaining probes and the storage check still ran
	assert.Equal(t, 1, f.probers[0].Calls)
	assert.Equal(t, 1, f.probers[2].Calls)
	assert.Equal(t, 1, f.storage.Calls)
	assert.Equal(t, []string{"ValidateAuthConfig", "EnsureOverlayUser"}, f.validator.Calls)

	require.Len(t, f.diagnostics.Dumps, 1)
	assert.Contains(t, f.diagnostics.Dumps[0], "authelia")
}

func TestDown_DelegatesToRuntime(t *testing.T) {
	f := newDeployFixture(t)

	require.NoError(t, f.manager.Down(context.Background()))
	assert.Contains(t, f.runtime.Calls, "ComposeDown")
}

func TestDown_NilRuntimeRejected(t *testing.T) {
	m := &DefaultDeployManager{}
	err := m.Down(context.Background())
	assert.ErrorIs(t, err, ErrNilDependency)
}
