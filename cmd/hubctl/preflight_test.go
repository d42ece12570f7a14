// Copyright (C) 2025 LymphHub contributors (ops@lyckabc.xyz)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tojiuni/lymphhub/cmd/hubctl/config"
	"github.com/tojiuni/lymphhub/pkg/logging"
)

// quietLog avoids stderr noise in test output.
func quietLog() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError, Quiet: true})
}

// preflightFixture wires a checker whose collaborators all succeed.
type preflightFixture struct {
	cfg     *config.HubConfig
	env     *config.Env
	proc    *MockProcessManager
	runtime *MockContainerRuntime
	secrets *MockSecretProvisioner
}

func newPreflightFixture(t *testing.T) *preflightFixture {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Project.AutheliaConfig = filepath.Join(dir, "configuration.yml")
	cfg.Project.UsersDatabase = filepath.Join(dir, "users_database.yml")
	cfg.Project.SecretsDir = filepath.Join(dir, "secrets")
	require.NoError(t, os.WriteFile(cfg.Project.AutheliaConfig,
		[]byte("server:\n  address: tcp://0.0.0.0:9091\n"), 0o600))
	require.NoError(t, os.WriteFile(cfg.Project.UsersDatabase,
		[]byte("users:\n  toji:\n    password: $argon2id$v=19$properhash\n"), 0o600))

	return &preflightFixture{
		cfg: &cfg,
		env: &config.Env{
			Domain:      "lyckabc.xyz",
			NetworkName: "lymphhub",
			DBPort:      5432,
			FileFound:   true,
		},
		proc: &MockProcessManager{
			RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
				return []byte("ok"), nil
			},
		},
		runtime: &MockContainerRuntime{
			NetworkExistsFunc: func(ctx context.Context, name string) (bool, error) {
				return true, nil
			},
			NetworkCreateFunc: func(ctx context.Context, name string) error {
				return nil
			},
		},
		secrets: &MockSecretProvisioner{
			EnsureSecretsFunc: func(ctx context.Context) (*ProvisionReport, error) {
				return &ProvisionReport{ID: "test"}, nil
			},
		},
	}
}

func (f *preflightFixture) checker() *DefaultPreflightChecker {
	return NewDefaultPreflightChecker(f.cfg, f.env, f.proc, f.runtime, f.secrets, quietLog())
}

func TestPreflight_CleanRun(t *testing.T) {
	f := newPreflightFixture(t)

	report, err := f.checker().Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, report.Findings)
	assert.False(t, report.NetworkCreated)
	assert.Equal(t, 1, f.secrets.Calls)
}

func TestPreflight_MissingEnvFileIsFatal(t *testing.T) {
	f := newPreflightFixture(t)
	f.env.FileFound = false

	_, err := f.checker().Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEnvFileMissing)
	assert.Zero(t, f.secrets.Calls, "secrets must not be provisioned after a fatal check")
}

func TestPreflight_MissingNetworkNameIsFatal(t *testing.T) {
	f := newPreflightFixture(t)
	f.env.NetworkName = "  "

	_, err := f.checker().Run(context.Background())
	assert.ErrorIs(t, err, ErrNetworkNameMissing)
}

func TestPreflight_DockerMissingIsFatal(t *testing.T) {
	f := newPreflightFixture(t)
	f.proc.RunFunc = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("executable file not found")
	}

	_, err := f.checker().Run(context.Background())
	assert.ErrorIs(t, err, ErrDockerUnavailable)
}

func TestPreflight_CreatesMissingNetwork(t *testing.T) {
	f := newPreflightFixture(t)
	f.runtime.NetworkExistsFunc = func(ctx context.Context, name string) (bool, error) {
		return false, nil
	}
	created := ""
	f.runtime.NetworkCreateFunc = func(ctx context.Context, name string) error {
		created = name
		return nil
	}

	report, err := f.checker().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "lymphhub", created)
	assert.True(t, report.NetworkCreated)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, SeverityInfo, report.Findings[0].Severity)
}

func TestPreflight_NetworkCreateFailureIsFatal(t *testing.T) {
	f := newPreflightFixture(t)
	f.runtime.NetworkExistsFunc = func(ctx context.Context, name string) (bool, error) {
		return false, nil
	}
	f.runtime.NetworkCreateFunc = func(ctx context.Context, name string) error {
		return errors.New("permission denied")
	}

	_, err := f.checker().Run(context.Background())
	assert.ErrorIs(t, err, ErrNetworkCreateFailed)
}

func TestPreflight_ExternalDBWithoutPasswordWarns(t *testing.T) {
	f := newPreflightFixture(t)
	f.env.DBHost = "db.internal"
	f.env.DBPassword = ""

	report, err := f.checker().Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Findings, 1)
	assert.Equal(t, SeverityWarning, report.Findings[0].Severity)
	assert.Equal(t, "storage", report.Findings[0].Component)
}

func TestPreflight_PlaceholderInUserDatabaseWarns(t *testing.T) {
	f := newPreflightFixture(t)
	require.NoError(t, os.WriteFile(f.cfg.Project.UsersDatabase,
		[]byte("users:\n  toji:\n    password: CHANGE_ME_GENERATE_HASH\n"), 0o600))

	report, err := f.checker().Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Findings, 1)
	assert.Contains(t, report.Findings[0].Message, "CHANGE_ME")
}

func TestPreflight_MissingAuthConfigWarnsButPasses(t *testing.T) {
	f := newPreflightFixture(t)
	require.NoError(t, os.Remove(f.cfg.Project.AutheliaConfig))

	report, err := f.checker().Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Findings, 1)
	assert.Equal(t, SeverityWarning, report.Findings[0].Severity)
	assert.Equal(t, "auth-broker", report.Findings[0].Component)
}

func TestPreflight_SecretFailureIsFatal(t *testing.T) {
	f := newPreflightFixture(t)
	f.secrets.EnsureSecretsFunc = func(ctx context.Context) (*ProvisionReport, error) {
		return nil, ErrSecretsDirUnavailable
	}

	_, err := f.checker().Run(context.Background())
	assert.ErrorIs(t, err, ErrSecretsDirUnavailable)
}

func TestPreflight_SecretWarningsPropagate(t *testing.T) {
	f := newPreflightFixture(t)
	f.secrets.EnsureSecretsFunc = func(ctx context.Context) (*ProvisionReport, error) {
		return &ProvisionReport{
			Created:  2,
			Warnings: []string{"STORAGE_PASSWORD was generated"},
		}, nil
	}

	report, err := f.checker().Run(context.Background())
	require.NoError(t, err)

	var severities []Severity
	for _, finding := range report.Findings {
		severities = append(severities, finding.Severity)
	}
	assert.Contains(t, severities, SeverityWarning)
	assert.Contains(t, severities, SeverityInfo)
}
