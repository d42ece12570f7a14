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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(exec func(ctx context.Context, container string, cmd ...string) ([]byte, error)) *DefaultPostDeployValidator {
	runtime := &MockContainerRuntime{ExecFunc: exec}
	return NewDefaultPostDeployValidator(runtime, "authelia", "headscale", "/config/configuration.yml")
}

func TestValidateAuthConfig_Passes(t *testing.T) {
	v := newValidator(func(ctx context.Context, container string, cmd ...string) ([]byte, error) {
		assert.Equal(t, "authelia", container)
		assert.Equal(t, []string{"authelia", "validate-config", "--config", "/config/configuration.yml"}, cmd)
		return []byte("Configuration parsed and loaded successfully without errors."), nil
	})

	assert.Nil(t, v.ValidateAuthConfig(context.Background()))
}

func TestValidateAuthConfig_ExecFailureWarns(t *testing.T) {
	v := newValidator(func(ctx context.Context, container string, cmd ...string) ([]byte, error) {
		return nil, errors.New("container not running")
	})

	finding := v.ValidateAuthConfig(context.Background())
	require.NotNil(t, finding)
	assert.Equal(t, SeverityWarning, finding.Severity)
	assert.Equal(t, "auth-broker", finding.Component)
}

func TestValidateAuthConfig_ReportedErrorsWarn(t *testing.T) {
	v := newValidator(func(ctx context.Context, container string, cmd ...string) ([]byte, error) {
		return []byte("Configuration: errors occurred while loading"), nil
	})

	finding := v.ValidateAuthConfig(context.Background())
	require.NotNil(t, finding)
	assert.Contains(t, finding.Message, "errors")
}

func TestEnsureOverlayUser_AlreadyExists(t *testing.T) {
	var commands [][]string
	v := newValidator(func(ctx context.Context, container string, cmd ...string) ([]byte, error) {
		commands = append(commands, cmd)
		return []byte(`[{"id":1,"name":"toji"}]`), nil
	})

	finding := v.EnsureOverlayUser(context.Background(), "toji")
	assert.Nil(t, finding)
	require.Len(t, commands, 1, "create must not run when the user exists")
	assert.Equal(t, "list", commands[0][2])
}

func TestEnsureOverlayUser_CreatesWhenAbsent(t *testing.T) {
	var commands [][]string
	v := newValidator(func(ctx context.Context, container string, cmd ...string) ([]byte, error) {
		commands = append(commands, cmd)
		if cmd[2] == "list" {
			return []byte(`[{"id":1,"name":"someone-else"}]`), nil
		}
		return []byte("User created"), nil
	})

	finding := v.EnsureOverlayUser(context.Background(), "toji")
	assert.Nil(t, finding)
	require.Len(t, commands, 2)
	assert.Equal(t, []string{"headscale", "users", "create", "toji"}, commands[1])
}

func TestEnsureOverlayUser_EmptyListVariants(t *testing.T) {
	for _, listOutput := range []string{"null", "", "[]", "  \n"} {
		t.Run("list prints "+strings.TrimSpace(listOutput), func(t *testing.T) {
			created := false
			v := newValidator(func(ctx context.Context, container string, cmd ...string) ([]byte, error) {
				if cmd[2] == "list" {
					return []byte(listOutput), nil
				}
				created = true
				return []byte("ok"), nil
			})

			assert.Nil(t, v.EnsureOverlayUser(context.Background(), "toji"))
			assert.True(t, created)
		})
	}
}

func TestEnsureOverlayUser_ListFailureWarnsWithoutCreating(t *testing.T) {
	created := false
	v := newValidator(func(ctx context.Context, container string, cmd ...string) ([]byte, error) {
		if cmd[2] == "list" {
			return nil, errors.New("grpc unavailable")
		}
		created = true
		return nil, nil
	})

	finding := v.EnsureOverlayUser(context.Background(), "toji")
	require.NotNil(t, finding)
	assert.Equal(t, "overlay", finding.Component)
	assert.False(t, created, "create must not run blind after a failed list")
}

func TestEnsureOverlayUser_CreateFailureWarns(t *testing.T) {
	v := newValidator(func(ctx context.Context, container string, cmd ...string) ([]byte, error) {
		if cmd[2] == "list" {
			return []byte("[]"), nil
		}
		return nil, errors.New("name invalid")
	})

	finding := v.EnsureOverlayUser(context.Background(), "toji")
	require.NotNil(t, finding)
	assert.Contains(t, finding.Message, "toji")
}

func TestEnsureOverlayUser_BlankNameIsNoop(t *testing.T) {
	v := newValidator(func(ctx context.Context, container string, cmd ...string) ([]byte, error) {
		t.Fatal("no exec expected for a blank user name")
		return nil, nil
	})

	assert.Nil(t, v.EnsureOverlayUser(context.Background(), "   "))
}
