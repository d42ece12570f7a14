// Copyright (C) 2025 LymphHub contributors (ops@lyckabc.xyz)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// Post-Deploy Validator
// =============================================================================

// PostDeployValidator runs best-effort checks after the stack is up.
//
// # Description
//
// Nothing here can fail the deploy: every problem surfaces as a
// warning Finding, nil means the check passed. These checks need the
// containers running, which is why they live after readiness rather
// than in preflight.
type PostDeployValidator interface {
	// ValidateAuthConfig asks the auth broker to validate its own
	// configuration file.
	ValidateAuthConfig(ctx context.Context) *Finding

	// EnsureOverlayUser creates the named overlay namespace user if it
	// does not already exist.
	EnsureOverlayUser(ctx context.Context, name string) *Finding
}

// DefaultPostDeployValidator execs into the running containers.
type DefaultPostDeployValidator struct {
	runtime          ContainerRuntime
	authContainer    string
	overlayContainer string
	authConfigPath   string
}

// NewDefaultPostDeployValidator wires a validator.
// authConfigPath is the config path inside the auth broker container.
func NewDefaultPostDeployValidator(runtime ContainerRuntime, authContainer, overlayContainer, authConfigPath string) *DefaultPostDeployValidator {
	return &DefaultPostDeployValidator{
		runtime:          runtime,
		authContainer:    authContainer,
		overlayContainer: overlayContainer,
		authConfigPath:   authConfigPath,
	}
}

// ValidateAuthConfig runs the broker's built-in config validator.
func (v *DefaultPostDeployValidator) ValidateAuthConfig(ctx context.Context) *Finding {
	out, err := v.runtime.Exec(ctx, v.authContainer,
		"authelia", "validate-config", "--config", v.authConfigPath)
	if err != nil {
		return &Finding{
			Severity:  SeverityWarning,
			Component: "auth-broker",
			Message:   fmt.Sprintf("config validation failed: %v", err),
			Hint:      "the broker is running on a config it considers invalid",
		}
	}
	// authelia exits 0 but prints "errors occurred" for some soft
	// misconfigurations; its success message ends "without errors"
	if strings.Contains(strings.ToLower(string(out)), "errors occurred") {
		return &Finding{
			Severity:  SeverityWarning,
			Component: "auth-broker",
			Message:   "config validator reported errors",
			Hint:      fmt.Sprintf("docker exec %s authelia validate-config --config %s", v.authContainer, v.authConfigPath),
		}
	}
	return nil
}

// overlayUser is the slice of the coordinator's user JSON we care about.
type overlayUser struct {
	Name string `json:"name"`
}

// EnsureOverlayUser lists users and creates name only when absent.
func (v *DefaultPostDeployValidator) EnsureOverlayUser(ctx context.Context, name string) *Finding {
	if strings.TrimSpace(name) == "" {
		return nil
	}

	out, err := v.runtime.Exec(ctx, v.overlayContainer,
		"headscale", "users", "list", "--output", "json")
	if err != nil {
		return &Finding{
			Severity:  SeverityWarning,
			Component: "overlay",
			Message:   fmt.Sprintf("cannot list overlay users: %v", err),
			Hint:      fmt.Sprintf("docker exec %s headscale users list", v.overlayContainer),
		}
	}

	var users []overlayUser
	// an empty list prints "null" in some releases
	if trimmed := strings.TrimSpace(string(out)); trimmed != "" && trimmed != "null" {
		if err := json.Unmarshal(out, &users); err != nil {
			return &Finding{
				Severity:  SeverityWarning,
				Component: "overlay",
				Message:   fmt.Sprintf("cannot parse overlay user list: %v", err),
			}
		}
	}
	for _, user := range users {
		if user.Name == name {
			return nil
		}
	}

	if _, err := v.runtime.Exec(ctx, v.overlayContainer,
		"headscale", "users", "create", name); err != nil {
		return &Finding{
			Severity:  SeverityWarning,
			Component: "overlay",
			Message:   fmt.Sprintf("failed to create overlay user %q: %v", name, err),
			Hint:      fmt.Sprintf("docker exec %s headscale users create %s", v.overlayContainer, name),
		}
	}
	return nil
}

var _ PostDeployValidator = (*DefaultPostDeployValidator)(nil)

// =============================================================================
// Mock Implementation
// =============================================================================

// MockPostDeployValidator is a test double with function fields.
type MockPostDeployValidator struct {
	ValidateAuthConfigFunc func(ctx context.Context) *Finding
	EnsureOverlayUserFunc  func(ctx context.Context, name string) *Finding

	// Calls records method names in invocation order.
	Calls []string
}

func (m *MockPostDeployValidator) ValidateAuthConfig(ctx context.Context) *Finding {
	m.Calls = append(m.Calls, "ValidateAuthConfig")
	if m.ValidateAuthConfigFunc == nil {
		return nil
	}
	return m.ValidateAuthConfigFunc(ctx)
}

func (m *MockPostDeployValidator) EnsureOverlayUser(ctx context.Context, name string) *Finding {
	m.Calls = append(m.Calls, "EnsureOverlayUser")
	if m.EnsureOverlayUserFunc == nil {
		return nil
	}
	return m.EnsureOverlayUserFunc(ctx, name)
}

var _ PostDeployValidator = (*MockPostDeployValidator)(nil)
