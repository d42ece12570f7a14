// Copyright (C) 2025 LymphHub contributors (ops@lyckabc.xyz)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrSecretsDirUnavailable indicates the secrets directory could not
	// be created or accessed.
	ErrSecretsDirUnavailable = errors.New("secrets directory unavailable")

	// ErrSecretWriteFailed indicates a secret file could not be written.
	ErrSecretWriteFailed = errors.New("failed to write secret")

	// ErrSecretGenerateFailed indicates the random source failed.
	ErrSecretGenerateFailed = errors.New("failed to generate secret material")
)

// =============================================================================
// Secret Names
// =============================================================================

const (
	// SecretJWT signs the auth broker's identity verification tokens.
	SecretJWT = "JWT_SECRET"

	// SecretSession encrypts the auth broker's session cookies.
	SecretSession = "SESSION_SECRET"

	// SecretStoragePassword is the storage backend's password.
	SecretStoragePassword = "STORAGE_PASSWORD"

	// SecretStorageKey encrypts data at rest in the storage backend.
	SecretStorageKey = "STORAGE_ENCRYPTION_KEY"
)

// KnownSecrets lists every secret the stack requires, in provisioning
// order.
var KnownSecrets = []string{
	SecretJWT,
	SecretSession,
	SecretStoragePassword,
	SecretStorageKey,
}

// secretMaterialBytes is the entropy per generated secret. 48 random
// bytes encode to 64 base64 characters, comfortably above what the
// auth broker requires for HMAC keys.
const secretMaterialBytes = 48

// =============================================================================
// Report Types
// =============================================================================

// SecretSource records where a secret's value came from.
type SecretSource string

const (
	// SourceGenerated means a fresh random value was written.
	SourceGenerated SecretSource = "generated"

	// SourceEnvironment means the value was taken from configuration.
	SourceEnvironment SecretSource = "environment"

	// SourcePreExisting means a non-empty file was already in place.
	SourcePreExisting SecretSource = "pre-existing"
)

// ProvisionedSecret describes one secret after provisioning.
type ProvisionedSecret struct {
	Name   string
	Source SecretSource
	Path   string
	Length int
}

// ProvisionReport summarizes one EnsureSecrets run.
type ProvisionReport struct {
	// ID identifies this provisioning run.
	ID string

	// Secrets lists every known secret and its outcome.
	Secrets []ProvisionedSecret

	// Created counts how many files were newly written.
	Created int

	// Warnings carries operator-facing notes, e.g. a storage password
	// that had to be generated because no configured value existed.
	Warnings []string

	// CompletedAt is when the run finished.
	CompletedAt time.Time
}

// Changed reports whether this run wrote anything.
func (r *ProvisionReport) Changed() bool {
	return r.Created > 0
}

// =============================================================================
// Secret Provisioner
// =============================================================================

// SecretProvisioner materializes the stack's secret files.
//
// # Description
//
// Ensures every secret in KnownSecrets exists as a non-empty file in
// the secrets directory. Existing non-empty files are never touched,
// so repeated runs are safe and never rotate credentials. An empty
// file counts as absent: a previous interrupted run must not leave the
// stack with a blank credential.
//
// # Outputs
//
// EnsureSecrets returns a report describing each secret's source. The
// error is non-nil only for fatal filesystem or entropy failures.
//
// # Assumptions
//
//   - Single invoker; no cross-process locking on the secrets directory
type SecretProvisioner interface {
	EnsureSecrets(ctx context.Context) (*ProvisionReport, error)
}

// DefaultSecretProvisioner writes secrets under a directory on disk.
type DefaultSecretProvisioner struct {
	dir string

	// dbPassword, when non-empty, is used for STORAGE_PASSWORD instead
	// of random material so the stack matches an external database.
	dbPassword string

	// randRead is injectable for tests; defaults to crypto/rand.
	randRead func(b []byte) (int, error)
}

// NewDefaultSecretProvisioner creates a provisioner for dir.
// dbPassword may be empty, in which case STORAGE_PASSWORD is generated
// and a warning is reported.
func NewDefaultSecretProvisioner(dir, dbPassword string) *DefaultSecretProvisioner {
	return &DefaultSecretProvisioner{
		dir:        dir,
		dbPassword: dbPassword,
		randRead:   rand.Read,
	}
}

// EnsureSecrets makes every known secret file exist with a non-empty
// value and owner-only permissions.
func (p *DefaultSecretProvisioner) EnsureSecrets(ctx context.Context) (*ProvisionReport, error) {
	if err := os.MkdirAll(p.dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSecretsDirUnavailable, p.dir, err)
	}

	report := &ProvisionReport{ID: GenerateID()}

	for _, name := range KnownSecrets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(p.dir, name)
		if present, err := secretFilePresent(path); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSecretsDirUnavailable, path, err)
		} else if present {
			report.Secrets = append(report.Secrets, ProvisionedSecret{
				Name:   name,
				Source: SourcePreExisting,
				Path:   path,
			})
			continue
		}

		value, source, err := p.valueFor(name)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(value), 0o600); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSecretWriteFailed, path, err)
		}

		if name == SecretStoragePassword && source == SourceGenerated {
			report.Warnings = append(report.Warnings,
				"STORAGE_PASSWORD was generated because DB_PASSWORD is not set; "+
					"an external database will not accept it")
		}
		report.Created++
		report.Secrets = append(report.Secrets, ProvisionedSecret{
			Name:   name,
			Source: source,
			Path:   path,
			Length: len(value),
		})
	}

	if err := p.restrictPermissions(); err != nil {
		return nil, err
	}

	report.CompletedAt = time.Now()
	return report, nil
}

// valueFor decides a new secret's value and provenance.
func (p *DefaultSecretProvisioner) valueFor(name string) (string, SecretSource, error) {
	if name == SecretStoragePassword && p.dbPassword != "" {
		return p.dbPassword, SourceEnvironment, nil
	}
	value, err := p.generate()
	if err != nil {
		return "", "", err
	}
	return value, SourceGenerated, nil
}

// generate produces URL-safe base64 of fresh random bytes, no newline.
func (p *DefaultSecretProvisioner) generate() (string, error) {
	material := make([]byte, secretMaterialBytes)
	if _, err := p.randRead(material); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSecretGenerateFailed, err)
	}
	return base64.RawURLEncoding.EncodeToString(material), nil
}

// restrictPermissions re-applies owner-only modes to the directory and
// every secret file, covering files created by earlier tooling.
func (p *DefaultSecretProvisioner) restrictPermissions() error {
	if err := os.Chmod(p.dir, 0o700); err != nil {
		return fmt.Errorf("%w: chmod %s: %v", ErrSecretsDirUnavailable, p.dir, err)
	}
	for _, name := range KnownSecrets {
		path := filepath.Join(p.dir, name)
		if err := os.Chmod(path, 0o600); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("%w: chmod %s: %v", ErrSecretWriteFailed, path, err)
		}
	}
	return nil
}

// secretFilePresent reports whether path exists with non-empty content.
// A zero-length file counts as absent.
func secretFilePresent(path string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Size() > 0, nil
}

// GetSetupInstructions explains manual secret setup for operators who
// want to pre-seed values instead of generating them.
func GetSetupInstructions(dir string) string {
	var b strings.Builder
	b.WriteString("To pre-seed secrets instead of generating them:\n\n")
	for _, name := range KnownSecrets {
		fmt.Fprintf(&b, "  printf '%%s' \"$VALUE\" > %s\n", filepath.Join(dir, name))
	}
	b.WriteString("\nFiles must be non-empty. Values are used verbatim, so avoid trailing newlines.\n")
	b.WriteString("Set DB_PASSWORD in .env to pin STORAGE_PASSWORD to an external database.\n")
	return b.String()
}

var _ SecretProvisioner = (*DefaultSecretProvisioner)(nil)

// =============================================================================
// Mock Implementation
// =============================================================================

// MockSecretProvisioner is a test double with function fields.
type MockSecretProvisioner struct {
	EnsureSecretsFunc func(ctx context.Context) (*ProvisionReport, error)

	// Calls counts invocations.
	Calls int
}

func (m *MockSecretProvisioner) EnsureSecrets(ctx context.Context) (*ProvisionReport, error) {
	m.Calls++
	if m.EnsureSecretsFunc == nil {
		panic("MockSecretProvisioner.EnsureSecretsFunc not set")
	}
	return m.EnsureSecretsFunc(ctx)
}

var _ SecretProvisioner = (*MockSecretProvisioner)(nil)
