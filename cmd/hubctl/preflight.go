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
	"fmt"
	"os"
	"strings"

	"github.com/tojiuni/lymphhub/cmd/hubctl/config"
	"github.com/tojiuni/lymphhub/pkg/logging"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrEnvFileMissing indicates the .env file does not exist.
	ErrEnvFileMissing = errors.New("environment file not found")

	// ErrNetworkNameMissing indicates DOCKER_NETWORK is not set.
	ErrNetworkNameMissing = errors.New("DOCKER_NETWORK is not set")

	// ErrDockerUnavailable indicates docker or its compose plugin is
	// not usable on this host.
	ErrDockerUnavailable = errors.New("docker is not available")

	// ErrNetworkCreateFailed indicates the external network could not
	// be created.
	ErrNetworkCreateFailed = errors.New("failed to create the docker network")
)

// placeholderMarker is the unfinished-setup sentinel left in the user
// database template. A deploy with it still present means nobody can
// log in.
const placeholderMarker = "CHANGE_ME"

// =============================================================================
// Preflight Checker
// =============================================================================

// PreflightReport is the outcome of a successful preflight run.
type PreflightReport struct {
	// Findings carries warnings and informational notes. Fatal
	// conditions are returned as errors instead.
	Findings []Finding

	// NetworkCreated is true when the external network had to be made.
	NetworkCreated bool

	// Secrets is the provisioning report.
	Secrets *ProvisionReport
}

// PreflightChecker validates the host before anything launches.
//
// # Description
//
// Fatal conditions (missing env file, missing network name, unusable
// docker, network creation failure, secret provisioning failure)
// return an error and nothing launches. Everything else lands in the
// report as a warning so a mostly-configured stack can still come up.
type PreflightChecker interface {
	Run(ctx context.Context) (*PreflightReport, error)
}

// DefaultPreflightChecker checks the environment, docker, the external
// network, the auth broker's config files, and provisions secrets.
type DefaultPreflightChecker struct {
	cfg     *config.HubConfig
	env     *config.Env
	proc    ProcessManager
	runtime ContainerRuntime
	secrets SecretProvisioner
	log     *logging.Logger

	// readFile is injectable for tests; defaults to os.ReadFile.
	readFile func(path string) ([]byte, error)
}

// NewDefaultPreflightChecker wires a preflight checker.
func NewDefaultPreflightChecker(cfg *config.HubConfig, env *config.Env, proc ProcessManager, runtime ContainerRuntime, secrets SecretProvisioner, log *logging.Logger) *DefaultPreflightChecker {
	return &DefaultPreflightChecker{
		cfg:      cfg,
		env:      env,
		proc:     proc,
		runtime:  runtime,
		secrets:  secrets,
		log:      log,
		readFile: os.ReadFile,
	}
}

// Run executes every check in order and stops at the first fatal one.
func (p *DefaultPreflightChecker) Run(ctx context.Context) (*PreflightReport, error) {
	report := &PreflightReport{}

	if !p.env.FileFound {
		return nil, fmt.Errorf("%w: %s (copy .env.example and fill it in)",
			ErrEnvFileMissing, p.cfg.Project.EnvFile)
	}
	for _, warning := range p.env.Warnings {
		report.Findings = append(report.Findings, Finding{
			Severity:  SeverityWarning,
			Component: "env",
			Message:   warning,
		})
	}

	if strings.TrimSpace(p.env.NetworkName) == "" {
		return nil, fmt.Errorf("%w in %s", ErrNetworkNameMissing, p.cfg.Project.EnvFile)
	}

	if err := p.checkDocker(ctx); err != nil {
		return nil, err
	}

	if err := p.ensureNetwork(ctx, report); err != nil {
		return nil, err
	}

	p.checkStorageCredentials(report)
	p.checkAuthBrokerFiles(report)

	secretsReport, err := p.secrets.EnsureSecrets(ctx)
	if err != nil {
		return nil, fmt.Errorf("provisioning secrets: %w", err)
	}
	report.Secrets = secretsReport
	for _, warning := range secretsReport.Warnings {
		report.Findings = append(report.Findings, Finding{
			Severity:  SeverityWarning,
			Component: "secrets",
			Message:   warning,
		})
	}
	if secretsReport.Changed() {
		report.Findings = append(report.Findings, Finding{
			Severity:  SeverityInfo,
			Component: "secrets",
			Message:   fmt.Sprintf("generated %d new secret file(s)", secretsReport.Created),
		})
	}

	p.log.Info("preflight passed",
		"findings", len(report.Findings),
		"network_created", report.NetworkCreated,
		"secrets_created", secretsReport.Created)
	return report, nil
}

// checkDocker verifies the docker CLI and its compose plugin respond.
func (p *DefaultPreflightChecker) checkDocker(ctx context.Context) error {
	if _, err := p.proc.Run(ctx, "docker", "version", "--format", "{{.Server.Version}}"); err != nil {
		return fmt.Errorf("%w: %v", ErrDockerUnavailable, err)
	}
	if _, err := p.proc.Run(ctx, "docker", "compose", "version"); err != nil {
		return fmt.Errorf("%w: compose plugin missing: %v", ErrDockerUnavailable, err)
	}
	return nil
}

// ensureNetwork creates the external network when absent.
func (p *DefaultPreflightChecker) ensureNetwork(ctx context.Context, report *PreflightReport) error {
	name := p.env.NetworkName
	exists, err := p.runtime.NetworkExists(ctx, name)
	if err != nil {
		return fmt.Errorf("inspecting network %s: %w", name, err)
	}
	if exists {
		return nil
	}

	if err := p.runtime.NetworkCreate(ctx, name); err != nil {
		return fmt.Errorf("%w %s: %v", ErrNetworkCreateFailed, name, err)
	}
	report.NetworkCreated = true
	report.Findings = append(report.Findings, Finding{
		Severity:  SeverityInfo,
		Component: "network",
		Message:   fmt.Sprintf("created missing external network %q", name),
	})
	return nil
}

// checkStorageCredentials warns about an external DB with no password.
func (p *DefaultPreflightChecker) checkStorageCredentials(report *PreflightReport) {
	if p.env.DBHost != "" && p.env.DBPassword == "" {
		report.Findings = append(report.Findings, Finding{
			Severity:  SeverityWarning,
			Component: "storage",
			Message:   fmt.Sprintf("DB_HOST is %q but DB_PASSWORD is empty", p.env.DBHost),
			Hint:      "the generated STORAGE_PASSWORD will not match the external database",
		})
	}
}

// checkAuthBrokerFiles warns about missing or template-state configs.
func (p *DefaultPreflightChecker) checkAuthBrokerFiles(report *PreflightReport) {
	if _, err := os.Stat(p.cfg.Project.AutheliaConfig); os.IsNotExist(err) {
		report.Findings = append(report.Findings, Finding{
			Severity:  SeverityWarning,
			Component: "auth-broker",
			Message:   fmt.Sprintf("config file %s not found", p.cfg.Project.AutheliaConfig),
			Hint:      "the auth broker will fall back to its image defaults",
		})
	}

	data, err := p.readFile(p.cfg.Project.UsersDatabase)
	if err != nil {
		if !os.IsNotExist(err) {
			report.Findings = append(report.Findings, Finding{
				Severity:  SeverityWarning,
				Component: "auth-broker",
				Message:   fmt.Sprintf("cannot read user database %s: %v", p.cfg.Project.UsersDatabase, err),
			})
		}
		return
	}
	if strings.Contains(string(data), placeholderMarker) {
		report.Findings = append(report.Findings, Finding{
			Severity:  SeverityWarning,
			Component: "auth-broker",
			Message:   fmt.Sprintf("user database %s still contains the %s placeholder", p.cfg.Project.UsersDatabase, placeholderMarker),
			Hint:      "generate a password hash and replace the placeholder before anyone can log in",
		})
	}
}

var _ PreflightChecker = (*DefaultPreflightChecker)(nil)

// =============================================================================
// Mock Implementation
// =============================================================================

// MockPreflightChecker is a test double with function fields.
type MockPreflightChecker struct {
	RunFunc func(ctx context.Context) (*PreflightReport, error)

	// Calls counts invocations.
	Calls int
}

func (m *MockPreflightChecker) Run(ctx context.Context) (*PreflightReport, error) {
	m.Calls++
	if m.RunFunc == nil {
		panic("MockPreflightChecker.RunFunc not set")
	}
	return m.RunFunc(ctx)
}

var _ PreflightChecker = (*MockPreflightChecker)(nil)
