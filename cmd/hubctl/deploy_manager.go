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
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tojiuni/lymphhub/cmd/hubctl/config"
	"github.com/tojiuni/lymphhub/pkg/logging"
	"github.com/tojiuni/lymphhub/pkg/ux"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrPreflightFailed indicates a fatal preflight condition.
	ErrPreflightFailed = errors.New("preflight failed")

	// ErrLaunchFailed indicates compose up did not succeed.
	ErrLaunchFailed = errors.New("stack launch failed")

	// ErrChecksFailed indicates a critical service or the storage
	// backend failed verification after launch.
	ErrChecksFailed = errors.New("post-launch checks failed")

	// ErrNilDependency indicates the manager was wired incompletely.
	ErrNilDependency = errors.New("deploy manager dependency is nil")

	// ErrPanicRecovered indicates a panic was converted to an error.
	ErrPanicRecovered = errors.New("panic recovered")
)

// recoverPanic converts a recovered panic into an error without
// clobbering an error already set.
func recoverPanic(r interface{}, errPtr *error) {
	if r == nil {
		return
	}
	var panicErr error
	switch v := r.(type) {
	case error:
		panicErr = fmt.Errorf("%w: %v", ErrPanicRecovered, v)
	case string:
		panicErr = fmt.Errorf("%w: %s", ErrPanicRecovered, v)
	default:
		panicErr = fmt.Errorf("%w: %v", ErrPanicRecovered, v)
	}
	if *errPtr == nil {
		*errPtr = panicErr
	}
}

// =============================================================================
// Options and Results
// =============================================================================

// DeployOptions tunes one deploy run.
type DeployOptions struct {
	// MaxWait overrides the readiness budget when positive.
	MaxWait time.Duration

	// PollInterval overrides the readiness poll interval when positive.
	PollInterval time.Duration

	// SkipHealthChecks launches and waits for readiness but skips the
	// endpoint probes and storage check.
	SkipHealthChecks bool

	// SkipPostDeploy skips auth config validation and overlay user setup.
	SkipPostDeploy bool
}

// DeployResult is the full record of one deploy run.
type DeployResult struct {
	// RunID uniquely identifies the run across logs and output.
	RunID string

	// Findings aggregates preflight and post-deploy observations.
	Findings []Finding

	// Readiness is the container convergence outcome.
	Readiness *ReadinessResult

	// Health holds one result per probed service.
	Health []HealthResult

	// Storage is the connectivity check outcome, nil when skipped via
	// options.
	Storage *StorageCheckResult

	// Success is true when nothing critical failed.
	Success bool

	// Elapsed is the wall time of the whole run.
	Elapsed time.Duration
}

// failedCritical lists critical services that were unreachable.
func (r *DeployResult) failedCritical() []string {
	var failed []string
	for i := range r.Health {
		if r.Health[i].Critical && !r.Health[i].Acceptable() {
			failed = append(failed, r.Health[i].Service)
		}
	}
	return failed
}

// =============================================================================
// Deploy Manager
// =============================================================================

// DeployManager runs the full deployment verification sequence.
//
// # Description
//
// Orchestrates preflight, launch, readiness, health probes, the
// storage connectivity check, and post-deploy validation. Fatal
// conditions abort the run with an error after dumping container
// logs; check failures complete the run with Success=false so the
// operator sees the whole picture at once.
//
// # Thread Safety
//
// Deploy and Down are serialized by an internal mutex. Concurrent
// calls block rather than interleave compose operations.
type DeployManager interface {
	// Deploy runs the sequence and returns the run record. A non-nil
	// error means the run aborted; a nil error with Success=false
	// means it completed and found failures.
	Deploy(ctx context.Context, opts DeployOptions) (*DeployResult, error)

	// Down stops and removes the stack.
	Down(ctx context.Context) error
}

// DefaultDeployManager wires every component of the sequence.
type DefaultDeployManager struct {
	cfg         *config.HubConfig
	env         *config.Env
	runtime     ContainerRuntime
	preflight   PreflightChecker
	waiter      ReadinessWaiter
	probers     []HealthProber
	storage     StorageChecker
	validator   PostDeployValidator
	diagnostics DiagnosticReporter
	log         *logging.Logger

	// out receives human-facing output; defaults to os.Stdout.
	out io.Writer

	mu sync.Mutex
}

// NewDefaultDeployManager wires a manager from its parts.
func NewDefaultDeployManager(
	cfg *config.HubConfig,
	env *config.Env,
	runtime ContainerRuntime,
	preflight PreflightChecker,
	waiter ReadinessWaiter,
	probers []HealthProber,
	storage StorageChecker,
	validator PostDeployValidator,
	diagnostics DiagnosticReporter,
	log *logging.Logger,
) *DefaultDeployManager {
	return &DefaultDeployManager{
		cfg:         cfg,
		env:         env,
		runtime:     runtime,
		preflight:   preflight,
		waiter:      waiter,
		probers:     probers,
		storage:     storage,
		validator:   validator,
		diagnostics: diagnostics,
		log:         log,
		out:         os.Stdout,
	}
}

// SetOutput redirects human-facing output. Test hook.
func (m *DefaultDeployManager) SetOutput(w io.Writer) {
	m.out = w
}

// checkWiring catches construction mistakes before any phase runs.
func (m *DefaultDeployManager) checkWiring() error {
	switch {
	case m.cfg == nil:
		return fmt.Errorf("%w: config", ErrNilDependency)
	case m.env == nil:
		return fmt.Errorf("%w: env", ErrNilDependency)
	case m.runtime == nil:
		return fmt.Errorf("%w: container runtime", ErrNilDependency)
	case m.preflight == nil:
		return fmt.Errorf("%w: preflight checker", ErrNilDependency)
	case m.waiter == nil:
		return fmt.Errorf("%w: readiness waiter", ErrNilDependency)
	case m.storage == nil:
		return fmt.Errorf("%w: storage checker", ErrNilDependency)
	case m.validator == nil:
		return fmt.Errorf("%w: post-deploy validator", ErrNilDependency)
	case m.diagnostics == nil:
		return fmt.Errorf("%w: diagnostic reporter", ErrNilDependency)
	case m.log == nil:
		return fmt.Errorf("%w: logger", ErrNilDependency)
	}
	return nil
}

// Deploy runs the full sequence.
func (m *DefaultDeployManager) Deploy(ctx context.Context, opts DeployOptions) (result *DeployResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	defer func() {
		recoverPanic(recover(), &err)
	}()

	if err := m.checkWiring(); err != nil {
		return nil, err
	}

	start := time.Now()
	result = &DeployResult{RunID: uuid.NewString()}
	log := m.log.With("run_id", result.RunID)
	log.Info("deploy started", "project", m.cfg.Project.Name)

	// Phase 1: Preflight
	preflightReport, err := m.preflight.Run(ctx)
	if err != nil {
		m.dumpDiagnostics(ctx, "preflight", err)
		return nil, fmt.Errorf("%w: %v", ErrPreflightFailed, err)
	}
	result.Findings = append(result.Findings, preflightReport.Findings...)

	// Phase 2: Launch
	ux.Info("starting the stack")
	if err := m.runtime.ComposeUp(ctx); err != nil {
		m.dumpDiagnostics(ctx, "launch", err)
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	log.Info("compose up finished")

	// Phase 3: Readiness
	readiness, err := m.waitForReadiness(ctx, opts, log)
	result.Readiness = readiness
	if err != nil {
		m.dumpDiagnostics(ctx, "readiness", err)
		return nil, err
	}

	// Phase 4: Health probes and storage connectivity
	if !opts.SkipHealthChecks {
		m.probeServices(ctx, result, log)
		m.checkStorage(ctx, result, log)
	}

	// Phase 5: Post-deploy validation
	if !opts.SkipPostDeploy {
		m.runPostDeploy(ctx, result, log)
	}

	result.Elapsed = time.Since(start)
	result.Success = len(result.failedCritical()) == 0 &&
		(result.Storage == nil || result.Storage.Skipped || result.Storage.Reachable)

	if !result.Success {
		m.dumpDiagnostics(ctx, "verification",
			fmt.Errorf("%w: %v", ErrChecksFailed, result.failedCritical()))
	}

	m.printSummary(result)
	log.Info("deploy finished", "success", result.Success, "elapsed", result.Elapsed)
	return result, nil
}

// Down stops and removes the stack.
func (m *DefaultDeployManager) Down(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runtime == nil {
		return fmt.Errorf("%w: container runtime", ErrNilDependency)
	}
	return m.runtime.ComposeDown(ctx)
}

// =============================================================================
// Deploy Phase Helpers
// =============================================================================

// waitForReadiness polls until every container runs.
func (m *DefaultDeployManager) waitForReadiness(ctx context.Context, opts DeployOptions, log *logging.Logger) (*ReadinessResult, error) {
	waitOpts := DefaultWaitOptions()
	waitOpts.MaxWait = time.Duration(m.cfg.Readiness.MaxWaitSeconds) * time.Second
	waitOpts.PollInterval = time.Duration(m.cfg.Readiness.PollIntervalSeconds) * time.Second
	if opts.MaxWait > 0 {
		waitOpts.MaxWait = opts.MaxWait
	}
	if opts.PollInterval > 0 {
		waitOpts.PollInterval = opts.PollInterval
	}

	ux.Info(fmt.Sprintf("waiting up to %s for containers", waitOpts.MaxWait))
	result, err := m.waiter.WaitForRunning(ctx, waitOpts)
	if err != nil {
		return result, err
	}
	log.Info("containers running", "ticks", result.Ticks, "elapsed", result.Elapsed)
	return result, nil
}

// probeServices runs every prober sequentially.
//
// Sequential on purpose: four local HTTP probes finish in well under a
// second, and ordered output reads better than interleaved goroutines.
func (m *DefaultDeployManager) probeServices(ctx context.Context, result *DeployResult, log *logging.Logger) {
	for _, prober := range m.probers {
		probe := prober.Probe(ctx)
		result.Health = append(result.Health, *probe)
		log.Info("health probe",
			"service", probe.Service,
			"state", string(probe.State),
			"status", probe.HTTPStatus)
	}
}

// checkStorage reads the auth broker config and runs the tiered check.
func (m *DefaultDeployManager) checkStorage(ctx context.Context, result *DeployResult, log *logging.Logger) {
	data, err := os.ReadFile(m.cfg.Project.AutheliaConfig)
	if err != nil {
		result.Storage = &StorageCheckResult{
			Skipped: true,
			Message: fmt.Sprintf("cannot read %s, skipping storage check", m.cfg.Project.AutheliaConfig),
		}
		log.Warn("storage check skipped", "error", err)
		return
	}

	result.Storage = m.storage.CheckReachable(ctx, string(data))
	log.Info("storage check",
		"skipped", result.Storage.Skipped,
		"reachable", result.Storage.Reachable,
		"tier", result.Storage.Tier)
}

// runPostDeploy collects warnings from the in-container validations.
func (m *DefaultDeployManager) runPostDeploy(ctx context.Context, result *DeployResult, log *logging.Logger) {
	if finding := m.validator.ValidateAuthConfig(ctx); finding != nil {
		result.Findings = append(result.Findings, *finding)
		log.Warn("post-deploy finding", "message", finding.Message)
	}
	if finding := m.validator.EnsureOverlayUser(ctx, m.env.OverlayUser); finding != nil {
		result.Findings = append(result.Findings, *finding)
		log.Warn("post-deploy finding", "message", finding.Message)
	}
}

// dumpDiagnostics captures log tails of every known service.
func (m *DefaultDeployManager) dumpDiagnostics(ctx context.Context, phase string, cause error) {
	m.log.Error("deploy phase failed", "phase", phase, "error", cause)
	fmt.Fprintf(m.out, "\ndiagnostics after %s failure:\n", phase)
	m.diagnostics.DumpLogs(ctx, m.out, m.serviceNames())
}

// serviceNames lists the managed containers in display order.
func (m *DefaultDeployManager) serviceNames() []string {
	s := m.cfg.Services
	return []string{s.Proxy, s.AuthBroker, s.Overlay, s.Storage, s.Backend}
}

// printSummary renders the human-facing run summary.
func (m *DefaultDeployManager) printSummary(result *DeployResult) {
	fmt.Fprintln(m.out)
	for i := range result.Health {
		h := &result.Health[i]
		icon := ux.IconSuccess
		switch h.State {
		case StateDegraded:
			icon = ux.IconWarning
		case StateUnreachable:
			icon = ux.IconError
		}
		detail := string(h.State)
		if h.HTTPStatus > 0 {
			detail = fmt.Sprintf("%s (%d)", h.State, h.HTTPStatus)
		}
		fmt.Fprintf(m.out, "%s %-14s %s\n", icon.Render(), h.Service, detail)
	}

	if result.Storage != nil {
		icon := ux.IconSuccess
		if !result.Storage.Skipped && !result.Storage.Reachable {
			icon = ux.IconError
		}
		fmt.Fprintf(m.out, "%s %-14s %s\n", icon.Render(), "storage", result.Storage.Message)
		for _, cmd := range result.Storage.Remediation {
			fmt.Fprintf(m.out, "    try: %s\n", cmd)
		}
	}

	for _, finding := range result.Findings {
		if finding.Severity == SeverityWarning {
			fmt.Fprintf(m.out, "%s %s\n", ux.IconWarning.Render(), finding.String())
		}
	}

	if result.Success {
		fmt.Fprintf(m.out, "\ndeploy verified in %s (run %s)\n",
			result.Elapsed.Round(time.Millisecond), result.RunID)
	} else {
		fmt.Fprintf(m.out, "\ndeploy completed with failures: %v (run %s)\n",
			result.failedCritical(), result.RunID)
	}
}

var _ DeployManager = (*DefaultDeployManager)(nil)
