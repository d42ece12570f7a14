package main

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrReadinessTimeout indicates containers did not converge in time.
	ErrReadinessTimeout = errors.New("containers did not reach running state")

	// ErrNilSnapshotSource indicates the waiter was built without a source.
	ErrNilSnapshotSource = errors.New("snapshot source is nil")
)

// =============================================================================
// Snapshots
// =============================================================================

// ReadinessSnapshot maps container names to their runtime state at one
// observation instant.
type ReadinessSnapshot map[string]string

// AllRunning reports whether every tracked container is in state
// "running". An empty snapshot is not converged: a stack that launched
// nothing has not come up.
func (s ReadinessSnapshot) AllRunning() bool {
	if len(s) == 0 {
		return false
	}
	for _, state := range s {
		if state != "running" {
			return false
		}
	}
	return true
}

// Pending returns the names of containers not yet running, for messages.
func (s ReadinessSnapshot) Pending() []string {
	var pending []string
	for name, state := range s {
		if state != "running" {
			pending = append(pending, fmt.Sprintf("%s (%s)", name, state))
		}
	}
	return pending
}

// SnapshotSource produces readiness snapshots of the stack.
type SnapshotSource interface {
	// Snapshot observes the current state of every stack container.
	Snapshot(ctx context.Context) (ReadinessSnapshot, error)
}

// RuntimeSnapshotSource observes containers through a ContainerRuntime.
type RuntimeSnapshotSource struct {
	runtime ContainerRuntime
}

// NewRuntimeSnapshotSource creates a source backed by the docker CLI.
func NewRuntimeSnapshotSource(runtime ContainerRuntime) *RuntimeSnapshotSource {
	return &RuntimeSnapshotSource{runtime: runtime}
}

// Snapshot lists the project's containers and resolves each one's
// name and state. Containers that disappear between the list and the
// inspect are skipped rather than failing the snapshot.
func (s *RuntimeSnapshotSource) Snapshot(ctx context.Context) (ReadinessSnapshot, error) {
	ids, err := s.runtime.ListContainers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}

	snapshot := make(ReadinessSnapshot, len(ids))
	for _, id := range ids {
		state, err := s.runtime.ContainerState(ctx, id)
		if err != nil {
			continue
		}
		name, err := s.runtime.ContainerName(ctx, id)
		if err != nil || name == "" {
			name = id
		}
		snapshot[name] = state
	}
	return snapshot, nil
}

var _ SnapshotSource = (*RuntimeSnapshotSource)(nil)

// =============================================================================
// Wait Options
// =============================================================================

// WaitOptions bounds one readiness wait.
type WaitOptions struct {
	// ID identifies the wait operation for logging.
	ID string

	// MaxWait is the total time budget.
	MaxWait time.Duration

	// PollInterval is the pause between observations.
	PollInterval time.Duration
}

// DefaultWaitOptions returns the standard bounds: poll every 5 seconds
// for up to 2 minutes.
func DefaultWaitOptions() WaitOptions {
	return WaitOptions{
		ID:           GenerateID(),
		MaxWait:      120 * time.Second,
		PollInterval: 5 * time.Second,
	}
}

// ReadinessResult is the outcome of one wait.
type ReadinessResult struct {
	// ID matches the WaitOptions ID.
	ID string

	// Converged is true when every container reached "running".
	Converged bool

	// Ticks counts how many observations were taken.
	Ticks int

	// LastSnapshot is the final observation, populated on both success
	// and timeout so callers can report what was still pending.
	LastSnapshot ReadinessSnapshot

	// Elapsed is how long the wait took.
	Elapsed time.Duration
}

// =============================================================================
// Readiness Waiter
// =============================================================================

// ReadinessWaiter polls the stack until every container runs or the
// time budget is spent.
//
// # Description
//
// The waiter is a bounded poll loop: observe, check, sleep, repeat.
// It never waits past MaxWait and always returns the last snapshot it
// took, so a timeout still tells the operator which containers were
// stuck and in what state.
//
// # Outputs
//
// WaitForRunning returns a nil error on convergence and
// ErrReadinessTimeout (wrapped) when the budget runs out. Any other
// error means observation itself failed repeatedly.
type ReadinessWaiter interface {
	WaitForRunning(ctx context.Context, opts WaitOptions) (*ReadinessResult, error)
}

// DefaultReadinessWaiter polls a SnapshotSource on a fixed interval.
type DefaultReadinessWaiter struct {
	source SnapshotSource

	// sleep is injectable for tests; defaults to sleepWithContext.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDefaultReadinessWaiter creates a waiter over the given source.
func NewDefaultReadinessWaiter(source SnapshotSource) *DefaultReadinessWaiter {
	return &DefaultReadinessWaiter{
		source: source,
		sleep:  sleepWithContext,
	}
}

// WaitForRunning polls until convergence, timeout, or cancellation.
func (w *DefaultReadinessWaiter) WaitForRunning(ctx context.Context, opts WaitOptions) (*ReadinessResult, error) {
	if w.source == nil {
		return nil, ErrNilSnapshotSource
	}
	if opts.MaxWait <= 0 || opts.PollInterval <= 0 {
		defaults := DefaultWaitOptions()
		if opts.MaxWait <= 0 {
			opts.MaxWait = defaults.MaxWait
		}
		if opts.PollInterval <= 0 {
			opts.PollInterval = defaults.PollInterval
		}
	}
	if opts.ID == "" {
		opts.ID = GenerateID()
	}

	start := time.Now()
	maxTicks := int(opts.MaxWait / opts.PollInterval)
	if maxTicks < 1 {
		maxTicks = 1
	}

	result := &ReadinessResult{ID: opts.ID}
	var lastErr error

	for tick := 1; tick <= maxTicks; tick++ {
		snapshot, err := w.source.Snapshot(ctx)
		result.Ticks = tick
		if err != nil {
			// transient daemon hiccups should not abort the wait
			lastErr = err
		} else {
			result.LastSnapshot = snapshot
			if snapshot.AllRunning() {
				result.Converged = true
				result.Elapsed = time.Since(start)
				return result, nil
			}
		}

		if tick == maxTicks {
			break
		}
		if err := w.sleep(ctx, opts.PollInterval); err != nil {
			result.Elapsed = time.Since(start)
			return result, err
		}
	}

	result.Elapsed = time.Since(start)
	if result.LastSnapshot == nil && lastErr != nil {
		return result, fmt.Errorf("observing containers: %w", lastErr)
	}
	return result, fmt.Errorf("%w after %d checks, pending: %v",
		ErrReadinessTimeout, result.Ticks, result.LastSnapshot.Pending())
}

var _ ReadinessWaiter = (*DefaultReadinessWaiter)(nil)

// sleepWithContext sleeps for d or until ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockReadinessWaiter is a test double with function fields.
type MockReadinessWaiter struct {
	WaitForRunningFunc func(ctx context.Context, opts WaitOptions) (*ReadinessResult, error)

	// Calls counts invocations.
	Calls int
}

func (m *MockReadinessWaiter) WaitForRunning(ctx context.Context, opts WaitOptions) (*ReadinessResult, error) {
	m.Calls++
	if m.WaitForRunningFunc == nil {
		panic("MockReadinessWaiter.WaitForRunningFunc not set")
	}
	return m.WaitForRunningFunc(ctx, opts)
}

var _ ReadinessWaiter = (*MockReadinessWaiter)(nil)
