package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// =============================================================================
// Severity and Findings
// =============================================================================

// Severity classifies a deploy finding.
type Severity string

const (
	// SeverityFatal aborts the run.
	SeverityFatal Severity = "fatal"

	// SeverityWarning is reported but does not stop the run.
	SeverityWarning Severity = "warning"

	// SeverityInfo is purely informational.
	SeverityInfo Severity = "info"
)

// Finding is one observation from preflight or post-deploy validation.
type Finding struct {
	// Severity classifies the finding.
	Severity Severity

	// Component names what produced the finding, e.g. "secrets", "network".
	Component string

	// Message is the human-readable description.
	Message string

	// Hint suggests remediation, may be empty.
	Hint string
}

// String renders the finding for terminal output.
func (f Finding) String() string {
	if f.Hint != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", f.Severity, f.Component, f.Message, f.Hint)
	}
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Component, f.Message)
}

// =============================================================================
// Health States
// =============================================================================

// HealthState is the outcome of one endpoint probe.
type HealthState string

const (
	// StateHealthy means the endpoint answered as expected.
	StateHealthy HealthState = "healthy"

	// StateDegraded means the endpoint answered in a way that is
	// acceptable for a fresh deployment, e.g. an auth broker that
	// demands login before it has any session.
	StateDegraded HealthState = "degraded"

	// StateUnreachable means no acceptable answer arrived.
	StateUnreachable HealthState = "unreachable"
)

// HealthResult captures one service probe.
type HealthResult struct {
	// ID is a unique identifier for this probe.
	ID string

	// Service is the probed service's name, e.g. "traefik".
	Service string

	// State is the probe outcome.
	State HealthState

	// HTTPStatus is the observed status code, 0 when no response arrived.
	HTTPStatus int

	// Message describes the outcome in human terms.
	Message string

	// Critical marks services whose unreachability fails the deploy.
	Critical bool

	// Latency is how long the probe took.
	Latency time.Duration

	// CheckedAt is when the probe completed.
	CheckedAt time.Time
}

// Acceptable reports whether this result should count against the run.
// Degraded is acceptable; only Unreachable is a failure.
func (r *HealthResult) Acceptable() bool {
	return r.State != StateUnreachable
}

// =============================================================================
// ID Generation
// =============================================================================

// GenerateID creates a unique identifier for probes and wait operations.
//
// Uses crypto/rand for uniqueness. Falls back to a timestamp if the
// random source fails (extremely rare).
func GenerateID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
