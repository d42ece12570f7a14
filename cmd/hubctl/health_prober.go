package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tojiuni/lymphhub/cmd/hubctl/internal/util"
)

// =============================================================================
// Health Prober Interface
// =============================================================================

// HealthProber checks one service after the stack converges.
//
// # Description
//
// Probe never returns an error: every outcome, including a refused
// connection, is encoded in the HealthResult state. That keeps the
// orchestration loop uniform; it classifies results instead of
// branching on error shapes.
type HealthProber interface {
	// Probe checks the service and classifies the outcome.
	Probe(ctx context.Context) *HealthResult

	// Service returns the probed service's name.
	Service() string
}

// newProbeClient builds the HTTP client probers share. Redirects are
// not followed so a 302 from the auth broker stays observable.
func newProbeClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: util.EnforceMinTimeout(timeout, util.MinHTTPTimeout),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// HTTPDoer is the slice of http.Client the probers need.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// fetchStatus issues a GET and returns the status code. A non-nil
// error means no HTTP response arrived at all.
func fetchStatus(ctx context.Context, client HTTPDoer, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// =============================================================================
// Proxy Prober
// =============================================================================

// ProxyProber checks the reverse proxy on its public entrypoint and
// its admin API. Either answering is enough: a proxy that serves
// traffic but hides its dashboard is still doing its job.
type ProxyProber struct {
	client   HTTPDoer
	name     string
	httpURL  string
	adminURL string
}

// NewProxyProber creates a prober for the reverse proxy.
func NewProxyProber(client HTTPDoer, name, httpURL, adminURL string) *ProxyProber {
	return &ProxyProber{client: client, name: name, httpURL: httpURL, adminURL: adminURL}
}

func (p *ProxyProber) Service() string { return p.name }

// Probe is healthy when the public entrypoint or the admin API
// returns a 2xx/3xx. An entrypoint that answers with anything else is
// degraded: a 404 is still the proxy talking, not the backend behind
// it, so the process is alive even if no route matched.
func (p *ProxyProber) Probe(ctx context.Context) *HealthResult {
	start := time.Now()
	result := &HealthResult{
		ID:       GenerateID(),
		Service:  p.name,
		Critical: true,
	}

	status, err := fetchStatus(ctx, p.client, p.httpURL)
	if err == nil && status < 400 {
		result.State = StateHealthy
		result.HTTPStatus = status
		result.Message = fmt.Sprintf("entrypoint answered with %d", status)
		return finishResult(result, start)
	}

	adminStatus, adminErr := fetchStatus(ctx, p.client, p.adminURL)
	if adminErr == nil && adminStatus < 400 {
		result.State = StateHealthy
		result.HTTPStatus = adminStatus
		result.Message = fmt.Sprintf("admin API answered with %d", adminStatus)
		return finishResult(result, start)
	}

	if err == nil {
		result.State = StateDegraded
		result.HTTPStatus = status
		result.Message = fmt.Sprintf("entrypoint answered with %d, no route matched yet", status)
		return finishResult(result, start)
	}

	result.State = StateUnreachable
	result.Message = fmt.Sprintf("no response on entrypoint (%v) or admin API", err)
	return finishResult(result, start)
}

var _ HealthProber = (*ProxyProber)(nil)

// =============================================================================
// Auth Broker Prober
// =============================================================================

// AuthBrokerProber checks the forward-auth broker's portal.
//
// A 200 or 302 is healthy. A 401 is degraded but acceptable: a broker
// with no session to show will demand authentication, which proves it
// is up and enforcing policy. Anything else is unreachable.
type AuthBrokerProber struct {
	client HTTPDoer
	name   string
	url    string
}

// NewAuthBrokerProber creates a prober for the auth broker portal.
func NewAuthBrokerProber(client HTTPDoer, name, url string) *AuthBrokerProber {
	return &AuthBrokerProber{client: client, name: name, url: url}
}

func (p *AuthBrokerProber) Service() string { return p.name }

func (p *AuthBrokerProber) Probe(ctx context.Context) *HealthResult {
	start := time.Now()
	result := &HealthResult{
		ID:       GenerateID(),
		Service:  p.name,
		Critical: true,
	}

	status, err := fetchStatus(ctx, p.client, p.url)
	if err != nil {
		result.State = StateUnreachable
		result.Message = fmt.Sprintf("no response: %v", err)
		return finishResult(result, start)
	}

	result.HTTPStatus = status
	switch {
	case status == http.StatusOK || status == http.StatusFound:
		result.State = StateHealthy
		result.Message = fmt.Sprintf("portal answered with %d", status)
	case status == http.StatusUnauthorized:
		result.State = StateDegraded
		result.Message = "portal demands authentication (401), acceptable on a fresh deploy"
	default:
		result.State = StateUnreachable
		result.Message = fmt.Sprintf("unexpected status %d", status)
	}
	return finishResult(result, start)
}

var _ HealthProber = (*AuthBrokerProber)(nil)

// =============================================================================
// Overlay Coordinator Prober
// =============================================================================

// OverlayProber checks the overlay-network coordinator.
//
// The container's own healthcheck is authoritative whenever it reports
// a status, healthy or not. Only when no status is available at all
// does the prober fall back to the metrics endpoint, which the
// coordinator serves as soon as it is functional.
type OverlayProber struct {
	runtime    ContainerRuntime
	client     HTTPDoer
	name       string
	container  string
	metricsURL string
}

// NewOverlayProber creates a prober for the overlay coordinator.
func NewOverlayProber(runtime ContainerRuntime, client HTTPDoer, name, container, metricsURL string) *OverlayProber {
	return &OverlayProber{
		runtime:    runtime,
		client:     client,
		name:       name,
		container:  container,
		metricsURL: metricsURL,
	}
}

func (p *OverlayProber) Service() string { return p.name }

func (p *OverlayProber) Probe(ctx context.Context) *HealthResult {
	start := time.Now()
	result := &HealthResult{
		ID:       GenerateID(),
		Service:  p.name,
		Critical: true,
	}

	// a present healthcheck status is authoritative either way; the
	// metrics endpoint is consulted only when no verdict is available
	health, err := p.runtime.ContainerHealth(ctx, p.container)
	if err == nil && health != "" {
		if health == "healthy" {
			result.State = StateHealthy
			result.Message = "container healthcheck reports healthy"
			return finishResult(result, start)
		}
		result.State = StateUnreachable
		result.Message = fmt.Sprintf("container healthcheck reports %q", health)
		return finishResult(result, start)
	}

	status, metricsErr := fetchStatus(ctx, p.client, p.metricsURL)
	if metricsErr == nil && status == http.StatusOK {
		result.State = StateHealthy
		result.HTTPStatus = status
		result.Message = "metrics endpoint answered with 200"
		return finishResult(result, start)
	}

	result.State = StateUnreachable
	if metricsErr != nil {
		result.Message = fmt.Sprintf("no healthcheck verdict and metrics unreachable: %v", metricsErr)
	} else {
		result.HTTPStatus = status
		result.Message = fmt.Sprintf("no healthcheck verdict and metrics returned %d", status)
	}
	return finishResult(result, start)
}

var _ HealthProber = (*OverlayProber)(nil)

// =============================================================================
// Endpoint Prober
// =============================================================================

// EndpointProber is a plain 200-check against one URL, used for the
// portal backend's health route. Non-critical: the core stack can be
// up while the portal image is still building.
type EndpointProber struct {
	client   HTTPDoer
	name     string
	url      string
	critical bool
}

// NewEndpointProber creates a simple 200-or-bust prober.
func NewEndpointProber(client HTTPDoer, name, url string, critical bool) *EndpointProber {
	return &EndpointProber{client: client, name: name, url: url, critical: critical}
}

func (p *EndpointProber) Service() string { return p.name }

func (p *EndpointProber) Probe(ctx context.Context) *HealthResult {
	start := time.Now()
	result := &HealthResult{
		ID:       GenerateID(),
		Service:  p.name,
		Critical: p.critical,
	}

	status, err := fetchStatus(ctx, p.client, p.url)
	if err != nil {
		result.State = StateUnreachable
		result.Message = fmt.Sprintf("no response: %v", err)
		return finishResult(result, start)
	}

	result.HTTPStatus = status
	if status == http.StatusOK {
		result.State = StateHealthy
		result.Message = "answered with 200"
	} else {
		result.State = StateUnreachable
		result.Message = fmt.Sprintf("unexpected status %d", status)
	}
	return finishResult(result, start)
}

var _ HealthProber = (*EndpointProber)(nil)

// finishResult stamps latency and completion time.
func finishResult(r *HealthResult, start time.Time) *HealthResult {
	r.Latency = time.Since(start)
	r.CheckedAt = time.Now()
	return r
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockHealthProber is a test double returning a canned result.
type MockHealthProber struct {
	ServiceName string
	Result      *HealthResult
	ProbeFunc   func(ctx context.Context) *HealthResult

	// Calls counts invocations.
	Calls int
}

func (m *MockHealthProber) Service() string { return m.ServiceName }

func (m *MockHealthProber) Probe(ctx context.Context) *HealthResult {
	m.Calls++
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx)
	}
	if m.Result == nil {
		panic("MockHealthProber has neither ProbeFunc nor Result")
	}
	return m.Result
}

var _ HealthProber = (*MockHealthProber)(nil)
