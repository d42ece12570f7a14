// Copyright (C) 2025 LymphHub contributors (ops@lyckabc.xyz)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/tojiuni/lymphhub/cmd/hubctl/internal/util"
)

// =============================================================================
// Address Parsing
// =============================================================================

// StorageAddress is a host:port pair extracted from the auth broker's
// configuration.
type StorageAddress struct {
	Host string
	Port int
}

func (a *StorageAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// tcpTokenPattern matches tcp:// address tokens inside YAML lines,
// stopping at quotes or whitespace.
var tcpTokenPattern = regexp.MustCompile(`tcp://([^'"\s]+)`)

// wildcardHosts are listen-everywhere addresses. They describe where a
// server binds, not where a client should connect, so the parser skips
// them.
var wildcardHosts = map[string]bool{
	"0.0.0.0": true,
	"::":      true,
	"[::]":    true,
	"*":       true,
}

// ParseStorageAddress scans configuration text line by line for the
// first tcp:// token carrying a connectable host and a numeric port.
//
// Returns (nil, false) when no such token exists. A partial or
// commented-out config should skip the connectivity check rather than
// fail it, which is why this is a tolerant scan and not a YAML parse.
func ParseStorageAddress(configText string) (*StorageAddress, bool) {
	for _, line := range strings.Split(configText, "\n") {
		match := tcpTokenPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		host, portStr, err := net.SplitHostPort(match[1])
		if err != nil {
			continue
		}
		if wildcardHosts[host] {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			continue
		}
		return &StorageAddress{Host: host, Port: port}, true
	}
	return nil, false
}

// =============================================================================
// Storage Checker
// =============================================================================

// StorageCheckResult is the outcome of one connectivity check.
type StorageCheckResult struct {
	// Skipped is true when no address could be parsed; the check
	// passes vacuously.
	Skipped bool

	// Reachable is true when any tier produced a TCP connection.
	Reachable bool

	// Tier records which attempt succeeded: 1 in-container, 2 host
	// dial of the parsed address, 3 host dial of the fallback port.
	// Zero when nothing succeeded.
	Tier int

	// Address is the parsed host:port, nil when Skipped.
	Address *StorageAddress

	// FallbackPort is the local port tier 3 tried.
	FallbackPort int

	// Message describes the outcome.
	Message string

	// Remediation lists commands an operator can run to investigate,
	// populated only on failure.
	Remediation []string
}

// DialFunc opens a TCP connection, injectable for tests.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// StorageChecker verifies the storage backend accepts TCP connections
// at the address the auth broker is configured to use.
//
// # Description
//
// Three attempts, stopping at the first success:
//
//  1. TCP probe from inside the auth broker's container, which shares
//     the network namespace the broker actually connects from.
//  2. TCP dial of the parsed host:port from the host.
//  3. TCP dial of 127.0.0.1 on the fallback port, covering setups
//     where the database port is published to the host loopback.
//
// # Limitations
//
//   - Reachability only; no authentication or query is attempted
type StorageChecker interface {
	CheckReachable(ctx context.Context, configText string) *StorageCheckResult
}

// DefaultStorageChecker probes through docker exec and net.Dialer.
type DefaultStorageChecker struct {
	runtime       ContainerRuntime
	authContainer string
	fallbackPort  int
	networkName   string
	dial          DialFunc
}

// NewDefaultStorageChecker creates a checker.
// fallbackPort should come from DB_PORT, defaulting to 5432.
func NewDefaultStorageChecker(runtime ContainerRuntime, authContainer string, fallbackPort int, networkName string) *DefaultStorageChecker {
	dialer := &net.Dialer{Timeout: util.DefaultTCPTimeout}
	return &DefaultStorageChecker{
		runtime:       runtime,
		authContainer: authContainer,
		fallbackPort:  fallbackPort,
		networkName:   networkName,
		dial:          dialer.DialContext,
	}
}

// CheckReachable parses the config and walks the fallback tiers.
func (c *DefaultStorageChecker) CheckReachable(ctx context.Context, configText string) *StorageCheckResult {
	addr, ok := ParseStorageAddress(configText)
	if !ok {
		return &StorageCheckResult{
			Skipped: true,
			Message: "no connectable storage address in the auth broker config, skipping",
		}
	}

	result := &StorageCheckResult{
		Address:      addr,
		FallbackPort: c.fallbackPort,
	}

	// tier 1: probe from inside the auth broker's network namespace
	if err := c.probeFromContainer(ctx, addr); err == nil {
		result.Reachable = true
		result.Tier = 1
		result.Message = fmt.Sprintf("%s reachable from inside %s", addr, c.authContainer)
		return result
	}

	// tier 2: dial the parsed address from the host
	if conn, err := c.dial(ctx, "tcp", addr.String()); err == nil {
		conn.Close()
		result.Reachable = true
		result.Tier = 2
		result.Message = fmt.Sprintf("%s reachable from the host", addr)
		return result
	}

	// tier 3: dial the fallback port on loopback
	fallbackAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(c.fallbackPort))
	if conn, err := c.dial(ctx, "tcp", fallbackAddr); err == nil {
		conn.Close()
		result.Reachable = true
		result.Tier = 3
		result.Message = fmt.Sprintf("storage reachable on %s (fallback port)", fallbackAddr)
		return result
	}

	result.Message = fmt.Sprintf(
		"storage backend unreachable: tried %s from inside %s, %s from the host, and 127.0.0.1:%d",
		addr, c.authContainer, addr, c.fallbackPort)
	result.Remediation = []string{
		fmt.Sprintf("docker network inspect %s", c.networkName),
		fmt.Sprintf("docker exec %s nc -z -w 3 %s %d", c.authContainer, addr.Host, addr.Port),
	}
	return result
}

// probeFromContainer runs a bounded nc probe inside the auth broker.
func (c *DefaultStorageChecker) probeFromContainer(ctx context.Context, addr *StorageAddress) error {
	probeCtx, cancel := context.WithTimeout(ctx, util.DefaultProcessTimeout)
	defer cancel()
	_, err := c.runtime.Exec(probeCtx, c.authContainer,
		"nc", "-z", "-w", "3", addr.Host, strconv.Itoa(addr.Port))
	return err
}

var _ StorageChecker = (*DefaultStorageChecker)(nil)

// WithDial returns a copy using the given dial function. Test hook.
func (c *DefaultStorageChecker) WithDial(dial DialFunc) *DefaultStorageChecker {
	clone := *c
	clone.dial = dial
	return &clone
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockStorageChecker is a test double returning a canned result.
type MockStorageChecker struct {
	Result             *StorageCheckResult
	CheckReachableFunc func(ctx context.Context, configText string) *StorageCheckResult

	// Calls counts invocations.
	Calls int
}

func (m *MockStorageChecker) CheckReachable(ctx context.Context, configText string) *StorageCheckResult {
	m.Calls++
	if m.CheckReachableFunc != nil {
		return m.CheckReachableFunc(ctx, configText)
	}
	if m.Result == nil {
		panic("MockStorageChecker has neither CheckReachableFunc nor Result")
	}
	return m.Result
}

var _ StorageChecker = (*MockStorageChecker)(nil)
