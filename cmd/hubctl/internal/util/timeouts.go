// Copyright (C) 2025 LymphHub contributors (ops@lyckabc.xyz)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package util

import "time"

// =============================================================================
// Timeout Constants
// =============================================================================

const (
	// MinHTTPTimeout is the absolute minimum for any HTTP probe.
	// Prevents accidental infinite hangs from zero timeouts.
	MinHTTPTimeout = 1 * time.Second

	// MinTCPTimeout is the absolute minimum for TCP connection checks.
	MinTCPTimeout = 500 * time.Millisecond

	// DefaultHTTPTimeout is the standard timeout for HTTP health probes.
	DefaultHTTPTimeout = 5 * time.Second

	// DefaultTCPTimeout is the standard timeout for TCP connectivity checks.
	DefaultTCPTimeout = 3 * time.Second

	// DefaultProcessTimeout is the standard timeout for docker invocations
	// other than compose up, which builds images and needs far longer.
	DefaultProcessTimeout = 60 * time.Second

	// DefaultComposeUpTimeout bounds the initial compose up, including
	// image builds on a cold cache.
	DefaultComposeUpTimeout = 15 * time.Minute
)

// EnforceMinTimeout clamps requested to at least minimum.
func EnforceMinTimeout(requested, minimum time.Duration) time.Duration {
	if requested < minimum {
		return minimum
	}
	return requested
}

// EnforceDefaultTimeout substitutes defaultVal when requested is unset.
func EnforceDefaultTimeout(requested, defaultVal time.Duration) time.Duration {
	if requested <= 0 {
		return defaultVal
	}
	return requested
}
