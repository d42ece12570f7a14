// Copyright (C) 2025 LymphHub contributors (ops@lyckabc.xyz)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

type HubConfig struct {
	// Project: compose project identity and on-disk layout
	Project ProjectConfig `yaml:"project"`

	// Services: container names of the managed stack
	Services ServicesConfig `yaml:"services"`

	// Endpoints: URLs probed after launch
	Endpoints EndpointsConfig `yaml:"endpoints"`

	// Readiness: polling bounds for container convergence
	Readiness ReadinessConfig `yaml:"readiness"`

	// Diagnostics: log capture settings on failure
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

type ProjectConfig struct {
	Name           string `yaml:"name"`            // compose project name, e.g. lymphhub
	ComposeFile    string `yaml:"compose_file"`    // e.g. docker-compose.yml
	EnvFile        string `yaml:"env_file"`        // e.g. .env
	SecretsDir     string `yaml:"secrets_dir"`     // e.g. secrets
	AutheliaConfig string `yaml:"authelia_config"` // e.g. authelia/configuration.yml
	UsersDatabase  string `yaml:"users_database"`  // e.g. authelia/users_database.yml
}

type ServicesConfig struct {
	Proxy      string `yaml:"proxy"`       // reverse proxy, e.g. traefik
	AuthBroker string `yaml:"auth_broker"` // forward-auth broker, e.g. authelia
	Overlay    string `yaml:"overlay"`     // overlay-network coordinator, e.g. headscale
	Storage    string `yaml:"storage"`     // storage backend, e.g. postgres
	Backend    string `yaml:"backend"`     // portal API, e.g. lymphhub-backend
}

type EndpointsConfig struct {
	ProxyHTTP      string `yaml:"proxy_http"`      // e.g. http://localhost:80/
	ProxyAdmin     string `yaml:"proxy_admin"`     // e.g. http://localhost:8080/api/overview
	AuthBroker     string `yaml:"auth_broker"`     // e.g. http://localhost:9091/
	OverlayMetrics string `yaml:"overlay_metrics"` // e.g. http://localhost:9090/metrics
	Backend        string `yaml:"backend"`         // e.g. http://localhost:8000/api/health
}

type ReadinessConfig struct {
	MaxWaitSeconds      int `yaml:"max_wait_seconds"`      // e.g. 120
	PollIntervalSeconds int `yaml:"poll_interval_seconds"` // e.g. 5
}

type DiagnosticsConfig struct {
	LogTailLines int `yaml:"log_tail_lines"` // e.g. 20
}

// DefaultConfig returns the stock LymphHub stack layout.
func DefaultConfig() HubConfig {
	return HubConfig{
		Project: ProjectConfig{
			Name:           "lymphhub",
			ComposeFile:    "docker-compose.yml",
			EnvFile:        ".env",
			SecretsDir:     "secrets",
			AutheliaConfig: "authelia/configuration.yml",
			UsersDatabase:  "authelia/users_database.yml",
		},
		Services: ServicesConfig{
			Proxy:      "traefik",
			AuthBroker: "authelia",
			Overlay:    "headscale",
			Storage:    "postgres",
			Backend:    "lymphhub-backend",
		},
		Endpoints: EndpointsConfig{
			ProxyHTTP:      "http://localhost:80/",
			ProxyAdmin:     "http://localhost:8080/api/overview",
			AuthBroker:     "http://localhost:9091/",
			OverlayMetrics: "http://localhost:9090/metrics",
			Backend:        "http://localhost:8000/api/health",
		},
		Readiness: ReadinessConfig{
			MaxWaitSeconds:      120,
			PollIntervalSeconds: 5,
		},
		Diagnostics: DiagnosticsConfig{
			LogTailLines: 20,
		},
	}
}
