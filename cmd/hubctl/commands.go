// Copyright (C) 2025 LymphHub contributors (ops@lyckabc.xyz)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tojiuni/lymphhub/cmd/hubctl/config"
	"github.com/tojiuni/lymphhub/pkg/logging"
)

// --- Global Command Variables ---
var (
	configPath  string
	envPath     string
	logLevel    string
	maxWaitSecs int
	skipChecks  bool
	skipPost    bool
	tailLinesN  int

	appLog *logging.Logger
	appEnv *config.Env

	rootCmd = &cobra.Command{
		Use:   "hubctl",
		Short: "A cli to deploy and verify the LymphHub service stack",
		Long: `hubctl manages the LymphHub stack: the traefik reverse proxy,
the authelia forward-auth broker, the headscale overlay coordinator,
and their postgres storage backend, all through docker compose.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(configPath); err != nil {
				return err
			}
			env, err := config.LoadEnv(envPath)
			if err != nil {
				return err
			}
			appEnv = env
			appLog = logging.New(logging.Config{
				Level:   logging.ParseLevel(logLevel),
				Service: "hubctl",
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if appLog != nil {
				appLog.Close()
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "hubctl.yaml",
		"stack config file (optional, defaults cover the stock layout)")
	rootCmd.PersistentFlags().StringVar(&envPath, "env-file", ".env",
		"deployment environment file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level: debug, info, warn, error")

	deployCmd.Flags().IntVar(&maxWaitSecs, "max-wait", 0,
		"override the readiness budget in seconds")
	deployCmd.Flags().BoolVar(&skipChecks, "skip-checks", false,
		"launch and wait for readiness but skip health and storage checks")
	deployCmd.Flags().BoolVar(&skipPost, "skip-post-deploy", false,
		"skip auth config validation and overlay user setup")

	logsCmd.Flags().IntVar(&tailLinesN, "tail", 20, "lines per service")

	secretsCmd.AddCommand(secretsEnsureCmd)
	rootCmd.AddCommand(deployCmd, statusCmd, logsCmd, downCmd, secretsCmd, checkCmd)
}

// =============================================================================
// Wiring
// =============================================================================

// buildRuntime wires the docker layer from the loaded config.
func buildRuntime() ContainerRuntime {
	cfg := &config.Global
	return NewDockerRuntime(NewDefaultProcessManager(), cfg.Project.ComposeFile, cfg.Project.Name)
}

// buildProbers wires one prober per managed service.
func buildProbers(runtime ContainerRuntime) []HealthProber {
	cfg := &config.Global
	client := newProbeClient(5 * time.Second)
	return []HealthProber{
		NewProxyProber(client, cfg.Services.Proxy,
			cfg.Endpoints.ProxyHTTP, cfg.Endpoints.ProxyAdmin),
		NewAuthBrokerProber(client, cfg.Services.AuthBroker,
			cfg.Endpoints.AuthBroker),
		NewOverlayProber(runtime, client, cfg.Services.Overlay,
			cfg.Services.Overlay, cfg.Endpoints.OverlayMetrics),
		NewEndpointProber(client, cfg.Services.Backend,
			cfg.Endpoints.Backend, false),
	}
}

// buildDeployManager wires the full verification sequence.
func buildDeployManager() *DefaultDeployManager {
	cfg := &config.Global
	proc := NewDefaultProcessManager()
	runtime := NewDockerRuntime(proc, cfg.Project.ComposeFile, cfg.Project.Name)
	secrets := NewDefaultSecretProvisioner(cfg.Project.SecretsDir, appEnv.DBPassword)
	preflight := NewDefaultPreflightChecker(cfg, appEnv, proc, runtime, secrets, appLog)
	waiter := NewDefaultReadinessWaiter(NewRuntimeSnapshotSource(runtime))
	storage := NewDefaultStorageChecker(runtime, cfg.Services.AuthBroker,
		appEnv.DBPort, appEnv.NetworkName)
	validator := NewDefaultPostDeployValidator(runtime, cfg.Services.AuthBroker,
		cfg.Services.Overlay, "/config/configuration.yml")
	diagnostics := NewDefaultDiagnosticReporter(runtime, cfg.Diagnostics.LogTailLines, appLog)

	return NewDefaultDeployManager(cfg, appEnv, runtime, preflight, waiter,
		buildProbers(runtime), storage, validator, diagnostics, appLog)
}
