// Copyright (C) 2025 LymphHub contributors (ops@lyckabc.xyz)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tojiuni/lymphhub/cmd/hubctl/config"
	"github.com/tojiuni/lymphhub/pkg/ux"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe a running stack without deploying",
	Long: `Check runs the health probes and the storage connectivity check
against an already-running stack. Useful after manual compose
operations or as a cron-driven liveness sweep.

Exit code 1 when any critical service is unreachable or the storage
backend cannot be reached.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &config.Global
		runtime := buildRuntime()

		failed := false
		for _, prober := range buildProbers(runtime) {
			result := prober.Probe(cmd.Context())

			icon := ux.IconSuccess
			switch result.State {
			case StateDegraded:
				icon = ux.IconWarning
			case StateUnreachable:
				icon = ux.IconError
				if result.Critical {
					failed = true
				}
			}
			ux.ServiceStatus(result.Service, icon, result.Message)
		}

		storage := NewDefaultStorageChecker(runtime, cfg.Services.AuthBroker,
			appEnv.DBPort, appEnv.NetworkName)
		configText, err := os.ReadFile(cfg.Project.AutheliaConfig)
		if err != nil {
			ux.Warning(fmt.Sprintf("cannot read %s, skipping storage check", cfg.Project.AutheliaConfig))
		} else {
			result := storage.CheckReachable(cmd.Context(), string(configText))
			icon := ux.IconSuccess
			if !result.Skipped && !result.Reachable {
				icon = ux.IconError
				failed = true
			}
			ux.ServiceStatus("storage", icon, result.Message)
			for _, remedy := range result.Remediation {
				ux.Muted("  try: " + remedy)
			}
		}

		if failed {
			return fmt.Errorf("%w: see the report above", ErrChecksFailed)
		}
		return nil
	},
}
