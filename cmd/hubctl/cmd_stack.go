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

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of every stack container",
	RunE: func(cmd *cobra.Command, args []string) error {
		runtime := buildRuntime()
		snapshot, err := NewRuntimeSnapshotSource(runtime).Snapshot(cmd.Context())
		if err != nil {
			return err
		}
		if len(snapshot) == 0 {
			ux.Muted("no containers found; run 'hubctl deploy' first")
			return nil
		}

		for name, state := range snapshot {
			icon := ux.IconSuccess
			if state != "running" {
				icon = ux.IconError
			}
			detail := state
			if health, err := runtime.ContainerHealth(cmd.Context(), name); err == nil && health != "" {
				detail = fmt.Sprintf("%s, healthcheck %s", state, health)
				if health != "healthy" && icon == ux.IconSuccess {
					icon = ux.IconWarning
				}
			}
			ux.ServiceStatus(name, icon, detail)
		}
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [service...]",
	Short: "Print recent log lines per service",
	Long: `Without arguments, prints the log tail of every managed service.
Pass service names to narrow the output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		runtime := buildRuntime()
		reporter := NewDefaultDiagnosticReporter(runtime, tailLinesN, appLog)

		services := args
		if len(services) == 0 {
			s := config.Global.Services
			services = []string{s.Proxy, s.AuthBroker, s.Overlay, s.Storage, s.Backend}
		}
		reporter.DumpLogs(cmd.Context(), os.Stdout, services)
		return nil
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop and remove the stack's containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := buildRuntime().ComposeDown(cmd.Context()); err != nil {
			return err
		}
		ux.Success("stack stopped")
		return nil
	},
}
