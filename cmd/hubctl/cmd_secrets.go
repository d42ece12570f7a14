// Copyright (C) 2025 LymphHub contributors (ops@lyckabc.xyz)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tojiuni/lymphhub/cmd/hubctl/config"
	"github.com/tojiuni/lymphhub/pkg/ux"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage the stack's secret files",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print(GetSetupInstructions(config.Global.Project.SecretsDir))
		return nil
	},
}

var secretsEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Create any missing secret files without touching existing ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		provisioner := NewDefaultSecretProvisioner(
			config.Global.Project.SecretsDir, appEnv.DBPassword)

		report, err := provisioner.EnsureSecrets(cmd.Context())
		if err != nil {
			return err
		}

		for _, secret := range report.Secrets {
			icon := ux.IconSuccess
			if secret.Source == SourcePreExisting {
				icon = ux.IconPending
			}
			ux.ServiceStatus(secret.Name, icon, string(secret.Source))
		}
		for _, warning := range report.Warnings {
			ux.Warning(warning)
		}
		if report.Changed() {
			ux.Success(fmt.Sprintf("created %d secret file(s)", report.Created))
		} else {
			ux.Muted("all secrets already present")
		}
		return nil
	},
}
