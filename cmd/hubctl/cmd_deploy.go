// Copyright (C) 2025 LymphHub contributors (ops@lyckabc.xyz)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tojiuni/lymphhub/pkg/ux"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Launch the stack and verify every service came up",
	Long: `Deploy runs the full sequence: preflight checks, secret
provisioning, compose up, container readiness, per-service health
probes, the storage connectivity check, and post-deploy validation.

Exit code 0 means the stack is verified. Exit code 1 means a fatal
condition aborted the run or a critical service failed verification.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ux.Title("LymphHub deploy")

		manager := buildDeployManager()
		opts := DeployOptions{
			SkipHealthChecks: skipChecks,
			SkipPostDeploy:   skipPost,
		}
		if maxWaitSecs > 0 {
			opts.MaxWait = time.Duration(maxWaitSecs) * time.Second
		}

		result, err := manager.Deploy(cmd.Context(), opts)
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("%w: %v", ErrChecksFailed, result.failedCritical())
		}
		return nil
	},
}
