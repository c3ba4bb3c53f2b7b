package main

import (
	"github.com/spf13/cobra"

	"github.com/DrivasLab/pmacs-utils/pkg/orchestrator"
	"github.com/DrivasLab/pmacs-utils/pkg/scriptenv"
	"github.com/DrivasLab/pmacs-utils/pkg/snapshot"
)

// scriptCommand implements the script-mode contract (spec.md §6): invoked
// by a third-party VPN client (e.g. `openconnect ... -s 'pmacs-vpn
// script'`) with connection details passed through the environment. Do
// not call this directly.
func scriptCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "script",
		Short:  "Script mode for use as an external VPN client's connect/disconnect helper",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := scriptenv.FromOSEnv()
			if err != nil {
				return err
			}
			cfg, err := loadConfigOrDefault()
			if err != nil {
				return err
			}
			return orchestrator.RunScript(cmd.Context(), env, cfg, snapshot.DefaultPath())
		},
	}
}
