package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/DrivasLab/pmacs-utils/pkg/config"
	"github.com/DrivasLab/pmacs-utils/pkg/hostsoverlay"
	"github.com/DrivasLab/pmacs-utils/pkg/vpnerr"
)

// initCommand is a preflight check plus default-config generator,
// grounded on original_source/src/main.rs's Init arm.
func initCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate a default config file and check the environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			path := "pmacs-vpn.toml"
			if _, err := os.Stat(path); err == nil {
				fmt.Fprintf(out, "config already exists: %s\n", path)
			} else {
				if err := config.Save(config.Default(), path); err != nil {
					return err
				}
				fmt.Fprintf(out, "created default config: %s\n", path)
			}

			if err := checkHostsWritable(); err != nil {
				fmt.Fprintf(out, "warning: hosts file not writable: %v\n", err)
			} else {
				fmt.Fprintln(out, "hosts file is writable")
			}

			for _, tool := range routingTools() {
				if _, err := exec.LookPath(tool); err != nil {
					fmt.Fprintf(out, "warning: %s not found on PATH\n", tool)
				} else {
					fmt.Fprintf(out, "%s found on PATH\n", tool)
				}
			}
			return nil
		},
	}
}

func checkHostsWritable() error {
	path := hostsoverlay.DefaultPath()
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return vpnerr.ConfigInvalid.Newf("init: %w", err)
	}
	return f.Close()
}

func routingTools() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"route", "ifconfig"}
	case "windows":
		return []string{"route", "netsh"}
	default:
		return []string{"ip"}
	}
}
