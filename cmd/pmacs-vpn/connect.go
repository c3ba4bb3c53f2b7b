package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/DrivasLab/pmacs-utils/pkg/config"
	"github.com/DrivasLab/pmacs-utils/pkg/gpauth"
	"github.com/DrivasLab/pmacs-utils/pkg/orchestrator"
	"github.com/DrivasLab/pmacs-utils/pkg/snapshot"
)

func connectCommand() *cobra.Command {
	var user string
	var aggressiveKeepalive bool

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to the VPN with split-tunneling",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfigOrDefault()
			if err != nil {
				return err
			}
			dlog.Infof(ctx, "connecting to %s", cfg.VPN.Gateway)

			prompt := func(ctx context.Context, pre *gpauth.PreloginResult) (string, string, string, error) {
				return promptCredentials(cmd, pre, user)
			}

			aggressive := cfg.VPN.AggressiveKeepalive || aggressiveKeepalive

			return orchestrator.Connect(ctx, cfg.VPN.Gateway, cfg.Hosts, orchestrator.Deps{
				Prompt:              prompt,
				SnapshotPath:        snapshot.DefaultPath(),
				AggressiveKeepalive: aggressive,
			})
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "username for VPN authentication")
	cmd.Flags().BoolVar(&aggressiveKeepalive, "aggressive-keepalive", false, "send keepalive frames every 10s instead of the default 30s")
	return cmd
}

// promptCredentials asks for a username (if not already given via --user)
// and a password read without echo. It does not prompt for an MFA passcode;
// the returned passcode is always empty. Credential
// prompting is an external collaborator per spec.md §1; this is the
// minimal terminal-based implementation a CLI binary needs to exercise
// the core.
func promptCredentials(cmd *cobra.Command, pre *gpauth.PreloginResult, presetUser string) (string, string, string, error) {
	out := cmd.OutOrStdout()
	reader := bufio.NewReader(cmd.InOrStdin())

	username := presetUser
	if username == "" {
		fmt.Fprintf(out, "%s: ", pre.LabelUsername)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", "", err
		}
		username = trimNewline(line)
	}

	fmt.Fprintf(out, "%s: ", pre.LabelPassword)
	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", "", "", err
	}

	return username, string(passwordBytes), "", nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func loadConfigOrDefault() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	home, _ := os.UserHomeDir()
	if path := config.Locate(cwd, home); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}
