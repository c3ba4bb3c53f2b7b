package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/DrivasLab/pmacs-utils/pkg/snapshot"
)

// statusCommand reads the persisted CleanupSnapshot without connecting,
// grounded on original_source/src/main.rs's Status arm.
func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show current VPN status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := snapshot.DefaultPath()
			if !snapshot.Exists(path) {
				fmt.Fprintln(out, "VPN Status: Not connected")
				return nil
			}
			snap, err := snapshot.Load(path)
			if err != nil {
				fmt.Fprintf(out, "VPN Status: error reading state: %v\n", err)
				return nil
			}
			fmt.Fprintln(out, "VPN Status: Connected")
			if snap.SessionID != "" {
				fmt.Fprintf(out, "  Session: %s\n", snap.SessionID)
			}
			fmt.Fprintf(out, "  Tunnel: %s\n", snap.TunnelDevice)
			fmt.Fprintf(out, "  Gateway: %s\n", snap.Gateway)
			fmt.Fprintf(out, "  Connected: %s ago\n", time.Since(snap.ConnectedAt).Round(time.Second))
			fmt.Fprintf(out, "  Routes: %d\n", len(snap.Routes))
			for _, r := range snap.Routes {
				fmt.Fprintf(out, "    %s -> %s\n", r.Hostname, r.IP)
			}
			fmt.Fprintf(out, "  Hosts entries: %d\n", len(snap.HostsEntries))
			return nil
		},
	}
}
