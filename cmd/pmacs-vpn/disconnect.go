package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/DrivasLab/pmacs-utils/pkg/hostsoverlay"
	"github.com/DrivasLab/pmacs-utils/pkg/routemgr"
	"github.com/DrivasLab/pmacs-utils/pkg/snapshot"
)

func disconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Disconnect from the VPN and clean up routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := snapshot.DefaultPath()
			if !snapshot.Exists(path) {
				fmt.Fprintln(cmd.OutOrStdout(), "not connected")
				return nil
			}
			snap, err := snapshot.Load(path)
			if err != nil {
				return err
			}

			routeMgr := routemgr.New()
			routeMgr.BindToInterface(ctx, snap.TunnelDevice)
			for _, r := range snap.Routes {
				if ip := net.ParseIP(r.IP); ip != nil {
					_ = routeMgr.DeleteRoute(ctx, ip)
				}
			}
			if len(snap.HostsEntries) > 0 {
				_ = hostsoverlay.New().Revert()
			}
			if err := snapshot.Delete(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "disconnected")
			return nil
		},
	}
}
