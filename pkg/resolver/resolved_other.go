//go:build !linux
// +build !linux

package resolver

import (
	"context"
	"net"
)

// IsSystemdResolvedRunning is always false outside Linux.
func IsSystemdResolvedRunning(ctx context.Context) bool { return false }

// RegisterLink is a no-op outside Linux; only systemd-resolved speaks
// this D-Bus API.
func RegisterLink(ctx context.Context, linkIndex int, servers []net.IP) error { return nil }

// RevertLink is a no-op outside Linux.
func RevertLink(ctx context.Context, linkIndex int) error { return nil }
