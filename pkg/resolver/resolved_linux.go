//go:build linux
// +build linux

package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"github.com/datawire/dlib/dlog"
)

// resolvedLinkAddress matches the array member type SetLinkDNS expects:
// an address family followed by the raw address bytes.
type resolvedLinkAddress struct {
	Dialect int32
	IP      net.IP
}

func withDBus(ctx context.Context, f func(*dbus.Conn) error) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connect to system bus: %w", err)
	}
	defer conn.Close()
	return f(conn)
}

// IsSystemdResolvedRunning reports whether org.freedesktop.resolve1 is
// reachable on the system bus.
func IsSystemdResolvedRunning(ctx context.Context) bool {
	err := withDBus(ctx, func(conn *dbus.Conn) error {
		var names []string
		if err := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
			return err
		}
		for _, name := range names {
			if name == "org.freedesktop.resolve1" {
				return nil
			}
		}
		return errors.New("not found")
	})
	return err == nil
}

// RegisterLink tells systemd-resolved to route lookups for the tunnel
// interface's split-tunnel DNS servers rather than falling back to the
// host's default resolver. Best-effort: callers treat a non-nil error
// as non-fatal, since the stub resolver in this package already serves
// the hostnames this VPN cares about.
func RegisterLink(ctx context.Context, linkIndex int, servers []net.IP) error {
	return withDBus(ctx, func(conn *dbus.Conn) error {
		addrs := make([]resolvedLinkAddress, len(servers))
		for i, ip := range servers {
			addr := &addrs[i]
			switch {
			case ip.To4() != nil:
				addr.Dialect = unix.AF_INET
				addr.IP = ip.To4()
			case len(ip) == net.IPv6len:
				addr.Dialect = unix.AF_INET6
				addr.IP = ip
			default:
				return fmt.Errorf("illegal IP %v (not AF_INET or AF_INET6)", ip)
			}
		}
		err := conn.Object("org.freedesktop.resolve1", "/org/freedesktop/resolve1").CallWithContext(
			ctx, "org.freedesktop.resolve1.Manager.SetLinkDNS", 0, int32(linkIndex), addrs).Err
		if err != nil {
			dlog.Infof(ctx, "resolved: SetLinkDNS failed, continuing with stub resolver only: %v", err)
		}
		return err
	})
}

// RevertLink undoes RegisterLink on disconnect. Best-effort, same as
// RegisterLink.
func RevertLink(ctx context.Context, linkIndex int) error {
	return withDBus(ctx, func(conn *dbus.Conn) error {
		return conn.Object("org.freedesktop.resolve1", "/org/freedesktop/resolve1").CallWithContext(
			ctx, "org.freedesktop.resolve1.Manager.RevertLink", 0, int32(linkIndex)).Err
	})
}
