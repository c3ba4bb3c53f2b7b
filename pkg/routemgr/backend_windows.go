//go:build windows

package routemgr

import (
	"context"
	"net"
	"strings"

	"github.com/datawire/dlib/dexec"
)

type windowsBackend struct{}

func newPlatformBackend() backend { return windowsBackend{} }

// addRoute uses on-link routing (mask 255.255.255.255, metric 1) bound to
// an interface index when one resolved, falling back to gateway-based
// routing otherwise. via holds either the resolved interface index (as a
// string) or a next-hop gateway address, decided by boundToInterface.
func (windowsBackend) addRoute(ctx context.Context, dest net.IP, via string, boundToInterface bool) error {
	var args []string
	if boundToInterface {
		args = []string{"add", dest.String(), "mask", "255.255.255.255", "0.0.0.0", "metric", "1", "if", via}
	} else {
		args = []string{"add", dest.String(), "mask", "255.255.255.255", via}
	}
	out, err := dexec.CommandContext(ctx, "route", args...).CombinedOutput()
	s := strings.ToLower(string(out))
	// "The object already exists" means the route is already there - not a
	// fatal error.
	if strings.Contains(s, "already exists") {
		return nil
	}
	if err != nil {
		return err
	}
	// route.exe on Windows can report failure via stdout rather than a
	// non-zero exit in some shells; treat an explicit error string as
	// failure even on "success" exit.
	if strings.Contains(s, "the route addition failed") {
		return errString(string(out))
	}
	return nil
}

func (windowsBackend) deleteRoute(ctx context.Context, dest net.IP) error {
	out, err := dexec.CommandContext(ctx, "route", "delete", dest.String()).CombinedOutput()
	if err != nil {
		s := strings.ToLower(string(out))
		if strings.Contains(s, "not found") || strings.Contains(s, "no such") {
			return nil
		}
		return err
	}
	return nil
}

// resolveInterfaceIndex shells out to PowerShell's Get-NetAdapter, the
// only reliable name->index lookup on Windows for a wintun-managed
// adapter.
func (windowsBackend) resolveInterfaceIndex(ctx context.Context, name string) (string, bool) {
	script := "Get-NetAdapter -Name '" + name + "' -ErrorAction SilentlyContinue | Select-Object -ExpandProperty ifIndex"
	out, err := dexec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", script).CombinedOutput()
	if err != nil {
		return "", false
	}
	idx := strings.TrimSpace(string(out))
	if idx == "" {
		return "", false
	}
	return idx, true
}

type errString string

func (e errString) Error() string { return string(e) }
