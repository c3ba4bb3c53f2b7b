//go:build linux

package routemgr

import (
	"context"
	"net"
	"strings"

	"github.com/datawire/dlib/dexec"
)

type linuxBackend struct{}

func newPlatformBackend() backend { return linuxBackend{} }

func (linuxBackend) addRoute(ctx context.Context, dest net.IP, via string, boundToInterface bool) error {
	args := []string{"route", "add", dest.String()}
	if boundToInterface {
		args = append(args, "dev", via)
	} else {
		args = append(args, "via", via)
	}
	out, err := dexec.CommandContext(ctx, "ip", args...).CombinedOutput()
	if err != nil {
		if strings.Contains(string(out), "File exists") {
			return nil
		}
		return err
	}
	return nil
}

func (linuxBackend) deleteRoute(ctx context.Context, dest net.IP) error {
	out, err := dexec.CommandContext(ctx, "ip", "route", "delete", dest.String()).CombinedOutput()
	if err != nil {
		s := string(out)
		if strings.Contains(s, "No such process") || strings.Contains(s, "not found") {
			return nil
		}
		return err
	}
	return nil
}

func (linuxBackend) resolveInterfaceIndex(ctx context.Context, name string) (string, bool) {
	// iproute2 accepts interface names directly (ip route ... dev <name>),
	// so there's no name->index translation needed on this platform.
	return name, true
}
