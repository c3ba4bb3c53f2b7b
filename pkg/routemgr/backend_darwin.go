//go:build darwin

package routemgr

import (
	"context"
	"net"
	"strings"

	"github.com/datawire/dlib/dexec"
)

type darwinBackend struct{}

func newPlatformBackend() backend { return darwinBackend{} }

func (darwinBackend) addRoute(ctx context.Context, dest net.IP, via string, boundToInterface bool) error {
	args := []string{"-n", "add", "-host", dest.String()}
	if boundToInterface {
		args = append(args, "-interface", via)
	} else {
		args = append(args, via)
	}
	out, err := dexec.CommandContext(ctx, "route", args...).CombinedOutput()
	if err != nil {
		// "File exists" means the route already exists - not a fatal error.
		if strings.Contains(string(out), "File exists") {
			return nil
		}
		return err
	}
	return nil
}

func (darwinBackend) deleteRoute(ctx context.Context, dest net.IP) error {
	out, err := dexec.CommandContext(ctx, "route", "-n", "delete", "-host", dest.String()).CombinedOutput()
	if err != nil {
		// "not in table" means the route doesn't exist - not a fatal error
		// during cleanup.
		if strings.Contains(string(out), "not in table") {
			return nil
		}
		return err
	}
	return nil
}

func (darwinBackend) resolveInterfaceIndex(ctx context.Context, name string) (string, bool) {
	// BSD route(8) addresses interfaces by name, not index.
	return name, true
}
