//go:build linux

package vnic

import (
	"context"
	"strings"

	"github.com/datawire/dlib/dexec"
)

func platformDefaultName() string {
	return "tun0"
}

// assignAddress applies the address to the kernel-visible interface and
// brings it up via iproute2, the same utility family the Route Manager uses
// for this platform. The MTU is not set here; tun.CreateTUN applies it.
func assignAddress(name string, cfg Config) error {
	if cfg.Address == "" {
		return nil
	}
	c := context.Background()
	if err := dexec.CommandContext(c, "ip", "addr", "add", cfg.Address, "dev", name).Run(); err != nil {
		if !strings.Contains(err.Error(), "File exists") {
			return err
		}
	}
	return dexec.CommandContext(c, "ip", "link", "set", "dev", name, "up").Run()
}
