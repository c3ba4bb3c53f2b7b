//go:build darwin

package vnic

import (
	"context"
	"strings"

	"github.com/datawire/dlib/dexec"
)

func platformDefaultName() string {
	// Empty name asks wireguard-go's NativeTun to pick the next free
	// utunN device; callers read back the real name via Nic.Name.
	return ""
}

// assignAddress uses ifconfig to give the utunN device a point-to-point
// address, matching how the gateway describes the tunnel: a /32 local
// address with itself as the peer. wireguard-go's NativeTun already
// strips/prepends the 4-byte address-family prefix utun devices carry on
// the wire, so the Virtual NIC contract above never sees it.
func assignAddress(name string, cfg Config) error {
	if cfg.Address == "" {
		return nil
	}
	addr := cfg.Address
	if idx := strings.IndexByte(addr, '/'); idx >= 0 {
		addr = addr[:idx]
	}
	c := context.Background()
	return dexec.CommandContext(c, "ifconfig", name, "inet", addr, addr, "up").Run()
}
