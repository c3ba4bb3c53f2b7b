//go:build windows

package vnic

import (
	"context"
	"strings"

	"github.com/datawire/dlib/dexec"
)

func platformDefaultName() string {
	return "pmacs-vpn"
}

// assignAddress applies the address via netsh, the common denominator for
// wintun-backed adapters (the adapter itself has no notion of IP
// configuration; Windows assigns it like any other NIC).
func assignAddress(name string, cfg Config) error {
	if cfg.Address == "" {
		return nil
	}
	addr := cfg.Address
	mask := "255.255.255.255"
	if idx := strings.IndexByte(addr, '/'); idx >= 0 {
		addr = addr[:idx]
	}
	c := context.Background()
	return dexec.CommandContext(c, "netsh", "interface", "ip", "set", "address",
		"name="+name, "static", addr, mask).Run()
}
