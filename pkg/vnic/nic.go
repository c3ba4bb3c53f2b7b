// Package vnic presents a single-packet, cooperative read/write/close
// contract over a platform TUN device, adapting the batched
// golang.zx2c4.com/wireguard/tun.Device interface down to the "one call,
// one packet" shape the tunnel session expects.
package vnic

import (
	"context"
	"fmt"

	"golang.zx2c4.com/wireguard/tun"

	"github.com/DrivasLab/pmacs-utils/pkg/vpnerr"
)

// Config describes the address/MTU a newly created TUN device should be
// assigned. Address assignment itself is platform-specific and is done by
// this package's per-platform assignAddress after the OS device is created.
type Config struct {
	MTU        int
	Address    string // CIDR, e.g. "10.0.1.100/32"
	DNS        []string
	PreferName string // hint only; platforms may assign a different name
}

// Nic is the Virtual NIC contract from the component design: create,
// name/mtu introspection, single-packet read/write, and idempotent close.
type Nic struct {
	dev  tun.Device
	name string
	mtu  int

	// single-packet batched-read/write staging buffers reused across
	// calls to avoid per-packet allocation.
	readBufs  [][]byte
	readSizes []int
	writeBufs [][]byte
}

// Create opens a new platform TUN device and wraps it for single-packet
// I/O. It fails with NicUnavailable if the driver/privileges are missing
// and NicConfig if the requested MTU can't be applied.
func Create(cfg Config) (*Nic, error) {
	name := cfg.PreferName
	if name == "" {
		name = platformDefaultName()
	}
	dev, err := tun.CreateTUN(name, cfg.MTU)
	if err != nil {
		return nil, vpnerr.NicUnavailable.Newf("vnic: create %q: %w", name, err)
	}
	actualName, err := dev.Name()
	if err != nil {
		_ = dev.Close()
		return nil, vpnerr.NicUnavailable.Newf("vnic: read device name: %w", err)
	}
	mtu, err := dev.MTU()
	if err != nil {
		_ = dev.Close()
		return nil, vpnerr.NicConfig.Newf("vnic: read mtu: %w", err)
	}
	n := &Nic{
		dev:       dev,
		name:      actualName,
		mtu:       mtu,
		readBufs:  [][]byte{make([]byte, mtu+128)},
		readSizes: []int{0},
		writeBufs: [][]byte{nil},
	}
	if err := assignAddress(actualName, cfg); err != nil {
		_ = dev.Close()
		return nil, vpnerr.NicConfig.Newf("vnic: assign address on %s: %w", actualName, err)
	}
	return n, nil
}

// Name returns the OS-assigned device name, e.g. "utun9", "tun0", or a
// wintun-managed adapter name.
func (n *Nic) Name() string { return n.name }

// MTU returns the MTU the device was actually created with.
func (n *Nic) MTU() int { return n.mtu }

// Read blocks until a single L3 packet is available and returns it copied
// into buf, returning the number of bytes written. It is cancellable via
// ctx; on cancellation it returns ctx.Err().
func (n *Nic) Read(ctx context.Context, buf []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n.readBufs[0] = n.readBufs[0][:cap(n.readBufs[0])]
		count, err := n.dev.Read(n.readBufs, n.readSizes, 0)
		if err != nil || count == 0 {
			done <- result{0, err}
			return
		}
		sz := n.readSizes[0]
		done <- result{sz, nil}
	}()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return 0, vpnerr.IoError.Newf("vnic: read: %w", r.err)
		}
		if r.n > 0 {
			copy(buf, n.readBufs[0][:r.n])
		}
		return r.n, nil
	}
}

// Write sends a single L3 packet to the kernel. Writes are atomic per
// call: the whole packet is accepted or the call fails.
func (n *Nic) Write(ctx context.Context, packet []byte) error {
	done := make(chan error, 1)
	go func() {
		n.writeBufs[0] = packet
		_, err := n.dev.Write(n.writeBufs, 0)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return vpnerr.IoError.Newf("vnic: write: %w", err)
		}
		return nil
	}
}

// Close releases the OS device. It is safe to call more than once and
// safe to call after a failed Create (Create never returns a non-nil *Nic
// on error, so this only guards double-close by callers).
func (n *Nic) Close() error {
	if n == nil || n.dev == nil {
		return nil
	}
	err := n.dev.Close()
	n.dev = nil
	if err != nil {
		return fmt.Errorf("vnic: close: %w", err)
	}
	return nil
}
