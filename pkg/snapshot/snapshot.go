// Package snapshot persists the CleanupSnapshot: a record of everything a
// session mutated (routes, hosts entries, the tunnel device) so that a
// crashed or killed process can still be cleaned up afterward.
package snapshot

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/DrivasLab/pmacs-utils/pkg/vpnerr"
)

// RouteEntry records a single installed host route.
type RouteEntry struct {
	Hostname string `json:"hostname"`
	IP       string `json:"ip"`
}

// HostsEntry records a single installed hosts-overlay line.
type HostsEntry struct {
	Hostname string `json:"hostname"`
	IP       string `json:"ip"`
}

// Snapshot is the on-disk cleanup record. Readers MUST tolerate snapshots
// written by an earlier version of this tool: unknown fields are ignored,
// and only the fields actually required for cleanup (TunnelDevice,
// Gateway) cause Load to fail if absent. AuthCookie is deliberately never
// a field here — it must never reach disk.
type Snapshot struct {
	SessionID    string       `json:"session_id,omitempty"`
	TunnelDevice string       `json:"tunnel_device"`
	Gateway      string       `json:"gateway"`
	Routes       []RouteEntry `json:"routes"`
	HostsEntries []HostsEntry `json:"hosts_entries"`
	PID          *int         `json:"pid,omitempty"`
	ConnectedAt  time.Time    `json:"connected_at"`
}

// DefaultPath returns the well-known path for the singleton snapshot
// file, under the platform's standard per-user state directory.
func DefaultPath() string {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	name := "pmacs-vpn-session.json"
	if runtime.GOOS == "windows" {
		return filepath.Join(base, "pmacs-vpn", name)
	}
	return filepath.Join(base, "pmacs-vpn", name)
}

// Save persists the snapshot atomically (write-temp-then-rename) while
// holding an advisory exclusive lock on the target file, so a concurrent
// writer never observes or produces a torn file.
func Save(path string, snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return vpnerr.StatePersist.Newf("snapshot: mkdir: %w", err)
	}

	lock, err := acquireLock(path)
	if err != nil {
		return vpnerr.StatePersist.Newf("snapshot: acquire lock: %w", err)
	}
	defer lock.release()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return vpnerr.StatePersist.Newf("snapshot: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return vpnerr.StatePersist.Newf("snapshot: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return vpnerr.StatePersist.Newf("snapshot: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return vpnerr.StatePersist.Newf("snapshot: close: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return vpnerr.StatePersist.Newf("snapshot: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return vpnerr.StatePersist.Newf("snapshot: rename: %w", err)
	}
	return nil
}

// Load reads and parses the snapshot at path. Unknown JSON fields are
// silently ignored by encoding/json; Load only rejects a document missing
// TunnelDevice or Gateway, the two fields cleanup cannot proceed without.
func Load(path string) (*Snapshot, error) {
	lock, err := acquireLock(path)
	if err != nil {
		return nil, vpnerr.StatePersist.Newf("snapshot: acquire lock: %w", err)
	}
	defer lock.release()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, vpnerr.StatePersist.Newf("snapshot: read: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, vpnerr.StatePersist.Newf("snapshot: parse: %w", err)
	}
	if snap.TunnelDevice == "" {
		return nil, vpnerr.StatePersist.New("snapshot: missing tunnel_device")
	}
	if snap.Gateway == "" {
		return nil, vpnerr.StatePersist.New("snapshot: missing gateway")
	}
	return &snap, nil
}

// Delete removes the snapshot file. It is not an error for the file to
// already be absent.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return vpnerr.StatePersist.Newf("snapshot: delete: %w", err)
	}
	return nil
}

// Exists reports whether a snapshot file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// NewFromRoutes builds a Snapshot pairing each resolved hostname/IP into
// both the routes and hosts_entries lists, since the spec's invariant
// ties a hostname's route and hosts entry together. sessionID is the
// session's correlation ID, stored in the snapshot and shown by `status`;
// pass "" to have one generated.
func NewFromRoutes(sessionID, tunnelDevice, gateway string, resolved map[string]net.IP, pid *int) *Snapshot {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	routes := make([]RouteEntry, 0, len(resolved))
	hosts := make([]HostsEntry, 0, len(resolved))
	for name, ip := range resolved {
		routes = append(routes, RouteEntry{Hostname: name, IP: ip.String()})
		hosts = append(hosts, HostsEntry{Hostname: name, IP: ip.String()})
	}
	return &Snapshot{
		SessionID:    sessionID,
		TunnelDevice: tunnelDevice,
		Gateway:      gateway,
		Routes:       routes,
		HostsEntries: hosts,
		PID:          pid,
		ConnectedAt:  time.Now().UTC(),
	}
}
