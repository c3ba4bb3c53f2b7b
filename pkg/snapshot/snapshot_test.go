package snapshot

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempSnapshotPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "session.json")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := tempSnapshotPath(t)
	pid := 4242
	snap := NewFromRoutes("", "utun9", "vpn.example.com", map[string]net.IP{
		"service.example.com": net.ParseIP("10.0.1.5"),
	}, &pid)
	assert.NotEmpty(t, snap.SessionID)

	require.NoError(t, Save(path, snap))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, snap.SessionID, loaded.SessionID)
	assert.Equal(t, "utun9", loaded.TunnelDevice)
	assert.Equal(t, "vpn.example.com", loaded.Gateway)
	require.Len(t, loaded.Routes, 1)
	assert.Equal(t, "service.example.com", loaded.Routes[0].Hostname)
	assert.Equal(t, "10.0.1.5", loaded.Routes[0].IP)
	require.Len(t, loaded.HostsEntries, 1)
	require.NotNil(t, loaded.PID)
	assert.Equal(t, 4242, *loaded.PID)
}

func TestLoadToleratesUnknownFields(t *testing.T) {
	path := tempSnapshotPath(t)
	raw := `{
		"tunnel_device": "utun9",
		"gateway": "vpn.example.com",
		"routes": [],
		"hosts_entries": [],
		"connected_at": "2026-01-01T00:00:00Z",
		"future_field_v2": {"nested": true}
	}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "utun9", loaded.TunnelDevice)
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	path := tempSnapshotPath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"routes": []}`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestSnapshotNeverSerializesAuthCookie(t *testing.T) {
	snap := NewFromRoutes("", "utun9", "vpn.example.com", nil, nil)
	path := tempSnapshotPath(t)
	require.NoError(t, Save(path, snap))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "auth_cookie")
	assert.NotContains(t, string(data), "authcookie")
}

func TestDeleteIsIdempotent(t *testing.T) {
	path := tempSnapshotPath(t)
	require.NoError(t, Delete(path))
	assert.False(t, Exists(path))

	snap := NewFromRoutes("", "utun9", "vpn.example.com", nil, nil)
	require.NoError(t, Save(path, snap))
	assert.True(t, Exists(path))

	require.NoError(t, Delete(path))
	require.NoError(t, Delete(path))
	assert.False(t, Exists(path))
}
