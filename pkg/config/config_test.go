package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, DefaultGateway, cfg.VPN.Gateway)
	require.Equal(t, "gp", cfg.VPN.Protocol)
	require.Equal(t, []string{"prometheus.pmacs.upenn.edu"}, cfg.Hosts)
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pmacs-vpn.toml")

	original := &Config{
		VPN:   VPN{Gateway: "vpn.example.edu", Protocol: "gp"},
		Hosts: []string{"a.example.edu", "b.example.edu"},
	}
	require.NoError(t, Save(original, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, original.VPN, loaded.VPN)
	require.Equal(t, original.Hosts, loaded.Hosts)
}

func TestLoadMissingGateway(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("hosts = [\"a.example.edu\"]\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLocatePrefersLocalOverHome(t *testing.T) {
	cwd := t.TempDir()
	home := t.TempDir()

	require.Equal(t, "", Locate(cwd, home))

	homeCfg := filepath.Join(home, ".pmacs-vpn")
	require.NoError(t, os.MkdirAll(homeCfg, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(homeCfg, "config.toml"), []byte("[vpn]\ngateway=\"h\"\n"), 0o600))
	require.Equal(t, filepath.Join(homeCfg, "config.toml"), Locate(cwd, home))

	localPath := filepath.Join(cwd, "pmacs-vpn.toml")
	require.NoError(t, os.WriteFile(localPath, []byte("[vpn]\ngateway=\"l\"\n"), 0o600))
	require.Equal(t, localPath, Locate(cwd, home))
}
