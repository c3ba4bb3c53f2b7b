// Package config loads the tool's key/value configuration document: a VPN
// gateway name and the list of hostnames to split-tunnel-route, expressed
// as TOML (spec.md §1 names this document abstractly; its concrete shape
// and default values follow the original Rust implementation's
// src/config.rs).
package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"

	"github.com/DrivasLab/pmacs-utils/pkg/vpnerr"
)

// DefaultGateway and DefaultHosts mirror the original's Default impl: a
// usable configuration when no file is present, so `status` and `init`
// never fail merely for lack of a config file.
const DefaultGateway = "psomvpn.uphs.upenn.edu"

var DefaultHosts = []string{"prometheus.pmacs.upenn.edu"}

// VPN is the `[vpn]` table of the config document.
type VPN struct {
	Gateway  string `toml:"gateway"`
	Protocol string `toml:"protocol"`

	// AggressiveKeepalive switches the Tunnel Session's keepalive tick from
	// its default 30s interval to 10s, for gateways that drop idle
	// connections sooner than that.
	AggressiveKeepalive bool `toml:"aggressive_keepalive"`
}

// Config is the whole document: a gateway name plus an ordered list of
// hostnames to route through the tunnel.
type Config struct {
	VPN   VPN      `toml:"vpn"`
	Hosts []string `toml:"hosts"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	hosts := make([]string, len(DefaultHosts))
	copy(hosts, DefaultHosts)
	return &Config{
		VPN:   VPN{Gateway: DefaultGateway, Protocol: "gp"},
		Hosts: hosts,
	}
}

// Load reads and parses a TOML config file at path.
func Load(path string) (*Config, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return nil, vpnerr.ConfigInvalid.Newf("config: load %s: %w", path, err)
	}
	cfg := Default()
	if err := tree.Unmarshal(cfg); err != nil {
		return nil, vpnerr.ConfigInvalid.Newf("config: parse %s: %w", path, err)
	}
	// Default() pre-fills the gateway, so look for the key in the document.
	if !tree.Has("vpn.gateway") || cfg.VPN.Gateway == "" {
		return nil, vpnerr.ConfigInvalid.New("config: vpn.gateway is required")
	}
	return cfg, nil
}

// Save writes cfg to path as pretty-printed TOML.
func Save(cfg *Config, path string) error {
	data, err := toml.Marshal(*cfg)
	if err != nil {
		return vpnerr.ConfigInvalid.Newf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return vpnerr.ConfigInvalid.Newf("config: write %s: %w", path, err)
	}
	return nil
}

// Locate finds the config file the orchestrator should load, preferring a
// file in the current directory and falling back to a per-user location,
// matching the original's load_config search order. It returns "" if
// neither exists, in which case the caller should use Default().
func Locate(cwd, homeDir string) string {
	local := filepath.Join(cwd, "pmacs-vpn.toml")
	if fileExists(local) {
		return local
	}
	if homeDir != "" {
		home := filepath.Join(homeDir, ".pmacs-vpn", "config.toml")
		if fileExists(home) {
			return home
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
