// Package hostsoverlay rewrites the system hosts file between sentinel
// markers so that routed hostnames resolve to the addresses routed
// through the tunnel, independent of whatever the host's own resolver
// would otherwise return.
package hostsoverlay

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/DrivasLab/pmacs-utils/pkg/vpnerr"
)

const (
	sentinelStart = "# BEGIN pmacs-vpn"
	sentinelEnd   = "# END pmacs-vpn"
)

// DefaultPath returns the platform hosts file location.
func DefaultPath() string {
	if runtime.GOOS == "windows" {
		root := os.Getenv("SystemRoot")
		if root == "" {
			root = `C:\Windows`
		}
		return filepath.Join(root, `System32\drivers\etc\hosts`)
	}
	return "/etc/hosts"
}

// Overlay manages the managed block of a single hosts file.
type Overlay struct {
	path string
}

// New creates an Overlay for the platform default hosts file path.
func New() *Overlay { return &Overlay{path: DefaultPath()} }

// WithPath creates an Overlay for an explicit path, used by tests and by
// callers targeting a non-standard hosts file.
func WithPath(path string) *Overlay { return &Overlay{path: path} }

// Apply rewrites the hosts file by removing any existing managed block
// and, if m is non-empty, appending a fresh block with one
// "<address>\t<name>" line per entry. The write is atomic (write-to-temp
// then rename) where the OS supports it. When m is empty, Apply still
// removes any stale managed block.
func (o *Overlay) Apply(m map[string]net.IP) error {
	content, err := os.ReadFile(o.path)
	if err != nil {
		return vpnerr.StatePersist.Newf("hostsoverlay: read %s: %w", o.path, err)
	}
	updated := updateContent(string(content), m)
	if err := writeAtomic(o.path, updated); err != nil {
		return vpnerr.StatePersist.Newf("hostsoverlay: write %s: %w", o.path, err)
	}
	return nil
}

// Revert removes the managed block only, leaving all other content
// byte-for-byte identical.
func (o *Overlay) Revert() error {
	content, err := os.ReadFile(o.path)
	if err != nil {
		return vpnerr.StatePersist.Newf("hostsoverlay: read %s: %w", o.path, err)
	}
	updated := removeManagedSection(string(content))
	if err := writeAtomic(o.path, updated); err != nil {
		return vpnerr.StatePersist.Newf("hostsoverlay: write %s: %w", o.path, err)
	}
	return nil
}

func updateContent(content string, m map[string]net.IP) string {
	cleaned := removeManagedSection(content)
	result := strings.TrimRight(cleaned, "\n")

	if len(m) > 0 {
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)

		var b strings.Builder
		b.WriteString(result)
		b.WriteString("\n\n")
		b.WriteString(sentinelStart)
		b.WriteByte('\n')
		for _, name := range names {
			fmt.Fprintf(&b, "%s\t%s\n", m[name], name)
		}
		b.WriteString(sentinelEnd)
		b.WriteByte('\n')
		return b.String()
	}
	if result == "" {
		return ""
	}
	return result + "\n"
}

func removeManagedSection(content string) string {
	inBlock := false
	lines := strings.Split(content, "\n")
	// strings.Split on a trailing-newline string yields a spurious empty
	// final element; drop it so we don't introduce an extra blank line.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == sentinelStart {
			inBlock = true
			// Apply always inserts one blank separator line before the
			// block; consume it here so Revert is byte-identical to the
			// content from before Apply ran.
			if len(kept) > 0 && kept[len(kept)-1] == "" {
				kept = kept[:len(kept)-1]
			}
			continue
		}
		if trimmed == sentinelEnd {
			inBlock = false
			continue
		}
		if inBlock {
			continue
		}
		kept = append(kept, line)
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, "\n") + "\n"
}

func writeAtomic(path, content string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".hosts-overlay-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpName, info.Mode())
	}
	return os.Rename(tmpName, path)
}
