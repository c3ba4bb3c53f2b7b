package hostsoverlay

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestApplyAddsManagedBlock(t *testing.T) {
	path := writeTemp(t, "127.0.0.1\tlocalhost\n")
	o := WithPath(path)

	require.NoError(t, o.Apply(map[string]net.IP{"test.example.com": net.ParseIP("10.0.0.1")}))

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(out)
	assert.Contains(t, content, "127.0.0.1\tlocalhost")
	assert.Contains(t, content, sentinelStart)
	assert.Contains(t, content, "10.0.0.1\ttest.example.com")
	assert.Contains(t, content, sentinelEnd)
}

func TestApplyReplacesExistingBlockPreservingSurroundingContent(t *testing.T) {
	original := "127.0.0.1\tlocalhost\n" +
		"# BEGIN pmacs-vpn\n" +
		"10.0.0.1\told\n" +
		"# END pmacs-vpn\n" +
		"::1\tlocalhost\n"
	path := writeTemp(t, original)
	o := WithPath(path)

	require.NoError(t, o.Apply(map[string]net.IP{"new.example.com": net.ParseIP("10.0.0.2")}))

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(out)
	assert.Contains(t, content, "127.0.0.1\tlocalhost")
	assert.Contains(t, content, "::1\tlocalhost")
	assert.Contains(t, content, "10.0.0.2\tnew.example.com")
	assert.NotContains(t, content, "old")
	assert.Equal(t, 1, countOccurrences(content, sentinelStart))
}

func TestApplyWithEmptyMapRemovesStaleBlock(t *testing.T) {
	original := "127.0.0.1\tlocalhost\n# BEGIN pmacs-vpn\n10.0.0.1\tstale\n# END pmacs-vpn\n"
	path := writeTemp(t, original)
	o := WithPath(path)

	require.NoError(t, o.Apply(map[string]net.IP{}))

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(out)
	assert.NotContains(t, content, sentinelStart)
	assert.Contains(t, content, "127.0.0.1\tlocalhost")
}

func TestRevertRestoresByteIdenticalSurroundingContent(t *testing.T) {
	original := "127.0.0.1\tlocalhost\n"
	path := writeTemp(t, original)
	o := WithPath(path)

	require.NoError(t, o.Apply(map[string]net.IP{"test.example.com": net.ParseIP("10.0.0.1")}))
	require.NoError(t, o.Revert())

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(out))
}

func TestApplyIsIdempotent(t *testing.T) {
	path := writeTemp(t, "127.0.0.1\tlocalhost\n")
	o := WithPath(path)
	m := map[string]net.IP{"test.example.com": net.ParseIP("10.0.0.1")}

	require.NoError(t, o.Apply(m))
	first, _ := os.ReadFile(path)
	require.NoError(t, o.Apply(m))
	second, _ := os.ReadFile(path)

	assert.Equal(t, string(first), string(second))
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
			i += len(substr) - 1
		}
	}
	return count
}
