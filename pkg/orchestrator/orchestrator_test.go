package orchestrator

import (
	"path/filepath"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/require"

	"github.com/DrivasLab/pmacs-utils/pkg/config"
	"github.com/DrivasLab/pmacs-utils/pkg/scriptenv"
)

func TestRunScriptPreInitIsNoOp(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	env := &scriptenv.Env{Reason: scriptenv.ReasonPreInit}
	require.NoError(t, RunScript(ctx, env, config.Default(), "/nonexistent/path"))
}

func TestRunScriptDisconnectWithoutSnapshotIsNoOp(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	dir := t.TempDir()
	env := &scriptenv.Env{Reason: scriptenv.ReasonDisconnect}
	path := filepath.Join(dir, "snapshot.json")
	require.NoError(t, RunScript(ctx, env, config.Default(), path))
}

func TestRunScriptUnknownReason(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	env := &scriptenv.Env{Reason: scriptenv.Reason("bogus")}
	err := RunScript(ctx, env, config.Default(), "/nonexistent/path")
	require.Error(t, err)
}
