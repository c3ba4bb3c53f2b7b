package main

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHasExpectedSubcommands(t *testing.T) {
	cmd := rootCommand(logrus.New())
	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"connect", "disconnect", "status", "init", "script"} {
		require.True(t, names[want], "expected subcommand %q", want)
	}
}

func TestStatusWhenNotConnected(t *testing.T) {
	cmd := rootCommand(logrus.New())
	cmd.SetArgs([]string{"status"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "Not connected")
}
