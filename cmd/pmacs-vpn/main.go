package main

import (
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/DrivasLab/pmacs-utils/pkg/vpnerr"
)

// Version is inserted at build using --ldflags -X.
var Version = "(unknown version)"

func main() {
	ctx := context.Background()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	ctx = dlog.WithLogger(ctx, dlog.WrapLogrus(logger))

	cmd := rootCommand(logger)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: error: %v\n", cmd.CommandPath(), vpnerr.Reason(err))
		os.Exit(vpnerr.GetKind(err).ExitCode())
	}
}

func rootCommand(logger *logrus.Logger) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "pmacs-vpn",
		Short:         "Split-tunnel VPN toolkit for PMACS cluster access",
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logger.SetLevel(logrus.DebugLevel)
			} else {
				logger.SetLevel(logrus.InfoLevel)
			}
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	cmd.AddCommand(
		connectCommand(),
		disconnectCommand(),
		statusCommand(),
		initCommand(),
		scriptCommand(),
	)
	return cmd
}
