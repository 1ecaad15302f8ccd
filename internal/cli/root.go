package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftdetect/backend/pkg/config"
	"github.com/driftdetect/backend/pkg/logger"
)

var version = "dev"

// ErrDriftFound is returned by run --fail-on-drift when any detector drifted.
var ErrDriftFound = errors.New("drift detected")

// Execute builds the command tree and runs it.
func Execute() error {
	return newRootCmd().Execute()
}

// ExitCode maps an Execute error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrDriftFound):
		return 2
	default:
		return 1
	}
}

type rootOptions struct {
	ConfigPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "driftdetect",
		Short:         "Check a graph database against expected query results",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	rootCmd.SetVersionTemplate("driftdetect version {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Path to config file (default: config.yaml in ., ./config, /etc/driftdetect)")

	rootCmd.AddCommand(
		newValidateCmd(opts),
		newRunCmd(opts),
		newServeCmd(opts),
	)

	return rootCmd
}

// setup loads configuration and starts logging. When stdoutReserved is set,
// logs that would go to stdout go to stderr instead.
func setup(opts *rootOptions, stdoutReserved bool) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	output := cfg.Logging.OutputPath
	if stdoutReserved && (output == "" || output == "stdout") {
		output = "stderr"
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, output); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}
