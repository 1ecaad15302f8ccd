package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/driftdetect/backend/internal/detector"
	"github.com/driftdetect/backend/internal/runner"
)

type runOptions struct {
	Detectors   []string
	FailOnDrift bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [PATH]",
		Short: "Run detectors once and print drift records as NDJSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(root, true)
			if err != nil {
				return err
			}

			var path string
			if len(args) == 1 {
				path = args[0]
			}
			catalog, err := loadCatalog(path, cfg)
			if err != nil {
				return err
			}
			defs, err := selectDetectors(catalog, opts.Detectors)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := openServices(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			sinks := append(svc.sinks(cfg), runner.NewWriterSink(cmd.OutOrStdout()))
			r := runner.New(svc.sessionFactory(), cfg.Detectors.Concurrency, sinks...)

			return summarize(r.RunAll(ctx, defs), opts.FailOnDrift)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Detectors, "detector", "d", nil, "Run only the named detector (repeatable)")
	cmd.Flags().BoolVar(&opts.FailOnDrift, "fail-on-drift", false, "Exit with status 2 when any drift is found")

	return cmd
}

func selectDetectors(catalog *detector.Catalog, names []string) ([]*detector.Definition, error) {
	if len(names) == 0 {
		return catalog.All(), nil
	}
	defs := make([]*detector.Definition, 0, len(names))
	for _, name := range names {
		def, ok := catalog.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown detector %q", name)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func summarize(reports []runner.Report, failOnDrift bool) error {
	drift, failed := 0, 0
	for _, r := range reports {
		drift += r.Drift
		if r.Err != nil {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d detectors failed", failed, len(reports))
	}
	if failOnDrift && drift > 0 {
		return fmt.Errorf("%w: %d records", ErrDriftFound, drift)
	}
	return nil
}
