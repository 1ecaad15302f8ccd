package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [PATH]",
		Short: "Load detector definitions and report what they contain",
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

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKIND\tEXPECTATIONS")
			for _, def := range catalog.All() {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", def.Name(), def.Kind(), len(def.Expectations()))
			}
			return tw.Flush()
		},
	}
}
