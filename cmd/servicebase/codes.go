package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/usdfinancial/service-base/pkg/di"
)

func newCodesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "codes",
		Short: "Print the driver error codes and the kinds they map to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			codes, err := di.CodeTable(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "driver %s\n", codes.Driver)
			for _, line := range codes.Entries() {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}
