package main

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the database through every service and print the reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.openContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			reports := c.HealthCheck(cmd.Context())
			if err := writeJSON(cmd.OutOrStdout(), reports); err != nil {
				return err
			}
			for _, r := range reports {
				if !r.Healthy() {
					return errors.Newf("%s is unhealthy: %s", r.Details.Service, r.Details.Error)
				}
			}
			return nil
		},
	}
}
