package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/usdfinancial/service-base/config"
	"github.com/usdfinancial/service-base/pkg/di"
)

type rootOptions struct {
	configPath string
	envFiles   []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "servicebase",
		Short:         "Operate the USD Financial service layer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the environment is read")

	cmd.AddCommand(
		newHealthCmd(opts),
		newCodesCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (config.Config, error) {
	if err := config.LoadDotEnv(o.envFiles...); err != nil {
		return config.Config{}, err
	}
	return config.Load(o.configPath)
}

// openContainer loads the config and builds a container with the domain
// services registered.
func (o *rootOptions) openContainer(ctx context.Context) (*di.Container, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	c, err := di.NewContainer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := registerServices(c); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func registerServices(c *di.Container) error {
	if _, err := c.NewUserService(); err != nil {
		return err
	}
	if _, err := c.NewInvestmentService(); err != nil {
		return err
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
