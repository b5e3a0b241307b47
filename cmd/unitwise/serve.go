package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/havenly/unitwise/internal/config"
	"github.com/havenly/unitwise/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the review API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			return server.New(st, cfg.ListenAddr).Start(cmd.Context())
		},
	}

	cmd.Flags().String("listen", "", "listen address")
	cmd.PreRun = func(c *cobra.Command, _ []string) {
		_ = viper.BindPFlag("listen_addr", c.Flags().Lookup("listen"))
	}
	return cmd
}
