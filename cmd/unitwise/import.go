package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/havenly/unitwise/internal/config"
	"github.com/havenly/unitwise/internal/store/sqlite"
	"github.com/havenly/unitwise/pkg/errors"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <fixture.yaml>",
		Short: "Load apartments, units, responses, and reject markers from a YAML fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Store != config.StoreSQLite {
				return errors.NewValidationError("store", cfg.Store, "import requires the sqlite backend")
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			st, err := sqlite.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Import(cmd.Context(), data); err != nil {
				return err
			}
			fmt.Printf("Imported %s into %s\n", args[0], cfg.DBPath)
			return nil
		},
	}
}
