package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/havenly/unitwise/internal/config"
	"github.com/havenly/unitwise/pkg/reconcile"
)

func newChangesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "changes <campaign>",
		Short: "List a campaign's reconciled changesets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			out, err := reconcile.New(st).Reconcile(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			if len(out) == 0 {
				fmt.Println("No pending changes.")
				return nil
			}
			for _, cs := range out {
				cs.Print()
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of a summary")
	return cmd
}
