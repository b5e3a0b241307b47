package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/havenly/unitwise/internal/config"
	"github.com/havenly/unitwise/internal/store/memory"
	"github.com/havenly/unitwise/internal/store/sqlite"
	"github.com/havenly/unitwise/pkg/store"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "unitwise",
		Short: "Reconcile housing-update form submissions into reviewable changesets",
		Long: `unitwise replays a campaign's housing-update form submissions against
the housing database, producing one reviewable changeset per apartment:
field edits, new units, and pending unit deletions. Approved changes are
written back; rejected ones are remembered and never resurface.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			config.Init()
		},
	}

	root.PersistentFlags().String("store", "", "storage backend (memory or sqlite)")
	root.PersistentFlags().String("db", "", "sqlite database path")
	_ = viper.BindPFlag("store", root.PersistentFlags().Lookup("store"))
	_ = viper.BindPFlag("db_path", root.PersistentFlags().Lookup("db"))

	root.AddCommand(
		newChangesCmd(),
		newApproveCmd(),
		newRejectCmd(),
		newServeCmd(),
		newImportCmd(),
	)
	return root
}

// openStore opens the configured storage backend. The returned closer is a
// no-op for backends without resources to release.
func openStore(cfg *config.Config) (store.Store, func() error, error) {
	switch cfg.Store {
	case config.StoreMemory:
		st, err := memory.New()
		if err != nil {
			return nil, nil, err
		}
		return st, func() error { return nil }, nil
	default:
		st, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	}
}
