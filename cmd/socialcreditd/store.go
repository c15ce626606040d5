package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/socialcredit/socialcredit-backend/internal/config"
	"github.com/socialcredit/socialcredit-backend/internal/ledger"
	"github.com/socialcredit/socialcredit-backend/internal/ledger/memory"
	"github.com/socialcredit/socialcredit-backend/internal/ledger/postgres"
	"github.com/socialcredit/socialcredit-backend/internal/ledger/sqlite"
)

// openStore opens the configured backend. Opening applies the schema.
func openStore(cfg config.StoreConfig) (ledger.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.New(cfg.Path)
	case "postgres":
		return postgres.New(cfg.PostgresDSN, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnLifetimeMinutes, cfg.ConnIdleMinutes)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			start := time.Now()
			store, err := openStore(cfg.Store)
			if err != nil {
				return fmt.Errorf("migrate %s store: %w", cfg.Store.Driver, err)
			}
			defer store.Close()
			if err := store.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("ping %s store: %w", cfg.Store.Driver, err)
			}
			fmt.Printf("%s schema ready (%s)\n", cfg.Store.Driver, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
