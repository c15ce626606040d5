package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/socialcredit/socialcredit-backend/internal/bootstrap"
)

func initCmd() *cobra.Command {
	var opts bootstrap.InitOptions
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config with generated secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := bootstrap.Init(opts)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Root, "root", ".", "directory to create config/ in")
	cmd.Flags().StringVar(&opts.Environment, "env", "dev", "environment name")
	cmd.Flags().StringVar(&opts.StoreDriver, "store", "sqlite", "store driver (memory, sqlite, postgres)")
	cmd.Flags().StringVar(&opts.PostgresDSN, "postgres-dsn", "", "postgres connection string")
	cmd.Flags().StringVar(&opts.FrontendURL, "frontend-url", "", "frontend base URL for login redirects")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing config")
	return cmd
}
