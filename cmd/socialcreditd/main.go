package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/socialcredit/socialcredit-backend/internal/version"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "socialcreditd",
		Short:         "Social credit ledger backend",
		Version:       version.Info(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default config/socialcredit.yaml)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.FullInfo())
		},
	}
}
