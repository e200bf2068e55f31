package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refdata-tools/depara-admin/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "deparad",
	Short: "Reference-data mapping administration",
	Long:  "Manages DePara tables that map dealership reference codes to the homologated workflow codes, with spreadsheet import/export and reconciliation against the homologation databases.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
