package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrimworks/vendorvet/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "vendorvet",
	Short: "Automated vendor risk research",
	Long:  "Vets known vendors with multi-domain parallel risk research and discovers new supplier shortlists from natural-language requests, backed by a persistent vendor ledger.",
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
