package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ctrise/grantmatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "grantmatch",
	Short: "Grant discovery and mission-fit ranking",
	Long:  "Fetches grant opportunities from a search model, the Grants.gov registry, or a generative model, scores them against the nonprofit mission by embedding similarity, and maintains an editable, exportable table.",
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
