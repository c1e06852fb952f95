package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var refreshCount int

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch, score, and store new grant opportunities",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx, "refresh")
		if err != nil {
			return err
		}
		defer e.Close()

		count := refreshCount
		if count == 0 {
			count = cfg.Source.MinCount
		}

		sum, err := e.Pipeline.Refresh(ctx, count)
		if err != nil {
			return err
		}

		fmt.Println(sum.String())
		zap.L().Info("refresh finished", zap.String("summary", sum.String()))
		return nil
	},
}

func init() {
	refreshCmd.Flags().IntVar(&refreshCount, "count", 0, "minimum new grants to fetch (default from config)")
	rootCmd.AddCommand(refreshCmd)
}
