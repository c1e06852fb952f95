package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ctrise/grantmatch/internal/table"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Score a single grant page and add it to the table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rawURL := strings.TrimSpace(args[0])
		if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
			return eris.Errorf("not an http(s) url: %q", rawURL)
		}

		e, err := initEnv(ctx, "analyze")
		if err != nil {
			return err
		}
		defer e.Close()

		g, err := e.Pipeline.AnalyzeURL(ctx, e.Search, rawURL)
		if err != nil {
			return err
		}

		fmt.Printf("%s\n  match %s%%  feasibility %s  deadline %s\n",
			g.Title, table.FormatScore(g.MatchScore), g.Feasibility, g.Deadline)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
