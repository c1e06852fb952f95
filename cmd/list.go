package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ctrise/grantmatch/internal/model"
	"github.com/ctrise/grantmatch/internal/table"
)

var listVerifiedOnly bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the stored grants ranked by match score",
	RunE: func(cmd *cobra.Command, _ []string) error {
		tab, err := table.Load(cfg.Table.Path)
		if err != nil {
			return err
		}

		rows := tab.Ranked()
		if listVerifiedOnly {
			kept := rows[:0]
			for _, g := range rows {
				if g.Verified {
					kept = append(kept, g)
				}
			}
			rows = kept
		}

		if len(rows) == 0 {
			fmt.Fprintln(os.Stderr, "No grants stored. Run refresh or analyze first.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MATCH\tFEASIBILITY\tDEADLINE\tAMOUNT\tTITLE")
		for _, g := range rows {
			fmt.Fprintf(w, "%s%%\t%s\t%s\t%s\t%s\n",
				table.FormatScore(g.MatchScore), g.Feasibility, g.Deadline, g.Amount, truncate(g.Title, 60))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		unknown := 0
		for _, g := range rows {
			if g.Feasibility == model.FeasibilityUnknown {
				unknown++
			}
		}
		if unknown > 0 {
			fmt.Fprintf(os.Stderr, "%d grant(s) have no score; the embedding service was unreachable when they were added.\n", unknown)
		}
		return nil
	},
}

// truncate counts runes so a multibyte title is never split mid-character.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func init() {
	listCmd.Flags().BoolVar(&listVerifiedOnly, "verified", false, "only show grants backed by a live source")
	rootCmd.AddCommand(listCmd)
}
