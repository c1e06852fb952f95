package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ctrise/grantmatch/internal/annotate"
	"github.com/ctrise/grantmatch/internal/export"
	"github.com/ctrise/grantmatch/internal/table"
	anthropicpkg "github.com/ctrise/grantmatch/pkg/anthropic"
)

var reportOutput string

var reportCmd = &cobra.Command{
	Use:   "report <title>",
	Short: "Print a plain-text briefing for one stored grant",
	Long: `Print a plain-text briefing for one stored grant, addressed by its
exact title. The briefing includes a fresh chat-model assessment of fit
and application effort on top of the stored fields.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("report"); err != nil {
			return err
		}

		tab, err := table.Load(cfg.Table.Path)
		if err != nil {
			return err
		}

		g, ok := tab.Find(args[0])
		if !ok {
			return eris.Errorf("no grant titled %q", args[0])
		}

		annotator := annotate.New(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
		assessment, err := annotator.Assessment(ctx, cfg.Mission.Text, g.GrantCandidate)
		if err != nil {
			zap.L().Warn("assessment generation failed, reporting stored fields only", zap.Error(err))
			assessment = ""
		}

		out := os.Stdout
		if reportOutput != "" {
			f, err := os.Create(reportOutput)
			if err != nil {
				return eris.Wrapf(err, "create %s", reportOutput)
			}
			defer f.Close()
			out = f
		}

		return export.Report(out, g, assessment)
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "output file (defaults to stdout)")
	rootCmd.AddCommand(reportCmd)
}
