package commands

import (
	"ankiboard/internal/leaderboard"
	"ankiboard/internal/scoring"
	"ankiboard/pkg/restyutil"
	"ankiboard/pkg/serviceutil"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	fetchCourse string
	fetchNotify bool
	fetchNotes  bool
	fetchDump   string
)

func init() {
	fetchCmd.Flags().StringVar(&fetchCourse, "course", "", "Only print the ranking of this course, \"general\" for the overall one.")
	fetchCmd.Flags().BoolVar(&fetchNotify, "notify", false, "Publish the configured rankings to Discord.")
	fetchCmd.Flags().BoolVar(&fetchNotes, "notes", false, "Print the diagnostic notes of every student.")
	fetchCmd.Flags().StringVar(&fetchDump, "dump", "", "Write every AnkiWeb exchange to this directory.")
	rootCmd.AddCommand(fetchCmd)
}

// notifyTargets returns the rankings to publish, the overall one when none is configured.
func notifyTargets(cfg Config) []string {
	if len(cfg.Discord.Notify) == 0 {
		return []string{scoring.General}
	}
	targets := make([]string, 0, len(cfg.Discord.Notify))
	for _, name := range cfg.Discord.Notify {
		course, err := parseRanking(name, cfg.Courses)
		if err != nil {
			slog.Warn("skipping discord notification", "err", err)
			continue
		}
		targets = append(targets, course)
	}
	return targets
}

func printReport(w io.Writer, cfg Config, report leaderboard.Report, course string, notes bool) {
	if course != "" {
		renderRanking(w, report.Board, course)
	} else {
		renderRanking(w, report.Board, scoring.General)
		renderPending(w, report, cfg.Students, cfg.Courses)
	}

	if !notes {
		return
	}
	for _, s := range cfg.Students {
		result := report.Results[s.Name]
		if len(result.Matched) > 0 {
			renderMatched(w, s.Name, result)
		}
		renderNotes(w, s.Name, result.Notes)
	}
	renderNotes(w, "Refresh", report.Notes)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [--course <name>] [--notify] [--notes] [--dump <dir>]",
	Short: "Fetches every student once and prints the rankings.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := readConfig(configPath)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		if fetchCourse != "" {
			fetchCourse, err = parseRanking(fetchCourse, cfg.Courses)
			if err != nil {
				serviceutil.Fatal("invalid --course", err)
			}
		}

		tel, shutdown := initTelemetry(ctx, cfg.Telemetry)
		defer shutdown()

		var dump restyutil.Output
		if fetchDump != "" {
			out, err := restyutil.NewFilesystemOutput(fetchDump)
			if err != nil {
				serviceutil.Fatal("failed to prepare dump directory", err)
			}
			dump = out
		}

		a, err := newApp(ctx, cfg, tel, dump)
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close()

		var notify []string
		if fetchNotify {
			if cfg.Discord.WebhookUrl == "" {
				slog.Warn("--notify given but no discord webhook is configured")
			}
			notify = notifyTargets(cfg)
		}

		slog.Info("fetching students", "count", len(cfg.Students))
		report, err := a.board.Refresh(ctx, cfg.Students, notify)
		if err != nil {
			serviceutil.Fatal("refresh interrupted", err)
		}
		printReport(cmd.OutOrStdout(), cfg, report, fetchCourse, fetchNotes)
	},
}
