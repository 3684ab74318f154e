package commands

import (
	"ankiboard/internal/components/chrono"
	"ankiboard/internal/components/telemetry"
	"ankiboard/internal/scoring"
	"ankiboard/pkg/serviceutil"
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	watchCron string
	watchNow  bool
)

func init() {
	watchCmd.Flags().StringVar(&watchCron, "cron", "", "The refresh schedule, defaults to the config's cron.")
	watchCmd.Flags().BoolVar(&watchNow, "now", false, "Refresh once right away.")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [--cron <spec>] [--now]",
	Short: "Refreshes the rankings on a schedule and publishes them to Discord.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := readConfig(configPath)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		if watchCron == "" {
			watchCron = cfg.Cron
		}

		tel, shutdown := initTelemetry(ctx, cfg.Telemetry)
		defer shutdown()
		telemetry.InstrumentPerfStats(ctx, tel)

		a, err := newApp(ctx, cfg, tel, nil)
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close()

		var notify []string
		if cfg.Discord.WebhookUrl != "" {
			notify = notifyTargets(cfg)
		}

		out := cmd.OutOrStdout()
		refresh := func() {
			report, err := a.board.Refresh(ctx, cfg.Students, notify)
			if err != nil {
				slog.Warn("refresh interrupted", "err", err)
				return
			}
			slog.Info("refreshed", "students", len(report.Results), "notes", len(report.Notes))
			for _, n := range report.Notes {
				slog.Warn("refresh note", "note", n)
			}
			renderRanking(out, report.Board, scoring.General)
		}

		if watchNow {
			refresh()
		}

		cron := chrono.NewStandardCron(a.time, tel)
		err = cron.Cron(watchCron, refresh)
		if err != nil {
			serviceutil.Fatal("invalid cron schedule", err)
		}
		slog.Info("watching", "cron", watchCron, "timezone", a.time.Location().String())

		<-ctx.Done()
		cron.Stop()
	},
}
