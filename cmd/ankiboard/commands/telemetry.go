package commands

import (
	"ankiboard/internal/components/telemetry"
	"ankiboard/pkg/serviceutil"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const serviceName = "ankiboard"

// initTelemetry returns the API every component reports to. Reports always go to slog,
// they are also exported as OTel metrics when an OTLP endpoint is configured.
func initTelemetry(ctx context.Context, cfg telemetry.Config) (telemetry.API, func()) {
	var tel telemetry.API = telemetry.NewSlogAPI(slog.Default())
	if !cfg.Enabled() {
		return tel, func() {}
	}

	otel, err := telemetry.Setup(ctx, serviceName, cfg)
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	metered, err := telemetry.NewMeteredAPI(tel, otel.MeterProvider.Meter(serviceName))
	if err != nil {
		serviceutil.Fatal("setup metered telemetry", err)
	}
	slog.DebugContext(ctx, "exporting telemetry over otlp")

	return metered, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		err := otel.Shutdown(ctx)
		if err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(os.Stderr, verbose)
		if verbose {
			slog.Debug("verbose logging enabled")
		}
	}
}
