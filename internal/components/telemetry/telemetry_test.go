package telemetry

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestScopedAPI(t *testing.T) {
	rec := NewRecorderAPI()
	tel := NewScopedAPI("ankiweb_scraper", rec)

	tel.ReportBroken("client.login", "boom")
	tel.ReportWarning("decks.drift", 9)
	tel.ReportCount("decks.parsed", 4)

	broken := rec.Reports("broken", "")
	require.Len(t, broken, 1)
	require.Equal(t, "ankiweb_scraper: client.login", broken[0].Id)
	require.Equal(t, []any{"boom"}, broken[0].Params)

	require.Len(t, rec.Reports("warning", "decks.drift"), 1)
	require.Equal(t, []any{int64(4)}, rec.Reports("count", "parsed")[0].Params)
}

func TestSlogAPI(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tel := NewSlogAPI(logger)

	tel.ReportBroken("client.login", "timeout")
	require.Contains(t, out.String(), "broken component")
	require.Contains(t, out.String(), "id=client.login")
	require.Contains(t, out.String(), "params.0=timeout")
}

func TestMeteredAPIForwards(t *testing.T) {
	rec := NewRecorderAPI()
	tel, err := NewMeteredAPI(rec, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	tel.ReportBroken("a")
	tel.ReportWarning("b")
	tel.ReportDebug("c")
	tel.ReportCount("d", 2)

	require.Len(t, rec.Reports("broken", "a"), 1)
	require.Len(t, rec.Reports("warning", "b"), 1)
	require.Len(t, rec.Reports("debug", "c"), 1)
	require.Len(t, rec.Reports("count", "d"), 1)
}
