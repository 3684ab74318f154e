package commands

import (
	"ankiboard/internal/components/telemetry"
	"ankiboard/internal/courses"
	"ankiboard/internal/leaderboard"
	"ankiboard/internal/scoring"
	"ankiboard/internal/scrapers/ankiweb/ankiwebtest"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
}

func TestReadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	writeFile(t, path, `{
		// only students, everything else is defaulted
		students: [{name: "Ana", username: "ana@example.com", password: "pw"}],
	}`)

	cfg, err := readConfig(path)
	require.NoError(t, err)
	require.Equal(t, courses.DefaultCourses, cfg.Courses)
	require.Equal(t, courses.DefaultKeywords, cfg.Keywords)
	require.Equal(t, scoring.DefaultWeights(), cfg.Weights)
	require.Equal(t, defaultCron, cfg.Cron)
	require.Len(t, cfg.Students, 1)
}

func TestReadConfigLocalOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	writeFile(t, path, `{
		courses: ["Anatomía"],
		keywords: {"Anatomía": ["anatomia"]},
		discord: {notify: ["general"]},
	}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{
		discord: {webhook_url: "https://discord.example/hook"},
		students: [{name: "Ana", username: "ana@example.com", password: "secret"}],
	}`)

	cfg, err := readConfig(path)
	require.NoError(t, err)
	require.Equal(t, []string{"Anatomía"}, cfg.Courses)
	require.Equal(t, "https://discord.example/hook", cfg.Discord.WebhookUrl)
	require.Equal(t, []string{"general"}, cfg.Discord.Notify)
	require.Equal(t, "secret", cfg.Students[0].Password)
}

func TestReadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	writeFile(t, path, `{
		courses: ["Anatomía"],
		keywords: {"Histología": ["histo"]},
		students: [{name: "Ana"}, {name: "Ana"}, {}],
		notion: {token: "secret_x"},
	}`)

	_, err := readConfig(path)
	require.Error(t, err)
	for _, fragment := range []string{
		`unknown course "Histología"`,
		`"Ana" is listed twice`,
		"a student has no name",
		"notion needs both",
	} {
		require.ErrorContains(t, err, fragment)
	}
}

func TestReadConfigOrDefaults(t *testing.T) {
	cfg, err := readConfigOrDefaults(filepath.Join(t.TempDir(), "missing.json5"))
	require.NoError(t, err)
	require.Equal(t, courses.DefaultCourses, cfg.Courses)

	_, err = readConfig(filepath.Join(t.TempDir(), "missing.json5"))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParseRanking(t *testing.T) {
	names := []string{"Anatomía", "Histología"}

	course, err := parseRanking("General", names)
	require.NoError(t, err)
	require.Equal(t, scoring.General, course)

	course, err = parseRanking("Histología", names)
	require.NoError(t, err)
	require.Equal(t, "Histología", course)

	_, err = parseRanking("Patología", names)
	require.Error(t, err)
}

func TestNotifyTargets(t *testing.T) {
	cfg := Config{Courses: []string{"Anatomía"}}
	require.Equal(t, []string{scoring.General}, notifyTargets(cfg))

	cfg.Discord.Notify = []string{"general", "Anatomía", "Patología"}
	require.Equal(t, []string{scoring.General, "Anatomía"}, notifyTargets(cfg))
}

func TestFetchAndPrint(t *testing.T) {
	server := ankiwebtest.NewServer(t,
		ankiwebtest.Account{
			Email:    "ana@example.com",
			Password: "pw-ana",
			DeckList: ankiwebtest.DeckList(
				ankiwebtest.Deck{ID: 1, Name: "Anatomía humana Pró", Due: 30, Learning: 4, New: 10},
			),
		},
		ankiwebtest.Account{
			Email:    "beto@example.com",
			Password: "pw-beto",
			DeckList: ankiwebtest.DeckList(
				ankiwebtest.Deck{ID: 2, Name: "Histología Ross", Due: 5},
			),
		},
	)

	cfg := Config{
		AnkiWeb: AnkiWebConfig{BaseUrl: server.URL, RequestsPerSecond: 100},
		Students: []leaderboard.Student{
			{Name: "Ana", Username: "ana@example.com", Password: "pw-ana"},
			{Name: "Beto", Username: "beto@example.com", Password: "pw-beto"},
			{Name: "Caro"},
		},
		Timezone: "UTC",
	}
	cfg.setDefaults()
	require.NoError(t, cfg.validate())

	ctx := context.Background()
	a, err := newApp(ctx, cfg, telemetry.NewRecorderAPI(), nil)
	require.NoError(t, err)
	defer a.Close()

	report, err := a.board.Refresh(ctx, cfg.Students, nil)
	require.NoError(t, err)
	require.Equal(t, "Ana", report.Board.Ranking(scoring.General)[0].Student)

	var out bytes.Buffer
	printReport(&out, cfg, report, "", true)
	text := out.String()
	require.Contains(t, text, "General")
	require.Contains(t, text, "Pending cards")
	require.Contains(t, text, "Anatomía humana Pró")
	require.Contains(t, text, "no AnkiWeb credentials configured")
	require.Less(t, strings.Index(text, "Ana"), strings.Index(text, "Beto"))

	out.Reset()
	printReport(&out, cfg, report, "Histología", false)
	require.Contains(t, out.String(), "Histología")
	require.NotContains(t, out.String(), "Pending cards")
}

func TestRunDecode(t *testing.T) {
	body := ankiwebtest.DeckList(
		ankiwebtest.Deck{
			ID:   7,
			Name: "Fisiopatología Uribe",
			Children: []ankiwebtest.Deck{
				{ID: 8, Name: "Cardio", Due: 2},
			},
			Due: 3,
		},
	)
	cfg := Config{}
	cfg.setDefaults()

	var out bytes.Buffer
	runDecode(&out, body, cfg, true)
	text := out.String()
	require.Contains(t, text, "2 decks")
	require.Contains(t, text, "Fisiopatología Uribe")
	require.Contains(t, text, "Cardio")
	require.Contains(t, text, "Wire fields:")
	require.Contains(t, text, fmt.Sprintf("%q", "Cardio"))
	require.Contains(t, text, `no deck found for "Anatomía"`)
}

func TestReadBodyHex(t *testing.T) {
	body := ankiwebtest.DeckList(ankiwebtest.Deck{ID: 1, Name: "Anatomía"})
	path := filepath.Join(t.TempDir(), "body.hex")
	encoded := hex.EncodeToString(body)
	writeFile(t, path, encoded[:6]+"\n  "+encoded[6:]+"\n")

	decoded, err := readBody(path, true)
	require.NoError(t, err)
	require.Equal(t, body, decoded)
}

func TestRenderWireTruncated(t *testing.T) {
	var out bytes.Buffer
	renderWire(&out, []byte{0x08, 0x05, 0x1a, 0x10, 0x0a}, 0)
	require.Equal(t, "1: 5\n3: <truncated, 2 bytes left>\n", out.String())
}
