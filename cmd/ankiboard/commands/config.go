package commands

import (
	"ankiboard/internal/components/chrono"
	"ankiboard/internal/components/telemetry"
	"ankiboard/internal/courses"
	"ankiboard/internal/discord"
	"ankiboard/internal/leaderboard"
	"ankiboard/internal/notion"
	"ankiboard/internal/scoring"
	"ankiboard/internal/scrapers/ankiweb"
	"ankiboard/internal/snapshot"
	"ankiboard/pkg/configutil"
	"ankiboard/pkg/restyutil"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"
)

type AnkiWebConfig struct {
	BaseUrl           string  `json:"base_url"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	CloudflareBypass  bool    `json:"cloudflare_bypass"`
}

type NotionConfig struct {
	Token      string `json:"token"`
	DatabaseId string `json:"database_id"`
}

type DiscordConfig struct {
	WebhookUrl string `json:"webhook_url"`
	// Notify lists the rankings published after a refresh, "_general" is the overall one.
	Notify []string `json:"notify"`
}

type Config struct {
	AnkiWeb AnkiWebConfig `json:"ankiweb"`
	// Courses is the display order, a deck is claimed by the first course that matches.
	Courses  []string              `json:"courses"`
	Keywords map[string][]string   `json:"keywords"`
	Students []leaderboard.Student `json:"students"`
	Workers  int                   `json:"workers"`
	Weights  scoring.Weights       `json:"weights"`

	Notion  NotionConfig  `json:"notion"`
	Discord DiscordConfig `json:"discord"`

	// Snapshots is the sqlite database of previous counts, empty keeps them in memory.
	Snapshots string `json:"snapshots"`
	Cron      string `json:"cron"`
	Timezone  string `json:"timezone"`

	Telemetry telemetry.Config `json:"telemetry"`
}

const defaultCron = "*/30 * * * *"

func (c *Config) setDefaults() {
	if len(c.Courses) == 0 {
		c.Courses = courses.DefaultCourses
	}
	if len(c.Keywords) == 0 {
		c.Keywords = courses.DefaultKeywords
	}
	if c.Weights == (scoring.Weights{}) {
		c.Weights = scoring.DefaultWeights()
	}
	if c.Cron == "" {
		c.Cron = defaultCron
	}
}

func (c Config) validate() error {
	var errs []error
	seen := map[string]bool{}
	for _, s := range c.Students {
		if s.Name == "" {
			errs = append(errs, errors.New("a student has no name"))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("student %q is listed twice", s.Name))
		}
		seen[s.Name] = true
	}
	for course := range c.Keywords {
		found := false
		for _, name := range c.Courses {
			if name == course {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Errorf("keywords given for unknown course %q", course))
		}
	}
	if (c.Notion.Token == "") != (c.Notion.DatabaseId == "") {
		errs = append(errs, errors.New("notion needs both token and database_id"))
	}
	return errors.Join(errs...)
}

func readConfig(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg.setDefaults()
	err = cfg.validate()
	if err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// readConfigOrDefaults is for the commands that work without any config.
func readConfigOrDefaults(path string) (Config, error) {
	cfg, err := readConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Config{}
		cfg.setDefaults()
		return cfg, nil
	}
	return cfg, err
}

func (c Config) ankiwebOptions(dump restyutil.Output) ankiweb.Options {
	return ankiweb.Options{
		BaseUrl:           c.AnkiWeb.BaseUrl,
		Timeout:           time.Duration(c.AnkiWeb.TimeoutSeconds) * time.Second,
		RequestsPerSecond: c.AnkiWeb.RequestsPerSecond,
		CloudflareBypass:  c.AnkiWeb.CloudflareBypass,
		Dump:              dump,
	}
}

// app is everything a refresh needs, built from the config.
type app struct {
	cfg   Config
	time  chrono.TimeAPI
	tel   telemetry.API
	db    *sql.DB
	board *leaderboard.Leaderboard
}

func newApp(ctx context.Context, cfg Config, tel telemetry.API, dump restyutil.Output) (*app, error) {
	clock, err := chrono.NewStandardTime(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	db, err := snapshot.Open(cfg.Snapshots)
	if err != nil {
		return nil, err
	}
	store, err := snapshot.NewStore(ctx, db, clock, tel)
	if err != nil {
		db.Close()
		return nil, err
	}

	opts := leaderboard.Options{
		AnkiWeb:   cfg.ankiwebOptions(dump),
		Courses:   cfg.Courses,
		Rules:     courses.NewRules(cfg.Keywords),
		Workers:   cfg.Workers,
		Weights:   cfg.Weights,
		Snapshots: store,
	}
	if cfg.Notion.Token != "" {
		opts.Quizzes = notion.NewClient(notion.Options{
			Token:      cfg.Notion.Token,
			DatabaseId: cfg.Notion.DatabaseId,
		}, tel)
	}
	if cfg.Discord.WebhookUrl != "" {
		opts.Notifier = discord.NewNotifier(cfg.Discord.WebhookUrl, clock, tel)
	}

	return &app{
		cfg:   cfg,
		time:  clock,
		tel:   tel,
		db:    db,
		board: leaderboard.New(opts, clock, tel),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
