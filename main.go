// Command totes watches reddit for submissions that link back at reddit and
// posts a notification reply on each thread being linked to.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dumbledong/TotesMessenger/config"
	"github.com/dumbledong/TotesMessenger/notify"
	"github.com/dumbledong/TotesMessenger/poll"
	"github.com/dumbledong/TotesMessenger/reddit"
	"github.com/dumbledong/TotesMessenger/store"
)

func main() {
	// Check for subcommands before flag parsing.
	seedMode := len(os.Args) > 1 && os.Args[1] == "seed"
	args := os.Args[1:]
	if seedMode {
		args = os.Args[2:]
	}

	flags := config.SetupFlags()
	if err := flags.Parse(args); err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}
	configPath, _ := flags.GetString("config")

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		slog.Error("Error loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg)

	if err := run(cfg, logger, seedMode); err != nil {
		logger.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, seedMode bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Warn("Failed to close store", "error", closeErr)
		}
	}()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	if seedMode {
		return seed(ctx, cfg, st, logger)
	}

	client := reddit.New(
		&http.Client{Timeout: 30 * time.Second},
		reddit.Credentials{
			Username:     cfg.Reddit.Username,
			Password:     cfg.Reddit.Password,
			ClientID:     cfg.Reddit.ClientID,
			ClientSecret: cfg.Reddit.ClientSecret,
		},
		cfg.UserAgent,
		logger,
	)

	notifier := notify.New(client, logger, notify.Options{
		DryRun:           cfg.Test,
		TitleCutoffCount: cfg.LinksBeforeTitleCutoff,
		TitleLimit:       cfg.TitleLimit,
	})

	totes := poll.New(client, st, notifier, logger, poll.Options{
		Limit:      cfg.Limit,
		MinPostAge: time.Duration(cfg.MinPostAge) * time.Second,
		SnitchURL:  cfg.SnitchURL,
	})

	if err := totes.Setup(ctx); err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	err = totes.Loop(ctx, time.Duration(cfg.Wait)*time.Second)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run loop: %w", err)
	}

	logger.Info("Totes goodbye!")
	return nil
}

// seed syncs the configured watched/ignored lists into the preference tables.
func seed(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) error {
	prefs := store.NewPrefs(st.DB())
	yes, no := true, false

	for _, name := range cfg.Seed.WatchedSources {
		logger.Info("Watching sources", "subreddit", name)
		if err := prefs.UpsertSubreddit(ctx, name, &yes, nil); err != nil {
			return fmt.Errorf("seed subreddit %s: %w", name, err)
		}
	}

	for _, name := range cfg.Seed.WatchedLinks {
		logger.Info("Watching links", "subreddit", name)
		if err := prefs.UpsertSubreddit(ctx, name, nil, &yes); err != nil {
			return fmt.Errorf("seed subreddit %s: %w", name, err)
		}
	}

	for _, name := range cfg.Seed.IgnoredSubreddits {
		logger.Info("Ignoring subreddit", "subreddit", name)
		if err := prefs.UpsertSubreddit(ctx, name, &no, &no); err != nil {
			return fmt.Errorf("seed subreddit %s: %w", name, err)
		}
	}

	for _, name := range cfg.Seed.IgnoredUsers {
		logger.Info("Ignoring user", "user", name)
		if err := prefs.UpsertUser(ctx, name, nil, &no); err != nil {
			return fmt.Errorf("seed user %s: %w", name, err)
		}
	}

	logger.Info("Preferences seeded")
	return nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
