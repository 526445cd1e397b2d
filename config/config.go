// Package config loads process configuration from defaults, an optional YAML
// file, environment variables, and CLI flags, in that order of precedence.
package config

import "errors"

// Config is the full process configuration.
type Config struct {
	Reddit   RedditConfig `koanf:"reddit"`
	Database string       `koanf:"database"`

	// Limit is how many candidate submissions each cycle fetches.
	Limit int `koanf:"limit"`
	// Wait is the pause between cycles, in seconds.
	Wait int `koanf:"wait"`
	// MinPostAge is how old a submission must be before it is processed,
	// in seconds.
	MinPostAge int `koanf:"min_post_age"`

	// LinksBeforeTitleCutoff is the link count above which rendered titles
	// are truncated.
	LinksBeforeTitleCutoff int `koanf:"links_before_title_cutoff"`
	// TitleLimit is the truncation length in characters.
	TitleLimit int `koanf:"title_limit"`

	// Test renders notifications to the log instead of posting them.
	Test bool `koanf:"test"`
	// Debug lowers the log level to debug.
	Debug bool `koanf:"debug"`

	SnitchURL string `koanf:"snitch_url"`
	UserAgent string `koanf:"user_agent"`
	LogFormat string `koanf:"log_format"`

	Seed SeedConfig `koanf:"seed"`
}

// RedditConfig holds the script-app OAuth credentials.
type RedditConfig struct {
	Username     string `koanf:"username"`
	Password     string `koanf:"password"`
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
}

// SeedConfig lists the subreddits and users whose preference rows the seed
// subcommand syncs into the store.
type SeedConfig struct {
	WatchedSources    []string `koanf:"watched_sources"`
	WatchedLinks      []string `koanf:"watched_links"`
	IgnoredSubreddits []string `koanf:"ignored_subreddits"`
	IgnoredUsers      []string `koanf:"ignored_users"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Database:               "totes.sqlite3",
		Limit:                  25,
		Wait:                   30,
		MinPostAge:             120,
		LinksBeforeTitleCutoff: 40,
		TitleLimit:             137,
		UserAgent:              "TotesMessenger v0.7 (github.com/dumbledong/TotesMessenger)",
		LogFormat:              "text",
	}
}

// Validate rejects configurations the process cannot start with. Even test
// mode reads from reddit, so credentials are always required.
func Validate(cfg *Config) error {
	if cfg.Reddit.Username == "" || cfg.Reddit.Password == "" ||
		cfg.Reddit.ClientID == "" || cfg.Reddit.ClientSecret == "" {
		return errors.New("reddit credentials are required (REDDIT_USERNAME, REDDIT_PASSWORD, REDDIT_CLIENT_ID, REDDIT_CLIENT_SECRET)")
	}
	return nil
}
