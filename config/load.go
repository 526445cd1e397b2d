package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// envAliases are the deployment's documented environment variable names,
// mapped onto config keys. Anything else comes in through the TOTES_ prefix.
var envAliases = map[string]string{
	"REDDIT_USERNAME":      "reddit.username",
	"REDDIT_PASSWORD":      "reddit.password",
	"REDDIT_CLIENT_ID":     "reddit.client_id",
	"REDDIT_CLIENT_SECRET": "reddit.client_secret",
	"DATABASE":             "database",
	"LIMIT":                "limit",
	"WAIT":                 "wait",
	"TEST":                 "test",
	"DEBUG":                "debug",
	"SNITCH_URL":           "snitch_url",
}

// Load builds the configuration: defaults, then the optional YAML file, then
// environment variables, then CLI flags.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(defaultsProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	} else {
		for _, path := range []string{"totes.yaml", "totes.yml"} {
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
					return nil, fmt.Errorf("loading config file: %w", err)
				}
				break
			}
		}
	}

	// Generic TOTES_-prefixed variables, e.g. TOTES_TITLE_LIMIT.
	if err := k.Load(env.Provider("TOTES_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "TOTES_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	// The documented bare names win over the prefixed form.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envAliases[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env aliases: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetupFlags declares the CLI flags koanf overlays onto the config.
func SetupFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("totes", pflag.ContinueOnError)
	flags.String("config", "", "Path to config file")
	flags.String("database", "", "Database file path")
	flags.Int("limit", 0, "Submissions fetched per cycle")
	flags.Int("wait", 0, "Seconds to sleep between cycles")
	flags.Bool("test", false, "Log notifications instead of posting them")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("snitch_url", "", "Liveness beacon URL")
	return flags
}

type staticProvider struct {
	cfg *Config
}

func defaultsProvider(cfg *Config) *staticProvider {
	return &staticProvider{cfg: cfg}
}

func (p *staticProvider) ReadBytes() ([]byte, error) {
	return nil, nil
}

func (p *staticProvider) Read() (map[string]interface{}, error) {
	return map[string]interface{}{
		"database":                  p.cfg.Database,
		"limit":                     p.cfg.Limit,
		"wait":                      p.cfg.Wait,
		"min_post_age":              p.cfg.MinPostAge,
		"links_before_title_cutoff": p.cfg.LinksBeforeTitleCutoff,
		"title_limit":               p.cfg.TitleLimit,
		"user_agent":                p.cfg.UserAgent,
		"log_format":                p.cfg.LogFormat,
	}, nil
}
