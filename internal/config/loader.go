package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "SCOREBOARD_"
	envFileKey = "SCOREBOARD_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if SCOREBOARD_CONFIG is set
//  3. env (prefix SCOREBOARD_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(envFileKey); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// SCOREBOARD_QUEUE_SIZE -> queue_size; underscores are kept to match the koanf tags.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	// The file path itself is not a config key.
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.Cache = strings.ToLower(strings.TrimSpace(cfg.Cache))
	cfg.SubmitStrategy = strings.ToLower(strings.TrimSpace(cfg.SubmitStrategy))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
