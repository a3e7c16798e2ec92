// Package config loads mementer configuration from YAML and validates it
// against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/mementer/internal/engine"
)

//go:embed schema.cue
var schemaCUE string

// Config is the complete runtime configuration.
type Config struct {
	// Database is the SQLite file of the local replica.
	Database string `yaml:"database" json:"database"`

	// Author is the writer identity stamped on actions. Empty means a fresh
	// UUIDv7 per process.
	Author string `yaml:"author" json:"author,omitempty"`

	// Format is the CLI output format: text or json.
	Format string `yaml:"format" json:"format"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// FetchConcurrency bounds concurrent entry fetches in batch reads.
	FetchConcurrency int `yaml:"fetch_concurrency" json:"fetch_concurrency"`

	Replication Replication `yaml:"replication" json:"replication"`
}

// Replication configures record gossip between replicas.
type Replication struct {
	// Topic is a gocloud.dev pubsub URL, e.g. mem://mementer.
	Topic string `yaml:"topic" json:"topic,omitempty"`

	// Subscription is the pubsub URL records are received from. Empty
	// derives it from a mem:// Topic.
	Subscription string `yaml:"subscription" json:"subscription,omitempty"`

	// Publish sends every local write to Topic as it happens, for peers
	// running sync --follow.
	Publish bool `yaml:"publish" json:"publish,omitempty"`

	// AckDeadline is how long a received record may stay unacknowledged
	// before redelivery, as a Go duration.
	AckDeadline string `yaml:"ack_deadline" json:"ack_deadline,omitempty"`
}

// Deadline returns AckDeadline as a duration. Validate guarantees it parses;
// an empty value yields one minute.
func (r Replication) Deadline() time.Duration {
	d, err := time.ParseDuration(r.AckDeadline)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database:         "mementer.db",
		Format:           "text",
		LogLevel:         "info",
		FetchConcurrency: engine.DefaultFetchConcurrency,
		Replication: Replication{
			Topic:       "mem://mementer",
			AckDeadline: "1m",
		},
	}
}

// Load reads the YAML file at path over the defaults, fills in a missing
// author and validates the result. An empty path loads only the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if cfg.Author == "" {
		cfg.Author = engine.NewAuthorID()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode applies YAML data over cfg. Unknown keys are rejected.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks cfg against the CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	val := def.Unify(ctx.Encode(c))
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Replication.AckDeadline != "" {
		if _, err := time.ParseDuration(c.Replication.AckDeadline); err != nil {
			return fmt.Errorf("invalid config: replication.ack_deadline: %w", err)
		}
	}
	return nil
}

// Level returns LogLevel as a slog level.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
