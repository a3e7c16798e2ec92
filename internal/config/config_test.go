package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mementer/internal/engine"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mementer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mementer.db", cfg.Database)
	assert.Equal(t, "text", cfg.Format)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
	assert.Equal(t, engine.DefaultFetchConcurrency, cfg.FetchConcurrency)
	assert.Equal(t, time.Minute, cfg.Replication.Deadline())
	assert.Len(t, cfg.Author, 36, "author defaults to a UUID")
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
database: /tmp/replica.db
author: alice
format: json
log_level: debug
fetch_concurrency: 3
replication:
  topic: mem://beads
  publish: true
  ack_deadline: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, Config{
		Database:         "/tmp/replica.db",
		Author:           "alice",
		Format:           "json",
		LogLevel:         "debug",
		FetchConcurrency: 3,
		Replication:      Replication{Topic: "mem://beads", Publish: true, AckDeadline: "30s"},
	}, cfg)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, 30*time.Second, cfg.Replication.Deadline())
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "author: bob\n"))
	require.NoError(t, err)

	assert.Equal(t, "bob", cfg.Author)
	assert.Equal(t, "mementer.db", cfg.Database)
	assert.Equal(t, "mem://mementer", cfg.Replication.Topic)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "mementer.db", cfg.Database)
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":       "colour: blue\n",
		"bad format":        "format: xml\n",
		"bad level":         "log_level: loud\n",
		"zero concurrency":  "fetch_concurrency: 0\n",
		"empty database":    "database: \"\"\n",
		"topic without url": "replication:\n  topic: beads\n",
		"bad deadline":      "replication:\n  ack_deadline: soon\n",
		"publish not bool":  "replication:\n  publish: sometimes\n",
		"not yaml":          "database: [unterminated\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
