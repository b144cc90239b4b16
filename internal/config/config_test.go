package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/configur8/internal/source"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(Options{})
	require.NoError(t, err)

	d := Defaults()
	assert.Equal(t, d.Concurrency, cfg.Concurrency)
	assert.Equal(t, d.Sources.CacheTTL, cfg.Sources.CacheTTL)
	assert.True(t, cfg.Sources.Env.Enabled)
	assert.Equal(t, "env", cfg.Sources.Env.Prefix)
	assert.False(t, cfg.Sources.KV.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Empty(t, cfg.File)
}

func TestLoad_ReadsDefaultFileInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte("concurrency: 4\n"), 0o644))

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, DefaultFileName, filepath.Base(cfg.File))
}

func TestLoad_ExplicitFile(t *testing.T) {
	path := writeConfig(t, `
concurrency: 8
redact: true
sources:
  cache_ttl: 30s
  env:
    enabled: false
  kv:
    enabled: true
    prefix: store
    db: /tmp/values.db
  static:
    prefix: ref
    entries:
      - token: "ref:Mixed"
        value: kept-case
tracing:
  enabled: true
  exporter: otlp
  endpoint: collector:4317
`)

	cfg, err := Load(Options{Path: path})
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Concurrency)
	assert.True(t, cfg.Redact)
	assert.Equal(t, 30*time.Second, cfg.Sources.CacheTTL)
	assert.False(t, cfg.Sources.Env.Enabled)
	assert.Equal(t, KVConfig{Enabled: true, Prefix: "store", DB: "/tmp/values.db"}, cfg.Sources.KV)
	assert.Equal(t, []StaticEntry{{Token: "ref:Mixed", Value: "kept-case"}}, cfg.Sources.Static.Entries)
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, "collector:4317", cfg.Tracing.Endpoint)
	assert.Equal(t, path, cfg.File)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(Options{Path: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "concurrency: 2\n")
	t.Setenv("CONFIGUR8_CONCURRENCY", "6")
	t.Setenv("CONFIGUR8_SOURCES_KV_DB", "/env/values.db")

	cfg, err := Load(Options{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Concurrency)
	assert.Equal(t, "/env/values.db", cfg.Sources.KV.DB)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIGUR8_CONCURRENCY", "6")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("concurrency", 0, "")
	flags.Bool("redact", false, "")
	require.NoError(t, flags.Parse([]string{"--concurrency", "3", "--redact"}))

	cfg, err := Load(Options{Flags: flags})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.True(t, cfg.Redact)
}

func TestLoad_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "concurrency: -1\n")

	_, err := Load(Options{Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "concurrency", ve.Field)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		fields []string
	}{
		{
			name:   "defaults are valid",
			modify: func(*Config) {},
		},
		{
			name: "kv without db",
			modify: func(c *Config) {
				c.Sources.KV.Enabled = true
				c.Sources.KV.DB = ""
			},
			fields: []string{"sources.kv.db"},
		},
		{
			name: "age without identity",
			modify: func(c *Config) {
				c.Sources.Age.Enabled = true
			},
			fields: []string{"sources.age.identity_file"},
		},
		{
			name: "duplicate prefix",
			modify: func(c *Config) {
				c.Sources.File.Enabled = true
				c.Sources.File.Prefix = "env"
			},
			fields: []string{"sources.file.prefix"},
		},
		{
			name: "static entry without token",
			modify: func(c *Config) {
				c.Sources.Static.Entries = []StaticEntry{{Value: "x"}}
			},
			fields: []string{"sources.static.entries[0].token"},
		},
		{
			name: "bad tracing",
			modify: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "file"
				c.Tracing.SampleRate = 2
			},
			fields: []string{"tracing.exporter", "tracing.sample_rate"},
		},
		{
			name: "negative values",
			modify: func(c *Config) {
				c.Concurrency = -1
				c.Sources.CacheTTL = -time.Second
			},
			fields: []string{"concurrency", "sources.cache_ttl"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := cfg.Validate()

			if len(tt.fields) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, field := range tt.fields {
				assert.Contains(t, err.Error(), field+":")
			}
		})
	}
}

func TestBuildSources(t *testing.T) {
	cfg := Defaults()
	cfg.Sources.CacheTTL = 0
	cfg.Sources.KV.Enabled = true
	cfg.Sources.KV.DB = filepath.Join(t.TempDir(), "values.db")
	cfg.Sources.Static.Prefix = "ref"
	cfg.Sources.Static.Entries = []StaticEntry{{Token: "ref:a", Value: "A"}}

	srcs, err := BuildSources(&cfg, func(name string) (string, bool) {
		if name == "HOME" {
			return "/home/app", true
		}
		return "", false
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srcs.Close() })

	assert.Equal(t, []string{"env", "kv", "ref"}, srcs.Registry.Prefixes())
	require.NotNil(t, srcs.Store)

	ctx := context.Background()
	_, err = srcs.Store.Put(ctx, "/db/host", "db.internal")
	require.NoError(t, err)

	check := func(tok, want string) {
		t.Helper()
		src, ok := srcs.Registry.FindSource(tok)
		require.True(t, ok, tok)
		v, found, err := src.Value(ctx, tok)
		require.NoError(t, err)
		require.True(t, found, tok)
		assert.Equal(t, want, v)
	}
	check("env:HOME", "/home/app")
	check("kv:/db/host", "db.internal")
	check("ref:a", "A")
}

func TestBuildSources_WrapsInCache(t *testing.T) {
	cfg := Defaults()
	srcs, err := BuildSources(&cfg, nil, nil)
	require.NoError(t, err)

	src, ok := srcs.Registry.FindSource("env:HOME")
	require.True(t, ok)
	_, cached := src.(*source.Cached)
	assert.True(t, cached)
	assert.Nil(t, srcs.Store)
	assert.NoError(t, srcs.Close())
}

func TestBuildSources_MissingIdentityFile(t *testing.T) {
	cfg := Defaults()
	cfg.Sources.Age.Enabled = true
	cfg.Sources.Age.IdentityFile = filepath.Join(t.TempDir(), "missing.txt")

	_, err := BuildSources(&cfg, nil, nil)
	assert.Error(t, err)
}

func TestBuildSources_CacheLogsOnGivenLogger(t *testing.T) {
	cfg := Defaults()
	cfg.Sources.Static.Entries = []StaticEntry{{Token: "static:a", Value: "A"}}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	srcs, err := BuildSources(&cfg, nil, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srcs.Close() })

	src, ok := srcs.Registry.FindSource("static:a")
	require.True(t, ok)
	for i := 0; i < 2; i++ {
		_, _, err := src.Value(context.Background(), "static:a")
		require.NoError(t, err)
	}
	assert.Contains(t, buf.String(), "cache hit")
	assert.Contains(t, buf.String(), "token=static:a")
}
