// Package config loads configur8 settings from defaults, an optional YAML
// file, CONFIGUR8_* environment variables and bound command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/configur8/internal/source"
	"github.com/roach88/configur8/internal/tracing"
)

// DefaultFileName is looked up in the working directory when no config file
// is given explicitly.
const DefaultFileName = ".configur8.yaml"

// EnvPrefix prefixes environment overrides: CONFIGUR8_SOURCES_KV_DB.
const EnvPrefix = "CONFIGUR8"

// Config holds all configuration options for configur8.
type Config struct {
	// Concurrency bounds how many entries resolve at once. 0 is unbounded.
	Concurrency int `mapstructure:"concurrency"`

	// Redact masks resolved values in logs.
	Redact bool `mapstructure:"redact"`

	Sources SourcesConfig  `mapstructure:"sources"`
	Tracing tracing.Config `mapstructure:"tracing"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// SourcesConfig configures the value sources registered for resolution.
type SourcesConfig struct {
	// CacheTTL wraps every source in a cache. 0 disables caching.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	Env    EnvConfig    `mapstructure:"env"`
	File   FileConfig   `mapstructure:"file"`
	KV     KVConfig     `mapstructure:"kv"`
	Age    AgeConfig    `mapstructure:"age"`
	Static StaticConfig `mapstructure:"static"`
}

// EnvConfig configures the environment variable source.
type EnvConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

// FileConfig configures the plain file source.
type FileConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
	BaseDir string `mapstructure:"base_dir"`
}

// KVConfig configures the sqlite value store source.
type KVConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
	DB      string `mapstructure:"db"`
}

// AgeConfig configures the age-encrypted file source.
type AgeConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Prefix       string `mapstructure:"prefix"`
	BaseDir      string `mapstructure:"base_dir"`
	IdentityFile string `mapstructure:"identity_file"`
}

// StaticConfig declares fixed token values. Entries are a list rather than a
// map because config keys are case-folded and tokens are not.
type StaticConfig struct {
	Prefix  string        `mapstructure:"prefix"`
	Entries []StaticEntry `mapstructure:"entries"`
}

// StaticEntry maps a full token, or a token path, to a value.
type StaticEntry struct {
	Token string `mapstructure:"token"`
	Value string `mapstructure:"value"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		Concurrency: 0,
		Redact:      false,
		Sources: SourcesConfig{
			CacheTTL: source.DefaultCacheTTL,
			Env:      EnvConfig{Enabled: true, Prefix: "env"},
			File:     FileConfig{Enabled: false, Prefix: "file", BaseDir: "."},
			KV:       KVConfig{Enabled: false, Prefix: "kv", DB: "configur8.db"},
			Age:      AgeConfig{Enabled: false, Prefix: "age", BaseDir: "."},
			Static:   StaticConfig{Prefix: "static"},
		},
		Tracing: tracing.DefaultConfig(),
	}
}

// Options controls where Load reads from.
type Options struct {
	// Path is an explicit config file. Missing explicit files are an error.
	Path string

	// Flags are bound by name: a flag named "concurrency" overrides the
	// "concurrency" key when set on the command line.
	Flags *pflag.FlagSet
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"concurrency": "concurrency",
	"redact":      "redact",
	"kv-db":       "sources.kv.db",
}

// Load builds a Config. An explicit Path must exist; otherwise
// DefaultFileName in the working directory is read if present.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Path != "" {
		v.SetConfigFile(opts.Path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFileName, ".yaml"))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.Path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %q: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("redact", d.Redact)

	v.SetDefault("sources.cache_ttl", d.Sources.CacheTTL)
	v.SetDefault("sources.env.enabled", d.Sources.Env.Enabled)
	v.SetDefault("sources.env.prefix", d.Sources.Env.Prefix)
	v.SetDefault("sources.file.enabled", d.Sources.File.Enabled)
	v.SetDefault("sources.file.prefix", d.Sources.File.Prefix)
	v.SetDefault("sources.file.base_dir", d.Sources.File.BaseDir)
	v.SetDefault("sources.kv.enabled", d.Sources.KV.Enabled)
	v.SetDefault("sources.kv.prefix", d.Sources.KV.Prefix)
	v.SetDefault("sources.kv.db", d.Sources.KV.DB)
	v.SetDefault("sources.age.enabled", d.Sources.Age.Enabled)
	v.SetDefault("sources.age.prefix", d.Sources.Age.Prefix)
	v.SetDefault("sources.age.base_dir", d.Sources.Age.BaseDir)
	v.SetDefault("sources.age.identity_file", d.Sources.Age.IdentityFile)
	v.SetDefault("sources.static.prefix", d.Sources.Static.Prefix)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// ValidationError names an invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate reports every invalid setting, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, msg string) {
		errs = append(errs, &ValidationError{Field: field, Message: msg})
	}

	if c.Concurrency < 0 {
		add("concurrency", "must be non-negative")
	}
	if c.Sources.CacheTTL < 0 {
		add("sources.cache_ttl", "must be non-negative")
	}

	prefixes := map[string]string{}
	claim := func(field, prefix string) {
		if prefix == "" {
			add(field, "prefix is required")
			return
		}
		if other, ok := prefixes[prefix]; ok {
			add(field, fmt.Sprintf("prefix %q already used by %s", prefix, other))
			return
		}
		prefixes[prefix] = field
	}

	s := c.Sources
	if s.Env.Enabled {
		claim("sources.env.prefix", s.Env.Prefix)
	}
	if s.File.Enabled {
		claim("sources.file.prefix", s.File.Prefix)
		if s.File.BaseDir == "" {
			add("sources.file.base_dir", "required when the file source is enabled")
		}
	}
	if s.KV.Enabled {
		claim("sources.kv.prefix", s.KV.Prefix)
		if s.KV.DB == "" {
			add("sources.kv.db", "required when the kv source is enabled")
		}
	}
	if s.Age.Enabled {
		claim("sources.age.prefix", s.Age.Prefix)
		if s.Age.BaseDir == "" {
			add("sources.age.base_dir", "required when the age source is enabled")
		}
		if s.Age.IdentityFile == "" {
			add("sources.age.identity_file", "required when the age source is enabled")
		}
	}
	if len(s.Static.Entries) > 0 {
		claim("sources.static.prefix", s.Static.Prefix)
		for i, e := range s.Static.Entries {
			if e.Token == "" {
				add(fmt.Sprintf("sources.static.entries[%d].token", i), "required")
			}
		}
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case tracing.ExporterStdout, tracing.ExporterOTLP:
		default:
			add("tracing.exporter", fmt.Sprintf("unsupported exporter %q", c.Tracing.Exporter))
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			add("tracing.sample_rate", "must be between 0 and 1")
		}
	}

	return errors.Join(errs...)
}
