// Package config loads module configuration with the precedence
// defaults -> YAML file -> environment variables.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("contextmem.yaml").
//	    WithEnvPrefix("CONTEXTMEM").
//	    Load()
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aegisgate/contextmem/builder"
	"github.com/aegisgate/contextmem/checkpoint"
	"github.com/aegisgate/contextmem/store"
	"github.com/aegisgate/contextmem/window"
)

// Config is the full module configuration.
type Config struct {
	// Window tunes the sliding-window compaction engine.
	Window WindowConfig `yaml:"window" env:"WINDOW"`

	// Builder holds the default per-build layer caps.
	Builder BuilderConfig `yaml:"builder" env:"BUILDER"`

	// Providers maps provider name to a max-context-length override. Absent
	// providers fall back to the built-in default table.
	Providers map[string]int `yaml:"providers" env:"-"`

	// Store selects the message store backend.
	Store StoreConfig `yaml:"store" env:"STORE"`

	// Checkpoint selects the run-state checkpoint backend.
	Checkpoint CheckpointConfig `yaml:"checkpoint" env:"CHECKPOINT"`

	// Log configures the zap logger.
	Log LogConfig `yaml:"log" env:"LOG"`
}

// WindowConfig mirrors window.Config for yaml/env loading.
type WindowConfig struct {
	SegmentSize         int     `yaml:"segment_size" env:"SEGMENT_SIZE"`
	RecentMessageCount  int     `yaml:"recent_message_count" env:"RECENT_MESSAGE_COUNT"`
	MaxSegmentSummaries int     `yaml:"max_segment_summaries" env:"MAX_SEGMENT_SUMMARIES"`
	MaxContextTokens    int     `yaml:"max_context_tokens" env:"MAX_CONTEXT_TOKENS"`
	GlobalSummaryRatio  float64 `yaml:"global_summary_ratio" env:"GLOBAL_SUMMARY_RATIO"`
	SegmentSummaryRatio float64 `yaml:"segment_summary_ratio" env:"SEGMENT_SUMMARY_RATIO"`
}

// BuilderConfig holds the default layer caps applied when the caller does not
// supply a policy.
type BuilderConfig struct {
	LayerMaxChars      int `yaml:"layer_max_chars" env:"LAYER_MAX_CHARS"`
	TaskBriefMaxChars  int `yaml:"task_brief_max_chars" env:"TASK_BRIEF_MAX_CHARS"`
	RunStateMaxChars   int `yaml:"run_state_max_chars" env:"RUN_STATE_MAX_CHARS"`
	RunStateMaxDigests int `yaml:"run_state_max_digests" env:"RUN_STATE_MAX_DIGESTS"`
}

// StoreConfig selects the message store backend.
type StoreConfig struct {
	// Type: memory or sqlite.
	Type string `yaml:"type" env:"TYPE"`
	// Path is the sqlite database path.
	Path string `yaml:"path" env:"PATH"`
}

// CheckpointConfig selects the run-state checkpoint backend.
type CheckpointConfig struct {
	// Type: memory, redis, or sqlite.
	Type string `yaml:"type" env:"TYPE"`
	// Path is the sqlite database path.
	Path string `yaml:"path" env:"PATH"`
	// Redis connection settings, used when Type is redis.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	w := window.DefaultConfig()
	return &Config{
		Window: WindowConfig{
			SegmentSize:         w.SegmentSize,
			RecentMessageCount:  w.RecentMessageCount,
			MaxSegmentSummaries: w.MaxSegmentSummaries,
			MaxContextTokens:    w.MaxContextTokens,
			GlobalSummaryRatio:  w.GlobalSummaryRatio,
			SegmentSummaryRatio: w.SegmentSummaryRatio,
		},
		Builder: BuilderConfig{
			LayerMaxChars:      20000,
			TaskBriefMaxChars:  200,
			RunStateMaxChars:   1500,
			RunStateMaxDigests: 5,
		},
		Providers: map[string]int{},
		Store: StoreConfig{
			Type: string(store.TypeMemory),
		},
		Checkpoint: CheckpointConfig{
			Type: string(checkpoint.TypeMemory),
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "contextmem:runstate:",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// WindowTuning converts to the window package's config type.
func (c *Config) WindowTuning() window.Config {
	return window.Config{
		SegmentSize:         c.Window.SegmentSize,
		RecentMessageCount:  c.Window.RecentMessageCount,
		MaxSegmentSummaries: c.Window.MaxSegmentSummaries,
		MaxContextTokens:    c.Window.MaxContextTokens,
		GlobalSummaryRatio:  c.Window.GlobalSummaryRatio,
		SegmentSummaryRatio: c.Window.SegmentSummaryRatio,
	}
}

// StoreSettings converts to the store package's config type.
func (c *Config) StoreSettings() store.Config {
	return store.Config{
		Type: store.Type(c.Store.Type),
		Path: c.Store.Path,
	}
}

// DefaultPolicy converts the builder section into the per-build layer
// policy applied when a build request carries a zero policy. Layer switches
// keep the builder package's defaults; only the caps are configurable here.
func (c *Config) DefaultPolicy() builder.Policy {
	p := builder.DefaultPolicy()
	if c.Builder.LayerMaxChars > 0 {
		p.LayerMaxChars = c.Builder.LayerMaxChars
	}
	if c.Builder.TaskBriefMaxChars > 0 {
		p.TaskBriefMaxChars = c.Builder.TaskBriefMaxChars
	}
	if c.Builder.RunStateMaxChars > 0 {
		p.RunStateMaxChars = c.Builder.RunStateMaxChars
	}
	if c.Builder.RunStateMaxDigests > 0 {
		p.RunStateMaxDigests = c.Builder.RunStateMaxDigests
	}
	return p
}

// CheckpointSettings converts to the checkpoint package's config type.
func (c *Config) CheckpointSettings() checkpoint.Config {
	return checkpoint.Config{
		Type: checkpoint.Type(c.Checkpoint.Type),
		Path: c.Checkpoint.Path,
		Redis: checkpoint.RedisConfig{
			Addr:      c.Checkpoint.Redis.Addr,
			Password:  c.Checkpoint.Redis.Password,
			DB:        c.Checkpoint.Redis.DB,
			KeyPrefix: c.Checkpoint.Redis.KeyPrefix,
		},
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	var errs []string

	if c.Window.RecentMessageCount <= 0 {
		errs = append(errs, "window.recent_message_count must be positive")
	}
	if c.Window.MaxSegmentSummaries <= 0 {
		errs = append(errs, "window.max_segment_summaries must be positive")
	}
	if c.Window.MaxContextTokens <= 0 {
		errs = append(errs, "window.max_context_tokens must be positive")
	}
	if r := c.Window.GlobalSummaryRatio; r < 0 || r > 1 {
		errs = append(errs, "window.global_summary_ratio must be within [0, 1]")
	}
	if r := c.Window.SegmentSummaryRatio; r < 0 || r > 1 {
		errs = append(errs, "window.segment_summary_ratio must be within [0, 1]")
	}
	for provider, n := range c.Providers {
		if n <= 0 {
			errs = append(errs, fmt.Sprintf("providers.%s must be positive", provider))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Loader loads configuration with defaults, an optional yaml file, and
// environment overrides, in that order.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the CONTEXTMEM env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "CONTEXTMEM"}
}

// WithConfigPath sets the yaml file path. A missing file is not an error;
// defaults apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the final configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	}
	return nil
}

// MustLoad loads configuration from path and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
