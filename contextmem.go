// Package contextmem provides a top-level convenience entry point for
// creating a context builder with minimal boilerplate.
//
// Usage:
//
//	import "github.com/aegisgate/contextmem"
//
//	b, err := contextmem.New(contextmem.WithSummarizer(client))
//	b, err := contextmem.New(
//	    contextmem.WithConfigFile("contextmem.yaml"),
//	    contextmem.WithSummarizer(client),
//	    contextmem.WithTodoProvider(todos),
//	)
//
// The facade resolves configuration (defaults, optional yaml file, env
// overrides), constructs the configured message store and checkpoint store,
// and wires everything into a [builder.Builder]. Callers that need full
// control can construct builder.Deps directly.
package contextmem

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aegisgate/contextmem/builder"
	"github.com/aegisgate/contextmem/checkpoint"
	"github.com/aegisgate/contextmem/config"
	"github.com/aegisgate/contextmem/llm"
	"github.com/aegisgate/contextmem/store"
	"github.com/aegisgate/contextmem/telemetry"
)

// Version is the module version.
const Version = "0.3.0"

type options struct {
	configFile  string
	cfg         *config.Config
	summarizer  llm.CompletionClient
	store       store.MessageStore
	checkpoints checkpoint.Store
	environment builder.EnvironmentResolver
	todos       builder.TodoProvider
	archiver    builder.HistoryArchiver
	sink        telemetry.Sink
	logger      *zap.Logger
}

// Option configures the builder created by [New].
type Option func(*options)

// WithConfigFile loads configuration from a yaml file (with env overrides).
func WithConfigFile(path string) Option {
	return func(o *options) { o.configFile = path }
}

// WithConfig supplies an already-resolved configuration, skipping file and
// env loading.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithSummarizer sets the completion client used for segment and global
// summarization. Required.
func WithSummarizer(client llm.CompletionClient) Option {
	return func(o *options) { o.summarizer = client }
}

// WithStore overrides the configured message store.
func WithStore(s store.MessageStore) Option {
	return func(o *options) { o.store = s }
}

// WithCheckpoints overrides the configured run-state checkpoint store.
func WithCheckpoints(s checkpoint.Store) Option {
	return func(o *options) { o.checkpoints = s }
}

// WithEnvironment sets the execution-environment resolver.
func WithEnvironment(r builder.EnvironmentResolver) Option {
	return func(o *options) { o.environment = r }
}

// WithTodoProvider sets the optional todo provider.
func WithTodoProvider(p builder.TodoProvider) Option {
	return func(o *options) { o.todos = p }
}

// WithHistoryArchiver sets the optional history archiver.
func WithHistoryArchiver(a builder.HistoryArchiver) Option {
	return func(o *options) { o.archiver = a }
}

// WithTelemetrySink sets the telemetry sink.
func WithTelemetrySink(s telemetry.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithLogger sets a custom zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a ready-to-use [builder.Builder]. At minimum a summarizer must
// be supplied via [WithSummarizer].
func New(opts ...Option) (*builder.Builder, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		loaded, err := config.NewLoader().WithConfigPath(o.configFile).Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	logger := o.logger
	if logger == nil {
		l, err := newLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
		logger = l
	}

	messageStore := o.store
	if messageStore == nil {
		s, err := store.New(cfg.StoreSettings())
		if err != nil {
			return nil, err
		}
		messageStore = s
	}

	checkpoints := o.checkpoints
	if checkpoints == nil {
		s, err := checkpoint.New(cfg.CheckpointSettings())
		if err != nil {
			return nil, err
		}
		checkpoints = s
	}

	sink := o.sink
	if sink == nil {
		sink = telemetry.NewZapSink(logger)
	}

	return builder.New(builder.Deps{
		Store:              messageStore,
		Checkpoints:        checkpoints,
		Summarizer:         o.summarizer,
		Environment:        o.environment,
		Todos:              o.todos,
		Archiver:           o.archiver,
		Sink:               sink,
		Logger:             logger,
		DefaultPolicy:      cfg.DefaultPolicy(),
		WindowConfig:       cfg.WindowTuning(),
		ProviderMaxContext: cfg.Providers,
	})
}

// newLogger builds a zap logger from the log configuration.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
