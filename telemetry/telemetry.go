// Package telemetry provides the fire-and-forget event sink used for
// observability side effects. Emission failures never affect correctness of
// a build; sinks must not return errors and must not block for long.
package telemetry

import "go.uber.org/zap"

// Event names emitted by the module.
const (
	EventSegmentSummaryCreated = "agent:segment_summary_created"
	EventGlobalSummaryUpdated  = "agent:global_summary_updated"
	EventContextBuilt          = "agent:context_built"
)

// Sink receives structured events. Implementations are fire-and-forget.
type Sink interface {
	Emit(event string, payload map[string]any)
}

// NopSink discards all events. Used when no sink is configured.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(string, map[string]any) {}

// ZapSink logs every event at info level through a zap logger.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink creates a ZapSink. A nil logger degrades to zap.NewNop().
func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger.With(zap.String("component", "telemetry"))}
}

// Emit implements Sink.
func (s *ZapSink) Emit(event string, payload map[string]any) {
	s.logger.Info(event, zap.Any("payload", payload))
}

// MultiSink fans events out to several sinks.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(event string, payload map[string]any) {
	for _, s := range m {
		if s != nil {
			s.Emit(event, payload)
		}
	}
}
