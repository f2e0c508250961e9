package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink exposes compaction and budget metrics. It keys off the
// well-known event names and ignores everything else.
type PrometheusSink struct {
	segmentsCreated prometheus.Counter
	globalMerges    prometheus.Counter
	contextBuilds   prometheus.Counter
	contextUsage    prometheus.Gauge
	historyMessages prometheus.Gauge
}

// NewPrometheusSink creates a PrometheusSink and registers its collectors on
// the given registerer. Pass prometheus.DefaultRegisterer for the default.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		segmentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "contextmem",
			Name:      "segments_created_total",
			Help:      "Conversation segments created by sliding-window compaction.",
		}),
		globalMerges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "contextmem",
			Name:      "global_summary_merges_total",
			Help:      "Segment batches folded into the global summary.",
		}),
		contextBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "contextmem",
			Name:      "context_builds_total",
			Help:      "Completed context builds.",
		}),
		contextUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "contextmem",
			Name:      "context_usage_percent",
			Help:      "Share of the model context window used by the last build.",
		}),
		historyMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "contextmem",
			Name:      "history_messages",
			Help:      "History messages included in the last build.",
		}),
	}

	for _, c := range []prometheus.Collector{
		s.segmentsCreated, s.globalMerges, s.contextBuilds,
		s.contextUsage, s.historyMessages,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Emit implements Sink.
func (s *PrometheusSink) Emit(event string, payload map[string]any) {
	switch event {
	case EventSegmentSummaryCreated:
		s.segmentsCreated.Inc()
	case EventGlobalSummaryUpdated:
		s.globalMerges.Inc()
	case EventContextBuilt:
		s.contextBuilds.Inc()
		if v, ok := toFloat(payload["usage_percent"]); ok {
			s.contextUsage.Set(v)
		}
		if v, ok := toFloat(payload["history_count"]); ok {
			s.historyMessages.Set(v)
		}
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
