// ABOUTME: Prometheus counters and histograms for the intake loop
// ABOUTME: Nil-safe observers so components run unchanged without metrics wired in
package metrics

import "github.com/prometheus/client_golang/prometheus"

// IngestMetrics exposes counters/histograms for polls and recording.
type IngestMetrics struct {
	messagesTotal         *prometheus.CounterVec
	sourceErrorsTotal     *prometheus.CounterVec
	intentsTotal          *prometheus.CounterVec
	classificationChanges prometheus.Counter
	eventsDropped         prometheus.Counter
	pollDuration          *prometheus.HistogramVec
}

func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	m := &IngestMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradedesk",
			Subsystem: "intake",
			Name:      "messages_total",
			Help:      "Messages read from mail sources by outcome",
		}, []string{"source", "outcome"}),
		sourceErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradedesk",
			Subsystem: "intake",
			Name:      "errors_total",
			Help:      "Intake errors by source and kind",
		}, []string{"source", "kind"}),
		intentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradedesk",
			Subsystem: "intake",
			Name:      "intents_total",
			Help:      "Intent tags on recorded messages",
		}, []string{"intent"}),
		classificationChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradedesk",
			Subsystem: "scoring",
			Name:      "classification_changes_total",
			Help:      "Client band transitions",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradedesk",
			Subsystem: "scoring",
			Name:      "events_dropped_total",
			Help:      "Events evicted from a full notification queue",
		}),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tradedesk",
			Subsystem: "intake",
			Name:      "poll_duration_seconds",
			Help:      "Duration of a full poll across all sources",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.sourceErrorsTotal, m.intentsTotal,
		m.classificationChanges, m.eventsDropped, m.pollDuration)
	return m
}

func (m *IngestMetrics) ObserveMessage(source, outcome string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(source, outcome).Inc()
}

func (m *IngestMetrics) ObserveError(source, kind string) {
	if m == nil {
		return
	}
	m.sourceErrorsTotal.WithLabelValues(source, kind).Inc()
}

func (m *IngestMetrics) ObserveIntent(intent string) {
	if m == nil {
		return
	}
	m.intentsTotal.WithLabelValues(intent).Inc()
}

func (m *IngestMetrics) ObserveClassificationChange() {
	if m == nil {
		return
	}
	m.classificationChanges.Inc()
}

func (m *IngestMetrics) ObserveEventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

func (m *IngestMetrics) ObservePoll(result string, seconds float64) {
	if m == nil {
		return
	}
	m.pollDuration.WithLabelValues(result).Observe(seconds)
}
