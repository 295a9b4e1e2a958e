// Package metrics registers the process's prometheus counters (spec §4.4,
// §7): message decode failures and per-topic identifier-mismatch warnings.
//
// Grounded on the otel+prometheus counter-registration style retrieved from
// the Sumatoshi-tech-codefang example repo, the only pack repo that wires a
// metrics library; the teacher itself carries no metrics stack.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the counters shared across the aggregator and writer
// stages. A single instance is constructed at startup and threaded down to
// internal/dispatch.
type Registry struct {
	UnableToDecodeMessage *prometheus.CounterVec
	IdentifierMismatch    *prometheus.CounterVec
	MessagesProcessed     *prometheus.CounterVec
	FramesAggregated      prometheus.Counter
	RunsRetired           prometheus.Counter
}

// New registers and returns the pipeline's prometheus counters against reg.
// Pass prometheus.DefaultRegisterer in production; tests should pass a
// fresh prometheus.NewRegistry() so repeated calls don't panic on duplicate
// registration.
func New(reg prometheus.Registerer) *Registry {
	f := promauto.With(reg)
	return &Registry{
		UnableToDecodeMessage: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse_core",
			Name:      "unable_to_decode_message_total",
			Help:      "Messages dropped because their payload failed to parse.",
		}, []string{"topic"}),
		IdentifierMismatch: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse_core",
			Name:      "identifier_mismatch_total",
			Help:      "Messages dropped because their 4-byte identifier did not match the topic's expected schema.",
		}, []string{"topic"}),
		MessagesProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse_core",
			Name:      "messages_processed_total",
			Help:      "Messages successfully dispatched to an engine method, regardless of the method's own outcome.",
		}, []string{"topic"}),
		FramesAggregated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pulse_core",
			Name:      "frames_aggregated_total",
			Help:      "Frames emitted by the frame cache, by completion or expiry.",
		}),
		RunsRetired: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pulse_core",
			Name:      "runs_retired_total",
			Help:      "Runs whose files were closed and moved from temp to completed.",
		}),
	}
}
