package dispatch

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/supermusr-data-pipeline/pulse-core/internal/metrics"
	"github.com/supermusr-data-pipeline/pulse-core/internal/transport"
)

func newTestLoop(t *testing.T, handler Handler) *Loop {
	t.Helper()
	reg := metrics.New(prometheus.NewRegistry())
	return &Loop{handler: handler, metrics: reg}
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, label string) float64 {
	t.Helper()
	return testutil.ToFloat64(vec.WithLabelValues(label))
}

func TestProcessIdentifierMismatch(t *testing.T) {
	invoked := false
	handler := Handler{
		Topic:      "frame_event",
		Identifier: [4]byte{'f', '1', '4', '4'},
		Parse:      func(v []byte) (any, error) { return v, nil },
		Invoke:     func(p any) error { invoked = true; return nil },
	}
	l := newTestLoop(t, handler)

	rec := transport.Record{Topic: "frame_event", Value: []byte("evnt-rest-of-payload")}
	l.process(rec)

	assert.False(t, invoked, "mismatched identifier must not invoke the engine method")
	assert.Equal(t, float64(1), counterValue(t, l.metrics.IdentifierMismatch, "frame_event"))
}

func TestProcessParseFailure(t *testing.T) {
	invoked := false
	handler := Handler{
		Topic:      "frame_event",
		Identifier: [4]byte{'f', '1', '4', '4'},
		Parse:      func(v []byte) (any, error) { return nil, assert.AnError },
		Invoke:     func(p any) error { invoked = true; return nil },
	}
	l := newTestLoop(t, handler)

	rec := transport.Record{Topic: "frame_event", Value: []byte("f144-rest-of-payload")}
	l.process(rec)

	assert.False(t, invoked, "parse failure must not invoke the engine method")
	assert.Equal(t, float64(1), counterValue(t, l.metrics.UnableToDecodeMessage, "frame_event"))
}

func TestProcessSuccessfulDispatch(t *testing.T) {
	var received any
	handler := Handler{
		Topic:      "frame_event",
		Identifier: [4]byte{'f', '1', '4', '4'},
		Parse:      func(v []byte) (any, error) { return string(v[4:]), nil },
		Invoke:     func(p any) error { received = p; return nil },
	}
	l := newTestLoop(t, handler)

	rec := transport.Record{Topic: "frame_event", Value: []byte("f144payload")}
	l.process(rec)

	assert.Equal(t, "payload", received)
	assert.Equal(t, float64(1), counterValue(t, l.metrics.MessagesProcessed, "frame_event"))
}

func TestProcessEngineErrorStillCounted(t *testing.T) {
	handler := Handler{
		Topic:      "frame_event",
		Identifier: [4]byte{'f', '1', '4', '4'},
		Parse:      func(v []byte) (any, error) { return v, nil },
		Invoke:     func(p any) error { return assert.AnError },
	}
	l := newTestLoop(t, handler)

	rec := transport.Record{Topic: "frame_event", Value: []byte("f144payload")}
	l.process(rec)

	assert.Equal(t, float64(1), counterValue(t, l.metrics.MessagesProcessed, "frame_event"),
		"an engine-level error must still be committed/counted per spec step 4")
}
