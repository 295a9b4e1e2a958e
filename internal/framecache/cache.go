// Package framecache implements the Frame Aggregation Cache (spec §4.1): it
// correlates per-digitiser partial messages that share a logical frame
// identity and emits a merged aggregated frame exactly once, either when
// every expected digitiser has contributed or when a per-frame wall-clock
// deadline has passed.
//
// Grounded on original_source/digitiser-aggregator/src/frame/cache.rs for
// the head-only FIFO poll semantics, and on the manager/store shape of
// plugins/handler/skywalking/dialog/manager.go for the Go idiom (an ordered
// store keyed by identity, mutated from a single owning goroutine).
package framecache

import (
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/supermusr-data-pipeline/pulse-core/internal/digitiser"
	"github.com/supermusr-data-pipeline/pulse-core/internal/eventdata"
	"github.com/supermusr-data-pipeline/pulse-core/internal/spanonce"
)

// Accumulator is the subset of eventdata.Accumulate the cache needs; any
// payload type implementing it can be stored in a Cache[D].
type Accumulator interface {
	Accumulate(id digitiser.ID, contribution any)
}

// NewPayload constructs a fresh, empty accumulator for a new partial frame.
type NewPayload[D Accumulator] func() D

// partial is one in-flight frame awaiting completion or expiry. span is the
// frame's parent span handle (§9 "Cyclic ownership"): every contributing
// push calls Init on it, but only the first call sets the handle; later
// calls are no-ops. The frame holds no strong reference back to any one
// contributor's span.
type partial[D Accumulator] struct {
	metadata     digitiser.Metadata
	expiry       time.Time
	contributors map[digitiser.ID]struct{}
	order        []digitiser.ID // arrival order; Aggregated.DigitiserIDs is built sorted from contributors instead
	payload      D
	span         *spanonce.SpanOnce
}

// Aggregated is a frame whose contributions have been retired from the
// cache, either by completion or by expiry. It is emitted at most once per
// logical frame.
type Aggregated[D Accumulator] struct {
	Metadata      digitiser.Metadata
	DigitiserIDs  []digitiser.ID // sorted ascending
	DigitiserData D
	Span          *spanonce.SpanOnce
}

// Cache accumulates partial frames in arrival order and retires the head
// of that order under a completion-or-expiry predicate. It is not
// safe for concurrent use: per spec §5, the cache is owned by a single
// consumer loop and push/poll are never interleaved across goroutines.
type Cache[D Accumulator] struct {
	ttl      time.Duration
	expected digitiser.ExpectedSet
	newFn    NewPayload[D]
	now      func() time.Time

	order []*partial[D] // FIFO by creation; head = order[0]
}

// New creates a frame cache with the given completion timeout and expected
// digitiser set. newFn constructs the empty accumulator for each new
// partial frame.
func New[D Accumulator](ttl time.Duration, expected digitiser.ExpectedSet, newFn NewPayload[D]) *Cache[D] {
	return &Cache[D]{
		ttl:      ttl,
		expected: expected,
		newFn:    newFn,
		now:      time.Now,
	}
}

// Push merges a digitiser's contribution into the cache. If a partial frame
// already matches metadata (ignoring VetoFlags), the contribution is merged
// into it and its VetoFlags are bitwise-or'd with metadata's; otherwise a
// new partial frame is created at the back of the arrival order with an
// expiry of now+ttl.
func (c *Cache[D]) Push(id digitiser.ID, metadata digitiser.Metadata, contribution any) {
	for _, p := range c.order {
		if p.metadata.SameFrame(metadata) {
			p.metadata.VetoFlags = p.metadata.MergeVetoFlags(metadata)
			p.payload.Accumulate(id, contribution)
			if _, seen := p.contributors[id]; !seen {
				p.contributors[id] = struct{}{}
				p.order = append(p.order, id)
			}
			p.span.Init(trace.SpanContext{})
			return
		}
	}

	p := &partial[D]{
		metadata:     metadata,
		expiry:       c.now().Add(c.ttl),
		contributors: map[digitiser.ID]struct{}{id: {}},
		order:        []digitiser.ID{id},
		payload:      c.newFn(),
		span:         spanonce.New(),
	}
	p.payload.Accumulate(id, contribution)
	p.span.Init(trace.SpanContext{})
	c.order = append(c.order, p)
}

// Poll inspects the head of the arrival order only. It returns the
// aggregated frame and removes the head iff the head is complete (its
// contributor set is a superset of the expected set) or expired (now is at
// or past its expiry instant). It returns false when the head is neither,
// even if a later partial frame in the cache is complete — a stuck head
// bounds memory by eventually expiring on its own, rather than letting
// later frames overtake it.
func (c *Cache[D]) Poll() (Aggregated[D], bool) {
	if len(c.order) == 0 {
		return Aggregated[D]{}, false
	}

	head := c.order[0]
	complete := c.expected.Satisfied(head.contributors)
	expired := !c.now().Before(head.expiry)
	if !complete && !expired {
		return Aggregated[D]{}, false
	}

	c.order = c.order[1:]

	ids := make([]digitiser.ID, 0, len(head.contributors))
	for id := range head.contributors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return Aggregated[D]{
		Metadata:      head.metadata,
		DigitiserIDs:  ids,
		DigitiserData: head.payload,
		Span:          head.span,
	}, true
}

// NumPartial returns the number of in-flight partial frames, for
// observability.
func (c *Cache[D]) NumPartial() int {
	return len(c.order)
}

// PartialAge returns the age of the i-th partial frame (0 = head, oldest)
// relative to now, or false if i is out of range, as an observability
// accessor that exposes no internal frame state (§D.1 in SPEC_FULL.md).
// No metric in internal/metrics reads it.
func (c *Cache[D]) PartialAge(i int) (time.Duration, bool) {
	if i < 0 || i >= len(c.order) {
		return 0, false
	}
	created := c.order[i].expiry.Add(-c.ttl)
	return c.now().Sub(created), true
}

var (
	_ Accumulator = (*eventdata.EventList)(nil)
	_ Accumulator = (*eventdata.TraceData)(nil)
)
