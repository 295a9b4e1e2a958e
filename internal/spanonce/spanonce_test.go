package spanonce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestInitSetsOnce(t *testing.T) {
	s := New()
	assert.Equal(t, Unset, s.State())

	assert.True(t, s.Init(trace.SpanContext{}))
	assert.Equal(t, Set, s.State())

	assert.False(t, s.Init(trace.SpanContext{}), "a second Init must not re-arm an already-Set handle")
	assert.Equal(t, Set, s.State())
}

func TestTakeConsumesOnce(t *testing.T) {
	s := New()
	s.Init(trace.SpanContext{})

	_, ok := s.Take()
	assert.True(t, ok)
	assert.Equal(t, Taken, s.State())

	_, ok = s.Take()
	assert.False(t, ok, "a second Take must not succeed once the handle is Taken")
}

func TestTakeBeforeInitFails(t *testing.T) {
	s := New()
	_, ok := s.Take()
	assert.False(t, ok)
	assert.Equal(t, Unset, s.State())
}

func TestLinkDoesNotConsume(t *testing.T) {
	s := New()
	s.Init(trace.SpanContext{})

	h1, state1 := s.Link()
	h2, state2 := s.Link()
	assert.Equal(t, Set, state1)
	assert.Equal(t, Set, state2)
	assert.Equal(t, h1.ID, h2.ID, "repeated Link reads must observe the same handle")

	_, ok := s.Take()
	assert.True(t, ok, "Link must not have consumed the handle")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unset", Unset.String())
	assert.Equal(t, "set", Set.String())
	assert.Equal(t, "taken", Taken.String())
}
