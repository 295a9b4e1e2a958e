package framecache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supermusr-data-pipeline/pulse-core/internal/digitiser"
	"github.com/supermusr-data-pipeline/pulse-core/internal/eventdata"
)

func newTestCache(ttl time.Duration, expected ...digitiser.ID) (*Cache[*eventdata.EventList], *fakeClock) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	c := New(ttl, digitiser.NewExpectedSet(expected...), eventdata.NewEventList)
	c.now = clk.Now
	return c, clk
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func baseMeta() digitiser.Metadata {
	return digitiser.Metadata{
		Timestamp:       time.Unix(100, 0),
		PeriodNumber:    1,
		FrameNumber:     7,
		ProtonsPerPulse: 1000,
		Running:         true,
	}
}

func contribution(id digitiser.ID) eventdata.EventContribution {
	return eventdata.EventContribution{
		Time:    []uint32{uint32(id)},
		Voltage: []uint16{uint16(id)},
		Channel: []uint32{uint32(id)},
	}
}

// Scenario A — happy aggregation.
func TestHappyAggregation(t *testing.T) {
	c, _ := newTestCache(100*time.Millisecond, 0, 1, 4, 8)
	meta := baseMeta()
	for _, id := range []digitiser.ID{0, 1, 4, 8} {
		c.Push(id, meta, contribution(id))
	}

	frame, ok := c.Poll()
	require.True(t, ok)
	assert.Equal(t, []digitiser.ID{0, 1, 4, 8}, frame.DigitiserIDs)
	assert.Equal(t, 4, frame.DigitiserData.Len())
}

// Scenario B — timeout drop.
func TestTimeoutDrop(t *testing.T) {
	c, clk := newTestCache(100*time.Millisecond, 0, 1, 4, 8)
	meta := baseMeta()
	for _, id := range []digitiser.ID{0, 1, 8} {
		c.Push(id, meta, contribution(id))
	}

	_, ok := c.Poll()
	assert.False(t, ok, "incomplete frame before ttl must not be emitted")

	clk.Advance(105 * time.Millisecond)
	frame, ok := c.Poll()
	require.True(t, ok)
	assert.Equal(t, []digitiser.ID{0, 1, 8}, frame.DigitiserIDs)
}

// Scenario C — veto merge.
func TestVetoMerge(t *testing.T) {
	c, _ := newTestCache(100*time.Millisecond, 0, 1)
	meta := baseMeta()
	meta.VetoFlags = 4
	c.Push(0, meta, contribution(0))

	meta2 := baseMeta()
	meta2.VetoFlags = 5
	c.Push(1, meta2, contribution(1))

	require.Equal(t, 1, c.NumPartial())

	frame, ok := c.Poll()
	require.True(t, ok)
	assert.Equal(t, uint16(5), frame.Metadata.VetoFlags)
}

func TestExpiryFloor(t *testing.T) {
	c, clk := newTestCache(100*time.Millisecond, 0, 1)
	meta := baseMeta()
	c.Push(0, meta, contribution(0))

	clk.Advance(99 * time.Millisecond)
	_, ok := c.Poll()
	assert.False(t, ok)

	clk.Advance(1 * time.Millisecond)
	_, ok = c.Poll()
	assert.True(t, ok)
}

func TestOrderPreservationUnderNoExpiry(t *testing.T) {
	c, clk := newTestCache(time.Second, 0, 1)
	meta1 := baseMeta()
	meta2 := baseMeta()
	meta2.FrameNumber = 8

	c.Push(0, meta1, contribution(0))
	clk.Advance(time.Millisecond)
	c.Push(0, meta2, contribution(0))
	c.Push(1, meta2, contribution(1))
	c.Push(1, meta1, contribution(1))

	first, ok := c.Poll()
	require.True(t, ok)
	assert.Equal(t, meta1.FrameNumber, first.Metadata.FrameNumber)

	second, ok := c.Poll()
	require.True(t, ok)
	assert.Equal(t, meta2.FrameNumber, second.Metadata.FrameNumber)
}

func TestPollOnlyInspectsHead(t *testing.T) {
	c, _ := newTestCache(time.Second, 0, 1)
	meta1 := baseMeta()
	meta2 := baseMeta()
	meta2.FrameNumber = 9

	c.Push(0, meta1, contribution(0)) // head: incomplete, not expired
	c.Push(0, meta2, contribution(0))
	c.Push(1, meta2, contribution(1)) // second frame is complete

	_, ok := c.Poll()
	assert.False(t, ok, "a complete later frame must not be emitted while the head is neither complete nor expired")
	assert.Equal(t, 2, c.NumPartial())
}
