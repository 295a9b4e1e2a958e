package runengine

import (
	"sync"
	"time"
)

// GuardedEngine serializes access to an Engine across multiple concurrent
// dispatch loops. §5's "exactly one consumer loop owns mutable state"
// assumes a single cooperative task per stage; the writer stage instead
// runs one dispatch loop per topic (frame_event, sample_env, run_log,
// alarm, control) so that a slow write on one topic never blocks delivery
// on another. A mutex restores the same single-owner invariant for the
// Engine's actual state mutations without serializing the topics'
// independent I/O.
type GuardedEngine struct {
	mu  sync.Mutex
	eng *Engine
}

// NewGuarded wraps eng for safe concurrent use from multiple dispatch loops.
func NewGuarded(eng *Engine) *GuardedEngine {
	return &GuardedEngine{eng: eng}
}

func (g *GuardedEngine) Start(rs RunStart) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.eng.Start(rs)
}

func (g *GuardedEngine) Stop(rs RunStop) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.eng.Stop(rs)
}

func (g *GuardedEngine) EventList(fe FrameEvent) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.eng.EventList(fe)
}

func (g *GuardedEngine) Log(l Log) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.eng.Log(l)
}

func (g *GuardedEngine) SampleEnv(s SampleEnv) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.eng.SampleEnv(s)
}

func (g *GuardedEngine) Alarm(a Alarm) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.eng.Alarm(a)
}

func (g *GuardedEngine) Flush(delay time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.eng.Flush(delay)
}
