// Package counters implements the process-wide per-digitiser diagnostics
// map (§9 design note "Global mutable per-digitiser counters"): updated
// from the dispatch loop, snapshot-read by a diagnostics endpoint, with no
// blocking held while the mutex is locked.
package counters

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/supermusr-data-pipeline/pulse-core/internal/digitiser"
)

// Counters is one digitiser's running statistics. Fields are updated with
// sync/atomic so a snapshot copy taken under the registry's mutex never
// tears mid-update.
type Counters struct {
	Contributions atomic.Uint64
	BytesReceived atomic.Uint64
	LastFrameTime atomic.Int64 // unix nanoseconds
}

// Snapshot is a point-in-time copy of Counters safe to read without further
// synchronization.
type Snapshot struct {
	Contributions uint64
	BytesReceived uint64
	LastFrameTime int64
}

// Registry is the process-wide DigitiserId -> Counters map (teacher's
// KafkaReporter/HEPReporter atomic statistics fields, generalised to a
// per-key map). Acquire the mutex, mutate or clone out, release; never
// hold it across a blocking call.
type Registry struct {
	mu       sync.Mutex
	counters map[digitiser.ID]*Counters
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{counters: make(map[digitiser.ID]*Counters)}
}

// get returns the Counters for id, creating it on first access.
func (r *Registry) get(id digitiser.ID) *Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[id]
	if !ok {
		c = &Counters{}
		r.counters[id] = c
	}
	return c
}

// RecordContribution updates id's running statistics from the dispatch
// loop after a successful frame-cache push.
func (r *Registry) RecordContribution(id digitiser.ID, bytes int, frameTime int64) {
	c := r.get(id)
	c.Contributions.Add(1)
	c.BytesReceived.Add(uint64(bytes))
	c.LastFrameTime.Store(frameTime)
}

// Snapshot returns a point-in-time copy of every tracked digitiser's
// counters, for the diagnostics endpoint to read without contending with
// the dispatch loop's writes beyond the brief map-copy lock.
func (r *Registry) Snapshot() map[digitiser.ID]Snapshot {
	r.mu.Lock()
	ids := make([]digitiser.ID, 0, len(r.counters))
	ptrs := make([]*Counters, 0, len(r.counters))
	for id, c := range r.counters {
		ids = append(ids, id)
		ptrs = append(ptrs, c)
	}
	r.mu.Unlock()

	out := make(map[digitiser.ID]Snapshot, len(ids))
	for i, id := range ids {
		c := ptrs[i]
		out[id] = Snapshot{
			Contributions: c.Contributions.Load(),
			BytesReceived: c.BytesReceived.Load(),
			LastFrameTime: c.LastFrameTime.Load(),
		}
	}
	return out
}

// SnapshotHandler serves r's current snapshot as JSON, read by the UI task
// described in §5/§9 without ever touching the registry's mutex from an
// HTTP-serving goroutine beyond the brief Snapshot() call itself.
func SnapshotHandler(r *Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.Snapshot())
	})
}
