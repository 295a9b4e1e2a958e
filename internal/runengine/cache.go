package runengine

import "time"

// RunCache is the ordered (by creation order) sequence of active runs
// (spec §3). Invariant: at most one run lacks a run-stop — the most
// recently created one.
type RunCache struct {
	runs []*Run
}

func newRunCache() *RunCache { return &RunCache{} }

// push appends a new run to the back of the cache.
func (c *RunCache) push(r *Run) { c.runs = append(c.runs, r) }

// newest returns the most recently pushed run, or nil if the cache is empty.
func (c *RunCache) newest() *Run {
	if len(c.runs) == 0 {
		return nil
	}
	return c.runs[len(c.runs)-1]
}

// findForTimestamp performs the dispatch-by-timestamp lookup (spec §4.2):
// a linear scan for the first run whose window contains t. Overlaps are
// only possible across already-stopped runs, so the first (oldest) match
// is the deterministic choice.
func (c *RunCache) findForTimestamp(t time.Time) *Run {
	for _, r := range c.runs {
		if r.Parameters.Contains(t) {
			return r
		}
	}
	return nil
}

// Len returns the number of runs currently tracked (retired runs are
// removed by removeRetired, so this reflects active + not-yet-flushed
// stopped runs).
func (c *RunCache) Len() int { return len(c.runs) }

// removeRetired drops every run for which fn returns true, preserving
// order of the survivors.
func (c *RunCache) removeRetired(fn func(*Run) bool) {
	kept := c.runs[:0]
	for _, r := range c.runs {
		if !fn(r) {
			kept = append(kept, r)
		}
	}
	c.runs = kept
}
