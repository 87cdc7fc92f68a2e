// stats.go - per-CPU trace statistics and debug reporting (spec.md §4.7).

package qtrace

import "log"

// Stats tracks the counters spec.md §3/§4.7 calls for.
type Stats struct {
	EntriesEmitted uint64
	TraceStart     uint64
	TraceStop      uint64
}

// reportDebugStats emits the per-sync debug line when trace_debug is
// enabled (spec.md §4.7): entries emitted, start slices, stop slices. An
// unbalanced stop count (more stops than starts) is reported but not
// fatal.
func (c *CPU) reportDebugStats() {
	c.mu.Lock()
	s := c.stats
	c.mu.Unlock()

	log.Printf("qtrace: cpu%d stats: entries=%d start=%d stop=%d",
		c.id, s.EntriesEmitted, s.TraceStart, s.TraceStop)
	if s.TraceStop > s.TraceStart {
		log.Printf("qtrace: cpu%d unbalanced stop count (stop=%d > start=%d)",
			c.id, s.TraceStop, s.TraceStart)
	}
}

// Stats returns a snapshot of this CPU's counters.
func (c *CPU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
