// process.go - process-wide state shared across every CPU (spec.md §3
// "Process-wide state"): the selected backend, the default-filter list
// applied to newly created CPUs, and the debug-stats-enable flag.

package qtrace

import (
	"sync"
	"sync/atomic"
)

// Global monitor flag bits (spec.md §6): INSTR_U implies INSTR.
const (
	LogInstr  uint32 = 1 << 0
	LogInstrU uint32 = 1 << 1
)

// Process holds the state that spec.md §5 calls out as "set once at
// startup and then read-only": the backend vtable and the reset-filters
// list. The global log-flags bitset is the one piece that is mutated
// after startup, and only via the monitor path (GlobalSwitch) — the core
// elsewhere only reads it, under the assumption documented in spec.md §5
// that such changes happen in exclusive context.
type Process struct {
	mu sync.Mutex

	backendKind  BackendKind
	backend      Backend
	resetFilters resetFilterList
	debugStats   bool

	globalLogFlags atomic.Uint32

	cpus []*CPU
}

// NewProcess constructs process-wide state with the given backend already
// selected (spec.md §3 default is TEXT; callers choose explicitly here
// since NewBackend needs a concrete sink).
func NewProcess(kind BackendKind, backend Backend) *Process {
	return &Process{backendKind: kind, backend: backend}
}

// SetDebugStats toggles the trace_debug flag (spec.md §4.7).
func (p *Process) SetDebugStats(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.debugStats = enabled
}

func (p *Process) debugStatsEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.debugStats
}

// AddResetFilter installs a filter kind that is auto-applied to every CPU
// created after this call; CPUs that already exist are not changed.
// Filters installed before any CPU exists are "stashed" per
// spec.md §4.4; here the stash simply always exists and each creation
// consumes the current snapshot.
func (p *Process) AddResetFilter(kind FilterKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetFilters.add(kind)
}

// CPUs returns a snapshot of the currently live CPUs.
func (p *Process) CPUs() []*CPU {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*CPU, len(p.cpus))
	copy(out, p.cpus)
	return out
}

// SyncBuffers walks every CPU and invokes the backend's Sync hook in each
// CPU's own context, blocking until every CPU has executed it (spec.md
// §4.5, §5).
func (p *Process) SyncBuffers() error {
	var firstErr error
	for _, c := range p.CPUs() {
		var err error
		c.RunOnCPU(func() {
			err = p.backend.Sync(c.id)
			if p.debugStatsEnabled() {
				c.reportDebugStats()
			}
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Counter forwards to the active backend's EmitDebug hook, if present
// (spec.md §4.5).
func (p *Process) Counter(cpu *CPU, counterID string, value int64) error {
	return p.backend.EmitDebug(cpu.id, counterID, value)
}
