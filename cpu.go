// cpu.go - per-CPU state container and the exclusive-context worker
// primitive (SPEC_FULL.md §4.8): run_on_cpu / async_safe_run_on_cpu.

package qtrace

import "sync"

// LogLevel is the per-CPU trace verbosity (spec.md §3).
type LogLevel int

const (
	LogNone LogLevel = iota
	LogUser
	LogAll
)

// CPUFlag is the per-CPU flags bitset (spec.md §3; currently one bit).
type CPUFlag uint32

const Buffered CPUFlag = 1 << 0

// PhysTranslator is the MMU collaborator get_paddr asks (spec.md §4.2).
// A failed translation must not fail the commit — the caller stores
// UntranslatedPaddr instead (spec.md §7).
type PhysTranslator interface {
	Translate(vaddr uint64) (paddr uint64, ok bool)
}

// IdentityTranslator is a PhysTranslator stand-in for targets without a
// separate physical address space, or for tests.
type IdentityTranslator struct{}

func (IdentityTranslator) Translate(vaddr uint64) (uint64, bool) { return vaddr, true }

// UserModeQuerier reports whether the CPU is currently executing in user
// mode — the cpu_in_user_mode(env) collaborator from spec.md §4.1.
type UserModeQuerier func() bool

// CPU is one emulated CPU's trace state (spec.md §3 "Per-CPU state"),
// exclusively owned by its CPU thread. mu guards it so that exclusive-
// context jobs dispatched via the worker (loglevel switches, buffer
// resizes) can run safely alongside direct collector/controller calls —
// the two paths the real source system keeps apart by running entirely
// on the same OS thread at different times; this is the concrete
// realization Design Notes calls for.
type CPU struct {
	mu sync.Mutex

	id      int
	process *Process

	loglevel       LogLevel
	loglevelActive bool
	starting       bool
	forceDrop      bool
	flags          CPUFlag

	ring    *ring
	filters *filterChain
	stats   Stats

	printfBuf printfStaging

	debugRegions DebugRegions
	phys         PhysTranslator
	userMode     UserModeQuerier

	worker *cpuWorker
}

// NewCPU creates and fully initializes a per-CPU trace state, attaching
// default filters and consulting the global log bitset (spec.md §4.1
// init). phys and userMode may be nil, in which case an identity
// translator and an "always kernel mode" querier are used.
func NewCPU(proc *Process, id int, debugRegions DebugRegions, phys PhysTranslator, userMode UserModeQuerier) *CPU {
	if phys == nil {
		phys = IdentityTranslator{}
	}
	if userMode == nil {
		userMode = func() bool { return false }
	}
	if debugRegions == nil {
		debugRegions = NewStaticDebugRegions()
	}

	c := &CPU{
		id:           id,
		process:      proc,
		ring:         newRing(MinEntryBufferSize),
		debugRegions: debugRegions,
		phys:         phys,
		userMode:     userMode,
		worker:       newCPUWorker(),
	}
	c.filters = newFilterChain(&filterRegistry{regions: debugRegions})

	proc.mu.Lock()
	proc.resetFilters.applyTo(c.filters)
	proc.cpus = append(proc.cpus, c)
	globalFlags := proc.globalLogFlags.Load()
	proc.mu.Unlock()

	if globalFlags != 0 {
		level := LogAll
		if globalFlags&LogInstrU != 0 {
			level = LogUser
		}
		c.AsyncSafeRunOnCPU(func() {
			c.loglevelSwitch(level, c.PC(), false)
		})
	}

	go c.worker.run()
	return c
}

// ID returns this CPU's process-assigned index.
func (c *CPU) ID() int { return c.id }

// PC returns the program counter of the entry currently being populated,
// for use by exclusive-context jobs that need "the current pc" without
// reaching into ring internals themselves.
func (c *CPU) PC() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ring.current().PC
}

// RunOnCPU blocks until fn has run on this CPU's worker (spec.md §5:
// synchronous, drains current translation-block-equivalent work first —
// modeled here as "runs after any already-queued exclusive jobs", since it
// shares the same FIFO queue as AsyncSafeRunOnCPU).
func (c *CPU) RunOnCPU(fn func()) {
	done := make(chan struct{})
	c.worker.jobs <- syncJob{fn: fn, done: done}
	<-done
}

// AsyncSafeRunOnCPU enqueues fn to run in exclusive context and returns
// immediately (spec.md §5). loglevel_switch and buffer_resize use this.
func (c *CPU) AsyncSafeRunOnCPU(fn func()) {
	c.worker.jobs <- syncJob{fn: fn}
}

// Close stops the CPU's worker goroutine. Safe to call once per CPU.
func (c *CPU) Close() {
	close(c.worker.quit)
}

// cpuWorker is the minimal per-CPU dispatch loop backing run_on_cpu and
// async_safe_run_on_cpu. It has no notion of a translation block itself
// (that's the out-of-scope CPU translator) — every iteration of its loop
// stands in for "the next translation-block boundary". Both primitives
// share one FIFO queue so that a RunOnCPU call always observes every
// AsyncSafeRunOnCPU job enqueued before it, in enqueue order — two
// separate channels dispatched via select would not guarantee that.
type cpuWorker struct {
	jobs chan syncJob
	quit chan struct{}
}

type syncJob struct {
	fn   func()
	done chan struct{} // nil for async jobs
}

func newCPUWorker() *cpuWorker {
	return &cpuWorker{
		jobs: make(chan syncJob, 256),
		quit: make(chan struct{}),
	}
}

func (w *cpuWorker) run() {
	for {
		select {
		case job := <-w.jobs:
			job.fn()
			if job.done != nil {
				close(job.done)
			}
		case <-w.quit:
			return
		}
	}
}
