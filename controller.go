// controller.go - the per-CPU trace state machine: enable/disable,
// mode switching, commit/drop, flush, and the loglevel switch state
// machine that drives deferred START/STOP emission (spec.md §4.1).

package qtrace

import (
	"fmt"
	"log"
)

// CPUModeUser is the target-defined next_cpu_mode value meaning "user
// mode" for the purposes of the USER loglevel's activity computation
// (spec.md §4.1). Targets with richer mode spaces still only need this
// one bit to answer "is USER-only tracing active right now".
const CPUModeUser uint32 = 1

// SetBufferSize rejects n below MinEntryBufferSize with a warning
// (spec.md §7); otherwise it schedules an exclusive-context resize on
// every CPU, matching spec.md §4.1 exactly.
func (p *Process) SetBufferSize(n int) error {
	if n < MinEntryBufferSize {
		log.Printf("qtrace: rejecting buffer size %d, below minimum %d", n, MinEntryBufferSize)
		return fmt.Errorf("qtrace: buffer size %d below minimum %d", n, MinEntryBufferSize)
	}
	for _, c := range p.CPUs() {
		c := c
		c.AsyncSafeRunOnCPU(func() {
			c.mu.Lock()
			c.ring.resize(n)
			c.mu.Unlock()
		})
	}
	return nil
}

// GlobalSwitch is the monitor-facing operation (spec.md §4.1, §6): it
// maps the {INSTR, INSTR_U} bitset into a per-CPU next level and
// schedules the switch on every CPU in exclusive context, so the change
// cannot take effect until every CPU has exited its current translation
// block. It returns the adjusted flag word with INSTR set whenever
// INSTR_U is set.
func (p *Process) GlobalSwitch(flags uint32) uint32 {
	if flags&LogInstrU != 0 {
		flags |= LogInstr
	}
	p.globalLogFlags.Store(flags)

	level := LogNone
	switch {
	case flags&LogInstrU != 0:
		level = LogUser
	case flags&LogInstr != 0:
		level = LogAll
	}

	for _, c := range p.CPUs() {
		c := c
		c.AsyncSafeRunOnCPU(func() {
			c.loglevelSwitch(level, c.PC(), true)
		})
	}
	return flags
}

// CheckEnabled reports global-bit && per-cpu.loglevel_active (spec.md
// §4.1).
func (c *CPU) CheckEnabled() bool {
	c.mu.Lock()
	active := c.loglevelActive
	c.mu.Unlock()
	return c.process.globalLogFlags.Load() != 0 && active
}

// ModeSwitch marks the current entry with MODE_SWITCH and schedules a
// per-CPU loglevel switch if USER-only tracing's activity just flipped
// (spec.md §4.1). The caller guarantees the translation block ends after
// this call.
func (c *CPU) ModeSwitch(newMode uint32, pc uint64) {
	c.mu.Lock()
	entry := c.ring.current()
	entry.Flags |= FlagModeSwitch
	entry.NextCPUMode = newMode
	loglevel := c.loglevel
	prevActive := c.loglevelActive
	c.mu.Unlock()

	if loglevel != LogUser {
		return
	}
	nextActive := newMode == CPUModeUser
	if nextActive != prevActive {
		c.AsyncSafeRunOnCPU(func() {
			c.loglevelSwitch(LogUser, pc, false)
		})
	}
}

// Drop sets force_drop; the next commit discards the current entry
// instead of emitting it (spec.md §4.1, P4).
func (c *CPU) Drop() {
	c.mu.Lock()
	c.forceDrop = true
	c.mu.Unlock()
}

// Commit applies filters and either emits (streaming) or advances the
// ring (buffered), then resets whatever slot is now current (spec.md
// §4.1, §4.3).
func (c *CPU) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commitLocked()
}

// commitLocked assumes c.mu is held. It is shared by Commit and the
// loglevel switch state machine, which must commit STOP-carrying entries
// itself (spec.md §4.1 transition 2).
func (c *CPU) commitLocked() error {
	c.PrintfDump()
	entry := c.ring.current()

	if c.forceDrop {
		c.forceDrop = false
		entry.reset()
		return nil
	}

	if !c.filters.evaluate(entry) {
		entry.reset()
		return nil
	}

	// A real commit has now happened for this slice: the pending start
	// (if any) is no longer abandonable (spec.md §3 invariant — `starting`
	// only holds while no committed instruction has yet been emitted).
	c.starting = false

	if c.flags&Buffered == 0 {
		err := c.process.backend.EmitInstr(c.id, entry)
		if err == nil {
			c.stats.EntriesEmitted++
		}
		entry.reset()
		return err
	}

	// Buffered: advancing the ring both retains this entry for a later
	// flush and resets the slot that becomes current next (ring.advance).
	c.ring.advance()
	return nil
}

// Flush appends a STATE{FLUSH, pc} event to the current entry and
// force-commits it, then in buffered mode drains every ring slot from
// tail to head through the backend before setting tail := head (spec.md
// §4.1).
//
// One working slot is always reserved for the in-progress entry (P3:
// between tail and head there are strictly fewer entries than the ring
// size), and the flush entry's own commit consumes another, so a
// size-N ring emits at most N-2 previously committed entries here, not
// N-1.
func (c *CPU) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.ring.current()
	pc := entry.PC
	entry.Events = append(entry.Events, EventRecord{Kind: EventState, NextState: StateFlush, PC: pc})

	if err := c.commitLocked(); err != nil {
		return err
	}

	if c.flags&Buffered == 0 {
		return nil
	}

	var firstErr error
	c.ring.drainFrom(func(e *Entry) {
		if err := c.process.backend.EmitInstr(c.id, e); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			c.stats.EntriesEmitted++
		}
		e.reset()
	})
	return firstErr
}

// SetBuffered toggles BUFFERED at runtime (spec.md §4.3). Disabling it
// collapses the ring back to a single working slot.
func (c *CPU) SetBuffered(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enabled {
		c.flags |= Buffered
		return
	}
	c.flags &^= Buffered
	c.ring.tail = c.ring.head
	c.ring.len = 1
}

// computeActiveLocked implements spec.md §4.1's next_active table. c.mu
// must already be held.
func (c *CPU) computeActiveLocked(level LogLevel) bool {
	switch level {
	case LogNone:
		return false
	case LogAll:
		return true
	case LogUser:
		entry := c.ring.current()
		if entry.Flags&FlagModeSwitch != 0 {
			return entry.NextCPUMode == CPUModeUser
		}
		return c.userMode()
	default:
		return false
	}
}

// loglevelSwitch is the loglevel switch state machine (spec.md §4.1),
// always run in CPU-exclusive context (via AsyncSafeRunOnCPU). global
// marks the monitor-facing GlobalSwitch variant, which has already
// ensured the process-wide instruction-logging bit is set by the time
// this runs; it carries no further behavior difference here since that
// guarantee is established by the caller (Process.GlobalSwitch) before
// scheduling.
func (c *CPU) loglevelSwitch(nextLevel LogLevel, pc uint64, global bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevLevel := c.loglevel
	prevActive := c.loglevelActive
	nextActive := c.computeActiveLocked(nextLevel)

	if nextLevel == prevLevel && nextActive == prevActive {
		return // P6: no-op transition produces no events, no emission.
	}

	if prevActive {
		if c.starting {
			// The pending start never produced a committed instruction;
			// abandon it rather than emit a zero-instruction slice (P7).
			c.ring.current().reset()
			c.starting = false
		} else {
			entry := c.ring.current()
			entry.Events = append(entry.Events, EventRecord{Kind: EventState, NextState: StateStop, PC: pc})
			c.stats.TraceStop++
			c.commitLocked()
		}
	}

	if nextActive {
		c.starting = true
		entry := c.ring.current()
		entry.Events = append(entry.Events, EventRecord{Kind: EventState, NextState: StateStart, PC: pc})
		entry.Events = append(entry.Events, EventRecord{Kind: EventRegdump})
		c.stats.TraceStart++
	}

	c.loglevel = nextLevel
	c.loglevelActive = nextActive
}
