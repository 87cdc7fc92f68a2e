// collector.go - the stateless collector API translated code calls to
// populate the current entry (spec.md §4.2). Every recording function here
// is a no-op when CheckEnabled is false, except where noted; the
// filter-management functions at the end of the file apply regardless.

package qtrace

// Reg appends a plain-integer register update to the current entry.
func (c *CPU) Reg(name string, value uint64) {
	if !c.CheckEnabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.ring.current()
	entry.Regs = append(entry.Regs, RegisterRecord{Name: name, Value: value})
}

// Cap appends a capability register update.
func (c *CPU) Cap(name string, cap Capability) {
	if !c.CheckEnabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.ring.current()
	entry.Regs = append(entry.Regs, RegisterRecord{Name: name, Flags: RegCap, Cap: cap})
}

// CapInt appends an integer register that currently holds a capability's
// raw bit pattern (spec.md §4.2 — targets with a merged register file).
func (c *CPU) CapInt(name string, cap Capability) {
	if !c.CheckEnabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.ring.current()
	entry.Regs = append(entry.Regs, RegisterRecord{Name: name, Flags: RegHoldsCap, Cap: cap})
}

// memAccess resolves paddr via the CPU's PhysTranslator and appends a
// MemoryRecord. A failed translation stores UntranslatedPaddr rather than
// failing the whole entry (spec.md §7).
func (c *CPU) memAccess(addr uint64, op MemOp, flags MemFlag, value uint64, capVal Capability) {
	if !c.CheckEnabled() {
		return
	}
	paddr, ok := c.phys.Translate(addr)
	if !ok {
		paddr = UntranslatedPaddr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.ring.current()
	entry.Mem = append(entry.Mem, MemoryRecord{
		Flags: flags, Op: op, Addr: addr, Paddr: paddr, Value: value, Cap: capVal,
	})
}

// LdInt records an integer load.
func (c *CPU) LdInt(addr uint64, op MemOp, value uint64) {
	c.memAccess(addr, op, 0, value, Capability{})
}

// StInt records an integer store.
func (c *CPU) StInt(addr uint64, op MemOp, value uint64) {
	c.memAccess(addr, op, MemStore, value, Capability{})
}

// LdCap records a capability-valued load.
func (c *CPU) LdCap(addr uint64, op MemOp, cap Capability) {
	c.memAccess(addr, op, MemCap, 0, cap)
}

// StCap records a capability-valued store.
func (c *CPU) StCap(addr uint64, op MemOp, cap Capability) {
	c.memAccess(addr, op, MemStore|MemCap, 0, cap)
}

// Instr records the instruction opcode bytes and sets FlagHasInstrData
// (spec.md §4.2). pc/paddr are set unconditionally so an entry always
// knows where it came from, even if translated code never calls Instr
// (e.g. pure event entries synthesized by the controller).
func (c *CPU) Instr(pc, paddr uint64, raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.ring.current()
	entry.PC = pc
	entry.Paddr = paddr
	if !c.checkEnabledLocked() {
		return
	}
	n := copy(entry.InsnBytes[:], raw)
	entry.InsnSize = n
	entry.Flags |= FlagHasInstrData
}

func (c *CPU) checkEnabledLocked() bool {
	return c.process.globalLogFlags.Load() != 0 && c.loglevelActive
}

// SetAsid records the current address-space id.
func (c *CPU) SetAsid(asid uint32) {
	if !c.CheckEnabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ring.current().Asid = asid
}

// Exception records a synchronous trap (spec.md §4.2).
func (c *CPU) Exception(code, vector uint32, faultAddr uint64) {
	if !c.CheckEnabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.ring.current()
	entry.Flags |= FlagIntrTrap
	entry.IntrCode = code
	entry.IntrVector = vector
	entry.IntrFaultAddr = faultAddr
}

// Interrupt records an asynchronous interrupt (spec.md §4.2).
func (c *CPU) Interrupt(code, vector uint32) {
	if !c.CheckEnabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.ring.current()
	entry.Flags |= FlagIntrAsync
	entry.IntrCode = code
	entry.IntrVector = vector
}

// Event appends a target-defined user event.
func (c *CPU) Event(name string, data []byte) {
	if !c.CheckEnabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.ring.current()
	entry.Events = append(entry.Events, EventRecord{Kind: EventUser, UserName: name, UserData: data})
}

// Extra appends free-form text to the entry's text buffer. Unlike spec.md
// §4.2's extra(fmt, ...), this takes an already-formatted string — callers
// format with fmt.Sprintf (or similar) before calling rather than handing
// the core a format string to interpret itself.
func (c *CPU) Extra(text string) {
	if !c.CheckEnabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.ring.current()
	entry.Text = append(entry.Text, text...)
}

// EventDumpReg appends one register to the most recently opened REGDUMP
// event (spec.md §4.1's synthetic REGDUMP, populated by the target
// collaborator after a loglevel switch schedules it).
func (c *CPU) EventDumpReg(name string, value uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.checkEnabledLocked() {
		return
	}
	entry := c.ring.current()
	for i := len(entry.Events) - 1; i >= 0; i-- {
		if entry.Events[i].Kind == EventRegdump {
			entry.Events[i].Regdump = append(entry.Events[i].Regdump, RegisterRecord{Name: name, Value: value})
			return
		}
	}
}

// AddFilter installs a filter kind on this CPU's chain (spec.md §4.4).
func (c *CPU) AddFilter(kind FilterKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filters.add(kind)
}

// RemoveFilter removes a filter kind from this CPU's chain, if present.
func (c *CPU) RemoveFilter(kind FilterKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters.remove(kind)
}

// InstallLuaFilter compiles script and wires FilterLua into this CPU's
// filter chain, replacing any previously installed scripted filter.
func (c *CPU) InstallLuaFilter(script string) error {
	engine := NewLuaFilterEngine(script)
	c.mu.Lock()
	defer c.mu.Unlock()
	if old := c.filters.registry.lua; old != nil {
		old.Close()
	}
	c.filters.registry.lua = engine
	c.filters.remove(FilterLua)
	return c.filters.add(FilterLua)
}
