// entry.go - Entry model: registers, memory records, events, and the
// per-instruction accumulator.

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
License: GPLv3 or later
*/

package qtrace

// MaxInsnSize bounds the raw instruction byte capture (target constant
// from spec.md §3; 16 covers every ISA this core has been asked to carry:
// m68k, x86, z80, 6502, and capability-extended RISC targets).
const MaxInsnSize = 16

// UntranslatedPaddr is the sentinel physical address stored when a virtual
// address could not be translated (spec.md §3, §7).
const UntranslatedPaddr uint64 = ^uint64(0)

// EntryFlag is the disjoint-union flag bitset carried on an Entry.
type EntryFlag uint32

const (
	FlagHasInstrData EntryFlag = 1 << iota
	FlagModeSwitch
	FlagIntrTrap
	FlagIntrAsync
)

// RegFlag tags a RegisterRecord's kind.
type RegFlag uint32

const (
	RegCap     RegFlag = 1 << iota // the register itself is a capability register
	RegHoldsCap                    // an integer register currently holds a capability
)

// Capability is a target-dependent capability value: a base integer value
// plus bounds/permissions metadata. The core treats it as an opaque,
// copyable blob — only the backend needs to understand its fields.
type Capability struct {
	Value       uint64
	Base        uint64
	Length      uint64
	Permissions uint32
	Tag         bool
}

// RegisterRecord is one observed register update.
type RegisterRecord struct {
	Name  string
	Flags RegFlag
	Value uint64     // valid when Flags has neither RegCap nor RegHoldsCap is irrelevant: plain GPR
	Cap   Capability // valid when RegCap or RegHoldsCap is set
}

// MemFlag tags a MemoryRecord's direction and value kind.
type MemFlag uint32

const (
	MemStore MemFlag = 1 << iota // unset = load
	MemCap                       // value carries a capability, not a plain integer
)

// MemOpSize is the width of a memory access in bytes.
type MemOpSize uint8

const (
	MemOp1  MemOpSize = 1 << iota
	MemOp2  MemOpSize = 2
	MemOp4  MemOpSize = 4
	MemOp8  MemOpSize = 8
	MemOp16 MemOpSize = 16
)

// MemOp describes a memory access's shape, derived by the caller from a
// target opcode id (spec.md §3 — the core never decodes opcodes itself).
type MemOp struct {
	Size       MemOpSize
	BigEndian  bool
	Signed     bool
}

// MemoryRecord is one observed memory access.
type MemoryRecord struct {
	Flags MemFlag
	Op    MemOp
	Addr  uint64
	Paddr uint64
	Value uint64
	Cap   Capability // valid when Flags has MemCap set
}

// EventKind tags an EventRecord's variant.
type EventKind uint32

const (
	EventState EventKind = iota
	EventRegdump
	EventUser
)

// NextState is the target state carried by an EventState record.
type NextState uint32

const (
	StateStart NextState = iota
	StateStop
	StateFlush
)

// EventRecord is a tagged, target-extensible trace event.
//
// REGDUMP payloads are heap-owned ([]RegisterRecord) and released when the
// entry carrying them is reset (spec.md §3 invariant, P9).
type EventRecord struct {
	Kind      EventKind
	NextState NextState        // valid when Kind == EventState
	PC        uint64           // valid when Kind == EventState
	Regdump   []RegisterRecord // valid when Kind == EventRegdump
	UserName  string           // valid when Kind == EventUser
	UserData  []byte           // valid when Kind == EventUser
}

// Entry is the mutable accumulator for one in-flight instruction.
type Entry struct {
	PC        uint64
	Paddr     uint64
	InsnBytes [MaxInsnSize]byte
	InsnSize  int

	Flags EntryFlag

	NextCPUMode uint32 // valid iff Flags&FlagModeSwitch

	IntrCode      uint32 // valid iff Flags&(FlagIntrTrap|FlagIntrAsync)
	IntrVector    uint32
	IntrFaultAddr uint64

	Asid uint32

	Regs   []RegisterRecord
	Mem    []MemoryRecord
	Events []EventRecord

	Text []byte // free-form extra text, appended by Extra() and printf_dump
}

// reset returns the entry to the canonical empty shape required by spec.md
// §3 (P1): all sequences length 0, text empty, flags cleared. Slice
// backing arrays are kept (sliced to zero) so steady-state tracing causes
// no further allocation once the ring has warmed up.
func (e *Entry) reset() {
	e.PC = 0
	e.Paddr = 0
	e.InsnSize = 0
	e.Flags = 0
	e.NextCPUMode = 0
	e.IntrCode = 0
	e.IntrVector = 0
	e.IntrFaultAddr = 0
	e.Asid = 0

	// Release heap-owned event payloads (REGDUMP dumps) before truncating,
	// so a counting allocator sees exactly one release per REGDUMP ever
	// appended (P9) — truncating the slice alone would merely hide the
	// reference until the backing array is reused.
	for i := range e.Events {
		e.Events[i].Regdump = nil
		e.Events[i].UserData = nil
	}

	e.Regs = e.Regs[:0]
	e.Mem = e.Mem[:0]
	e.Events = e.Events[:0]
	e.Text = e.Text[:0]
}

// isCanonicalEmpty reports whether the entry is in the post-commit shape
// required by P1. Exercised directly by tests; not used on the hot path.
func (e *Entry) isCanonicalEmpty() bool {
	return len(e.Regs) == 0 && len(e.Mem) == 0 && len(e.Events) == 0 &&
		len(e.Text) == 0 && e.Flags == 0
}

// hasEvents reports whether the entry carries at least one event record —
// used by the EVENTS filter (spec.md §4.4).
func (e *Entry) hasEvents() bool {
	return len(e.Events) > 0
}
