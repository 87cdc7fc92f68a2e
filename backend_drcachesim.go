// backend_drcachesim.go - DrCacheSim-style line-oriented memory-reference
// trace (one line per instruction fetch and per memory record). This is a
// write-only, trivially delimited text format, so — like TEXT — it needs
// no parsing/encoding library: bare fmt.Fprintf mirrors the teacher's own
// terminal_output.go choice for line-oriented output.

package qtrace

import "fmt"

// DRCacheSimBackend renders DynamoRIO drcachesim-compatible reference
// lines: "I <pc> <size>" for the fetch, "L <addr> <size>" / "S <addr>
// <size>" for loads and stores.
type DRCacheSimBackend struct {
	BaseBackend
	w TextSink
}

func NewDRCacheSimBackend(w TextSink) *DRCacheSimBackend {
	return &DRCacheSimBackend{w: w}
}

func (b *DRCacheSimBackend) EmitInstr(cpuID int, e *Entry) error {
	if e.Flags&FlagHasInstrData != 0 {
		if _, err := fmt.Fprintf(b.w, "I %#x %d\n", e.PC, e.InsnSize); err != nil {
			return err
		}
	}
	for _, m := range e.Mem {
		kind := "L"
		if m.Flags&MemStore != 0 {
			kind = "S"
		}
		if _, err := fmt.Fprintf(b.w, "%s %#x %d\n", kind, m.Addr, m.Op.Size); err != nil {
			return err
		}
	}
	return nil
}
