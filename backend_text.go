// backend_text.go - human-readable line-oriented backend, styled like the
// teacher's terminal_output.go: bare fmt.Fprintf, no intermediate model.

package qtrace

import (
	"fmt"
	"io"
)

// TextSink is the subset of *os.File/bytes.Buffer that line-oriented
// backends need.
type TextSink interface {
	io.Writer
}

// TextBackend renders one line per committed entry.
type TextBackend struct {
	BaseBackend
	w TextSink
}

func NewTextBackend(w TextSink) *TextBackend {
	return &TextBackend{w: w}
}

func (b *TextBackend) Init(cpuID int) error {
	_, err := fmt.Fprintf(b.w, "# qtrace text backend, cpu=%d\n", cpuID)
	return err
}

func (b *TextBackend) EmitInstr(cpuID int, e *Entry) error {
	if _, err := fmt.Fprintf(b.w, "cpu%d pc=%#x asid=%d", cpuID, e.PC, e.Asid); err != nil {
		return err
	}
	if e.Flags&FlagHasInstrData != 0 {
		if _, err := fmt.Fprintf(b.w, " insn=% x", e.InsnBytes[:e.InsnSize]); err != nil {
			return err
		}
	}
	for _, r := range e.Regs {
		if r.Flags&(RegCap|RegHoldsCap) != 0 {
			if _, err := fmt.Fprintf(b.w, " %s=cap(%#x,%#x+%#x)", r.Name, r.Cap.Value, r.Cap.Base, r.Cap.Length); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(b.w, " %s=%#x", r.Name, r.Value); err != nil {
			return err
		}
	}
	for _, m := range e.Mem {
		dir := "ld"
		if m.Flags&MemStore != 0 {
			dir = "st"
		}
		if _, err := fmt.Fprintf(b.w, " %s[%#x]=%#x", dir, m.Addr, m.Value); err != nil {
			return err
		}
	}
	for _, ev := range e.Events {
		if err := writeTextEvent(b.w, ev); err != nil {
			return err
		}
	}
	if len(e.Text) > 0 {
		if _, err := fmt.Fprintf(b.w, " ; %s", e.Text); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(b.w)
	return err
}

func writeTextEvent(w TextSink, ev EventRecord) error {
	switch ev.Kind {
	case EventState:
		names := [...]string{"START", "STOP", "FLUSH"}
		name := "UNKNOWN"
		if int(ev.NextState) < len(names) {
			name = names[ev.NextState]
		}
		_, err := fmt.Fprintf(w, " event=%s@%#x", name, ev.PC)
		return err
	case EventRegdump:
		_, err := fmt.Fprintf(w, " event=REGDUMP(%d)", len(ev.Regdump))
		return err
	case EventUser:
		_, err := fmt.Fprintf(w, " event=%s(%dB)", ev.UserName, len(ev.UserData))
		return err
	default:
		return nil
	}
}
