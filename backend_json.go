// backend_json.go - one JSON object per line, via encoding/json — the same
// ambient choice the teacher makes for its own IPC protocol
// (runtime_ipc.go), so no third-party JSON library is warranted here.

package qtrace

import (
	"encoding/json"
	"fmt"
)

type jsonRegister struct {
	Name  string `json:"name"`
	IsCap bool   `json:"is_cap,omitempty"`
	Value uint64 `json:"value,omitempty"`
	Cap   *Capability `json:"cap,omitempty"`
}

type jsonMemory struct {
	Store bool        `json:"store,omitempty"`
	Addr  uint64      `json:"addr"`
	Paddr uint64      `json:"paddr"`
	Value uint64      `json:"value,omitempty"`
	Cap   *Capability `json:"cap,omitempty"`
}

type jsonEvent struct {
	Kind     string `json:"kind"`
	NextPC   uint64 `json:"pc,omitempty"`
	NumRegs  int    `json:"num_regs,omitempty"`
	UserName string `json:"user_name,omitempty"`
}

type jsonEntry struct {
	CPU    int            `json:"cpu"`
	PC     uint64         `json:"pc"`
	Paddr  uint64         `json:"paddr"`
	Asid   uint32         `json:"asid"`
	Insn   string         `json:"insn,omitempty"`
	Regs   []jsonRegister `json:"regs,omitempty"`
	Mem    []jsonMemory   `json:"mem,omitempty"`
	Events []jsonEvent    `json:"events,omitempty"`
	Text   string         `json:"text,omitempty"`
}

// JSONBackend renders one JSON object per committed entry, newline
// delimited.
type JSONBackend struct {
	BaseBackend
	w   TextSink
	enc *json.Encoder
}

func NewJSONBackend(w TextSink) *JSONBackend {
	return &JSONBackend{w: w, enc: json.NewEncoder(w)}
}

func (b *JSONBackend) EmitInstr(cpuID int, e *Entry) error {
	je := jsonEntry{CPU: cpuID, PC: e.PC, Paddr: e.Paddr, Asid: e.Asid}
	if e.Flags&FlagHasInstrData != 0 {
		je.Insn = fmt.Sprintf("% x", e.InsnBytes[:e.InsnSize])
	}
	for _, r := range e.Regs {
		jr := jsonRegister{Name: r.Name}
		if r.Flags&(RegCap|RegHoldsCap) != 0 {
			jr.IsCap = true
			cap := r.Cap
			jr.Cap = &cap
		} else {
			jr.Value = r.Value
		}
		je.Regs = append(je.Regs, jr)
	}
	for _, m := range e.Mem {
		jm := jsonMemory{Store: m.Flags&MemStore != 0, Addr: m.Addr, Paddr: m.Paddr}
		if m.Flags&MemCap != 0 {
			cap := m.Cap
			jm.Cap = &cap
		} else {
			jm.Value = m.Value
		}
		je.Mem = append(je.Mem, jm)
	}
	for _, ev := range e.Events {
		jev := jsonEvent{}
		switch ev.Kind {
		case EventState:
			jev.Kind = [...]string{"start", "stop", "flush"}[ev.NextState]
			jev.NextPC = ev.PC
		case EventRegdump:
			jev.Kind = "regdump"
			jev.NumRegs = len(ev.Regdump)
		case EventUser:
			jev.Kind = "user"
			jev.UserName = ev.UserName
		}
		je.Events = append(je.Events, jev)
	}
	je.Text = string(e.Text)
	return b.enc.Encode(je)
}
