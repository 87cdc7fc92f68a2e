// backend_protobuf.go - serializes each entry as a google.golang.org/protobuf
// well-known structpb.Struct, length-delimited on the wire. No hand-written
// generated .pb.go is fabricated here: structpb is a real, stable library
// type built for exactly this "encode an arbitrary record as protobuf"
// shape, the same role it plays in the pack's own
// Itz-Agasta-nerrf/tracker streaming-protobuf-events usage.

package qtrace

import (
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProtobufBackend streams entries as length-delimited protobuf Structs.
type ProtobufBackend struct {
	BaseBackend
	w BinarySink
}

func NewProtobufBackend(w BinarySink) *ProtobufBackend {
	return &ProtobufBackend{w: w}
}

// entryStructFields builds the field map shared by the PROTOBUF and
// PERFETTO backends; the latter layers a couple of extra framing fields
// on top (backend_perfetto.go).
func entryStructFields(cpuID int, e *Entry) map[string]any {
	regs := make([]any, 0, len(e.Regs))
	for _, r := range e.Regs {
		regs = append(regs, map[string]any{
			"name":  r.Name,
			"value": float64(r.Value),
			"is_cap": r.Flags&(RegCap|RegHoldsCap) != 0,
		})
	}

	mem := make([]any, 0, len(e.Mem))
	for _, m := range e.Mem {
		mem = append(mem, map[string]any{
			"store": m.Flags&MemStore != 0,
			"addr":  float64(m.Addr),
			"paddr": float64(m.Paddr),
			"value": float64(m.Value),
		})
	}

	events := make([]any, 0, len(e.Events))
	for _, ev := range e.Events {
		switch ev.Kind {
		case EventState:
			events = append(events, map[string]any{
				"kind": [...]any{"start", "stop", "flush"}[ev.NextState],
				"pc":   float64(ev.PC),
			})
		case EventRegdump:
			events = append(events, map[string]any{"kind": "regdump", "num_regs": float64(len(ev.Regdump))})
		case EventUser:
			events = append(events, map[string]any{"kind": "user", "name": ev.UserName})
		}
	}

	return map[string]any{
		"cpu":    float64(cpuID),
		"pc":     float64(e.PC),
		"paddr":  float64(e.Paddr),
		"asid":   float64(e.Asid),
		"regs":   regs,
		"mem":    mem,
		"events": events,
		"text":   string(e.Text),
	}
}

func writeLengthDelimited(w BinarySink, b []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func (b *ProtobufBackend) EmitInstr(cpuID int, e *Entry) error {
	s, err := structpb.NewStruct(entryStructFields(cpuID, e))
	if err != nil {
		return fmt.Errorf("qtrace: building protobuf struct: %w", err)
	}
	out, err := proto.Marshal(s)
	if err != nil {
		return fmt.Errorf("qtrace: marshaling protobuf struct: %w", err)
	}
	return writeLengthDelimited(b.w, out)
}
