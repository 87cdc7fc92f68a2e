// backend_perfetto.go - shares the PROTOBUF backend's structpb encoder but
// tags each record with Perfetto packet-stream framing fields
// (trusted_packet_sequence_id, a monotonic timestamp), at the interface
// level spec.md §1 allows — the full Perfetto trace schema is out of
// scope.

package qtrace

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// PerfettoBackend streams entries as length-delimited protobuf Structs
// carrying Perfetto-style packet-sequence framing.
type PerfettoBackend struct {
	BaseBackend
	w         BinarySink
	seqID     uint32
	timestamp uint64
}

func NewPerfettoBackend(w BinarySink) *PerfettoBackend {
	return &PerfettoBackend{w: w, seqID: 1}
}

func (b *PerfettoBackend) Init(cpuID int) error {
	b.seqID = uint32(cpuID) + 1
	return nil
}

func (b *PerfettoBackend) EmitInstr(cpuID int, e *Entry) error {
	fields := entryStructFields(cpuID, e)
	b.timestamp++
	fields["trusted_packet_sequence_id"] = float64(b.seqID)
	fields["timestamp"] = float64(b.timestamp)

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("qtrace: building perfetto packet: %w", err)
	}
	out, err := proto.Marshal(s)
	if err != nil {
		return fmt.Errorf("qtrace: marshaling perfetto packet: %w", err)
	}
	return writeLengthDelimited(b.w, out)
}
