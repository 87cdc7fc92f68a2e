// backend.go - pluggable serialization backend interface and process-wide
// selection (spec.md §4.5, §6).

package qtrace

import "fmt"

// BackendKind is the process-wide enum selecting the single active
// backend (spec.md §6). Switching backends after CPUs exist is not
// supported, matching the source system exactly.
type BackendKind int

const (
	BackendText BackendKind = iota
	BackendCVTrace
	BackendNop
	BackendPerfetto
	BackendProtobuf
	BackendJSON
	BackendDRCacheSim
)

func (k BackendKind) String() string {
	switch k {
	case BackendText:
		return "text"
	case BackendCVTrace:
		return "cvtrace"
	case BackendNop:
		return "nop"
	case BackendPerfetto:
		return "perfetto"
	case BackendProtobuf:
		return "protobuf"
	case BackendJSON:
		return "json"
	case BackendDRCacheSim:
		return "drcachesim"
	default:
		return "unknown"
	}
}

// Backend exposes four optional hooks (spec.md §4.5). A backend that does
// not care about a given hook embeds BaseBackend, whose no-op methods
// stand in for the hooks it does not override; the core calls every hook
// directly.
type Backend interface {
	// Init runs once per CPU, e.g. to write a header.
	Init(cpuID int) error
	// Sync performs a blocking checkpoint/drain.
	Sync(cpuID int) error
	// EmitInstr serializes one committed entry.
	EmitInstr(cpuID int, e *Entry) error
	// EmitDebug reports an out-of-band numeric sample.
	EmitDebug(cpuID int, counterID string, value int64) error
}

// BaseBackend gives every concrete backend a no-op implementation of all
// four hooks to embed, so each backend only overrides what it cares
// about — the same shape as the NOP backend from spec.md §4.5, reused as
// a mixin instead of duplicated four times.
type BaseBackend struct{}

func (BaseBackend) Init(cpuID int) error                               { return nil }
func (BaseBackend) Sync(cpuID int) error                                { return nil }
func (BaseBackend) EmitInstr(cpuID int, e *Entry) error                 { return nil }
func (BaseBackend) EmitDebug(cpuID int, counterID string, value int64) error { return nil }

// NewBackend constructs the concrete backend for kind. w is the sink used
// by the text-oriented backends (TEXT, JSON, DRCACHESIM); bw is the sink
// used by the binary-oriented backends (CVTRACE, PROTOBUF, PERFETTO). NOP
// ignores both.
func NewBackend(kind BackendKind, w TextSink, bw BinarySink) (Backend, error) {
	switch kind {
	case BackendText:
		return NewTextBackend(w), nil
	case BackendNop:
		return NewNopBackend(), nil
	case BackendJSON:
		return NewJSONBackend(w), nil
	case BackendDRCacheSim:
		return NewDRCacheSimBackend(w), nil
	case BackendCVTrace:
		return NewCVTraceBackend(bw), nil
	case BackendProtobuf:
		return NewProtobufBackend(bw), nil
	case BackendPerfetto:
		return NewPerfettoBackend(bw), nil
	default:
		return nil, fmt.Errorf("qtrace: unknown backend kind %d", kind)
	}
}
