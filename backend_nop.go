// backend_nop.go - the NOP backend. emit_instr is a no-op so users can
// switch all tracing off at runtime without reconfiguring (spec.md §4.5).

package qtrace

// NopBackend discards everything. It exists purely so the process-wide
// backend selector always has something to point at.
type NopBackend struct {
	BaseBackend
}

func NewNopBackend() *NopBackend { return &NopBackend{} }
