package qtrace

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"strings"
	"testing"
)

func sampleEntry() *Entry {
	return &Entry{
		PC:        0x4000,
		Asid:      1,
		Flags:     FlagHasInstrData,
		InsnSize:  2,
		InsnBytes: [MaxInsnSize]byte{0x90, 0x90},
		Regs:      []RegisterRecord{{Name: "r0", Value: 42}},
		Mem:       []MemoryRecord{{Addr: 0x8000, Value: 7}},
		Events:    []EventRecord{{Kind: EventState, NextState: StateStart, PC: 0x4000}},
		Text:      []byte("note"),
	}
}

func TestTextBackend_EmitInstr(t *testing.T) {
	var buf bytes.Buffer
	b := NewTextBackend(&buf)
	if err := b.EmitInstr(0, sampleEntry()); err != nil {
		t.Fatalf("EmitInstr failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "pc=0x4000") {
		t.Fatalf("expected pc in output, got %q", out)
	}
	if !strings.Contains(out, "note") {
		t.Fatalf("expected text buffer content in output, got %q", out)
	}
}

func TestJSONBackend_EmitInstr(t *testing.T) {
	var buf bytes.Buffer
	b := NewJSONBackend(&buf)
	if err := b.EmitInstr(2, sampleEntry()); err != nil {
		t.Fatalf("EmitInstr failed: %v", err)
	}
	var je jsonEntry
	if err := json.Unmarshal(buf.Bytes(), &je); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if je.CPU != 2 || je.PC != 0x4000 {
		t.Fatalf("unexpected decoded entry: %+v", je)
	}
}

func TestDRCacheSimBackend_EmitInstr(t *testing.T) {
	var buf bytes.Buffer
	b := NewDRCacheSimBackend(&buf)
	if err := b.EmitInstr(0, sampleEntry()); err != nil {
		t.Fatalf("EmitInstr failed: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "I 0x4000 2\n") {
		t.Fatalf("expected fetch line first, got %q", out)
	}
	if !strings.Contains(out, "L 0x8000") {
		t.Fatalf("expected a load line, got %q", out)
	}
}

func TestCVTraceBackend_InitWritesMagic(t *testing.T) {
	var buf bytes.Buffer
	b := NewCVTraceBackend(&buf)
	if err := b.Init(0); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := b.EmitInstr(0, sampleEntry()); err != nil {
		t.Fatalf("EmitInstr failed: %v", err)
	}
	if err := b.Sync(0); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected non-empty gzip output")
	}
	zr, err := gzip.NewReader(&buf)
	if err != nil {
		t.Fatalf("invalid gzip output: %v", err)
	}
	magic := make([]byte, len(cvtraceMagic))
	if _, err := io.ReadFull(zr, magic); err != nil {
		t.Fatalf("reading magic failed: %v", err)
	}
	if string(magic) != cvtraceMagic {
		t.Fatalf("expected stream to start with magic %q, got %q", cvtraceMagic, magic)
	}
}

func TestProtobufBackend_EmitInstrProducesLengthDelimitedFrame(t *testing.T) {
	var buf bytes.Buffer
	b := NewProtobufBackend(&buf)
	if err := b.EmitInstr(0, sampleEntry()); err != nil {
		t.Fatalf("EmitInstr failed: %v", err)
	}
	if buf.Len() < 4 {
		t.Fatalf("expected at least a 4-byte length prefix, got %d bytes", buf.Len())
	}
}

func TestPerfettoBackend_EmitInstrIncrementsTimestamp(t *testing.T) {
	var buf bytes.Buffer
	b := NewPerfettoBackend(&buf)
	if err := b.EmitInstr(0, sampleEntry()); err != nil {
		t.Fatalf("first EmitInstr failed: %v", err)
	}
	firstLen := buf.Len()
	if err := b.EmitInstr(0, sampleEntry()); err != nil {
		t.Fatalf("second EmitInstr failed: %v", err)
	}
	if buf.Len() <= firstLen {
		t.Fatalf("expected the buffer to grow after a second frame")
	}
	if b.timestamp != 2 {
		t.Fatalf("expected timestamp counter at 2, got %d", b.timestamp)
	}
}

func TestNopBackend_EmitInstrIsNoop(t *testing.T) {
	b := NewNopBackend()
	if err := b.EmitInstr(0, sampleEntry()); err != nil {
		t.Fatalf("expected nil error from NOP backend, got %v", err)
	}
}

func TestNewBackend_UnknownKind(t *testing.T) {
	if _, err := NewBackend(BackendKind(99), nil, nil); err == nil {
		t.Fatalf("expected an error for an unknown backend kind")
	}
}
