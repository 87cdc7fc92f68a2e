// backend_cvtrace.go - compact binary trace encoding, grounded directly in
// the teacher's own debug_snapshot.go save-file codec: a magic, a version,
// then length-prefixed fields via encoding/binary, with the whole stream
// gzip-framed exactly as debug_snapshot.go frames its memory payload.

package qtrace

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	cvtraceMagic   = "QCVT"
	cvtraceVersion = uint32(1)
)

// BinarySink is the subset of io.Writer the binary-oriented backends need.
type BinarySink interface {
	io.Writer
}

// CVTraceBackend streams entries as a gzip-framed binary record sequence.
type CVTraceBackend struct {
	BaseBackend
	gz *gzip.Writer
}

func NewCVTraceBackend(w BinarySink) *CVTraceBackend {
	return &CVTraceBackend{gz: gzip.NewWriter(w)}
}

func (b *CVTraceBackend) Init(cpuID int) error {
	if _, err := io.WriteString(b.gz, cvtraceMagic); err != nil {
		return err
	}
	if err := binary.Write(b.gz, binary.LittleEndian, cvtraceVersion); err != nil {
		return err
	}
	return binary.Write(b.gz, binary.LittleEndian, uint32(cpuID))
}

func writeLenPrefixedString(w io.Writer, s string) error {
	if len(s) > 255 {
		return fmt.Errorf("qtrace: cvtrace string too long: %d bytes", len(s))
	}
	if _, err := w.Write([]byte{byte(len(s))}); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func (b *CVTraceBackend) EmitInstr(cpuID int, e *Entry) error {
	w := b.gz
	if err := binary.Write(w, binary.LittleEndian, e.PC); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, e.Paddr); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, e.Asid); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(e.Flags)); err != nil {
		return err
	}

	if _, err := w.Write([]byte{byte(e.InsnSize)}); err != nil {
		return err
	}
	if e.InsnSize > 0 {
		if _, err := w.Write(e.InsnBytes[:e.InsnSize]); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(e.Regs))); err != nil {
		return err
	}
	for _, r := range e.Regs {
		if err := writeLenPrefixedString(w, r.Name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(r.Flags)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, r.Value); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, r.Cap.Value); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(e.Mem))); err != nil {
		return err
	}
	for _, m := range e.Mem {
		if err := binary.Write(w, binary.LittleEndian, uint32(m.Flags)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, m.Addr); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, m.Paddr); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, m.Value); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(e.Text))); err != nil {
		return err
	}
	_, err := w.Write(e.Text)
	return err
}

// Sync flushes the gzip stream so a reader tailing the file sees every
// record committed so far (spec.md §4.5's blocking checkpoint contract).
func (b *CVTraceBackend) Sync(cpuID int) error {
	return b.gz.Flush()
}
