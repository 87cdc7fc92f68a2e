package qtrace

import "testing"

func TestCPU_IdentityTranslatorAlwaysSucceeds(t *testing.T) {
	var tr IdentityTranslator
	paddr, ok := tr.Translate(0x1234)
	if !ok || paddr != 0x1234 {
		t.Fatalf("expected identity translation of 0x1234, got paddr=%#x ok=%v", paddr, ok)
	}
}

func TestCPU_UntranslatedAddrStoresSentinel(t *testing.T) {
	cpu, _ := newTestCPU(false)
	cpu.phys = failingTranslator{}
	cpu.process.GlobalSwitch(LogInstr)
	cpu.RunOnCPU(func() {})

	cpu.LdInt(0x9000, MemOp{Size: MemOp4}, 0xdeadbeef)
	got := cpu.ring.current().Mem
	if len(got) != 1 {
		t.Fatalf("expected one memory record, got %d", len(got))
	}
	if got[0].Paddr != UntranslatedPaddr {
		t.Fatalf("expected UntranslatedPaddr sentinel, got %#x", got[0].Paddr)
	}
}

type failingTranslator struct{}

func (failingTranslator) Translate(uint64) (uint64, bool) { return 0, false }

func TestCPU_ModeSwitchTracksUserActivity(t *testing.T) {
	cpu, backend := newTestCPU(false)
	cpu.loglevel = LogUser
	cpu.userMode = func() bool { return false }

	cpu.ModeSwitch(CPUModeUser, 0x100)
	cpu.RunOnCPU(func() {}) // drain the scheduled loglevel switch

	if !cpu.loglevelActive {
		t.Fatalf("expected USER-mode entry to activate per-cpu tracing")
	}

	cpu.Reg("r0", 1)
	if err := cpu.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if len(backend.emitted) == 0 {
		t.Fatalf("expected the entry committed under active USER tracing to be emitted")
	}
}

func TestCPU_RunOnCPUBlocksUntilComplete(t *testing.T) {
	cpu, _ := newTestCPU(false)
	ran := false
	cpu.RunOnCPU(func() { ran = true })
	if !ran {
		t.Fatalf("expected RunOnCPU to execute fn before returning")
	}
	cpu.Close()
}

func TestCPU_IDReturnsAssignedIndex(t *testing.T) {
	proc := NewProcess(BackendText, &recordingBackend{})
	cpu := NewCPU(proc, 5, nil, nil, nil)
	if cpu.ID() != 5 {
		t.Fatalf("expected ID 5, got %d", cpu.ID())
	}
}
