package qtrace

import "testing"

// enableAllForPrintf drives tracing on through the same path a real
// monitor would (GlobalSwitch sets the process-wide log bit that
// CheckEnabled requires), then drains the exclusive-context queue so the
// scheduled loglevel switch has actually run before the test proceeds.
// GenPrintf's own CheckEnabled gate means calling loglevelSwitch directly
// (which never touches globalLogFlags) leaves every staged call a silent
// no-op.
func enableAllForPrintf(cpu *CPU) {
	cpu.process.GlobalSwitch(LogInstr)
	cpu.RunOnCPU(func() {})
}

// S6: a staged printf with mixed const/32-bit/64-bit runtime sources
// renders with the declared width and signedness of each conversion.
func TestPrintf_S6MixedWidthRender(t *testing.T) {
	cpu, backend := newTestCPU(false)
	enableAllForPrintf(cpu)

	ctx := &PrintfCtx{}
	cpu.GenPrintf(ctx, "wcd", "a=%d b=%c c=0x%lx", 7, 'Q', uint64(0xABCD))
	cpu.GenPrintfFlush(ctx, false, true)

	cpu.Reg("r0", 1)
	if err := cpu.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if len(backend.emitted) == 0 {
		t.Fatalf("expected at least one emitted entry")
	}
	last := backend.emitted[len(backend.emitted)-1]
	want := "a=7 b=Q c=0xabcd"
	if string(last.Text) != want {
		t.Fatalf("expected text %q, got %q", want, string(last.Text))
	}
}

// P8: after PrintfDump, valid_entries is clear and the rendered text is
// the concatenation of each staged call in least-significant-bit order.
func TestPrintf_P8OrderAndClear(t *testing.T) {
	cpu, backend := newTestCPU(false)
	enableAllForPrintf(cpu)

	ctx1, ctx2 := &PrintfCtx{}, &PrintfCtx{}
	cpu.GenPrintf(ctx1, "w", "first=%d", 1)
	cpu.GenPrintfFlush(ctx1, false, true)
	cpu.GenPrintf(ctx2, "w", " second=%d", 2)
	cpu.GenPrintfFlush(ctx2, false, true)

	cpu.mu.Lock()
	if cpu.printfBuf.valid != 0 {
		t.Fatalf("expected valid_entries cleared after a forced flush that already rendered")
	}
	cpu.mu.Unlock()

	cpu.Reg("r0", 1)
	if err := cpu.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	last := backend.emitted[len(backend.emitted)-1]
	if want := "first=1 second=2"; string(last.Text) != want {
		t.Fatalf("expected text %q, got %q", want, string(last.Text))
	}
}

// Entries staged but not yet flushed render in ascending slot order when
// commit drains them.
func TestPrintf_MultipleStagedCallsRenderInOrder(t *testing.T) {
	cpu, backend := newTestCPU(false)
	enableAllForPrintf(cpu)

	ctx := &PrintfCtx{}
	cpu.GenPrintf(ctx, "w", "one=%d", 1)
	cpu.GenPrintf(ctx, "w", " two=%d", 2)

	cpu.Reg("r0", 1)
	if err := cpu.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	last := backend.emitted[len(backend.emitted)-1]
	want := "one=1 two=2"
	if string(last.Text) != want {
		t.Fatalf("expected text %q, got %q", want, string(last.Text))
	}
	cpu.mu.Lock()
	if cpu.printfBuf.valid != 0 {
		t.Fatalf("expected valid_entries cleared by commit's PrintfDump")
	}
	cpu.mu.Unlock()
}

// Disabled tracing clears valid_entries without rendering (printf_dump's
// disabled-path behavior, spec.md §4.6).
func TestPrintf_DisabledClearsWithoutRendering(t *testing.T) {
	cpu, _ := newTestCPU(false)
	enableAllForPrintf(cpu)

	ctx := &PrintfCtx{}
	cpu.GenPrintf(ctx, "w", "x=%d", 1)

	cpu.process.GlobalSwitch(0) // schedules disable
	cpu.RunOnCPU(func() {})     // drain it: disable has now run, discarding the pending start

	cpu.mu.Lock()
	cpu.printfBuf.valid = 1 // force a pending call as if staged while still enabled
	cpu.PrintfDump()
	valid := cpu.printfBuf.valid
	cpu.mu.Unlock()
	if valid != 0 {
		t.Fatalf("expected valid_entries cleared even while disabled, got %#x", valid)
	}
}

// A type_spec/format argument-count mismatch is a programming-contract
// violation (spec.md §7) and panics rather than silently truncating.
func TestPrintf_TypeSpecMismatchPanics(t *testing.T) {
	cpu, _ := newTestCPU(false)
	enableAllForPrintf(cpu)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic on type_spec/argument count mismatch")
		}
	}()
	cpu.GenPrintf(&PrintfCtx{}, "ww", "x=%d", 1)
}

// gen_printf_flush only renders when forced, early, or the context has
// reached FLUSH_BARRIER.
func TestPrintf_FlushDefersWithoutForceOrEarly(t *testing.T) {
	cpu, backend := newTestCPU(false)
	enableAllForPrintf(cpu)

	ctx := &PrintfCtx{}
	cpu.GenPrintf(ctx, "w", "x=%d", 1)
	cpu.GenPrintfFlush(ctx, false, false) // neither forced nor early, under the barrier

	cpu.mu.Lock()
	valid := cpu.printfBuf.valid
	cpu.mu.Unlock()
	if valid == 0 {
		t.Fatalf("expected the staged call to remain valid without a forced/early flush")
	}

	cpu.Reg("r0", 1)
	if err := cpu.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	last := backend.emitted[len(backend.emitted)-1]
	if string(last.Text) != "x=1" {
		t.Fatalf("expected the staged call to still render at commit, got %q", last.Text)
	}
}

func TestPrintf_DepthCapPanics(t *testing.T) {
	cpu, _ := newTestCPU(false)
	enableAllForPrintf(cpu)
	ctx := &PrintfCtx{used: PrintfBufDepth}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic when staging beyond PrintfBufDepth")
		}
	}()
	cpu.GenPrintf(ctx, "w", "x=%d", 1)
}
