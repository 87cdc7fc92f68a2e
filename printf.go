// printf.go - staged printf (spec.md §4.6): translated code enqueues a
// format string and typed arguments into a per-CPU staging buffer at the
// cost of one store per argument; rendering into the entry's text buffer
// is deferred to commit time, so full formatting is paid for once per
// committed entry rather than once per candidate trace line.
//
// GenPrintf/GenPrintfFlush stand in for the translator-IR emission spec.md
// describes (the JIT itself is the out-of-scope CPU translator) — what is
// modeled here is the state mutated, in what order, and at what width, per
// the Design Notes' "semantics are what matter" guidance.

package qtrace

import (
	"fmt"
	"math"
	"strings"
)

// Staging capacity (spec.md §4.6): D staged calls, A arguments each.
// PrintfBufDepth fits the valid_entries bitmap in a single uint64.
const (
	PrintfBufDepth = 64
	PrintfArgMax   = 8
	FlushBarrier   = 32 // slots used before gen_printf_flush auto-renders
	bounceBufSize  = 256
)

// PrintfCtx is the translation-time handle: one per in-flight translation
// block, tracking how many slots it has reserved since the last flush
// decision (ctx.printf_used_ptr in spec.md §4.6).
type PrintfCtx struct {
	used int
}

// printfConv is one conversion parsed out of a staged call's format: the
// literal text before it, the stored argument word, and enough of its
// declared type to render correctly later. printfCall below is one
// D-indexed staged call: its format and its parsed conversions.
type printfConv struct {
	literal string // literal text preceding this conversion
	verb    byte   // the raw fmt.Sprintf-compatible verb ('d','x','c',...)
	isFloat bool
	size    int // storage size in bytes: 1, 2, 4, or 8 (8 for floats => double)
	signed  bool
	word    uint64 // the stored argument, per spec.md §4.6 step 4
}

type printfCall struct {
	format string
	convs  []printfConv
	trail  string // literal text after the last conversion
}

// printfStaging is the per-CPU staged-printf state (spec.md §4.6's
// fmts/args/valid_entries). It is not safe for concurrent use on its own;
// callers hold CPU.mu.
type printfStaging struct {
	calls [PrintfBufDepth]printfCall
	valid uint64 // bitmap: bit ndx set iff calls[ndx] holds a pending call
}

// GenPrintf stages one printf call (spec.md §4.6 gen_printf): it reserves
// the next slot, parses fmt against typeSpec in lockstep to derive each
// argument's storage width and signedness, and stores each argument's
// word into that slot — the one-store-per-argument cost the design is
// built around.
//
// typeSpec carries one character per format conversion, encoding the
// argument's *source* kind: 'c' = compile-time constant, 'w' = 32-bit
// runtime value, 'd' = 64-bit runtime value. args must have exactly as
// many elements as there are conversions in format, and must line up
// with typeSpec one-to-one (spec.md §4.6 step 5) — any mismatch is a
// malformed-printf programming error (spec.md §7) and panics rather than
// silently truncating.
func (c *CPU) GenPrintf(ctx *PrintfCtx, typeSpec, format string, args ...any) {
	if !c.CheckEnabled() {
		return
	}
	if len(args) != len(typeSpec) {
		panic(fmt.Sprintf("qtrace: gen_printf: %d args but type_spec %q has %d entries", len(args), typeSpec, len(typeSpec)))
	}
	if len(args) > PrintfArgMax {
		panic(fmt.Sprintf("qtrace: gen_printf: %d args exceeds PRINTF_ARG_MAX %d", len(args), PrintfArgMax))
	}

	ndx := ctx.used
	ctx.used++
	if ndx >= PrintfBufDepth {
		panic(fmt.Sprintf("qtrace: gen_printf: staged call depth exceeds %d", PrintfBufDepth))
	}

	convs, trail := parsePrintfConversions(format, typeSpec, args)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.printfBuf.calls[ndx] = printfCall{format: format, convs: convs, trail: trail}
	c.printfBuf.valid |= 1 << uint(ndx)
}

// GenPrintfFlush models gen_printf_flush(ctx, early, force): it emits the
// runtime render call when force is set, or when at least one slot is
// used and (early is set or the context has reached FLUSH_BARRIER), then
// resets the context's own used counter. When it renders, it does so
// through PrintfDump, which also clears the per-CPU valid_entries bitmap;
// otherwise the staged calls stay valid until commit's PrintfDump renders
// them (spec.md §4.6).
func (c *CPU) GenPrintfFlush(ctx *PrintfCtx, early, force bool) {
	used := ctx.used
	ctx.used = 0
	if used == 0 {
		return
	}
	if force || early || used >= FlushBarrier {
		c.mu.Lock()
		c.PrintfDump()
		c.mu.Unlock()
	}
}

// PrintfDump is the runtime render helper (spec.md §4.6 printf_dump): if
// logging is disabled it just clears valid_entries; otherwise it walks
// the set bits from least to most significant, rendering each staged
// call into the current entry's text buffer in that order (P8), then
// clears valid_entries.
//
// Callers must hold c.mu — it mutates c.printfBuf and the current ring
// entry's Text buffer, the same state commitLocked protects.
func (c *CPU) PrintfDump() {
	if c.printfBuf.valid == 0 {
		return
	}
	if !c.checkEnabledLocked() {
		c.printfBuf.valid = 0
		return
	}

	entry := c.ring.current()
	bounce := make([]byte, 0, bounceBufSize)
	for ndx := 0; ndx < PrintfBufDepth; ndx++ {
		if c.printfBuf.valid&(1<<uint(ndx)) == 0 {
			continue
		}
		bounce = renderPrintfCall(bounce[:0], &c.printfBuf.calls[ndx])
		entry.Text = append(entry.Text, bounce...)
	}
	c.printfBuf.valid = 0
}

// parsePrintfConversions walks format and typeSpec in lockstep (spec.md
// §4.6 step 4), splitting format into the literal run preceding each
// conversion plus a printfConv holding that argument's stored word, and
// returns the trailing literal run after the last conversion. A desync
// between format's conversion count and typeSpec/args is a malformed
// type-spec (spec.md §7) and panics.
func parsePrintfConversions(format, typeSpec string, args []any) ([]printfConv, string) {
	var convs []printfConv
	ti := 0
	i := 0
	litStart := 0
	for i < len(format) {
		if format[i] != '%' {
			i++
			continue
		}
		lit := format[litStart:i]
		i++ // consume '%'
		if i < len(format) && format[i] == '%' {
			// literal "%%" — consumes no argument, stays part of the
			// surrounding literal text.
			i++
			litStart = i
			continue
		}
		for i < len(format) && strings.IndexByte("-+ 0#", format[i]) >= 0 {
			i++
		}
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			i++
		}
		if i < len(format) && format[i] == '.' {
			i++
			for i < len(format) && format[i] >= '0' && format[i] <= '9' {
				i++
			}
		}
		length := ""
		for i < len(format) && (format[i] == 'h' || format[i] == 'l') {
			length += string(format[i])
			i++
		}
		if i >= len(format) {
			panic("qtrace: gen_printf: truncated conversion in format string")
		}
		verb := format[i]
		i++

		if ti >= len(typeSpec) {
			panic("qtrace: gen_printf: format has more conversions than type_spec entries")
		}
		srcKind := typeSpec[ti]
		arg := args[ti]
		ti++

		convs = append(convs, buildPrintfConv(lit, verb, length, srcKind, arg))
		litStart = i
	}
	if ti != len(typeSpec) {
		panic("qtrace: gen_printf: type_spec has more entries than format has conversions")
	}
	return convs, format[litStart:]
}

// buildPrintfConv derives signedness and storage size from the
// conversion verb and its length modifier (spec.md §4.6 step 4), then
// stores the argument's bits — sign- or zero-extending to fill the
// 64-bit slot when promoting a 32-bit runtime source (srcKind == 'w').
func buildPrintfConv(lit string, verb byte, length string, srcKind byte, arg any) printfConv {
	switch verb {
	case 'f', 'F', 'e', 'E', 'g', 'G':
		// C variadic promotion always widens float to double; there is
		// no observable 4-byte-float case to preserve through a varargs
		// boundary, so every float conversion stores a full double.
		return printfConv{literal: lit, verb: verb, isFloat: true, size: 8, word: math.Float64bits(toFloat64(arg))}
	}

	signed := verb == 'd' || verb == 'i'
	size := 4
	switch length {
	case "hh":
		size = 1
	case "h":
		size = 2
	case "l", "ll":
		size = 8
	}
	if verb == 'c' {
		size = 1
		signed = false
	}
	if verb == 'p' {
		size = 8
		signed = false
	}

	raw := toInt64(arg)
	var word uint64
	switch size {
	case 1:
		word = uint64(uint8(raw))
	case 2:
		word = uint64(uint16(raw))
	case 4:
		word = uint64(uint32(raw))
	default:
		word = uint64(raw)
	}
	if size == 4 && srcKind == 'w' {
		if signed {
			word = uint64(int64(int32(uint32(word))))
		} else {
			word = uint64(uint32(word))
		}
		size = 8
	}
	return printfConv{literal: lit, verb: verb, size: size, signed: signed, word: word}
}

func toInt64(a any) int64 {
	switch v := a.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	default:
		panic(fmt.Sprintf("qtrace: gen_printf: unsupported integer argument type %T", a))
	}
}

func toFloat64(a any) float64 {
	switch v := a.(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	default:
		return float64(toInt64(a))
	}
}

// renderPrintfCall formats one staged call's literal-and-conversion runs
// into dst, asserting the bounce buffer never overflows bounceBufSize
// (spec.md §4.6: "copies literal runs into a bounded bounce buffer;
// assert non-overflow").
func renderPrintfCall(dst []byte, call *printfCall) []byte {
	for _, cv := range call.convs {
		dst = append(dst, cv.literal...)
		dst = appendPrintfConv(dst, cv)
		if len(dst) > bounceBufSize {
			panic("qtrace: printf_dump: rendered line exceeds bounce buffer")
		}
	}
	dst = append(dst, call.trail...)
	if len(dst) > bounceBufSize {
		panic("qtrace: printf_dump: rendered line exceeds bounce buffer")
	}
	return dst
}

// appendPrintfConv renders one stored argument word using the type
// declared by its conversion (char/short/int/long/long long, signed or
// unsigned, float/double, pointer), reading exactly the byte width
// derived from the original conversion's length modifier.
func appendPrintfConv(dst []byte, cv printfConv) []byte {
	if cv.isFloat {
		return fmt.Appendf(dst, "%"+string(cv.verb), math.Float64frombits(cv.word))
	}
	switch cv.verb {
	case 'c':
		return append(dst, byte(cv.word))
	case 'p':
		return fmt.Appendf(dst, "0x%x", cv.word)
	}

	mask := uint64(1)<<(uint(cv.size)*8) - 1
	if cv.size == 8 {
		mask = ^uint64(0)
	}
	word := cv.word & mask

	// Go's fmt package has no "%u" verb; unsigned decimal is just "%d"
	// applied to an already-unsigned operand.
	goVerb := string(cv.verb)
	if cv.verb == 'u' || cv.verb == 'i' {
		goVerb = "d"
	}
	if cv.signed {
		v := signExtend(word, cv.size)
		return fmt.Appendf(dst, "%"+goVerb, v)
	}
	return fmt.Appendf(dst, "%"+goVerb, word)
}

// signExtend reinterprets the low size bytes of word as a signed value
// of that width, sign-extended to int64.
func signExtend(word uint64, size int) int64 {
	switch size {
	case 1:
		return int64(int8(word))
	case 2:
		return int64(int16(word))
	case 4:
		return int64(int32(word))
	default:
		return int64(word)
	}
}
