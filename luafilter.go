// luafilter.go - scripted filter predicate backed by an embedded Lua
// interpreter (SPEC_FULL.md §4.4 [NEW]).
//
// A compiled chunk must define a global function `filter(entry)` that
// receives a read-only table view of the entry and returns a boolean.
// This is a core-level extension point for operators who want a one-off
// predicate without a code change to the filter registry.

package qtrace

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// LuaFilterEngine compiles and evaluates a single Lua filter script
// against entries. Not safe for concurrent use from more than one CPU's
// worker at a time — each CPU that installs FilterLua owns its own
// engine instance.
type LuaFilterEngine struct {
	state *lua.LState
	fn    *lua.LFunction
}

// NewLuaFilterEngine compiles script and resolves its `filter` global.
// A script that fails to compile or that does not define `filter` is a
// programming-contract violation (spec.md §7) — it panics rather than
// returning a recoverable error, since it can only ever be wired in by
// an operator action (CLI filter install), not by untrusted target code.
func NewLuaFilterEngine(script string) *LuaFilterEngine {
	L := lua.NewState()
	if err := L.DoString(script); err != nil {
		panic(fmt.Sprintf("qtrace: lua filter script failed to load: %v", err))
	}
	fn, ok := L.GetGlobal("filter").(*lua.LFunction)
	if !ok {
		panic("qtrace: lua filter script does not define a `filter` function")
	}
	return &LuaFilterEngine{state: L, fn: fn}
}

// Close releases the embedded interpreter.
func (le *LuaFilterEngine) Close() {
	le.state.Close()
}

func entryToLuaTable(L *lua.LState, e *Entry) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("pc", lua.LNumber(e.PC))
	t.RawSetString("asid", lua.LNumber(e.Asid))
	t.RawSetString("flags", lua.LNumber(e.Flags))
	t.RawSetString("num_regs", lua.LNumber(len(e.Regs)))
	t.RawSetString("num_events", lua.LNumber(len(e.Events)))

	addrs := L.NewTable()
	for i, m := range e.Mem {
		addrs.RawSetInt(i+1, lua.LNumber(m.Addr))
	}
	t.RawSetString("mem_addrs", addrs)
	return t
}

// Predicate adapts the compiled script into a Filter. A runtime error
// inside the script is a contract violation, not user input (spec.md
// §7) — it panics rather than silently dropping or keeping the entry.
func (le *LuaFilterEngine) Predicate() Filter {
	return func(e *Entry) bool {
		L := le.state
		arg := entryToLuaTable(L, e)
		if err := L.CallByParam(lua.P{
			Fn:      le.fn,
			NRet:    1,
			Protect: true,
		}, arg); err != nil {
			panic(fmt.Sprintf("qtrace: lua filter script error: %v", err))
		}
		ret := L.Get(-1)
		L.Pop(1)
		return lua.LVAsBool(ret)
	}
}
