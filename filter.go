// filter.go - ordered predicate pipeline: an entry survives commit iff all
// installed filters return true (spec.md §4.4).

package qtrace

import (
	"fmt"
	"log"
)

// FilterKind is a small closed enum identifying a filter in the global
// predicate registry.
type FilterKind int

const (
	FilterMemRegions FilterKind = iota
	FilterEvents
	FilterLua
)

// AddrRange is a half-open [Low, High) virtual address range.
type AddrRange struct {
	Low, High uint64
}

func (r AddrRange) contains(addr uint64) bool {
	return addr >= r.Low && addr < r.High
}

// DebugRegions is the external -dfilter collaborator (spec.md §6): an
// address-range set the MEM_REGIONS filter consults. An empty set always
// matches (P10).
type DebugRegions interface {
	Ranges() []AddrRange
}

// StaticDebugRegions is an in-memory DebugRegions implementation,
// sufficient for tests and for a monitor-driven -dfilter equivalent.
type StaticDebugRegions struct {
	ranges []AddrRange
}

func NewStaticDebugRegions(ranges ...AddrRange) *StaticDebugRegions {
	return &StaticDebugRegions{ranges: ranges}
}

func (d *StaticDebugRegions) Ranges() []AddrRange { return d.ranges }

// Filter is a pure predicate over an Entry.
type Filter func(*Entry) bool

// memRegionsFilter matches if debug_regions is empty, or if it contains the
// entry's PC or any memory record's address.
func memRegionsFilter(regions DebugRegions) Filter {
	return func(e *Entry) bool {
		ranges := regions.Ranges()
		if len(ranges) == 0 {
			return true
		}
		for _, rg := range ranges {
			if rg.contains(e.PC) {
				return true
			}
		}
		for _, m := range e.Mem {
			for _, rg := range ranges {
				if rg.contains(m.Addr) {
					return true
				}
			}
		}
		return false
	}
}

// eventsFilter matches iff the entry has at least one event record.
func eventsFilter(e *Entry) bool { return e.hasEvents() }

// filterRegistry maps a FilterKind to a concrete predicate for one CPU.
// Built per-CPU because FilterMemRegions closes over that CPU's
// DebugRegions collaborator and FilterLua over its scripted engine.
type filterRegistry struct {
	regions DebugRegions
	lua     *LuaFilterEngine
}

func (fr *filterRegistry) resolve(kind FilterKind) (Filter, error) {
	switch kind {
	case FilterMemRegions:
		return memRegionsFilter(fr.regions), nil
	case FilterEvents:
		return eventsFilter, nil
	case FilterLua:
		if fr.lua == nil {
			return nil, fmt.Errorf("qtrace: no Lua filter script installed")
		}
		return fr.lua.Predicate(), nil
	default:
		return nil, fmt.Errorf("qtrace: unknown filter kind %d", kind)
	}
}

// filterChain is the per-CPU ordered, deduplicated list of installed
// filters.
type filterChain struct {
	registry *filterRegistry
	kinds    []FilterKind
	compiled []Filter
}

func newFilterChain(registry *filterRegistry) *filterChain {
	return &filterChain{registry: registry}
}

// add appends a filter kind, deduplicating repeats and preserving order.
func (fc *filterChain) add(kind FilterKind) error {
	for _, k := range fc.kinds {
		if k == kind {
			return nil
		}
	}
	f, err := fc.registry.resolve(kind)
	if err != nil {
		return err
	}
	fc.kinds = append(fc.kinds, kind)
	fc.compiled = append(fc.compiled, f)
	return nil
}

// remove deletes a filter kind if present, preserving order of the rest.
func (fc *filterChain) remove(kind FilterKind) {
	for i, k := range fc.kinds {
		if k == kind {
			fc.kinds = append(fc.kinds[:i], fc.kinds[i+1:]...)
			fc.compiled = append(fc.compiled[:i], fc.compiled[i+1:]...)
			return
		}
	}
}

// evaluate runs filters in order; the first false discards the entry and
// stops evaluation (P5).
func (fc *filterChain) evaluate(e *Entry) bool {
	for _, f := range fc.compiled {
		if !f(e) {
			return false
		}
	}
	return true
}

// resetFilterList holds filters installed before any CPU exists; they are
// auto-applied to each CPU at creation (spec.md §4.4).
type resetFilterList struct {
	kinds []FilterKind
}

func (rl *resetFilterList) add(kind FilterKind) {
	rl.kinds = append(rl.kinds, kind)
}

func (rl *resetFilterList) applyTo(fc *filterChain) {
	for _, k := range rl.kinds {
		if err := fc.add(k); err != nil {
			log.Printf("qtrace: applying reset filter %d: %v", k, err)
		}
	}
}

// SetCLIFilters parses a comma-separated filter name list (spec.md §6).
// Accepted names: "events" -> FilterEvents, "mem_regions" ->
// FilterMemRegions, "lua" -> FilterLua. Unknown names set an error
// without stopping earlier successful additions, matching the monitor's
// partial-success contract.
func SetCLIFilters(rl *resetFilterList, names string) error {
	var firstErr error
	for _, name := range splitCommaList(names) {
		switch name {
		case "events":
			rl.add(FilterEvents)
		case "mem_regions":
			rl.add(FilterMemRegions)
		case "lua":
			rl.add(FilterLua)
		default:
			if firstErr == nil {
				firstErr = fmt.Errorf("qtrace: unknown CLI filter name %q", name)
			}
		}
	}
	return firstErr
}

func splitCommaList(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
