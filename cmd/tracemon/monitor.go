// monitor.go - command parser and dispatcher for the trace monitor REPL,
// grounded in the teacher's debug_commands.go MonitorCommand/ParseCommand
// shape: same "split into name + args, lowercase the name" tokenizer, new
// command set scoped to SPEC_FULL.md §6's trace/filter/backend/stats
// surface rather than the teacher's CPU debugger commands.

package main

import (
	"fmt"
	"strings"

	"github.com/tracecore/qtrace"
)

// MonitorCommand is a parsed command with name and arguments.
type MonitorCommand struct {
	Name string
	Args []string
}

// ParseCommand splits a raw input line into a command name and arguments.
func ParseCommand(input string) MonitorCommand {
	input = strings.TrimSpace(input)
	if input == "" {
		return MonitorCommand{}
	}
	parts := strings.Fields(input)
	return MonitorCommand{
		Name: strings.ToLower(parts[0]),
		Args: parts[1:],
	}
}

// Monitor is the external control surface described in SPEC_FULL.md §6: a
// thin wrapper over qtrace.Process that the REPL and, eventually, any
// other front end (a socket, a GDB-style remote) can drive identically.
type Monitor struct {
	proc *qtrace.Process
}

// NewMonitor binds a Monitor to proc.
func NewMonitor(proc *qtrace.Process) *Monitor {
	return &Monitor{proc: proc}
}

// Dispatch executes one command line and returns the text to print and
// whether the session should end.
func (m *Monitor) Dispatch(line string) (string, bool) {
	cmd := ParseCommand(line)
	switch cmd.Name {
	case "":
		return "", false
	case "help":
		return m.cmdHelp(), false
	case "quit", "exit", "q":
		return "bye", true
	case "trace":
		return m.cmdTrace(cmd), false
	case "filter":
		return m.cmdFilter(cmd), false
	case "stats":
		return m.cmdStats(cmd), false
	case "flush":
		return m.cmdFlush(), false
	case "backend":
		return m.cmdBackend(), false
	default:
		return fmt.Sprintf("unknown command %q (try: help)", cmd.Name), false
	}
}

func (m *Monitor) cmdHelp() string {
	return strings.Join([]string{
		"trace start [user|all]   - enable tracing (default: all)",
		"trace stop               - disable tracing on every CPU",
		"filter add <name>        - stage a filter for CPUs created later (events, mem_regions, lua)",
		"filter remove <name>     - not supported here; filters are removed per CPU",
		"stats [cpu]              - show per-CPU counters",
		"flush                    - force a flush on every CPU",
		"backend                  - report that the backend is fixed at startup (it is not shown or changed)",
		"quit                     - exit the monitor",
	}, "\n")
}

func (m *Monitor) cmdTrace(cmd MonitorCommand) string {
	if len(cmd.Args) == 0 {
		return "usage: trace start|stop [user|all]"
	}
	switch cmd.Args[0] {
	case "start":
		flags := qtrace.LogInstr
		if len(cmd.Args) > 1 && cmd.Args[1] == "user" {
			flags = qtrace.LogInstrU
		}
		adjusted := m.proc.GlobalSwitch(flags)
		return fmt.Sprintf("tracing enabled, flags=%#x", adjusted)
	case "stop":
		m.proc.GlobalSwitch(0)
		return "tracing disabled"
	default:
		return fmt.Sprintf("unknown trace subcommand %q", cmd.Args[0])
	}
}

func (m *Monitor) cmdFilter(cmd MonitorCommand) string {
	if len(cmd.Args) < 2 {
		return "usage: filter add|remove <name>"
	}
	action, name := cmd.Args[0], cmd.Args[1]
	switch action {
	case "add":
		m.proc.AddResetFilter(filterKindFromName(name))
		return fmt.Sprintf("filter %q staged for newly created CPUs", name)
	case "remove":
		return fmt.Sprintf("filter %q can only be removed per-CPU (not supported from the monitor yet)", name)
	default:
		return fmt.Sprintf("unknown filter subcommand %q", action)
	}
}

func filterKindFromName(name string) qtrace.FilterKind {
	switch name {
	case "mem_regions":
		return qtrace.FilterMemRegions
	case "lua":
		return qtrace.FilterLua
	default:
		return qtrace.FilterEvents
	}
}

func (m *Monitor) cmdStats(cmd MonitorCommand) string {
	want := -1
	if len(cmd.Args) > 0 {
		if _, err := fmt.Sscan(cmd.Args[0], &want); err != nil || want < 0 {
			return fmt.Sprintf("invalid cpu %q", cmd.Args[0])
		}
	}
	var lines []string
	for _, c := range m.proc.CPUs() {
		if want >= 0 && c.ID() != want {
			continue
		}
		s := c.Stats()
		lines = append(lines, fmt.Sprintf("cpu%d entries=%d start=%d stop=%d", c.ID(), s.EntriesEmitted, s.TraceStart, s.TraceStop))
	}
	if len(lines) == 0 {
		if want >= 0 {
			return fmt.Sprintf("no CPU %d registered", want)
		}
		return "no CPUs registered"
	}
	return strings.Join(lines, "\n")
}

func (m *Monitor) cmdFlush() string {
	var failed int
	for _, c := range m.proc.CPUs() {
		if err := c.Flush(); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Sprintf("flush completed with %d error(s)", failed)
	}
	return "flushed"
}

func (m *Monitor) cmdBackend() string {
	return "backend selection is fixed at process startup (spec.md §6)"
}
