// main.go - tracemon: a standalone host for the trace core, wiring a
// chosen backend and a handful of CPUs to an interactive monitor REPL.
// Grounded in the teacher's own main.go: flag-parsed startup options
// feeding a long-lived interactive session.

package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/tracecore/qtrace"
)

func main() {
	backendName := flag.String("backend", "text", "trace backend: text|json|drcachesim|cvtrace|protobuf|perfetto|nop")
	numCPUs := flag.Int("cpus", 1, "number of CPUs to register")
	flag.Parse()

	kind, err := parseBackendKind(*backendName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tracemon:", err)
		os.Exit(1)
	}

	backend, err := qtrace.NewBackend(kind, os.Stdout, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tracemon:", err)
		os.Exit(1)
	}

	proc := qtrace.NewProcess(kind, backend)
	for i := 0; i < *numCPUs; i++ {
		cpu := qtrace.NewCPU(proc, i, nil, nil, nil)
		if err := backend.Init(cpu.ID()); err != nil {
			fmt.Fprintln(os.Stderr, "tracemon: backend init:", err)
			os.Exit(1)
		}
	}

	mon := NewMonitor(proc)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		console := NewConsole(mon)
		console.Run()
		console.Stop()
	} else {
		runScannerREPL(mon)
	}

	for _, cpu := range proc.CPUs() {
		cpu.Close()
	}
}

// runScannerREPL is the piped-stdin fallback (scripted input, CI, pipes):
// no raw mode, no line editing, one command per line via bufio.Scanner —
// the same fallback shape the teacher's terminal_host.go leaves to callers
// that aren't attached to a real terminal.
func runScannerREPL(mon *Monitor) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		out, quit := mon.Dispatch(sc.Text())
		if out != "" {
			fmt.Println(out)
		}
		if quit {
			return
		}
	}
}

func parseBackendKind(name string) (qtrace.BackendKind, error) {
	switch name {
	case "text":
		return qtrace.BackendText, nil
	case "json":
		return qtrace.BackendJSON, nil
	case "drcachesim":
		return qtrace.BackendDRCacheSim, nil
	case "cvtrace":
		return qtrace.BackendCVTrace, nil
	case "protobuf":
		return qtrace.BackendProtobuf, nil
	case "perfetto":
		return qtrace.BackendPerfetto, nil
	case "nop":
		return qtrace.BackendNop, nil
	default:
		return 0, fmt.Errorf("unknown backend %q", name)
	}
}
