// console.go - raw-mode stdin reader for the trace monitor REPL, adapted
// from the teacher's terminal_host.go byte-routing loop: same raw-mode
// setup, same non-blocking-read-with-EAGAIN-sleep shape, but bytes build a
// line buffer dispatched to the monitor on Enter instead of being routed
// to an MMIO device.

package main

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"
)

// Console reads raw stdin a byte at a time and dispatches completed lines
// to a Monitor. Only instantiated for interactive use, never in tests.
type Console struct {
	mon *Monitor

	stopCh       chan struct{}
	done         chan struct{}
	stopped      sync.Once
	fd           int
	nonblockSet  bool
	oldTermState *term.State

	line []byte
}

// NewConsole creates a console adapter bound to mon.
func NewConsole(mon *Monitor) *Console {
	return &Console{
		mon:    mon,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run puts stdin into raw mode and reads until Stop is called, the
// monitor reports a quit, or stdin is closed.
func (c *Console) Run() {
	c.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(c.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tracemon: failed to set raw mode: %v\n", err)
		close(c.done)
		return
	}
	c.oldTermState = oldState

	if err := syscall.SetNonblock(c.fd, true); err != nil {
		fmt.Fprintf(os.Stderr, "tracemon: failed to set nonblocking stdin: %v\n", err)
		_ = term.Restore(c.fd, c.oldTermState)
		c.oldTermState = nil
		close(c.done)
		return
	}
	c.nonblockSet = true

	defer close(c.done)
	fmt.Fprint(os.Stdout, "qtrace> ")
	buf := make([]byte, 1)

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		n, err := syscall.Read(c.fd, buf)
		if n > 0 {
			b := buf[0]
			if b == '\r' {
				b = '\n'
			}
			if b == 0x7F { // DEL -> backspace
				if len(c.line) > 0 {
					c.line = c.line[:len(c.line)-1]
					fmt.Fprint(os.Stdout, "\b \b")
				}
				continue
			}
			if b == '\n' {
				fmt.Fprint(os.Stdout, "\r\n")
				line := string(c.line)
				c.line = c.line[:0]
				out, quit := c.mon.Dispatch(line)
				if out != "" {
					fmt.Fprint(os.Stdout, out, "\r\n")
				}
				if quit {
					return
				}
				fmt.Fprint(os.Stdout, "qtrace> ")
				continue
			}
			c.line = append(c.line, b)
			os.Stdout.Write([]byte{b})
		}
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err != nil {
			return
		}
		if n == 0 {
			return // EOF: stdin was closed
		}
	}
}

// Stop terminates the read loop and restores stdin to its original mode.
func (c *Console) Stop() {
	c.stopped.Do(func() {
		close(c.stopCh)
	})
	<-c.done
	if c.nonblockSet {
		_ = syscall.SetNonblock(c.fd, false)
		c.nonblockSet = false
	}
	if c.oldTermState != nil {
		_ = term.Restore(c.fd, c.oldTermState)
		c.oldTermState = nil
	}
}
