package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

var spinnerFrames = []rune{'⠋', '⠙', '⠹', '⠸', '⠼', '⠴', '⠦', '⠧', '⠇', '⠏'}

// progress prints run progress for humans. On a terminal a spinner line
// stays at the bottom while step lines scroll above it.
type progress struct {
	w     io.Writer
	isTTY bool

	mu      sync.Mutex
	spinMsg string
	done    chan struct{}
	wg      sync.WaitGroup
}

func newProgress(w io.Writer, isTTY bool) *progress {
	return &progress{w: w, isTTY: isTTY}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Step prints a completed step.
func (p *progress) Step(msg string) {
	p.line("✓ " + msg)
}

// Warn prints a warning step.
func (p *progress) Warn(msg string) {
	p.line("! " + msg)
}

func (p *progress) line(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isTTY && p.spinMsg != "" {
		fmt.Fprint(p.w, "\r\033[K")
	}
	fmt.Fprintln(p.w, text)
}

// Start shows msg with a spinner until Stop. Without a terminal it prints
// msg once.
func (p *progress) Start(msg string) {
	p.Stop()
	if !p.isTTY {
		p.line(msg)
		return
	}

	p.mu.Lock()
	p.spinMsg = msg
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(spinnerFrames) {
			select {
			case <-done:
				return
			case <-ticker.C:
				p.mu.Lock()
				fmt.Fprintf(p.w, "\r%c %s", spinnerFrames[i], p.spinMsg)
				p.mu.Unlock()
			}
		}
	}()
}

// Stop removes the spinner line. It is safe to call when no spinner runs.
func (p *progress) Stop() {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.mu.Unlock()
	if done == nil {
		return
	}
	close(done)
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.w, "\r\033[K")
	p.spinMsg = ""
}
