package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// writerIsTTY returns true if the given writer exposes an Fd() method
// (e.g. *os.File) and that fd is a terminal. Plain io.Writer values such
// as *bytes.Buffer are never terminals.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

// StageProgress draws a bar over the named stages of a planning run.
// Example: [=========>          ] 45% resolver
//
// On a terminal the bar is redrawn in place. Elsewhere each stage is
// printed on its own line so logs show how far a failed run got.
type StageProgress struct {
	stages  []string
	current int
	width   int
	mu      sync.Mutex
	writer  io.Writer
}

// NewStageProgress creates a progress bar over stages.
func NewStageProgress(stages []string) *StageProgress {
	return &StageProgress{
		stages: stages,
		width:  30,
		writer: os.Stderr,
	}
}

// SetWriter sets the output writer (useful for testing).
func (p *StageProgress) SetWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writer = w
}

// Enter marks stage as running. Stages may be skipped or repeated; the bar
// only moves forward. Unknown stages redraw the label without moving.
func (p *StageProgress) Enter(stage string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, s := range p.stages {
		if s == stage && i+1 > p.current {
			p.current = i + 1
			break
		}
	}

	if writerIsTTY(p.writer) {
		fmt.Fprintf(p.writer, "\r%s %3d%% %-12s", p.bar(), p.percent(), stage)
		return
	}
	fmt.Fprintf(p.writer, "%3d%% %s\n", p.percent(), stage)
}

// Finish fills the bar and ends the line.
func (p *StageProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = len(p.stages)
	if writerIsTTY(p.writer) {
		fmt.Fprintf(p.writer, "\r%s %3d%% %-12s\n", p.bar(), 100, "done")
	}
}

func (p *StageProgress) percent() int {
	if len(p.stages) == 0 {
		return 100
	}
	return p.current * 100 / len(p.stages)
}

// bar must be called with the lock held.
func (p *StageProgress) bar() string {
	filled := 0
	if len(p.stages) > 0 {
		filled = p.current * p.width / len(p.stages)
	}

	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < p.width; i++ {
		switch {
		case i < filled-1:
			sb.WriteString("=")
		case i == filled-1:
			sb.WriteString(">")
		default:
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// Spinner displays an animated spinner with a message while something
// without measurable progress runs, such as loading package lists.
// Example: |  Reading package lists...
type Spinner struct {
	message string
	running bool
	chars   []string
	mu      sync.Mutex
	writer  io.Writer
	done    chan struct{}
	stopped chan struct{}
}

// NewSpinner creates a spinner with a message. It does not start it.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		chars:   []string{"|", "/", "-", "\\"},
		writer:  os.Stderr,
	}
}

// SetWriter sets the output writer (useful for testing).
func (s *Spinner) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
}

// Start begins the animation. On a non-TTY writer the message is printed
// once and no goroutine is started.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	if !writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "%s...\n", s.message)
		return
	}

	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.spin(s.done, s.stopped)
}

func (s *Spinner) spin(done, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	idx := 0
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			fmt.Fprintf(s.writer, "\r%s  %s", s.chars[idx], s.message)
			s.mu.Unlock()
			idx = (idx + 1) % len(s.chars)
		case <-done:
			return
		}
	}
}

// UpdateMessage changes the message shown by a running spinner.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.stop("")
}

// StopWithMessage halts the animation and prints message on its own line.
func (s *Spinner) StopWithMessage(message string) {
	s.stop(message)
}

func (s *Spinner) stop(message string) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	done, stopped := s.done, s.stopped
	s.mu.Unlock()

	if done != nil {
		close(done)
		<-stopped
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "\r%s\r", strings.Repeat(" ", len(s.message)+3))
	}
	if message != "" {
		fmt.Fprintln(s.writer, message)
	}
}
