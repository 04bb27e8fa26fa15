// Package spinner renders a terminal loading indicator while a request is in
// flight. One background goroutine repaints the line; Start, Stop, and
// Update are safe to call from any goroutine and Stop always clears the line
// before the next output.
package spinner

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const interval = 80 * time.Millisecond

var frameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))

// Spinner is an animated status line. The zero value is not usable;
// construct with New.
type Spinner struct {
	w io.Writer

	mu      sync.Mutex
	message string
	running bool
	done    chan struct{}
	stopped chan struct{}
}

// New creates a spinner writing to w.
func New(w io.Writer) *Spinner {
	return &Spinner{w: w}
}

// Start begins the animation with the given message. Starting an already
// running spinner just updates the message.
func (s *Spinner) Start(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.message = message
	if s.running {
		return
	}
	s.running = true
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.loop(s.done, s.stopped)
}

// Update changes the message without restarting the animation.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Stop halts the animation and clears the line. It blocks until the
// animation goroutine has exited, so callers can print immediately after.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	done, stopped := s.done, s.stopped
	s.mu.Unlock()

	close(done)
	<-stopped
}

func (s *Spinner) loop(done, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-done:
			s.clear()
			return
		case <-ticker.C:
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()
			frame := frameStyle.Render(frames[i%len(frames)])
			fmt.Fprintf(s.w, "\r\033[K%s %s", frame, msg)
			i++
		}
	}
}

func (s *Spinner) clear() {
	fmt.Fprint(s.w, "\r\033[K")
}

// Line returns a static rendering of one frame, for non-TTY output.
func Line(message string) string {
	return strings.TrimSpace(frameStyle.Render(frames[0]) + " " + message)
}
