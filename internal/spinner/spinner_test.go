package spinner

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestSpinnerPaintsAndClears(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)

	s.Start("Thinking...")
	time.Sleep(3 * interval)
	s.Stop()

	out := buf.String()
	if !strings.Contains(out, "Thinking...") {
		t.Error("spinner never painted the message")
	}
	if !strings.HasSuffix(out, "\r\033[K") {
		t.Error("spinner must clear the line on stop")
	}
}

func TestSpinnerUpdate(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)

	s.Start("first")
	time.Sleep(2 * interval)
	s.Update("second")
	time.Sleep(2 * interval)
	s.Stop()

	out := buf.String()
	if !strings.Contains(out, "first") || !strings.Contains(out, "second") {
		t.Errorf("expected both messages in output, got %q", out)
	}
}

func TestSpinnerStopIdempotent(t *testing.T) {
	s := New(&bytes.Buffer{})
	s.Stop() // never started
	s.Start("x")
	s.Stop()
	s.Stop() // second stop is a no-op
}

func TestSpinnerRestart(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)

	s.Start("one")
	time.Sleep(2 * interval)
	s.Stop()
	s.Start("two")
	time.Sleep(2 * interval)
	s.Stop()

	if !strings.Contains(buf.String(), "two") {
		t.Error("spinner did not animate after restart")
	}
}
