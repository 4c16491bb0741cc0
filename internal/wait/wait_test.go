package wait

import (
	"regexp"
	"testing"
	"time"

	"umux/internal/config"
	"umux/internal/session"
)

func newTestSession(t *testing.T, command string) *session.Session {
	t.Helper()
	cfg := config.Default()
	cfg.Engine = config.EngineFallbackOnly
	s, err := session.New(session.Options{
		Command: command,
		Cols:    80,
		Rows:    24,
		Name:    "wait-test",
		Config:  cfg,
	})
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	t.Cleanup(s.Dispose)
	return s
}

func waitForAlive(t *testing.T, s *session.Session, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.IsAlive() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session alive=%v not reached within deadline", want)
}

func TestResolveRequiresACondition(t *testing.T) {
	s := newTestSession(t, "cat")
	_, err := Resolve(s, Request{Timeout: time.Second})
	if err == nil {
		t.Fatalf("expected an error for a wait request with no condition")
	}
}

func TestResolveRequiresATimeout(t *testing.T) {
	s := newTestSession(t, "cat")
	_, err := Resolve(s, Request{Pattern: regexp.MustCompile("x")})
	if err == nil {
		t.Fatalf("expected an error for a wait request with no timeout")
	}
}

func TestResolvePatternPreCheckAgainstExistingHistory(t *testing.T) {
	s := newTestSession(t, "cat")
	if err := s.Send("marker-already-here\n"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	out, err := Resolve(s, Request{
		Pattern: regexp.MustCompile("marker-already-here"),
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if out.Reason != ReasonPattern {
		t.Fatalf("Reason = %q, want pattern", out.Reason)
	}
	if out.Match == nil || out.Match.Text != "marker-already-here" {
		t.Fatalf("Match = %+v", out.Match)
	}
}

func TestResolvePatternArrivesDuringWait(t *testing.T) {
	s := newTestSession(t, "cat")

	resultCh := make(chan Outcome, 1)
	errCh := make(chan error, 1)
	go func() {
		out, err := Resolve(s, Request{
			Pattern: regexp.MustCompile("hello-later"),
			Timeout: 3 * time.Second,
		})
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- out
	}()

	time.Sleep(100 * time.Millisecond)
	if err := s.Send("hello-later\n"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case out := <-resultCh:
		if out.Reason != ReasonPattern {
			t.Fatalf("Reason = %q, want pattern", out.Reason)
		}
	case err := <-errCh:
		t.Fatalf("Resolve() error = %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for Resolve to return")
	}
}

func TestResolveTimeoutFiresWithoutMatch(t *testing.T) {
	s := newTestSession(t, "cat")
	start := time.Now()
	out, err := Resolve(s, Request{
		Pattern: regexp.MustCompile("never-appears"),
		Timeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if out.Reason != ReasonTimeout {
		t.Fatalf("Reason = %q, want timeout", out.Reason)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Fatalf("resolved too early: %s", elapsed)
	}
}

func TestResolveIdleFiresBeforeTimeout(t *testing.T) {
	s := newTestSession(t, "cat")
	out, err := Resolve(s, Request{
		Idle:    150 * time.Millisecond,
		Timeout: 3 * time.Second,
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if out.Reason != ReasonIdle {
		t.Fatalf("Reason = %q, want idle", out.Reason)
	}
}

func TestResolveNotWinsOverPatternInPreCheck(t *testing.T) {
	s := newTestSession(t, "cat")
	if err := s.Send("forbidden and wanted\n"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	out, err := Resolve(s, Request{
		Not:     regexp.MustCompile("forbidden"),
		Pattern: regexp.MustCompile("wanted"),
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if out.Reason != ReasonRejected {
		t.Fatalf("Reason = %q, want rejected", out.Reason)
	}
}

func TestResolveExitPreCheckOnDeadSession(t *testing.T) {
	s := newTestSession(t, "true")
	waitForAlive(t, s, false)

	out, err := Resolve(s, Request{Exit: true, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if out.Reason != ReasonExit {
		t.Fatalf("Reason = %q, want exit", out.Reason)
	}
	if out.ExitCode == nil || *out.ExitCode != 0 {
		t.Fatalf("ExitCode = %v, want 0", out.ExitCode)
	}
}

func TestResolveReadyPreCheckOnDeadSession(t *testing.T) {
	s := newTestSession(t, "true")
	waitForAlive(t, s, false)

	out, err := Resolve(s, Request{Ready: true, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if out.Reason != ReasonReady {
		t.Fatalf("Reason = %q, want ready", out.Reason)
	}
}

func TestResolveExitArrivesDuringWait(t *testing.T) {
	s := newTestSession(t, "sleep 0.2")

	out, err := Resolve(s, Request{Exit: true, Timeout: 3 * time.Second})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if out.Reason != ReasonExit {
		t.Fatalf("Reason = %q, want exit", out.Reason)
	}
}
