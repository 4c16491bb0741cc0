package hooks

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"
)

func waitForFile(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(path); err == nil {
			return string(data)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("file %s was not written within deadline", path)
	return ""
}

func TestAddRequiresSessionAndCommand(t *testing.T) {
	m := New()
	if _, err := m.Add(Hook{Command: "true"}); err == nil {
		t.Fatalf("expected an error for a hook with no session id")
	}
	if _, err := m.Add(Hook{SessionID: "sess-aaaaaaaa"}); err == nil {
		t.Fatalf("expected an error for a hook with no command")
	}
}

func TestAddAssignsIDAndList(t *testing.T) {
	m := New()
	id, err := m.Add(Hook{SessionID: "sess-aaaaaaaa", Command: "true"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if id == "" {
		t.Fatalf("expected a non-empty hook id")
	}
	if len(m.List()) != 1 {
		t.Fatalf("List() length = %d, want 1", len(m.List()))
	}
}

func TestHandleOutputFiresOnMatchWithEnv(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "out.txt")

	m := New()
	script := "sh -c 'printf \"%s %s %s %s\" \"$UMUX_SESSION_ID\" \"$UMUX_EVENT\" \"$UMUX_MATCH\" \"$UMUX_HOOK_ID\" > " + outFile + "'"
	id, err := m.Add(Hook{
		SessionID: "sess-aaaaaaaa",
		Command:   script,
		OnMatch:   regexp.MustCompile("ready>"),
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	m.HandleOutput("sess-aaaaaaaa", []byte("prompt ready> \n"))

	got := waitForFile(t, outFile)
	if !contains(got, "sess-aaaaaaaa") || !contains(got, "match") || !contains(got, "ready>") || !contains(got, id) {
		t.Fatalf("hook env not propagated, got %q", got)
	}
}

func TestHandleOutputIgnoresOtherSessions(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "out.txt")

	m := New()
	_, err := m.Add(Hook{
		SessionID: "sess-aaaaaaaa",
		Command:   "sh -c 'echo fired > " + outFile + "'",
		OnMatch:   regexp.MustCompile("x"),
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	m.HandleOutput("sess-bbbbbbbb", []byte("x"))

	time.Sleep(100 * time.Millisecond)
	if _, err := os.Stat(outFile); err == nil {
		t.Fatalf("hook fired for the wrong session")
	}
}

func TestHandleOutputRemovesOnceHook(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "out.txt")

	m := New()
	id, err := m.Add(Hook{
		SessionID: "sess-aaaaaaaa",
		Command:   "sh -c 'echo fired >> " + outFile + "'",
		OnMatch:   regexp.MustCompile("trigger"),
		Once:      true,
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	m.HandleOutput("sess-aaaaaaaa", []byte("trigger"))
	waitForFile(t, outFile)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		found := false
		for _, h := range m.List() {
			if h.ID == id {
				found = true
			}
		}
		if !found {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("once hook was not removed after firing")
}

func TestHandleReadyAndExitFireCorrespondingHooks(t *testing.T) {
	dir := t.TempDir()
	readyFile := filepath.Join(dir, "ready.txt")
	exitFile := filepath.Join(dir, "exit.txt")

	m := New()
	if _, err := m.Add(Hook{
		SessionID: "sess-aaaaaaaa",
		Command:   "sh -c 'echo r >> " + readyFile + "'",
		OnReady:   true,
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := m.Add(Hook{
		SessionID: "sess-aaaaaaaa",
		Command:   "sh -c 'echo e >> " + exitFile + "'",
		OnExit:    true,
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	m.HandleReady("sess-aaaaaaaa")
	m.HandleExit("sess-aaaaaaaa")

	waitForFile(t, readyFile)
	waitForFile(t, exitFile)
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (needle == "" || indexOf(haystack, needle) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
