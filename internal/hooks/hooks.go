// Package hooks implements the hook manager of spec.md §4.7: an unordered
// set of hooks keyed by id, each firing a shell command when its session
// emits a matching output pattern, becomes ready, or exits. Hook command
// execution is fire-and-forget; failures are logged and never propagate
// back to the session (spec.md §7, "Transient (swallowed)").
//
// The "spawn an independent OS process, log failures, never block the
// caller" shape is adapted from h2's bridge/exec.go hook-spawning pattern,
// itself using github.com/google/shlex to split the configured command.
package hooks

import (
	"log"
	"os"
	"os/exec"
	"regexp"
	"sync"

	"github.com/google/shlex"

	"umux/internal/ids"
	"umux/internal/registry"
	"umux/internal/session"
	"umux/internal/uerr"
)

// Hook is one registered event-triggered command.
type Hook struct {
	ID        string
	SessionID string
	Command   string
	OnMatch   *regexp.Regexp
	OnReady   bool
	OnExit    bool
	Once      bool
}

// Manager owns the hook set and dispatches events to matching hooks.
type Manager struct {
	mu     sync.Mutex
	hooks  map[string]Hook
	logger *log.Logger
}

// New creates an empty hook Manager.
func New() *Manager {
	return &Manager{
		hooks:  make(map[string]Hook),
		logger: log.New(os.Stderr, "umux: ", log.LstdFlags),
	}
}

// Add registers a hook, assigning it an id if h.ID is empty, and returns
// the final id.
func (m *Manager) Add(h Hook) (string, error) {
	if h.SessionID == "" {
		return "", uerr.InvalidInput("hook requires a session id", nil)
	}
	if h.Command == "" {
		return "", uerr.InvalidInput("hook requires a command", nil)
	}
	if h.ID == "" {
		h.ID = ids.Hook()
	}
	m.mu.Lock()
	m.hooks[h.ID] = h
	m.mu.Unlock()
	return h.ID, nil
}

// Remove deletes the hook with the given id, if any.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.hooks, id)
	m.mu.Unlock()
}

// List returns every registered hook.
func (m *Manager) List() []Hook {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Hook, 0, len(m.hooks))
	for _, h := range m.hooks {
		out = append(out, h)
	}
	return out
}

// eventKind is the UMUX_EVENT value spec.md §6 mandates per trigger.
type eventKind string

const (
	eventMatch eventKind = "match"
	eventReady eventKind = "ready"
	eventExit  eventKind = "exit"
)

// HandleOutput tests every onMatch hook for sessionID against data, spawning
// matching hooks and removing any configured with Once.
func (m *Manager) HandleOutput(sessionID string, data []byte) {
	for _, h := range m.matchingHooks(sessionID, func(h Hook) bool { return h.OnMatch != nil }) {
		loc := h.OnMatch.FindIndex(data)
		if loc == nil {
			continue
		}
		matched := string(data[loc[0]:loc[1]])
		m.fire(h, eventMatch, matched)
		if h.Once {
			m.Remove(h.ID)
		}
	}
}

// HandleReady spawns every onReady hook for sessionID.
func (m *Manager) HandleReady(sessionID string) {
	for _, h := range m.matchingHooks(sessionID, func(h Hook) bool { return h.OnReady }) {
		m.fire(h, eventReady, "")
		if h.Once {
			m.Remove(h.ID)
		}
	}
}

// HandleExit spawns every onExit hook for sessionID.
func (m *Manager) HandleExit(sessionID string) {
	for _, h := range m.matchingHooks(sessionID, func(h Hook) bool { return h.OnExit }) {
		m.fire(h, eventExit, "")
		if h.Once {
			m.Remove(h.ID)
		}
	}
}

func (m *Manager) matchingHooks(sessionID string, pred func(Hook) bool) []Hook {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Hook
	for _, h := range m.hooks {
		if h.SessionID == sessionID && pred(h) {
			out = append(out, h)
		}
	}
	return out
}

// fire spawns the hook's command as an independent process with the
// spec.md §6 env overlay, logging and swallowing any failure.
func (m *Manager) fire(h Hook, event eventKind, matched string) {
	argv, err := shlex.Split(h.Command)
	if err != nil || len(argv) == 0 {
		m.logger.Printf("hook %s: invalid command %q: %v", h.ID, h.Command, err)
		return
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(),
		"UMUX_SESSION_ID="+h.SessionID,
		"UMUX_EVENT="+string(event),
		"UMUX_MATCH="+matched,
		"UMUX_HOOK_ID="+h.ID,
	)
	if err := cmd.Start(); err != nil {
		m.logger.Printf("hook %s: start command: %v", h.ID, err)
		return
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			m.logger.Printf("hook %s: command exited with error: %v", h.ID, err)
		}
	}()
}

// Watch subscribes to sess's output and exit events and dispatches them to
// matching hooks. Returns a function that detaches the subscription.
func (m *Manager) Watch(sess *session.Session) (unsubscribe func()) {
	return sess.Subscribe(func(ev session.Event) {
		switch ev.Type {
		case session.EventOutput:
			m.HandleOutput(sess.ID, ev.Data)
		case session.EventExit:
			m.HandleExit(sess.ID)
		}
	})
}

// WatchRegistry subscribes to reg's readiness events and dispatches them to
// matching onReady hooks. Returns a function that detaches the subscription.
func (m *Manager) WatchRegistry(reg *registry.Registry) (unsubscribe func()) {
	return reg.Subscribe(func(ev registry.ReadyEvent) {
		m.HandleReady(ev.SessionID)
	})
}
