// Package registry implements the session registry and readiness poller of
// spec.md §4.7: a keyed collection of sessions plus a single background
// tick that detects each session's busy→idle transition and emits a `ready`
// event exactly once per transition.
//
// The map-of-sessions-plus-single-owner-loop shape generalizes h2's daemon
// (internal/session/daemon.go), which keeps one Session per name under a
// mutex; the ready poller's busy/idle bookkeeping is grounded on the same
// foreground-probe reasoning as internal/foreground.
package registry

import (
	"sync"
	"time"

	"umux/internal/session"
	"umux/internal/uerr"
)

// ReadyEvent is emitted on a busy→idle transition for a session.
type ReadyEvent struct {
	SessionID string
}

// ReadySubscriber receives ReadyEvents in no particular cross-session order
// (spec.md §5: "across sessions, no ordering guarantee is made").
type ReadySubscriber func(ReadyEvent)

// pollInterval is the readiness poller's tick cadence (spec.md §4.7).
const pollInterval = 100 * time.Millisecond

// Registry owns every live Session keyed by id, plus the readiness poller.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	busy     map[string]bool // last-observed busy state, per session id

	subsMu sync.Mutex
	subs   []ReadySubscriber

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an empty Registry and starts its readiness poller.
func New() *Registry {
	r := &Registry{
		sessions: make(map[string]*session.Session),
		busy:     make(map[string]bool),
		stopCh:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.pollLoop()
	return r
}

// Spawn creates a new session via opts and registers it.
func Spawn(r *Registry, opts session.Options) (*session.Session, error) {
	s, err := session.New(opts)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s, nil
}

// Get returns the session with the given id, or a NotFound error.
func (r *Registry) Get(id string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, uerr.NotFound("unknown session id " + id)
	}
	return s, nil
}

// GetByName returns the first session whose Name matches exactly. Per
// spec.md §6, name collisions are the caller's problem: this returns
// whichever match is encountered first during the (unordered) map scan.
func (r *Registry) GetByName(name string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, uerr.NotFound("unknown session name " + name)
}

// List returns every registered session.
func (r *Registry) List() []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Destroy disposes the session and removes it from the registry.
func (r *Registry) Destroy(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		delete(r.busy, id)
	}
	r.mu.Unlock()
	if !ok {
		return uerr.NotFound("unknown session id " + id)
	}
	s.Dispose()
	return nil
}

// Shutdown disposes every session and stops the readiness poller.
func (r *Registry) Shutdown() {
	close(r.stopCh)
	r.wg.Wait()

	r.mu.Lock()
	sessions := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*session.Session)
	r.busy = make(map[string]bool)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Dispose()
	}
}

// Subscribe registers fn to receive ReadyEvents.
func (r *Registry) Subscribe(fn ReadySubscriber) (unsubscribe func()) {
	r.subsMu.Lock()
	r.subs = append(r.subs, fn)
	idx := len(r.subs) - 1
	r.subsMu.Unlock()
	return func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		if idx < len(r.subs) {
			r.subs[idx] = nil
		}
	}
}

func (r *Registry) emitReady(sessionID string) {
	r.subsMu.Lock()
	subs := make([]ReadySubscriber, len(r.subs))
	copy(subs, r.subs)
	r.subsMu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(ReadyEvent{SessionID: sessionID})
		}
	}
}

// pollLoop is the single background readiness tick. A session with unknown
// prior state seeds its busy flag from the first tick without emitting
// (spec.md §4.7).
func (r *Registry) pollLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Registry) tick() {
	r.mu.Lock()
	sessions := make(map[string]*session.Session, len(r.sessions))
	for id, s := range r.sessions {
		sessions[id] = s
	}
	r.mu.Unlock()

	for id, s := range sessions {
		busy := isBusy(s)

		r.mu.Lock()
		prev, known := r.busy[id]
		r.busy[id] = busy
		r.mu.Unlock()

		if known && prev && !busy {
			r.emitReady(id)
		}
	}
}

func isBusy(s *session.Session) bool {
	if !s.IsAlive() {
		return false
	}
	fg, _ := s.ForegroundProbe()
	return fg != nil
}
