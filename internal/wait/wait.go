// Package wait implements the wait resolver of spec.md §4.6: given a session
// and a wait request, it resolves to one of pattern, screen, idle, exit,
// ready, timeout, or rejected, carrying a bounded output snapshot, an
// optional match, an optional exit code, and the elapsed time.
//
// The single-resolution-guard-plus-timers shape is adapted from h2's
// AgentMonitor (internal/session/agent/monitor/monitor.go), which closes and
// replaces a channel on state change so waiters can be woken exactly once;
// here a mutex-guarded "resolved" flag plays the same role across several
// competing goroutines (event callbacks, the idle timer, the timeout timer,
// the ready poller).
package wait

import (
	"regexp"
	"sync"
	"time"

	"umux/internal/session"
	"umux/internal/termengine"
	"umux/internal/uerr"
)

// Reason is the resolved condition of a wait.
type Reason string

const (
	ReasonPattern  Reason = "pattern"
	ReasonScreen   Reason = "screen"
	ReasonIdle     Reason = "idle"
	ReasonExit     Reason = "exit"
	ReasonReady    Reason = "ready"
	ReasonTimeout  Reason = "timeout"
	ReasonRejected Reason = "rejected"
)

// Match carries the matched text and any capture groups.
type Match struct {
	Text     string
	Captures []string
}

// Outcome is the result of a resolved wait.
type Outcome struct {
	Reason   Reason
	Match    *Match
	ExitCode *int
	Output   string
	WaitedMs int64
}

// rollingTailSize bounds the scan buffer used to match `pattern`/`not` across
// chunk boundaries without rescanning full session history on every chunk
// (spec.md §4.6: "a rolling scan tail of 8 KiB").
const rollingTailSize = 8 * 1024

// readyPollInterval is the foreground-probe poll cadence used when `ready`
// is requested (spec.md §4.6).
const readyPollInterval = 100 * time.Millisecond

// Request is a wait condition. At least one success condition (Pattern,
// Screen, Idle, Ready, or Exit) must be set; when several are set, the first
// to fire wins. Not is an optional veto, checked against the existing
// history before every pre-check and against each output chunk before
// Pattern; screen, idle, exit and ready resolutions are not vetoed by it.
// Timeout is mandatory.
type Request struct {
	Pattern *regexp.Regexp
	Not     *regexp.Regexp
	Screen  *regexp.Regexp
	Idle    time.Duration
	Ready   bool
	Exit    bool
	Timeout time.Duration
}

func (r Request) hasCondition() bool {
	return r.Pattern != nil || r.Screen != nil || r.Idle > 0 || r.Ready || r.Exit
}

func (r Request) validate() error {
	if !r.hasCondition() {
		return uerr.InvalidInput("wait request has no condition set", nil)
	}
	if r.Timeout <= 0 {
		return uerr.InvalidInput("wait request has no timeout", nil)
	}
	return nil
}

// Resolve attaches to sess and blocks until req resolves or times out. It
// never blocks indefinitely: req.Timeout always bounds the call.
func Resolve(sess *session.Session, req Request) (Outcome, error) {
	if err := req.validate(); err != nil {
		return Outcome{}, err
	}

	start := time.Now()

	if outcome, ok := preCheck(sess, req, start); ok {
		return outcome, nil
	}

	r := newResolution(sess, start)
	defer r.cleanup()

	idleTimer := newStoppedTimer()
	if req.Idle > 0 {
		idleTimer.Reset(req.Idle)
		r.mu.Lock()
		r.idleTimer = idleTimer
		r.mu.Unlock()
	}
	timeoutTimer := time.NewTimer(req.Timeout)

	var readyTicker *time.Ticker
	if req.Ready {
		readyTicker = time.NewTicker(readyPollInterval)
	}

	r.unsubscribe = sess.Subscribe(func(ev session.Event) {
		r.handleEvent(ev, req)
	})

	for {
		var readyTickCh <-chan time.Time
		if readyTicker != nil {
			readyTickCh = readyTicker.C
		}
		select {
		case <-r.doneCh:
			idleTimer.Stop()
			timeoutTimer.Stop()
			if readyTicker != nil {
				readyTicker.Stop()
			}
			return r.outcome(), nil
		case <-idleTimer.C:
			r.resolve(ReasonIdle, nil, nil)
		case <-timeoutTimer.C:
			r.resolve(ReasonTimeout, nil, nil)
		case <-readyTickCh:
			fg, _ := sess.ForegroundProbe()
			if fg == nil || !sess.IsAlive() {
				r.resolve(ReasonReady, nil, nil)
			}
		}
	}
}

// preCheck evaluates existing state in the fixed order spec.md §4.6
// mandates, before any subscription is installed.
func preCheck(sess *session.Session, req Request, start time.Time) (Outcome, bool) {
	full := sess.OutputHistory().GetAll()

	if req.Not != nil && req.Not.MatchString(full) {
		return outcomeFrom(sess, start, ReasonRejected, nil, nil), true
	}
	if req.Pattern != nil {
		if m := matchOf(req.Pattern, full); m != nil {
			return outcomeFrom(sess, start, ReasonPattern, m, nil), true
		}
	}
	if req.Screen != nil {
		if cap, err := sess.Capture(termengine.CaptureOptions{Format: termengine.FormatText}); err == nil {
			if m := matchOf(req.Screen, cap.Content); m != nil {
				return outcomeFrom(sess, start, ReasonScreen, m, nil), true
			}
		}
	}
	if req.Ready {
		fg, _ := sess.ForegroundProbe()
		if !sess.IsAlive() || fg == nil {
			return outcomeFrom(sess, start, ReasonReady, nil, nil), true
		}
	}
	if req.Exit {
		if !sess.IsAlive() {
			code, _ := sess.ExitCode()
			c := code
			return outcomeFrom(sess, start, ReasonExit, nil, &c), true
		}
	}
	return Outcome{}, false
}

func matchOf(re *regexp.Regexp, s string) *Match {
	loc := re.FindStringSubmatchIndex(s)
	if loc == nil {
		return nil
	}
	groups := re.FindStringSubmatch(s)
	var captures []string
	if len(groups) > 1 {
		captures = groups[1:]
	}
	return &Match{Text: groups[0], Captures: captures}
}

func outcomeFrom(sess *session.Session, start time.Time, reason Reason, m *Match, exitCode *int) Outcome {
	return Outcome{
		Reason:   reason,
		Match:    m,
		ExitCode: exitCode,
		Output:   sess.OutputHistory().Tail(boundedTailLines),
		WaitedMs: time.Since(start).Milliseconds(),
	}
}

// boundedTailLines caps the output snapshot attached to an outcome.
const boundedTailLines = 200

// resolution guards single-resolution across the event subscriber, the idle
// timer, the timeout timer, and the ready poller.
type resolution struct {
	sess  *session.Session
	start time.Time

	mu          sync.Mutex
	resolved    bool
	reason      Reason
	match       *Match
	exitCode    *int
	tail        []byte
	idleTimer   *time.Timer
	unsubscribe func()

	doneCh chan struct{}
}

func newResolution(sess *session.Session, start time.Time) *resolution {
	return &resolution{sess: sess, start: start, doneCh: make(chan struct{})}
}

func (r *resolution) resolve(reason Reason, m *Match, exitCode *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return
	}
	r.resolved = true
	r.reason = reason
	r.match = m
	r.exitCode = exitCode
	close(r.doneCh)
}

func (r *resolution) outcome() Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Outcome{
		Reason:   r.reason,
		Match:    r.match,
		ExitCode: r.exitCode,
		Output:   r.sess.OutputHistory().Tail(boundedTailLines),
		WaitedMs: time.Since(r.start).Milliseconds(),
	}
}

func (r *resolution) cleanup() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
}

// handleEvent evaluates one session.Event per spec.md §4.6 step 3.
func (r *resolution) handleEvent(ev session.Event, req Request) {
	switch ev.Type {
	case session.EventOutput:
		r.mu.Lock()
		r.tail = appendBounded(r.tail, ev.Data, rollingTailSize)
		tail := string(r.tail)
		r.mu.Unlock()

		if req.Not != nil && req.Not.MatchString(tail) {
			r.resolve(ReasonRejected, nil, nil)
			return
		}
		if req.Pattern != nil {
			if m := matchOf(req.Pattern, tail); m != nil {
				r.resolve(ReasonPattern, m, nil)
				return
			}
		}
		if req.Idle > 0 {
			r.resetIdleAndRearm(req.Idle)
		}

	case session.EventScreen:
		if req.Screen == nil {
			return
		}
		cap, err := r.sess.Capture(termengine.CaptureOptions{Format: termengine.FormatText})
		if err != nil {
			return
		}
		if m := matchOf(req.Screen, cap.Content); m != nil {
			r.resolve(ReasonScreen, m, nil)
		}

	case session.EventExit:
		if req.Exit {
			code := ev.ExitCode
			r.resolve(ReasonExit, nil, &code)
			return
		}
		if req.Ready {
			r.resolve(ReasonReady, nil, nil)
		}
	}
}

func (r *resolution) resetIdleAndRearm(d time.Duration) {
	r.mu.Lock()
	t := r.idleTimer
	r.mu.Unlock()
	if t == nil {
		return
	}
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func appendBounded(tail []byte, chunk []byte, max int) []byte {
	tail = append(tail, chunk...)
	if over := len(tail) - max; over > 0 {
		tail = tail[over:]
	}
	return tail
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return t
}
