// Package session implements the PTY-owning core of umux (spec.md §4.5): a
// Session spawns a child program under a pseudo-terminal, multiplexes its
// output into two bounded histories and a pluggable terminal engine, encodes
// typed input into the child's byte stream, and fans out output/screen/exit
// events to subscribers (the wait resolver and hook manager attach here).
//
// PTY ownership, the write-with-timeout pattern, and the
// output-pump/child-wait goroutine split are adapted from h2's
// internal/session/virtualterminal/vt.go (StartPTY, PipeOutput, WritePTY).
package session

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/google/shlex"

	"umux/internal/config"
	"umux/internal/eventlog"
	"umux/internal/foreground"
	"umux/internal/history"
	"umux/internal/ids"
	"umux/internal/keys"
	"umux/internal/queryreply"
	"umux/internal/termengine"
	"umux/internal/uerr"
)

// ptyWriteTimeout bounds how long a write to the child's PTY is allowed to
// block before giving up; a filled kernel PTY buffer (child not reading
// stdin) would otherwise hang the caller forever. Adapted from h2's
// WritePTY/ErrPTYWriteTimeout.
const ptyWriteTimeout = 5 * time.Second

// ErrPTYWriteTimeout is returned when a write to the child's PTY does not
// complete within ptyWriteTimeout.
var ErrPTYWriteTimeout = fmt.Errorf("umux: pty write timed out")

// DefaultCols and DefaultRows are the initial grid size per spec.md §4.5.
const (
	DefaultCols = 80
	DefaultRows = 24
)

// Options configures a new Session.
type Options struct {
	// Command is the program string, split into argv on whitespace with
	// shell-style quoting (shlex). Empty uses cfg.DefaultShell.
	Command string
	Cwd     string
	Env     map[string]string
	Cols    int
	Rows    int
	Name    string

	Config config.Config
}

// Session owns one PTY child process end to end: spawn, output fan-out,
// input encoding, resize, capture, and disposal.
type Session struct {
	ID        string
	Name      string
	Command   string
	Cwd       string
	CreatedAt time.Time

	cfg    config.Config
	logger *log.Logger

	cmd  *exec.Cmd
	ptmx *os.File

	outputHistory *history.History
	inputHistory  *history.History

	engine    *termengine.Manager
	responder *queryreply.Responder
	prober    foreground.Prober

	sink *eventlog.Sink

	stateMu  sync.Mutex
	alive    bool
	exitCode *int
	cols     int
	rows     int

	subsMu    sync.Mutex
	subs      []subscription
	nextSubID uint64
}

// New spawns a child program under a PTY and returns the Session owning it.
func New(opts Options) (*Session, error) {
	cfg := opts.Config
	cols, rows := opts.Cols, opts.Rows
	if cols == 0 {
		cols = DefaultCols
	}
	if rows == 0 {
		rows = DefaultRows
	}

	command := strings.TrimSpace(opts.Command)
	if command == "" {
		command = cfg.DefaultShell
	}
	argv, err := shlex.Split(command)
	if err != nil || len(argv) == 0 {
		return nil, uerr.InvalidInput(fmt.Sprintf("invalid command %q", opts.Command), err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = opts.Cwd
	cmd.Env = mergedEnv(opts.Env)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, fmt.Errorf("umux: start command: %w", err)
	}

	engineMode := engineModeFromConfig(cfg.Engine)
	engine, err := termengine.NewManager(engineMode, termengine.NewMidtermEngine, termengine.NewVTEngine, cols, rows)
	if err != nil {
		ptmx.Close()
		cmd.Process.Kill()
		return nil, fmt.Errorf("umux: create terminal engine: %w", err)
	}

	s := &Session{
		ID:            ids.Session(),
		Name:          opts.Name,
		Command:       command,
		Cwd:           opts.Cwd,
		CreatedAt:     time.Now(),
		cfg:           cfg,
		logger:        log.New(os.Stderr, "umux: ", log.LstdFlags),
		cmd:           cmd,
		ptmx:          ptmx,
		outputHistory: history.New(historyCapacity(cfg), true),
		inputHistory:  history.New(historyCapacity(cfg), true),
		engine:        engine,
		responder:     queryreply.New(),
		prober:        foreground.New(int(ptmx.Fd()), cmd.Process.Pid),
		alive:         true,
		cols:          cols,
		rows:          rows,
	}

	if cfg.LogDir != "" {
		sink, err := eventlog.Open(cfg.LogDir, s.ID, s.CreatedAt)
		if err != nil {
			s.logger.Printf("session %s: open log sink: %v", s.ID, err)
		} else {
			s.sink = sink
			if err := s.sink.Append(eventlog.SpawnRecord(s.CreatedAt, s.ID, s.Name, s.Cwd)); err != nil {
				s.logger.Printf("session %s: write spawn record: %v", s.ID, err)
			}
		}
	}

	go s.pumpOutput()
	go s.waitChild()

	return s, nil
}

func historyCapacity(cfg config.Config) int {
	if cfg.HistoryCapacity > 0 {
		return cfg.HistoryCapacity
	}
	return history.DefaultCapacity
}

func engineModeFromConfig(e config.Engine) termengine.Mode {
	switch e {
	case config.EnginePrimaryStrict:
		return termengine.ModePrimaryStrict
	case config.EngineFallbackOnly:
		return termengine.ModeFallbackOnly
	default:
		return termengine.ModePrimary
	}
}

// mergedEnv overlays extra on top of the parent process's environment,
// adding a 256-color TERM. Adapted from h2's StartPTY env-overlay
// construction.
func mergedEnv(extra map[string]string) []string {
	base := os.Environ()
	env := make([]string, 0, len(base)+len(extra)+1)
	for _, e := range base {
		key := e
		if idx := strings.IndexByte(e, '='); idx >= 0 {
			key = e[:idx]
		}
		if _, overridden := extra[key]; overridden {
			continue
		}
		if key == "TERM" {
			continue
		}
		env = append(env, e)
	}
	env = append(env, "TERM=xterm-256color")
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// pumpOutput is the session's single output-handling goroutine: it reads
// raw PTY bytes, scans them for recognized terminal queries, appends to the
// output history, feeds the engine, and fans out events — all on this one
// goroutine so a given session's output/screen events are strictly ordered.
func (s *Session) pumpOutput() {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			s.handleChunk(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) handleChunk(chunk []byte) {
	s.stateMu.Lock()
	cols, rows := s.cols, s.rows
	s.stateMu.Unlock()

	for _, reply := range s.responder.Scan(chunk, cols, rows) {
		if _, err := s.writePTYRaw(reply.Bytes); err != nil {
			s.logger.Printf("session %s: query reply write: %v", s.ID, err)
			continue
		}
		if s.cfg.TerminalQueryLogging {
			note := fmt.Sprintf("reply to %q", reply.Request)
			if s.cfg.InputLogging {
				s.inputHistory.Append(note + "\n")
				if s.sink != nil {
					if err := s.sink.Append(eventlog.InputQueryResponseRecord(time.Now(), s.ID, note)); err != nil {
						s.logger.Printf("session %s: write query-response record: %v", s.ID, err)
					}
				}
			}
		}
	}

	s.outputHistory.Append(string(chunk))
	if s.sink != nil {
		if err := s.sink.Append(eventlog.OutputRecord(time.Now(), s.ID, string(chunk))); err != nil {
			s.logger.Printf("session %s: write output record: %v", s.ID, err)
		}
	}

	s.engine.Write(chunk, func() {
		s.emit(Event{Type: EventScreen})
	})
	s.emit(Event{Type: EventOutput, Data: chunk})
}

// waitChild blocks for child-process exit, then records the outcome and
// fires the exit event exactly once, after the final output chunk has been
// processed by pumpOutput (cmd.Wait returns only once the PTY side has seen
// EOF).
func (s *Session) waitChild() {
	err := s.cmd.Wait()
	code := exitCodeFromError(err)

	s.stateMu.Lock()
	s.alive = false
	s.exitCode = &code
	s.stateMu.Unlock()

	if s.sink != nil {
		if err := s.sink.Append(eventlog.ExitRecord(time.Now(), s.ID, code)); err != nil {
			s.logger.Printf("session %s: write exit record: %v", s.ID, err)
		}
	}

	s.emit(Event{Type: EventExit, ExitCode: code})

	if s.sink != nil {
		s.sink.Close()
	}
	s.clearSubscribers()
}

func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// IsAlive reports whether the child process has not yet exited.
func (s *Session) IsAlive() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.alive
}

// ExitCode returns the child's exit code and true once it has exited.
func (s *Session) ExitCode() (int, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.exitCode == nil {
		return 0, false
	}
	return *s.exitCode, true
}

// ForegroundProbe returns the session's current foreground process, or nil
// if the shell is at its prompt or the probe failed (spec.md §4.3).
func (s *Session) ForegroundProbe() (*foreground.Process, error) {
	return s.prober.Probe()
}

// OutputHistory returns the session's bounded raw-output history.
func (s *Session) OutputHistory() *history.History { return s.outputHistory }

// InputHistory returns the session's bounded input history.
func (s *Session) InputHistory() *history.History { return s.inputHistory }

// Capture delegates to the terminal engine.
func (s *Session) Capture(opts termengine.CaptureOptions) (termengine.Capture, error) {
	return s.engine.Capture(opts)
}

// Resize updates both the PTY and the terminal engine's grid.
func (s *Session) Resize(cols, rows int) error {
	if !s.IsAlive() {
		return uerr.Lifecycle(fmt.Sprintf("session %s: resize on dead session", s.ID))
	}
	if err := pty.Setsize(s.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		return fmt.Errorf("umux: resize pty: %w", err)
	}
	s.engine.Resize(cols, rows)
	s.stateMu.Lock()
	s.cols, s.rows = cols, rows
	s.stateMu.Unlock()
	return nil
}

// Dispose kills the child if still alive, disposes the engine, closes the
// log sink, and clears subscribers. It is the single teardown path.
func (s *Session) Dispose() {
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.engine.Dispose()
	if s.sink != nil {
		s.sink.Close()
	}
	s.clearSubscribers()
}

// writePTYRaw writes directly to the PTY with a bounded timeout, without
// touching history or the log sink. Used for synthetic query replies, which
// are not part of the caller-visible input stream. Concurrent calls are not
// serialized by a lock.
func (s *Session) writePTYRaw(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := s.ptmx.Write(p)
		ch <- result{n, err}
	}()
	timer := time.NewTimer(ptyWriteTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.n, r.err
	case <-timer.C:
		return 0, ErrPTYWriteTimeout
	}
}
