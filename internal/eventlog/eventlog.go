// Package eventlog implements the optional per-session JSONL sink described
// in spec.md §6: one append-only file per session, one JSON object per line,
// covering spawn, output, input, and exit records.
//
// Append/Read/file-naming style is adapted from h2's
// internal/session/agent/shared/eventstore package, generalized from its
// fixed AgentEvent union to umux's four record shapes. Unlike eventstore,
// the sink advisory-locks its file with github.com/gofrs/flock, since
// several umux components (session I/O path and a future external tailer)
// may share a log directory.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Record is the JSON shape of one JSONL line. Exactly one of the
// event-specific field groups is populated, matching spec.md §6:
//   - event="spawn": Name, Cwd
//   - stream="output": Data
//   - stream="input": Kind, Data/Key/Keys/Note (whichever the Kind implies)
//   - event="exit": ExitCode
type Record struct {
	Ts        time.Time `json:"ts"`
	Event     string    `json:"event,omitempty"`
	SessionID string    `json:"sessionId"`
	Stream    string    `json:"stream,omitempty"`

	Name string `json:"name,omitempty"`
	Cwd  string `json:"cwd,omitempty"`

	Kind string   `json:"kind,omitempty"`
	Data string   `json:"data,omitempty"`
	Key  string   `json:"key,omitempty"`
	Keys []string `json:"keys,omitempty"`
	Note string   `json:"note,omitempty"`

	ExitCode *int `json:"exitCode,omitempty"`
}

// SpawnRecord reports session creation.
func SpawnRecord(ts time.Time, sessionID, name, cwd string) Record {
	return Record{Ts: ts, Event: "spawn", SessionID: sessionID, Name: name, Cwd: cwd}
}

// OutputRecord reports a chunk of raw PTY output.
func OutputRecord(ts time.Time, sessionID, data string) Record {
	return Record{Ts: ts, SessionID: sessionID, Stream: "output", Data: data}
}

// InputTextRecord reports a Send call.
func InputTextRecord(ts time.Time, sessionID, text string) Record {
	return Record{Ts: ts, SessionID: sessionID, Stream: "input", Kind: "text", Data: text}
}

// InputKeyRecord reports a single sendKey call.
func InputKeyRecord(ts time.Time, sessionID, key string) Record {
	return Record{Ts: ts, SessionID: sessionID, Stream: "input", Kind: "key", Key: key}
}

// InputKeysRecord reports a sendKeys call.
func InputKeysRecord(ts time.Time, sessionID string, keys []string) Record {
	return Record{Ts: ts, SessionID: sessionID, Stream: "input", Kind: "keys", Keys: keys}
}

// InputQueryResponseRecord reports a synthetic terminal-query reply written
// to the child's input, gated behind the terminal-query logging config knob.
func InputQueryResponseRecord(ts time.Time, sessionID, note string) Record {
	return Record{Ts: ts, SessionID: sessionID, Stream: "input", Kind: "terminal_query_response", Note: note}
}

// ExitRecord reports child-process exit.
func ExitRecord(ts time.Time, sessionID string, exitCode int) Record {
	return Record{Ts: ts, Event: "exit", SessionID: sessionID, ExitCode: &exitCode}
}

// Sink is an append-only JSONL file for one session's events, advisory
// locked so other processes inspecting the log directory don't read a
// partially written line.
type Sink struct {
	file *os.File
	lock *flock.Flock
}

// FileName returns the spec.md §6 file name for a session's log, rooted at
// the start-of-day the session was opened.
func FileName(sessionID string, ts time.Time) string {
	return fmt.Sprintf("%s_%s.log.jsonl", ts.Format("2006-01-02"), sessionID)
}

// Open creates (or appends to) the JSONL file for sessionID under dir, and
// acquires an advisory lock on it.
func Open(dir, sessionID string, ts time.Time) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create eventlog dir: %w", err)
	}
	path := filepath.Join(dir, FileName(sessionID, ts))

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock eventlog: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("eventlog %s is locked by another process", path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("open eventlog file: %w", err)
	}
	return &Sink{file: f, lock: lock}, nil
}

// Append writes rec as one JSON line. Per spec.md §7 a write failure is
// transient and swallowed by the caller; Append itself still reports the
// error so the caller can decide whether to log it.
func (s *Sink) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal eventlog record: %w", err)
	}
	data = append(data, '\n')
	_, err = s.file.Write(data)
	return err
}

// Read reads every record currently in the file.
func (s *Sink) Read() ([]Record, error) {
	f, err := os.Open(s.file.Name())
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readRecords(f)
}

// Close releases the advisory lock and closes the file.
func (s *Sink) Close() error {
	lockErr := s.lock.Unlock()
	closeErr := s.file.Close()
	if closeErr != nil {
		return closeErr
	}
	return lockErr
}

func readRecords(r io.Reader) ([]Record, error) {
	var out []Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue // skip malformed lines, mirroring the teacher's tolerance
		}
		out = append(out, rec)
	}
	return out, scanner.Err()
}
