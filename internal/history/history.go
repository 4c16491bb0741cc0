// Package history implements the bounded, line-oriented history buffer
// described in spec.md §4.1: a FIFO of complete lines with a partial-line
// tail, search, and slicing accessors. Two instances back every session (one
// for output, one for input).
package history

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"umux/internal/uerr"
)

// DefaultCapacity is the default FIFO line capacity (spec.md §6).
const DefaultCapacity = 10000

// History is a bounded FIFO of complete lines plus one in-progress partial
// line. All methods are safe for concurrent use.
type History struct {
	mu       sync.Mutex
	capacity int
	lines    []string
	partial  string

	trackTimestamp bool
	lastWrite      time.Time
}

// New creates a History with the given capacity. A capacity <= 0 uses
// DefaultCapacity. trackTimestamp enables last-write timestamp tracking
// (spec.md §4.1 step 4); umux sessions enable it for both their output and
// input histories.
func New(capacity int, trackTimestamp bool) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{
		capacity:       capacity,
		trackTimestamp: trackTimestamp,
	}
}

// Append concatenates the partial tail with data, splits on '\n', pushes all
// but the last fragment as complete lines, and keeps the last fragment
// (possibly empty) as the new partial. Evicts from the front while the line
// count exceeds capacity. Never fails (spec.md §4.1 failure model).
func (h *History) Append(data string) {
	if data == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	combined := h.partial + data
	parts := strings.Split(combined, "\n")
	h.partial = parts[len(parts)-1]
	if len(parts) > 1 {
		h.lines = append(h.lines, parts[:len(parts)-1]...)
	}
	if over := len(h.lines) - h.capacity; over > 0 {
		h.lines = h.lines[over:]
	}
	if h.trackTimestamp {
		h.lastWrite = time.Now()
	}
}

// GetAll joins every complete line plus the partial (if non-empty) with '\n'.
func (h *History) GetAll() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.joinLocked(h.lines, h.partial)
}

// Tail returns the last k elements of (lines ++ [partial if non-empty])
// joined by '\n'.
func (h *History) Tail(k int) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	all := h.lines
	tailPartial := ""
	if h.partial != "" {
		tailPartial = h.partial
	}
	total := len(all)
	if tailPartial != "" {
		total++
	}
	if k <= 0 || total == 0 {
		return ""
	}
	if k >= total {
		return h.joinLocked(all, tailPartial)
	}
	// k < total: figure out how many complete lines plus whether the
	// partial is included.
	if tailPartial != "" {
		k--
		start := len(all) - k
		if start < 0 {
			start = 0
		}
		return h.joinLocked(all[start:], tailPartial)
	}
	start := len(all) - k
	return h.joinLocked(all[start:], "")
}

// Head returns the first k complete lines joined by '\n'.
func (h *History) Head(k int) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if k <= 0 {
		return ""
	}
	if k > len(h.lines) {
		k = len(h.lines)
	}
	return strings.Join(h.lines[:k], "\n")
}

// Slice returns complete lines in [a,b) joined by '\n'.
func (h *History) Slice(a, b int) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if a < 0 {
		a = 0
	}
	if b > len(h.lines) {
		b = len(h.lines)
	}
	if a >= b {
		return ""
	}
	return strings.Join(h.lines[a:b], "\n")
}

// LineCount returns the number of complete lines plus 1 if the partial line
// is non-empty.
func (h *History) LineCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.lines)
	if h.partial != "" {
		n++
	}
	return n
}

// LastWrite returns the timestamp of the most recent Append, or the zero
// time if timestamp tracking is disabled or nothing has been written yet.
func (h *History) LastWrite() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastWrite
}

// Match is a single regex match within a history line (spec.md §6).
type Match struct {
	Line    int
	Column  int
	Text    string
	Before  string
	After   string
}

// Search scans every line (complete lines plus the partial, in order) for
// re. If global is false, at most one match per line is returned (the first
// occurrence); if true, every non-overlapping match per line is returned,
// resetting the scan position at each new line the way a global regex would.
// An invalid pattern is the caller's concern — Search here takes an already
// compiled *regexp.Regexp, so the InvalidInput boundary is the call site
// that compiles the pattern (see CompileSearch).
func (h *History) Search(re *regexp.Regexp, global bool) []Match {
	h.mu.Lock()
	lines := make([]string, len(h.lines), len(h.lines)+1)
	copy(lines, h.lines)
	if h.partial != "" {
		lines = append(lines, h.partial)
	}
	h.mu.Unlock()

	var matches []Match
	for i, line := range lines {
		found := re.FindAllStringIndex(line, -1)
		if len(found) == 0 {
			continue
		}
		if !global {
			found = found[:1]
		}
		for _, loc := range found {
			start, end := loc[0], loc[1]
			matches = append(matches, Match{
				Line:   i,
				Column: start,
				Text:   line[start:end],
				Before: line[:start],
				After:  line[end:],
			})
		}
	}
	return matches
}

func (h *History) joinLocked(lines []string, partial string) string {
	if partial == "" {
		return strings.Join(lines, "\n")
	}
	if len(lines) == 0 {
		return partial
	}
	return strings.Join(lines, "\n") + "\n" + partial
}

// CompileSearch is a convenience wrapper for History.Search callers that
// compiles pattern and reports a uerr.KindInvalidInput error on failure.
func CompileSearch(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, uerr.InvalidInput(fmt.Sprintf("invalid regex %q", pattern), err)
	}
	return re, nil
}
