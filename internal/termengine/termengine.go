// Package termengine defines the TerminalEngine contract of spec.md §4.4 and
// two implementations: a primary engine backed by github.com/vito/midterm
// (the VT model h2, our teacher, embeds directly in its session type) and a
// fallback engine backed by github.com/charmbracelet/x/vt (the VT model
// ehrlich-b-wingthing embeds in internal/egg.VTerm). A Manager composes the
// two per spec.md's primary/fallback redesign note: on a primary panic, it
// swaps to the fallback and replays a bounded sliding window of recent bytes.
package termengine

import "fmt"

// Format selects the capture representation.
type Format int

const (
	// FormatText is the plain visible viewport, trailing spaces trimmed
	// per row.
	FormatText Format = iota
	// FormatANSI carries SGR and cursor-positioning sequences sufficient
	// for a faithful redisplay.
	FormatANSI
)

// Capture is a snapshot of the current visible terminal grid.
type Capture struct {
	Content string
	Format  Format
	Cols    int
	Rows    int
}

// CaptureOptions configures a capture request.
type CaptureOptions struct {
	Format Format
}

// Engine is the narrow contract a session holds exactly one instance of
// (spec.md §4.4). Implementations must never panic across this boundary in
// normal operation; Manager treats a panic from Write as the trigger to swap
// to the fallback.
type Engine interface {
	// Write feeds raw PTY output into the model. onFlushed, if non-nil,
	// fires exactly once after the state reflects these bytes — engines
	// that apply state synchronously may call it inline.
	Write(data []byte, onFlushed func())
	Resize(cols, rows int)
	Capture(opts CaptureOptions) (Capture, error)
	Dispose()
}

// Factory constructs a fresh Engine at the given grid size. Both the primary
// and the fallback implementations satisfy this signature so Manager can
// re-instantiate either on (re)start.
type Factory func(cols, rows int) (Engine, error)

// errUnsupportedFormat is returned by an engine asked to render a format it
// does not implement.
func errUnsupportedFormat(f Format) error {
	return fmt.Errorf("termengine: unsupported capture format %d", f)
}
