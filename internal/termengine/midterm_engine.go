package termengine

import (
	"strings"
	"sync"

	"github.com/vito/midterm"
)

// midtermEngine is the primary Engine, grounded on h2's own VT field
// (internal/session/virtualterminal.VT.Vt, a *midterm.Terminal) and its
// rendering helpers in internal/session/client/render.go (RenderLineFrom,
// which walks vt.Format.Regions(row) emitting SGR between regions).
type midtermEngine struct {
	mu   sync.Mutex
	term *midterm.Terminal
	cols int
	rows int
}

// NewMidtermEngine is the Factory for the primary engine.
func NewMidtermEngine(cols, rows int) (Engine, error) {
	return &midtermEngine{
		term: midterm.NewTerminal(rows, cols),
		cols: cols,
		rows: rows,
	}, nil
}

func (e *midtermEngine) Write(data []byte, onFlushed func()) {
	e.mu.Lock()
	e.term.Write(data)
	e.mu.Unlock()
	// midterm applies state synchronously; the flush callback fires inline.
	if onFlushed != nil {
		onFlushed()
	}
}

func (e *midtermEngine) Resize(cols, rows int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.term.Resize(rows, cols)
	e.cols = cols
	e.rows = rows
}

func (e *midtermEngine) Capture(opts CaptureOptions) (Capture, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch opts.Format {
	case FormatText:
		return Capture{
			Content: e.renderTextLocked(),
			Format:  FormatText,
			Cols:    e.cols,
			Rows:    e.rows,
		}, nil
	case FormatANSI:
		return Capture{
			Content: e.renderANSILocked(),
			Format:  FormatANSI,
			Cols:    e.cols,
			Rows:    e.rows,
		}, nil
	default:
		return Capture{}, errUnsupportedFormat(opts.Format)
	}
}

func (e *midtermEngine) Dispose() {
	// midterm.Terminal owns no external resources.
}

// renderTextLocked joins the visible viewport as plain text, trailing spaces
// trimmed per row (spec.md §4.4).
func (e *midtermEngine) renderTextLocked() string {
	var b strings.Builder
	for row := 0; row < len(e.term.Content); row++ {
		line := strings.TrimRight(string(e.term.Content[row]), " ")
		if row > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}

// renderANSILocked re-emits each row with SGR regions, resetting between
// regions the way RenderLineFrom does in h2's client package (midterm's own
// RenderLine does not reset between regions, which bleeds background color
// across region boundaries).
func (e *midtermEngine) renderANSILocked() string {
	var b strings.Builder
	for row := 0; row < len(e.term.Content); row++ {
		if row > 0 {
			b.WriteByte('\n')
		}
		line := e.term.Content[row]
		var pos int
		var lastFormat midterm.Format
		first := true
		for region := range e.term.Format.Regions(row) {
			f := region.F
			if first || f != lastFormat {
				b.WriteString("\033[0m")
				b.WriteString(f.Render())
				lastFormat = f
				first = false
			}
			end := pos + region.Size
			if pos < len(line) {
				contentEnd := end
				if contentEnd > len(line) {
					contentEnd = len(line)
				}
				b.WriteString(string(line[pos:contentEnd]))
			}
			pos = end
		}
		b.WriteString("\033[0m")
	}
	return b.String()
}
