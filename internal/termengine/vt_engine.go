package termengine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/x/vt"
)

// vtEngine is the fallback Engine. It is adapted from ehrlich-b-wingthing's
// VTerm (internal/egg/vterm.go), which wraps github.com/charmbracelet/x/vt's
// emulator with scrollback capture. umux only needs the live-grid contract
// (Write/Resize/Capture/Dispose), so the scrollback ring from the original is
// dropped — the session's own history buffer already retains raw bytes.
type vtEngine struct {
	mu   sync.Mutex
	emu  *vt.Emulator
	cols int
	rows int
}

// NewVTEngine is the Factory for the fallback engine.
func NewVTEngine(cols, rows int) (Engine, error) {
	return &vtEngine{
		emu:  vt.NewEmulator(cols, rows),
		cols: cols,
		rows: rows,
	}, nil
}

func (e *vtEngine) Write(data []byte, onFlushed func()) {
	e.mu.Lock()
	e.emu.Write(data)
	e.mu.Unlock()
	if onFlushed != nil {
		onFlushed()
	}
}

func (e *vtEngine) Resize(cols, rows int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emu.Resize(cols, rows)
	e.cols = cols
	e.rows = rows
}

func (e *vtEngine) Capture(opts CaptureOptions) (Capture, error) {
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
		pos := e.emu.CursorPosition()
		content := e.emu.Render() + fmt.Sprintf("\x1b[%d;%dH", pos.Y+1, pos.X+1)
		return Capture{
			Content: content,
			Format:  FormatANSI,
			Cols:    e.cols,
			Rows:    e.rows,
		}, nil
	default:
		return Capture{}, errUnsupportedFormat(opts.Format)
	}
}

func (e *vtEngine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emu.Close()
}

// renderTextLocked renders the emulator's ANSI viewport and strips SGR/OSC
// sequences down to plain visible text, trailing spaces trimmed per row.
func (e *vtEngine) renderTextLocked() string {
	rendered := e.emu.Render()
	lines := splitVisibleLines(rendered)
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.TrimRight(line, " "))
	}
	return b.String()
}

// splitVisibleLines strips ANSI escape sequences from a rendered frame and
// splits it into rows. uv.Line values already carry their own Render(); here
// we operate on the flattened frame the emulator returns for Capture(ansi),
// mirroring the plain-text extraction VTerm.Snapshot performs before pushing
// scrollback into the outer terminal.
func splitVisibleLines(s string) []string {
	var lines []string
	var cur strings.Builder
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\n':
			lines = append(lines, cur.String())
			cur.Reset()
			i++
		case c == 0x1b && i+1 < len(s) && s[i+1] == '[':
			j := i + 2
			for j < len(s) && !(s[j] >= 0x40 && s[j] <= 0x7e) {
				j++
			}
			if j < len(s) {
				j++
			}
			i = j
		case c == 0x1b && i+1 < len(s) && s[i+1] == ']':
			j := i + 2
			for j < len(s) && s[j] != 0x07 && s[j] != 0x1b {
				j++
			}
			i = j + 1
		default:
			cur.WriteByte(c)
			i++
		}
	}
	lines = append(lines, cur.String())
	return lines
}
