// Package keys implements the pure key encoder of spec.md §4.2: a typed key
// input (literal text, named key, or a modified key) maps deterministically
// to the byte sequence xterm-family terminals expect.
package keys

import (
	"fmt"
	"strings"
)

// Name identifies a named, non-printing key.
type Name string

const (
	Enter     Name = "Enter"
	Tab       Name = "Tab"
	Escape    Name = "Escape"
	Backspace Name = "Backspace"
	Delete    Name = "Delete"
	Space     Name = "Space"
	Up        Name = "Up"
	Down      Name = "Down"
	Right     Name = "Right"
	Left      Name = "Left"
	Home      Name = "Home"
	End       Name = "End"
	PageUp    Name = "PageUp"
	PageDown  Name = "PageDown"
	Insert    Name = "Insert"
	F1        Name = "F1"
	F2        Name = "F2"
	F3        Name = "F3"
	F4        Name = "F4"
	F5        Name = "F5"
	F6        Name = "F6"
	F7        Name = "F7"
	F8        Name = "F8"
	F9        Name = "F9"
	F10       Name = "F10"
	F11       Name = "F11"
	F12       Name = "F12"
)

// baseSequences is the fixed, unmodified encoding table from spec.md §4.2.
var baseSequences = map[Name]string{
	Enter:     "\r",
	Tab:       "\t",
	Escape:    "\x1b",
	Backspace: "\x7f",
	Delete:    "\x1b[3~",
	Space:     " ",
	Up:        "\x1b[A",
	Down:      "\x1b[B",
	Right:     "\x1b[C",
	Left:      "\x1b[D",
	Home:      "\x1b[H",
	End:       "\x1b[F",
	PageUp:    "\x1b[5~",
	PageDown:  "\x1b[6~",
	Insert:    "\x1b[2~",
	F1:        "\x1bOP",
	F2:        "\x1bOQ",
	F3:        "\x1bOR",
	F4:        "\x1bOS",
	F5:        "\x1b[15~",
	F6:        "\x1b[17~",
	F7:        "\x1b[18~",
	F8:        "\x1b[19~",
	F9:        "\x1b[20~",
	F10:       "\x1b[21~",
	F11:       "\x1b[23~",
	F12:       "\x1b[24~",
}

// arrowLetters maps the arrow/Home/End names to their CSI final letter, used
// for the "\x1b[1;{mod}{letter}" modified form.
var arrowLetters = map[Name]byte{
	Up:    'A',
	Down:  'B',
	Right: 'C',
	Left:  'D',
	Home:  'H',
	End:   'F',
}

// Input is the tagged union of key inputs: literal text, a named key, or a
// modified key (key + ctrl/alt/shift/meta). Exactly one of Text or Key(Name)
// is meaningful at a time; construct Inputs via the helper functions below
// rather than the zero value.
type Input struct {
	text string
	name Name // empty when Text input; single-character names use Char
	char rune
	isChar bool

	ctrl, alt, shift, meta bool
	modified               bool
}

// Text constructs a literal-text input, emitted verbatim.
func Text(s string) Input { return Input{text: s} }

// Named constructs an unmodified named-key input.
func Named(n Name) Input { return Input{name: n} }

// Char constructs an unmodified single-character input.
func Char(r rune) Input { return Input{char: r, isChar: true} }

// Modified constructs a modified key input. key may be a Name or a single
// character passed via Char/Named; this helper takes a Name for named keys.
func Modified(n Name, ctrl, alt, shift, meta bool) Input {
	return Input{name: n, modified: true, ctrl: ctrl, alt: alt, shift: shift, meta: meta}
}

// ModifiedChar constructs a modified single-character input.
func ModifiedChar(r rune, ctrl, alt, shift, meta bool) Input {
	return Input{char: r, isChar: true, modified: true, ctrl: ctrl, alt: alt, shift: shift, meta: meta}
}

// Token renders a human-readable input-history token for a key, e.g.
// "<Ctrl+Alt+Shift+Enter>" or "<Ctrl+c>" (spec.md §4.5). Modifier order is
// fixed: Ctrl, Alt, Shift, Meta.
func (in Input) Token() string {
	if in.name == "" && !in.isChar {
		return in.text
	}
	var label string
	if in.isChar {
		label = string(in.char)
	} else {
		label = string(in.name)
	}
	var mods []string
	if in.ctrl {
		mods = append(mods, "Ctrl")
	}
	if in.alt {
		mods = append(mods, "Alt")
	}
	if in.shift {
		mods = append(mods, "Shift")
	}
	if in.meta {
		mods = append(mods, "Meta")
	}
	if len(mods) == 0 {
		return "<" + label + ">"
	}
	return "<" + strings.Join(mods, "+") + "+" + label + ">"
}

// modParam computes the CSI modifier parameter: 1 + shift + 2*alt + 4*ctrl + 8*meta.
func modParam(shift, alt, ctrl, meta bool) int {
	m := 1
	if shift {
		m += 1
	}
	if alt {
		m += 2
	}
	if ctrl {
		m += 4
	}
	if meta {
		m += 8
	}
	return m
}

// Encode renders one key input to its byte sequence. It returns an error for
// an unknown/unsupported combination (spec.md §4.2: "fail before any byte is
// written").
func Encode(in Input) (string, error) {
	// Plain literal text.
	if in.name == "" && !in.isChar {
		return in.text, nil
	}

	// Unmodified named key.
	if !in.modified && in.name != "" {
		seq, ok := baseSequences[in.name]
		if !ok {
			return "", fmt.Errorf("unknown key name %q", in.name)
		}
		return seq, nil
	}

	// Unmodified character.
	if !in.modified && in.isChar {
		return string(in.char), nil
	}

	ctrl, alt, shift, meta := in.ctrl, in.alt, in.shift, in.meta

	// Character + Ctrl, no Alt, no Meta: fold to control code. Shift is
	// absorbed (Ctrl+Shift+x == Ctrl+x).
	if in.isChar && ctrl && !alt && !meta {
		c := in.char
		if c >= 'A' && c <= 'Z' {
			c = c - 'A' + 'a'
		}
		if c >= 'a' && c <= 'z' {
			return string(rune(c - 0x60)), nil
		}
		return "", fmt.Errorf("ctrl+%q is not encodable", in.char)
	}

	// Named arrow/Home/End + any modifier.
	if in.name != "" {
		if letter, ok := arrowLetters[in.name]; ok {
			if !ctrl && !alt && !shift && !meta {
				return baseSequences[in.name], nil
			}
			return fmt.Sprintf("\x1b[1;%d%c", modParam(shift, alt, ctrl, meta), letter), nil
		}

		// Tab + modifiers.
		if in.name == Tab {
			if shift && !ctrl && !alt && !meta {
				return "\x1b[Z", nil
			}
			if !ctrl && !alt && !shift && !meta {
				return "\t", nil
			}
			return fmt.Sprintf("\x1b[1;%dZ", modParam(shift, alt, ctrl, meta)), nil
		}

		// Named key + Alt only: ESC prefix + base sequence.
		if alt && !ctrl && !meta {
			seq, ok := baseSequences[in.name]
			if !ok {
				return "", fmt.Errorf("unknown key name %q", in.name)
			}
			return "\x1b" + seq, nil
		}
	}

	// Character + Alt, no Ctrl, no Meta: ESC prefix + character (case preserved).
	if in.isChar && alt && !ctrl && !meta {
		return "\x1b" + string(in.char), nil
	}

	return "", fmt.Errorf("unsupported key combination: %s", in.Token())
}

// EncodeAll concatenates the individual encodings of a key list with no
// separator (spec.md §4.2 sendKeys). The first encoding error aborts the
// whole call before any byte is emitted, so callers should encode fully
// before writing anything to the PTY.
func EncodeAll(inputs []Input) (string, error) {
	var b strings.Builder
	for _, in := range inputs {
		seq, err := Encode(in)
		if err != nil {
			return "", err
		}
		b.WriteString(seq)
	}
	return b.String(), nil
}
