// Package queryreply implements the terminal-query auto-responder of
// spec.md §4.5: recognized CSI/OSC requests from the child program get a
// synthetic reply written back to the PTY input, so a child that probes its
// terminal (cursor position, device attributes, color scheme, pixel size)
// gets a sane answer even though no real terminal is attached.
//
// The color-reply formatting is adapted from h2's
// internal/session/virtualterminal/util.go (ColorToX11, FallbackOSCPalette),
// which performs the same rgb: formatting for OSC 10/11 answers using
// github.com/muesli/termenv.
package queryreply

import (
	"bytes"
	"fmt"

	"github.com/muesli/termenv"
)

// fixedFg, fixedBg, fixedCursor are the fixed colors spec.md §4.5 mandates
// for OSC 10/11/12 replies, expressed via termenv so the X11 rgb: formatting
// stays in one place (colorToX11) instead of being hand-written twice.
var (
	fixedFg     = colorToX11(termenv.RGBColor("#ffffff"))
	fixedBg     = colorToX11(termenv.RGBColor("#000000"))
	fixedCursor = colorToX11(termenv.RGBColor("#ffffff"))
)

// colorToX11 converts a termenv.Color to X11 "rgb:rrrr/gggg/bbbb" format.
// Adapted from h2's ColorToX11.
func colorToX11(c termenv.Color) string {
	v, ok := c.(termenv.RGBColor)
	if !ok {
		rgb := termenv.ConvertToRGB(c)
		r := uint8(rgb.R*255 + 0.5)
		g := uint8(rgb.G*255 + 0.5)
		b := uint8(rgb.B*255 + 0.5)
		return fmt.Sprintf("rgb:%04x/%04x/%04x", uint16(r)*0x101, uint16(g)*0x101, uint16(b)*0x101)
	}
	hex := string(v)
	var r, g, b uint64
	fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b)
	return fmt.Sprintf("rgb:%04x/%04x/%04x", r*0x101, g*0x101, b*0x101)
}

// RollingTailSize is the number of previously-seen bytes kept to detect a
// recognized query that straddles two PTY read chunks (spec.md §4.5: "a
// rolling tail (64 bytes) of previously seen bytes concatenated with the new
// chunk").
const RollingTailSize = 64

// Reply is one recognized request along with the bytes to write back to the
// PTY. Scan reports each recognized request exactly once, even though a
// request may straddle two chunks and so be visible across two Scan calls.
type Reply struct {
	Request []byte
	Bytes   []byte
}

// Responder recognizes terminal queries against a rolling tail of bytes and
// produces synthetic replies. It is not safe for concurrent use; the session
// serializes calls to Scan on its single output-handling path.
type Responder struct {
	tail []byte
}

// New creates an empty Responder.
func New() *Responder { return &Responder{} }

// rule is one recognized request pattern. reply receives the current grid
// dimensions so the "size in chars" rule can embed them.
type rule struct {
	match func(buf []byte, at int) (reqLen int, ok bool)
	reply func(req []byte, cols, rows int) []byte
}

var rules = []rule{
	{matchCSI('6', 'n'), staticReply("\x1b[1;1R")},                   // CPR
	{matchCSI('5', 'n'), staticReply("\x1b[0n")},                     // DSR
	{matchCSIParamless('c'), staticReply("\x1b[?1;2c")},              // DA1 (CSI c)
	{matchCSI('0', 'c'), staticReply("\x1b[?1;2c")},                  // DA1 (CSI 0 c)
	{matchCSIPrefixParamless('>', 'c'), staticReply("\x1b[>0;0;0c")}, // DA2 (CSI > c)
	{matchCSIPrefix('>', '0', 'c'), staticReply("\x1b[>0;0;0c")},     // DA2 (CSI > 0 c)
	{matchESC('Z'), staticReply("\x1b[?1;2c")},                       // DECID
	{matchCSIPrefixParamless('?', 'u'), staticReply("\x1b[?0u")},     // kitty keyboard query
	{matchCSI('1', '8', 't'), sizeCharsReply},                        // size in chars
	{matchCSI('1', '4', 't'), staticReply("\x1b[4;0;0t")},            // size in pixels
	{matchOSCQuery("10"), staticReply("\x1b]10;" + fixedFg + "\x1b\\")},
	{matchOSCQuery("11"), staticReply("\x1b]11;" + fixedBg + "\x1b\\")},
	{matchOSCQuery("12"), staticReply("\x1b]12;" + fixedCursor + "\x1b\\")},
}

func sizeCharsReply(req []byte, cols, rows int) []byte {
	return []byte(fmt.Sprintf("\x1b[8;%d;%dt", rows, cols))
}

// Scan appends chunk to the rolling tail, looks for recognized requests in
// the combined buffer, and returns one Reply per recognized request newly
// found (in order). A request wholly contained in the previously-seen tail
// was already reported on an earlier call and is not reported again; only
// matches whose span reaches into the new chunk are emitted. Matched bytes
// are consumed and never retained, so the tail left behind holds only the
// trailing RollingTailSize bytes of *unmatched* data, enough for a request
// split across chunk boundaries to still be caught without replaying a
// request that was already answered. cols/rows are the session's current
// grid, used to answer the "size in chars" query.
func (r *Responder) Scan(chunk []byte, cols, rows int) []Reply {
	oldTailLen := len(r.tail)
	buf := append(append([]byte{}, r.tail...), chunk...)
	var out []Reply
	var remaining []byte
	i := 0
	for i < len(buf) {
		matched := false
		for _, rl := range rules {
			if n, ok := rl.match(buf, i); ok {
				if i+n > oldTailLen {
					req := append([]byte{}, buf[i:i+n]...)
					out = append(out, Reply{Request: req, Bytes: rl.reply(req, cols, rows)})
				}
				i += n
				matched = true
				break
			}
		}
		if !matched {
			remaining = append(remaining, buf[i])
			i++
		}
	}

	if len(remaining) > RollingTailSize {
		remaining = remaining[len(remaining)-RollingTailSize:]
	}
	r.tail = remaining
	return out
}

func staticReply(s string) func([]byte, int, int) []byte {
	return func([]byte, int, int) []byte { return []byte(s) }
}

// matchCSI matches "\x1b[" + params + final, where params is exactly the
// given digit bytes (e.g. matchCSI('6','n') matches "\x1b[6n").
func matchCSI(paramsAndFinal ...byte) func(buf []byte, at int) (int, bool) {
	final := paramsAndFinal[len(paramsAndFinal)-1]
	params := paramsAndFinal[:len(paramsAndFinal)-1]
	seq := append([]byte{0x1b, '['}, params...)
	seq = append(seq, final)
	return func(buf []byte, at int) (int, bool) {
		if bytes.HasPrefix(buf[at:], seq) {
			return len(seq), true
		}
		return 0, false
	}
}

// matchCSIParamless matches "\x1b[" + final with no parameters at all
// (e.g. "CSI c").
func matchCSIParamless(final byte) func(buf []byte, at int) (int, bool) {
	seq := []byte{0x1b, '[', final}
	return func(buf []byte, at int) (int, bool) {
		if bytes.HasPrefix(buf[at:], seq) {
			return len(seq), true
		}
		return 0, false
	}
}

// matchCSIPrefixParamless matches "\x1b[" + prefix + final with no digits
// between (e.g. "CSI > c").
func matchCSIPrefixParamless(prefix, final byte) func(buf []byte, at int) (int, bool) {
	seq := []byte{0x1b, '[', prefix, final}
	return func(buf []byte, at int) (int, bool) {
		if bytes.HasPrefix(buf[at:], seq) {
			return len(seq), true
		}
		return 0, false
	}
}

// matchCSIPrefix matches "\x1b[" + prefix + digits + final.
func matchCSIPrefix(prefix byte, paramsAndFinal ...byte) func(buf []byte, at int) (int, bool) {
	final := paramsAndFinal[len(paramsAndFinal)-1]
	params := paramsAndFinal[:len(paramsAndFinal)-1]
	seq := append([]byte{0x1b, '[', prefix}, params...)
	seq = append(seq, final)
	return func(buf []byte, at int) (int, bool) {
		if bytes.HasPrefix(buf[at:], seq) {
			return len(seq), true
		}
		return 0, false
	}
}

// matchESC matches a two-byte ESC sequence (e.g. "\x1bZ").
func matchESC(final byte) func(buf []byte, at int) (int, bool) {
	seq := []byte{0x1b, final}
	return func(buf []byte, at int) (int, bool) {
		if bytes.HasPrefix(buf[at:], seq) {
			return len(seq), true
		}
		return 0, false
	}
}

// matchOSCQuery matches "\x1b]" + code + ";?" terminated by BEL or ST
// (\x1b\\), e.g. "\x1b]10;?\x07" or "\x1b]10;?\x1b\\".
func matchOSCQuery(code string) func(buf []byte, at int) (int, bool) {
	prefix := []byte("\x1b]" + code + ";?")
	return func(buf []byte, at int) (int, bool) {
		if !bytes.HasPrefix(buf[at:], prefix) {
			return 0, false
		}
		rest := buf[at+len(prefix):]
		if len(rest) > 0 && rest[0] == 0x07 {
			return len(prefix) + 1, true
		}
		if len(rest) > 1 && rest[0] == 0x1b && rest[1] == '\\' {
			return len(prefix) + 2, true
		}
		return 0, false
	}
}
