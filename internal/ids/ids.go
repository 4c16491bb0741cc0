// Package ids generates the short, prefixed, url-safe tokens umux uses to
// name sessions and hooks (spec.md §6: "sess-XXXXXXXX", "hook-XXXXXXXX").
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// token returns an 8-character url-safe (hex) token derived from a fresh
// random UUID, the same random source h2 uses for its message ids
// (internal/session/session.go, uuid.New().String()).
func token() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return raw[:8]
}

// Session returns a new "sess-XXXXXXXX" id.
func Session() string { return "sess-" + token() }

// Hook returns a new "hook-XXXXXXXX" id.
func Hook() string { return "hook-" + token() }
