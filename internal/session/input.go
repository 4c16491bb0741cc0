package session

import (
	"fmt"
	"time"

	"umux/internal/eventlog"
	"umux/internal/keys"
	"umux/internal/uerr"
)

// Send writes text to the child's PTY, logging it to the input history and
// log sink first if input logging is enabled (spec.md §4.5).
func (s *Session) Send(text string) error {
	if !s.IsAlive() {
		return uerr.Lifecycle(fmt.Sprintf("session %s: send on dead session", s.ID))
	}
	s.logInput("text", text, nil, nil)
	_, err := s.writePTYRaw([]byte(text))
	return err
}

// SendKey encodes k via the key codec and writes the resulting bytes,
// logging a human-readable token (e.g. "<Ctrl+Alt+Name>") to the input
// history instead of the raw bytes.
func (s *Session) SendKey(k keys.Input) error {
	return s.SendKeys([]keys.Input{k})
}

// SendKeys encodes every key in order and writes them to the PTY. Per
// spec.md §4.2, an unknown combination anywhere in the list fails before any
// byte is written for the whole call.
func (s *Session) SendKeys(list []keys.Input) error {
	if !s.IsAlive() {
		return uerr.Lifecycle(fmt.Sprintf("session %s: sendKeys on dead session", s.ID))
	}

	encoded := make([][]byte, len(list))
	for i, k := range list {
		enc, err := keys.Encode(k)
		if err != nil {
			return err
		}
		encoded[i] = []byte(enc)
	}

	tokens := make([]string, len(list))
	for i, k := range list {
		tokens[i] = k.Token()
	}
	if len(list) == 1 {
		s.logInput("key", "", &tokens[0], nil)
	} else {
		s.logInput("keys", "", nil, tokens)
	}

	for _, b := range encoded {
		if _, err := s.writePTYRaw(b); err != nil {
			return err
		}
	}
	return nil
}

// logInput records an input-path event to the input history and log sink,
// respecting the input-logging config knob.
func (s *Session) logInput(kind, text string, key *string, keyList []string) {
	if !s.cfg.InputLogging {
		return
	}

	switch kind {
	case "text":
		s.inputHistory.Append(text)
	case "key":
		s.inputHistory.Append(*key + "\n")
	case "keys":
		for _, t := range keyList {
			s.inputHistory.Append(t + "\n")
		}
	}

	if s.sink == nil {
		return
	}
	ts := time.Now()
	var rec eventlog.Record
	switch kind {
	case "text":
		rec = eventlog.InputTextRecord(ts, s.ID, text)
	case "key":
		rec = eventlog.InputKeyRecord(ts, s.ID, *key)
	case "keys":
		rec = eventlog.InputKeysRecord(ts, s.ID, keyList)
	}
	if err := s.sink.Append(rec); err != nil {
		s.logger.Printf("session %s: write input record: %v", s.ID, err)
	}
}
