//go:build !linux

package foreground

import "testing"

func TestStubProberAlwaysReturnsNil(t *testing.T) {
	p := New(0, 1)
	proc, err := p.Probe()
	if proc != nil || err != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", proc, err)
	}
}
