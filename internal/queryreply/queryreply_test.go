package queryreply

import (
	"bytes"
	"testing"
)

func TestScanRecognizesCPR(t *testing.T) {
	r := New()
	out := r.Scan([]byte("\x1b[6n"), 80, 24)
	if len(out) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(out))
	}
	if string(out[0].Bytes) != "\x1b[1;1R" {
		t.Fatalf("unexpected CPR reply: %q", out[0].Bytes)
	}
	if !bytes.Equal(out[0].Request, []byte("\x1b[6n")) {
		t.Fatalf("unexpected request echo: %q", out[0].Request)
	}
}

func TestScanRecognizesDA1Variants(t *testing.T) {
	r := New()
	for _, req := range []string{"\x1b[c", "\x1b[0c"} {
		out := r.Scan([]byte(req), 80, 24)
		if len(out) != 1 || string(out[0].Bytes) != "\x1b[?1;2c" {
			t.Fatalf("DA1 %q: got %v", req, out)
		}
	}
}

func TestScanRecognizesDA2Variants(t *testing.T) {
	r := New()
	for _, req := range []string{"\x1b[>c", "\x1b[>0c"} {
		out := r.Scan([]byte(req), 80, 24)
		if len(out) != 1 || string(out[0].Bytes) != "\x1b[>0;0;0c" {
			t.Fatalf("DA2 %q: got %v", req, out)
		}
	}
}

func TestScanRecognizesDECID(t *testing.T) {
	r := New()
	out := r.Scan([]byte("\x1bZ"), 80, 24)
	if len(out) != 1 || string(out[0].Bytes) != "\x1b[?1;2c" {
		t.Fatalf("DECID: got %v", out)
	}
}

func TestScanRecognizesKittyQuery(t *testing.T) {
	r := New()
	out := r.Scan([]byte("\x1b[?u"), 80, 24)
	if len(out) != 1 || string(out[0].Bytes) != "\x1b[?0u" {
		t.Fatalf("kitty query: got %v", out)
	}
}

func TestScanSizeInCharsUsesCurrentGrid(t *testing.T) {
	r := New()
	out := r.Scan([]byte("\x1b[18t"), 132, 43)
	if len(out) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(out))
	}
	if string(out[0].Bytes) != "\x1b[8;43;132t" {
		t.Fatalf("unexpected size-in-chars reply: %q", out[0].Bytes)
	}
}

func TestScanSizeInCharsIsPerResponder(t *testing.T) {
	a := New()
	b := New()
	outA := a.Scan([]byte("\x1b[18t"), 80, 24)
	outB := b.Scan([]byte("\x1b[18t"), 200, 50)
	if string(outA[0].Bytes) != "\x1b[8;24;80t" {
		t.Fatalf("responder a: got %q", outA[0].Bytes)
	}
	if string(outB[0].Bytes) != "\x1b[8;50;200t" {
		t.Fatalf("responder b: got %q", outB[0].Bytes)
	}
	// Re-scanning on a with stale dims must not have been clobbered by b.
	outA2 := a.Scan([]byte("\x1b[18t"), 80, 24)
	if string(outA2[0].Bytes) != "\x1b[8;24;80t" {
		t.Fatalf("responder a after b's scan: got %q", outA2[0].Bytes)
	}
}

func TestScanRecognizesSizeInPixels(t *testing.T) {
	r := New()
	out := r.Scan([]byte("\x1b[14t"), 80, 24)
	if len(out) != 1 || string(out[0].Bytes) != "\x1b[4;0;0t" {
		t.Fatalf("size in pixels: got %v", out)
	}
}

func TestScanRecognizesOSCColorQueriesBEL(t *testing.T) {
	r := New()
	out := r.Scan([]byte("\x1b]10;?\x07"), 80, 24)
	if len(out) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(out))
	}
	if string(out[0].Bytes) != "\x1b]10;"+fixedFg+"\x1b\\" {
		t.Fatalf("unexpected OSC10 reply: %q", out[0].Bytes)
	}
}

func TestScanRecognizesOSCColorQueriesST(t *testing.T) {
	r := New()
	out := r.Scan([]byte("\x1b]11;?\x1b\\"), 80, 24)
	if len(out) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(out))
	}
	if string(out[0].Bytes) != "\x1b]11;"+fixedBg+"\x1b\\" {
		t.Fatalf("unexpected OSC11 reply: %q", out[0].Bytes)
	}
}

func TestScanIgnoresUnrelatedBytes(t *testing.T) {
	r := New()
	out := r.Scan([]byte("hello world, just plain output\n"), 80, 24)
	if len(out) != 0 {
		t.Fatalf("expected no replies, got %v", out)
	}
}

func TestScanHandlesRequestSplitAcrossChunks(t *testing.T) {
	r := New()
	out1 := r.Scan([]byte("\x1b[6"), 80, 24)
	if len(out1) != 0 {
		t.Fatalf("expected no reply from partial chunk, got %v", out1)
	}
	out2 := r.Scan([]byte("n"), 80, 24)
	if len(out2) != 1 || string(out2[0].Bytes) != "\x1b[1;1R" {
		t.Fatalf("expected CPR reply assembled from split chunks, got %v", out2)
	}
}

func TestScanMultipleRequestsInOneChunk(t *testing.T) {
	r := New()
	out := r.Scan([]byte("\x1b[6n\x1b[5n"), 80, 24)
	if len(out) != 2 {
		t.Fatalf("expected 2 replies, got %d: %v", len(out), out)
	}
	if string(out[0].Bytes) != "\x1b[1;1R" || string(out[1].Bytes) != "\x1b[0n" {
		t.Fatalf("unexpected replies: %v", out)
	}
}

func TestScanDoesNotRepeatAMatchAlreadyReported(t *testing.T) {
	r := New()
	out1 := r.Scan([]byte("\x1b[6n"), 80, 24)
	if len(out1) != 1 {
		t.Fatalf("expected 1 reply, got %d: %v", len(out1), out1)
	}
	out2 := r.Scan([]byte("x"), 80, 24)
	if len(out2) != 0 {
		t.Fatalf("expected no reply on the following scan, got %v", out2)
	}
}

func TestScanTailBoundedToRollingTailSize(t *testing.T) {
	r := New()
	big := bytes.Repeat([]byte("x"), RollingTailSize*3)
	r.Scan(big, 80, 24)
	if len(r.tail) > RollingTailSize {
		t.Fatalf("tail grew past RollingTailSize: %d", len(r.tail))
	}
}
