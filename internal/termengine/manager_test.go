package termengine

import "testing"

// fakeEngine is a minimal in-memory Engine for exercising Manager without
// pulling in midterm/vt.
type fakeEngine struct {
	name     string
	panicOn  string // panics when Write sees this exact payload
	written  []byte
	disposed bool
}

func newFakeFactory(name string, panicOn string) (Factory, *[]*fakeEngine) {
	var created []*fakeEngine
	f := func(cols, rows int) (Engine, error) {
		e := &fakeEngine{name: name, panicOn: panicOn}
		created = append(created, e)
		return e, nil
	}
	return f, &created
}

func (f *fakeEngine) Write(data []byte, onFlushed func()) {
	if f.panicOn != "" && string(data) == f.panicOn {
		panic("boom")
	}
	f.written = append(f.written, data...)
	if onFlushed != nil {
		onFlushed()
	}
}
func (f *fakeEngine) Resize(cols, rows int)                        {}
func (f *fakeEngine) Capture(opts CaptureOptions) (Capture, error) { return Capture{}, nil }
func (f *fakeEngine) Dispose()                                     { f.disposed = true }

func TestManagerUsesPrimaryByDefault(t *testing.T) {
	primary, primaries := newFakeFactory("primary", "")
	fallback, fallbacks := newFakeFactory("fallback", "")
	m, err := NewManager(ModePrimary, primary, fallback, 80, 24)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	m.Write([]byte("hello"), nil)
	if len(*primaries) != 1 || len(*fallbacks) != 0 {
		t.Fatalf("expected one primary and zero fallback instances")
	}
	if string((*primaries)[0].written) != "hello" {
		t.Fatalf("primary did not receive bytes")
	}
	if m.OnFallback() {
		t.Fatalf("expected to still be on primary")
	}
}

func TestManagerSwapsToFallbackOnPanic(t *testing.T) {
	primary, primaries := newFakeFactory("primary", "boom-trigger")
	fallback, fallbacks := newFakeFactory("fallback", "")
	m, err := NewManager(ModePrimary, primary, fallback, 80, 24)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	m.Write([]byte("ok-bytes"), nil)
	m.Write([]byte("boom-trigger"), nil)

	if !m.OnFallback() {
		t.Fatalf("expected swap to fallback after panic")
	}
	if len(*fallbacks) != 1 {
		t.Fatalf("expected exactly one fallback instance, got %d", len(*fallbacks))
	}
	if !(*primaries)[0].disposed {
		t.Fatalf("expected old primary engine to be disposed")
	}
	// The fallback must have received the replayed tail, which includes
	// the bytes written before the panic.
	got := string((*fallbacks)[0].written)
	if got == "" {
		t.Fatalf("expected fallback to receive replayed tail")
	}
}

func TestManagerStrictModeNeverSwaps(t *testing.T) {
	primary, _ := newFakeFactory("primary", "boom-trigger")
	fallback, fallbacks := newFakeFactory("fallback", "")
	m, err := NewManager(ModePrimaryStrict, primary, fallback, 80, 24)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic to propagate in strict mode")
		}
		if len(*fallbacks) != 0 {
			t.Fatalf("fallback should never be instantiated in strict mode")
		}
	}()
	m.Write([]byte("boom-trigger"), nil)
}

func TestManagerFallbackOnlyMode(t *testing.T) {
	primary, primaries := newFakeFactory("primary", "")
	fallback, fallbacks := newFakeFactory("fallback", "")
	m, err := NewManager(ModeFallbackOnly, primary, fallback, 80, 24)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	m.Write([]byte("x"), nil)
	if len(*primaries) != 0 || len(*fallbacks) != 1 {
		t.Fatalf("expected only the fallback engine to be created")
	}
}
