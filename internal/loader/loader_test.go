package loader

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTempObject(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// Scenario 1: minimal load.
func TestMinimalLoad(t *testing.T) {
	dir := t.TempDir()
	textBytes := []byte{0x00, 0x00, 0x00, 0x00, 0xc3}
	syms := []testSym{
		{name: "f", value: 0, info: stInfo(stbGlobal, sttFunc), shndx: 1},
	}
	data := buildObject(textBytes, syms, nil)
	writeTempObject(t, dir, "foo.o", data)

	sp := &SearchPath{Dirs: []string{dir}}
	l := NewLoader(sp, NewProcessRegistry())

	h, err := l.Open("foo.o", RtldNow)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if h == Invalid {
		t.Fatal("Open returned Invalid handle")
	}

	handle, ok := l.pool.get(h)
	if !ok {
		t.Fatal("handle not found in pool")
	}

	addr, err := l.Symbol(h, "f")
	if err != nil {
		t.Fatalf("Symbol: %v", err)
	}
	if addr != handle.image.base {
		t.Errorf("Symbol(f) = 0x%x, want image base 0x%x", addr, handle.image.base)
	}

	if err := l.Close(h); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// Scenario 2: external resolution via R_386_PC32.
func TestExternalResolutionPC32(t *testing.T) {
	dir := t.TempDir()
	textBytes := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0xc3}
	syms := []testSym{
		{name: "puts", value: 0, info: stInfo(0, sttNotype), shndx: shnUndef},
	}
	rels := []testRel{{offset: 1, sym: 1, typ: rel386_PC32}}
	data := buildObject(textBytes, syms, rels)
	writeTempObject(t, dir, "foo.o", data)

	sp := &SearchPath{Dirs: []string{dir}}
	reg := NewProcessRegistry()
	const putsAddr = 0x08049000
	reg.Register("puts", putsAddr)
	l := NewLoader(sp, reg)

	h, err := l.Open("foo.o", RtldNow)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	handle, _ := l.pool.get(h)

	where := handle.image.base + 1
	want := uint32(putsAddr) - where
	got := binary.LittleEndian.Uint32(handle.image.bytes[1:5])
	if got != want {
		t.Errorf("relocated word = 0x%x, want 0x%x", got, want)
	}
}

// Scenario 3: missing external symbol.
func TestMissingExternal(t *testing.T) {
	dir := t.TempDir()
	textBytes := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0xc3}
	syms := []testSym{
		{name: "puts", value: 0, info: stInfo(0, sttNotype), shndx: shnUndef},
	}
	rels := []testRel{{offset: 1, sym: 1, typ: rel386_PC32}}
	data := buildObject(textBytes, syms, rels)
	writeTempObject(t, dir, "foo.o", data)

	sp := &SearchPath{Dirs: []string{dir}}
	l := NewLoader(sp, NewProcessRegistry())

	h, err := l.Open("foo.o", RtldNow)
	if err == nil {
		t.Fatalf("Open succeeded unexpectedly, handle=%v", h)
	}
	if !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("Open error = %v, want wrapping ErrSymbolNotFound", err)
	}

	if msg := l.LastError(); msg == "" {
		t.Error("LastError returned empty string after failed Open")
	}
	if msg := l.LastError(); msg != "" {
		t.Errorf("LastError not reset after read, got %q", msg)
	}
}

// Scenario 4: handle pool exhaustion.
func TestHandleExhaustion(t *testing.T) {
	dir := t.TempDir()
	textBytes := []byte{0x00, 0x00, 0x00, 0x00, 0xc3}
	syms := []testSym{{name: "f", value: 0, info: stInfo(stbGlobal, sttFunc), shndx: 1}}
	data := buildObject(textBytes, syms, nil)

	sp := &SearchPath{Dirs: []string{dir}}
	l := NewLoader(sp, NewProcessRegistry())

	for i := 0; i < MaxHandles; i++ {
		name := filepath.Join("", "mod") + string(rune('a'+i)) + ".o"
		writeTempObject(t, dir, name, data)
		if _, err := l.Open(name, RtldNow); err != nil {
			t.Fatalf("Open %d: %v", i, err)
		}
	}

	name := "overflow.o"
	writeTempObject(t, dir, name, data)
	if _, err := l.Open(name, RtldNow); !errors.Is(err, ErrTooManyLibraries) {
		t.Errorf("65th Open error = %v, want ErrTooManyLibraries", err)
	}
}

func TestHandleUniqueness(t *testing.T) {
	dir := t.TempDir()
	textBytes := []byte{0x00, 0x00, 0x00, 0x00, 0xc3}
	syms := []testSym{{name: "f", value: 0, info: stInfo(stbGlobal, sttFunc), shndx: 1}}
	data := buildObject(textBytes, syms, nil)
	writeTempObject(t, dir, "foo.o", data)

	sp := &SearchPath{Dirs: []string{dir}}
	l := NewLoader(sp, NewProcessRegistry())

	h1, err := l.Open("foo.o", RtldNow)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	h2, err := l.Open("foo.o", RtldNow)
	if err != nil {
		t.Fatalf("Open (reopen): %v", err)
	}
	if h1 != h2 {
		t.Errorf("reopening the same name returned a different handle: %v != %v", h1, h2)
	}
	handle, _ := l.pool.get(h1)
	if handle.refcount != 2 {
		t.Errorf("refcount after two opens = %d, want 2", handle.refcount)
	}

	if err := l.Close(h1); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if handle.refcount != 1 {
		t.Errorf("refcount after one close = %d, want 1", handle.refcount)
	}
	if err := l.Close(h2); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := l.pool.get(h1); ok {
		t.Error("handle still live after refcount reached zero")
	}
}

func TestSymbolSentinels(t *testing.T) {
	reg := NewProcessRegistry()
	reg.Register("environ", 0xdeadbeef)
	l := NewLoader(nil, reg)

	addr, err := l.Symbol(Default, "environ")
	if err != nil {
		t.Fatalf("Symbol(Default): %v", err)
	}
	if addr != 0xdeadbeef {
		t.Errorf("Symbol(Default, environ) = 0x%x, want 0xdeadbeef", addr)
	}

	if _, err := l.Symbol(Next, "missing"); !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("Symbol(Next, missing) error = %v, want ErrSymbolNotFound", err)
	}

	if _, err := l.Symbol(HandleID(5), "anything"); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Symbol(stale handle) error = %v, want ErrInvalidHandle", err)
	}
}
