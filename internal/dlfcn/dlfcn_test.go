package dlfcn

import (
	"testing"

	"github.com/openobjdl/objdl/internal/loader"
)

func TestCloseUnknownHandleAlwaysSucceeds(t *testing.T) {
	v := New(loader.NewLoader(nil, nil))
	if err := v.Close(loader.HandleID(99)); err != nil {
		t.Errorf("Close(unknown) = %v, want nil (close always succeeds)", err)
	}
}

func TestErrorResetsOnRead(t *testing.T) {
	v := New(loader.NewLoader(nil, nil))
	if _, err := v.Symbol(loader.HandleID(7), "x"); err == nil {
		t.Fatal("expected Symbol against a stale handle to fail")
	}
	if v.Error() == "" {
		t.Error("Error() returned empty string after a failure")
	}
	if v.Error() != "" {
		t.Error("Error() did not reset after being read")
	}
}
