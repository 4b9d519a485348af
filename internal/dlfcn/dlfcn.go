// Package dlfcn is the POSIX-style dlopen/dlsym/dlclose veneer over the
// loader, present in the original implementation (original_source/dlfcn.c)
// as "a three-line mutex-protected wrapper" over the loader's own already
// process-wide lock. It is out of scope as a core subsystem (spec.md §1)
// but cheap enough to keep as a dlopen-shaped entry point over the loader.
package dlfcn

import "github.com/openobjdl/objdl/internal/loader"

// Veneer adapts a *loader.Loader to the dlopen/dlsym/dlclose/dlerror shape.
// It adds no locking of its own: loader.Loader already serializes every
// operation behind its own mutex, so wrapping it in a second lock here would
// only rename the same critical section, not add safety.
type Veneer struct {
	l *loader.Loader
}

// New wraps l.
func New(l *loader.Loader) *Veneer {
	return &Veneer{l: l}
}

// Open mirrors dlopen(3): resolve and load name, or bump the refcount of an
// already-resident module.
func (v *Veneer) Open(name string, flags int) (loader.HandleID, error) {
	return v.l.Open(name, flags)
}

// Symbol mirrors dlsym(3) (commented out in original_source/dlfcn.c) by
// delegating directly to the loader's own Symbol lookup.
func (v *Veneer) Symbol(handle loader.HandleID, name string) (uint32, error) {
	return v.l.Symbol(handle, name)
}

// Close mirrors dlclose(3): always succeeds, per spec.md §6.
func (v *Veneer) Close(handle loader.HandleID) error {
	return v.l.Close(handle)
}

// Error mirrors dlerror(3): returns and resets the most recent error text.
func (v *Veneer) Error() string {
	return v.l.LastError()
}
