// Package loader implements a runtime loader for 32-bit ELF relocatable
// objects (spec.md §C1): it reads an object, allocates and loads its
// sections, resolves its symbols against a process-wide registry, applies
// relocations, and exposes an open/symbol/close/last-error API.
package loader

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	objlog "github.com/openobjdl/objdl/internal/log"
	"go.uber.org/zap"
)

// Mode bits for Open, matching the dlopen-style flags spec.md §6 documents.
const (
	RtldNow    = 0
	RtldLazy   = 1
	RtldLocal  = 0
	RtldGlobal = 2
)

// Sentinel handles for Symbol, spec.md §6. Both route lookup to the process
// registry only.
const (
	Default HandleID = -2
	Next    HandleID = -1
)

// Invalid is returned in place of a handle on any Open failure.
const Invalid HandleID = -3

// Loader is the single process-wide loader facade. Open, Symbol, Close and
// LastError each acquire mu once at the entry point (the Registry and
// SearchPath accessors do not take it); nothing below the entry points
// re-acquires it, which is how this loader realizes the "nestable
// acquisition" requirement of spec.md §5 without a recursive-mutex
// primitive: nesting happens through the call graph under one lock hold,
// never through re-Lock.
type Loader struct {
	mu       sync.Mutex
	search   *SearchPath
	registry *ProcessRegistry
	pool     *HandlePool
	alloc    *addrAlloc
	lastErr  error
	log      *objlog.Logger

	// Fatal, when set, makes internal pipeline failures (relocation,
	// resolution) call os.Exit instead of returning an error, matching the
	// original embedded-runtime design described in spec.md §7. Off by
	// default; see DESIGN.md.
	Fatal bool
}

// NewLoader constructs a Loader over the given search path and process
// symbol registry. Either may be nil, in which case defaults are used.
func NewLoader(search *SearchPath, registry *ProcessRegistry) *Loader {
	if search == nil {
		search = DefaultSearchPath()
	}
	if registry == nil {
		registry = NewProcessRegistry()
	}
	l := objlog.L
	if l == nil {
		l = objlog.NewNop()
	}
	return &Loader{
		search:   search,
		registry: registry,
		pool:     NewHandlePool(),
		alloc:    newAddrAlloc(),
		log:      l,
	}
}

// Open resolves name against the search path, loads it if it is not already
// resident, and returns its handle. A name already resident and linked has
// its refcount bumped instead of being reloaded, spec.md §4.F.
func (l *Loader) Open(name string, flags int) (HandleID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id, h, found := l.pool.findByName(name); found {
		switch {
		case h.flags&FlagError != 0:
			err := fmt.Errorf("%w: %q", ErrCannotFindLibrary, name)
			l.lastErr = err
			return Invalid, err
		case h.flags&FlagLinked != 0:
			h.refcount++
			return id, nil
		default:
			err := fmt.Errorf("recursive link: %q", name)
			l.lastErr = err
			return Invalid, err
		}
	}

	id, h, err := l.pool.alloc(name)
	if err != nil {
		l.log.Warn("too many libraries", objlog.Obj(name))
		l.lastErr = err
		return Invalid, err
	}

	loadID := uuid.New().String()
	llog := &objlog.Logger{Logger: l.log.With(zap.String("load_id", loadID), zap.String("name", name))}

	if err := l.loadPipeline(h, name, llog); err != nil {
		if l.Fatal {
			llog.Fatal("load failed", zap.Error(err))
		}
		llog.Warn("load failed, disposing handle", zap.Error(err))
		l.pool.free(id)
		l.lastErr = err
		return Invalid, err
	}

	h.flags |= FlagLinked
	h.refcount = 1
	llog.Debug("loaded", objlog.Addr("base", h.image.base), zap.Int("exports", len(h.exports)))
	return id, nil
}

func (l *Loader) loadPipeline(h *Handle, name string, llog *objlog.Logger) error {
	path, err := l.search.Resolve(name)
	if err != nil {
		return err
	}
	o, err := openObject(path)
	if err != nil {
		return err
	}
	im, err := loadSections(o, l.alloc)
	if err != nil {
		return err
	}
	h.image = im
	st, err := resolveSymbols(o, im, l.registry, h)
	if err != nil {
		return err
	}
	if err := applyRelocations(o, im, st); err != nil {
		return err
	}
	llog.Debug("relocated", zap.Int("relocations_applied_for_sections", len(o.shdrs)))
	return nil
}

// Symbol looks up name against handle, or against the process registry
// alone when handle is Default or Next.
func (l *Loader) Symbol(handle HandleID, name string) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if name == "" {
		err := ErrBadSymbolName
		l.lastErr = err
		return 0, err
	}

	if handle == Default || handle == Next {
		addr, ok := l.registry.Lookup(name)
		if !ok {
			l.lastErr = ErrSymbolNotFound
			return 0, ErrSymbolNotFound
		}
		return addr, nil
	}

	h, ok := l.pool.get(handle)
	if !ok {
		l.lastErr = ErrInvalidHandle
		return 0, ErrInvalidHandle
	}
	addr, ok := h.lookupExport(name)
	if !ok {
		l.lastErr = ErrSymbolNotFound
		return 0, ErrSymbolNotFound
	}
	return addr, nil
}

// Close decrements handle's refcount, freeing its slot and image on the
// 1-to-0 transition. Always reports success, spec.md §6.
func (l *Loader) Close(handle HandleID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.pool.get(handle)
	if !ok {
		return nil
	}
	switch {
	case h.refcount == 1:
		h.refcount = 0
		l.pool.free(handle)
	case h.refcount > 1:
		h.refcount--
	}
	return nil
}

// LastError returns the text of the most recently recorded error and resets
// it to success, spec.md §6.
func (l *Loader) LastError() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.lastErr
	l.lastErr = nil
	if err == nil {
		return ""
	}
	return err.Error()
}

// Registry exposes the loader's process symbol registry so callers can seed
// it before the first Open.
func (l *Loader) Registry() *ProcessRegistry {
	return l.registry
}

// SearchPath exposes the loader's library search path for mutation.
func (l *Loader) SearchPath() *SearchPath {
	return l.search
}
