package loader

import "fmt"

// MaxHandles is the fixed capacity of the handle pool, spec.md §4.F.
const MaxHandles = 64

// nameLen bounds a handle's name including its terminator, spec.md §3.
const nameLen = 128

// Handle flag bits, spec.md §3 / original_source/linker.h.
const (
	FlagLinked    = 1 << 0
	FlagError     = 1 << 1
	FlagExe       = 1 << 2
	FlagPrelinked = 1 << 3
)

type exportedSym struct {
	name string
	addr uint32
}

// Handle is one loaded module's identity and state (spec.md §3). It is
// never exposed to API callers directly; HandleID is the opaque token
// external callers hold instead of a raw pointer into the fixed-size pool.
type Handle struct {
	inUse    bool
	name     string
	flags    uint8
	image    *image
	refcount uint32
	exports  []exportedSym
}

// addExport appends a {name, address} pair to the handle's exported list.
// Exports are only ever appended during loading, never mutated afterward.
func (h *Handle) addExport(name string, addr uint32) {
	h.exports = append(h.exports, exportedSym{name: name, addr: addr})
}

// lookupExport performs the linear "first match wins" scan of a handle's
// exported list used by symbol lookup against a specific handle.
func (h *Handle) lookupExport(name string) (uint32, bool) {
	for _, e := range h.exports {
		if e.name == name {
			return e.addr, true
		}
	}
	return 0, false
}

// HandleID is the opaque, numeric identity an API caller holds for a loaded
// module. It indexes into the pool's fixed array and is only ever valid
// while the underlying slot remains allocated to the same handle.
type HandleID int32

// HandlePool implements spec.md §4.F: a fixed-capacity array of handles, a
// freelist consumed head-first, a bump cursor for slots never yet used, and
// a load-order list of currently live handles.
type HandlePool struct {
	slots    [MaxHandles]Handle
	freelist []HandleID // stack; head-take on allocation
	bumpNext HandleID
	order    []HandleID // load order, append on alloc, removed on free
}

// NewHandlePool returns an empty pool.
func NewHandlePool() *HandlePool {
	return &HandlePool{}
}

// alloc reserves a slot: freelist first, then the bump cursor. Returns
// ErrTooManyLibraries once both are exhausted.
func (p *HandlePool) alloc(name string) (HandleID, *Handle, error) {
	if len(name) >= nameLen {
		return 0, nil, fmt.Errorf("%w: %q", ErrNameTooLong, name)
	}

	var id HandleID
	if n := len(p.freelist); n > 0 {
		id = p.freelist[n-1]
		p.freelist = p.freelist[:n-1]
	} else if p.bumpNext < MaxHandles {
		id = p.bumpNext
		p.bumpNext++
	} else {
		return 0, nil, ErrTooManyLibraries
	}

	h := &p.slots[id]
	*h = Handle{inUse: true, name: name}
	p.order = append(p.order, id)
	return id, h, nil
}

// findByName scans the load-order list for a handle with the given name,
// spec.md §4.F's find_library.
func (p *HandlePool) findByName(name string) (HandleID, *Handle, bool) {
	for _, id := range p.order {
		h := &p.slots[id]
		if h.inUse && h.name == name {
			return id, h, true
		}
	}
	return 0, nil, false
}

// get returns the handle for id if it is currently live.
func (p *HandlePool) get(id HandleID) (*Handle, bool) {
	if id < 0 || int(id) >= MaxHandles {
		return nil, false
	}
	h := &p.slots[id]
	if !h.inUse {
		return nil, false
	}
	return h, true
}

// free returns a slot to the freelist and drops it from the load-order
// list. Called only when a handle's refcount has just reached zero.
func (p *HandlePool) free(id HandleID) {
	h := &p.slots[id]
	*h = Handle{}

	for i, o := range p.order {
		if o == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.freelist = append(p.freelist, id)
}
