package loader

import "fmt"

// image is the single contiguous allocation backing a loaded module's
// resident sections (spec.md §4.C). Addresses handed out for this image are
// synthetic: base is assigned by a per-loader bump allocator rather than a
// real mmap, so that relocation and symbol-lookup arithmetic is deterministic
// and independent of the host's actual memory layout (spec.md's Non-goals
// already exclude any notion of a real target address space).
type image struct {
	bytes []byte
	base  uint32

	// symtabIndex is the section-header index of the first SHT_SYMTAB
	// section encountered, or -1 if the object carries none.
	symtabIndex int
	symStrtab   []byte
}

// addrOf converts an absolute synthetic address into an offset into bytes.
func (im *image) addrOf(addr uint32) int {
	return int(addr - im.base)
}

// addrAlloc hands out non-overlapping synthetic address ranges for
// successive loads performed by one Loader.
type addrAlloc struct {
	next uint32
}

const imageAlignment = 4096

func newAddrAlloc() *addrAlloc {
	return &addrAlloc{next: 0x10000}
}

func (a *addrAlloc) alloc(size uint32) uint32 {
	base := a.next
	n := size
	if n == 0 {
		n = 1
	}
	n = (n + imageAlignment - 1) &^ (imageAlignment - 1)
	a.next += n
	return base
}

// isLoadableSection implements the whitelist of spec.md §4.C step 3: a
// PROGBITS section named .data or .text, any NOBITS section, any SYMTAB
// section, or a REL/RELA section named .rel.data or .rel.text.
func isLoadableSection(o *object, i int) bool {
	sh := o.shdrs[i]
	name := o.sectionName(i)
	switch sh.typ {
	case shtProgbit:
		return name == ".data" || name == ".text"
	case shtNobits:
		return true
	case shtSymtab:
		return true
	case shtRel, shtRela:
		return name == ".rel.data" || name == ".rel.text"
	default:
		return false
	}
}

// loadSections performs the two-pass allocation and copy of spec.md §4.C.
// Sections are visited in ascending header index in both passes. The
// section header's sh_addr field is overwritten in place with the runtime
// address at which the section now lives; sections not on the whitelist are
// left with sh_addr == 0 and remain unresolved.
func loadSections(o *object, alloc *addrAlloc) (*image, error) {
	var total uint32
	for i := range o.shdrs {
		if isLoadableSection(o, i) {
			total += o.shdrs[i].size
		}
	}

	base := alloc.alloc(total)
	im := &image{
		bytes:       make([]byte, total),
		base:        base,
		symtabIndex: -1,
	}

	var q uint32
	for i := range o.shdrs {
		if !isLoadableSection(o, i) {
			continue
		}
		sh := &o.shdrs[i]
		addr := base + q

		if sh.typ != shtNobits {
			data, err := o.sectionData(i)
			if err != nil {
				return nil, err
			}
			if int(q)+len(data) > len(im.bytes) {
				return nil, fmt.Errorf("%w: section %d overruns image", ErrAllocationFailed, i)
			}
			copy(im.bytes[q:], data)
		}
		sh.addr = addr

		if sh.typ == shtSymtab {
			if im.symtabIndex < 0 {
				im.symtabIndex = i
			}
			strtabIdx := int(sh.link)
			if strtabIdx < 0 || strtabIdx >= len(o.shdrs) {
				return nil, fmt.Errorf("%w: symtab sh_link out of range", ErrInvalidElf)
			}
			strtab, err := o.sectionData(strtabIdx)
			if err != nil {
				return nil, err
			}
			buf := make([]byte, len(strtab))
			copy(buf, strtab)
			// The string table is allocated separately from the module
			// image (spec.md §4.C); it still gets a synthetic runtime
			// address recorded on its section header for fidelity, even
			// though resolution reads im.symStrtab directly.
			o.shdrs[strtabIdx].addr = alloc.alloc(uint32(len(buf)))
			im.symStrtab = buf
		}

		q += sh.size
	}

	return im, nil
}
