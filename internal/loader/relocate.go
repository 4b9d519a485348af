package loader

import (
	"encoding/binary"
	"fmt"
)

// applyRelocations implements spec.md §4.E. Only REL sections named
// .rel.data or .rel.text are applied; RELA sections are tolerated (they may
// be present on the whitelist via §4.C) but never interpreted, matching the
// original loader exactly.
func applyRelocations(o *object, im *image, st *resolvedSymtab) error {
	for i := range o.shdrs {
		sh := o.shdrs[i]
		if sh.typ != shtRel {
			continue
		}
		name := o.sectionName(i)
		if name != ".rel.data" && name != ".rel.text" {
			continue
		}

		infoSec := o.shdrs[sh.info]
		data, err := o.sectionData(i)
		if err != nil {
			return err
		}

		count := len(data) / relSize
		for j := 0; j < count; j++ {
			r := parseRel32(data[j*relSize : (j+1)*relSize])
			where := infoSec.addr + r.offset
			symIdx := int(elfRSym(r.info))
			if symIdx < 0 || symIdx >= len(st.syms) {
				return fmt.Errorf("%w: relocation %d references out-of-range symbol %d", ErrInvalidElf, j, symIdx)
			}
			sym := st.syms[symIdx]

			off := im.addrOf(where)
			if off < 0 || off+4 > len(im.bytes) {
				return fmt.Errorf("%w: relocation target out of image bounds", ErrAllocationFailed)
			}
			word := binary.LittleEndian.Uint32(im.bytes[off : off+4])

			switch elfRType(r.info) {
			case rel386_32:
				word += sym.value
			case rel386_PC32:
				word += sym.value - where
			default:
				return fmt.Errorf("%w: type %d", ErrUnsupportedReloc, elfRType(r.info))
			}

			binary.LittleEndian.PutUint32(im.bytes[off:off+4], word)
		}
	}
	return nil
}
