package loader

import "fmt"

// resolvedSymtab holds the module's symbol table after resolution (§4.D),
// with st_value overwritten in place per entry so that the relocation
// engine (§4.E) can index it directly by symbol number.
type resolvedSymtab struct {
	syms   []sym32
	strtab []byte
}

func (st *resolvedSymtab) name(i int) string {
	if i < 0 || i >= len(st.syms) {
		return ""
	}
	return cstr(st.strtab, st.syms[i].name)
}

// resolveSymbols implements spec.md §4.D. Index 0 is reserved and skipped.
// Exported GLOBAL definitions are appended to handle's exported list as they
// are discovered.
func resolveSymbols(o *object, im *image, registry *ProcessRegistry, h *Handle) (*resolvedSymtab, error) {
	if im.symtabIndex < 0 {
		return &resolvedSymtab{}, nil
	}
	data, err := o.sectionData(im.symtabIndex)
	if err != nil {
		return nil, err
	}

	count := len(data) / symSize
	syms := make([]sym32, count)
	for i := 0; i < count; i++ {
		syms[i] = parseSym32(data[i*symSize : (i+1)*symSize])
	}
	st := &resolvedSymtab{syms: syms, strtab: im.symStrtab}

	for i := 1; i < count; i++ {
		sym := &syms[i]
		typ := stType(sym.info)
		bind := stBind(sym.info)
		name := st.name(i)

		switch typ {
		case sttSection, sttFile:
			// no action

		case sttNotype:
			if sym.name != 0 && sym.shndx == shnUndef {
				addr, ok := registry.Lookup(name)
				if !ok {
					return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
				}
				sym.value = addr
			}

		case sttObject, sttFunc:
			secIdx := int(sym.shndx)
			if secIdx < 0 || secIdx >= len(o.shdrs) {
				return nil, fmt.Errorf("%w: symbol %s has out-of-range section index", ErrInvalidElf, name)
			}
			sym.value += o.shdrs[secIdx].addr
			if bind == stbGlobal {
				h.addExport(name, sym.value)
			}

		default:
			return nil, fmt.Errorf("%w: symbol %s has type %d", ErrUnknownSymbolType, name, typ)
		}
	}

	return st, nil
}
