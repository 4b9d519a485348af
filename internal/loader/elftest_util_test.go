package loader

import (
	"encoding/binary"
)

// Minimal ELF32 object builder used only by this package's tests. It builds
// just enough of a relocatable object (null section, .text, .symtab,
// .strtab, .shstrtab, and an optional .rel.text) to exercise the loader
// end to end without needing a real assembler or compiler toolchain.

type testSym struct {
	name  string
	value uint32
	size  uint32
	info  uint8 // ELF32_ST_INFO(bind, type)
	shndx uint16
}

type testRel struct {
	offset uint32
	sym    int // index into the symbol slice passed to buildObject (1-based, as in the real table)
	typ    uint32
}

func stInfo(bind, typ uint8) uint8 { return bind<<4 | typ }

// buildObject assembles a little-endian ELF32 ET_REL image with:
//
//	section 0: NULL
//	section 1: .text   (PROGBITS, textBytes)
//	section 2: .symtab (SYMTAB over syms, syms[0] is the implicit null entry
//	           the caller must NOT include)
//	section 3: .strtab
//	section 4: .shstrtab
//	section 5: .rel.text (only if rels is non-empty; sh_info = 1 (.text))
//
// Returns the finished byte slice; the section indices are fixed as listed
// above.
func buildObject(textBytes []byte, syms []testSym, rels []testRel) []byte {
	// String table for symbol names; index 0 is the empty string.
	strtab := []byte{0}
	symNameOff := make([]uint32, len(syms))
	for i, s := range syms {
		symNameOff[i] = uint32(len(strtab))
		strtab = append(strtab, []byte(s.name)...)
		strtab = append(strtab, 0)
	}

	// Symbol table bytes: reserved null entry (index 0) plus each real sym.
	symtabBytes := make([]byte, symSize*(len(syms)+1))
	for i, s := range syms {
		off := (i + 1) * symSize
		binary.LittleEndian.PutUint32(symtabBytes[off+0:], symNameOff[i])
		binary.LittleEndian.PutUint32(symtabBytes[off+4:], s.value)
		binary.LittleEndian.PutUint32(symtabBytes[off+8:], s.size)
		symtabBytes[off+12] = s.info
		symtabBytes[off+13] = 0
		binary.LittleEndian.PutUint16(symtabBytes[off+14:], s.shndx)
	}

	haveRel := len(rels) > 0
	relBytes := make([]byte, relSize*len(rels))
	for i, r := range rels {
		off := i * relSize
		binary.LittleEndian.PutUint32(relBytes[off+0:], r.offset)
		binary.LittleEndian.PutUint32(relBytes[off+4:], uint32(r.sym)<<8|r.typ)
	}

	names := []struct {
		name string
	}{{""}, {".text"}, {".symtab"}, {".strtab"}, {".shstrtab"}, {".rel.text"}}
	shstrtab := []byte{0}
	nameOff := make([]uint32, len(names))
	for i, n := range names {
		if n.name == "" {
			continue
		}
		nameOff[i] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, []byte(n.name)...)
		shstrtab = append(shstrtab, 0)
	}

	nsec := 5
	if haveRel {
		nsec = 6
	}

	// Lay out section data after the ELF header.
	dataStart := uint32(ehdrSize)
	textOff := dataStart
	symtabOff := textOff + uint32(len(textBytes))
	strtabOff := symtabOff + uint32(len(symtabBytes))
	shstrtabOff := strtabOff + uint32(len(strtab))
	relOff := shstrtabOff + uint32(len(shstrtab))

	shoff := relOff
	if haveRel {
		shoff = relOff + uint32(len(relBytes))
	}

	buf := make([]byte, shoff+uint32(nsec)*shdrSize)

	// ELF header.
	buf[0], buf[1], buf[2], buf[3] = elfMag0, elfMag1, elfMag2, elfMag3
	le := binary.LittleEndian
	le.PutUint16(buf[16:], etRel)
	le.PutUint32(buf[32:], shoff)
	le.PutUint16(buf[46:], shdrSize)
	le.PutUint16(buf[48:], uint16(nsec))
	le.PutUint16(buf[50:], 4) // shstrndx

	copy(buf[textOff:], textBytes)
	copy(buf[symtabOff:], symtabBytes)
	copy(buf[strtabOff:], strtab)
	copy(buf[shstrtabOff:], shstrtab)
	if haveRel {
		copy(buf[relOff:], relBytes)
	}

	putShdr := func(i int, name uint32, typ uint32, off, size, link, info uint32) {
		base := int(shoff) + i*shdrSize
		le.PutUint32(buf[base+0:], name)
		le.PutUint32(buf[base+4:], typ)
		le.PutUint32(buf[base+16:], off)
		le.PutUint32(buf[base+20:], size)
		le.PutUint32(buf[base+24:], link)
		le.PutUint32(buf[base+28:], info)
	}

	putShdr(0, nameOff[0], shtNull, 0, 0, 0, 0)
	putShdr(1, nameOff[1], shtProgbit, textOff, uint32(len(textBytes)), 0, 0)
	putShdr(2, nameOff[2], shtSymtab, symtabOff, uint32(len(symtabBytes)), 3, 0)
	putShdr(3, nameOff[3], shtStrtab, strtabOff, uint32(len(strtab)), 0, 0)
	putShdr(4, nameOff[4], shtStrtab, shstrtabOff, uint32(len(shstrtab)), 0, 0)
	if haveRel {
		putShdr(5, nameOff[5], shtRel, relOff, uint32(len(relBytes)), 2, 1)
	}

	return buf
}
