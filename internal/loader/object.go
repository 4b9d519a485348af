package loader

import (
	"fmt"
	"io"
	"os"
)

// object is the parsed-but-not-yet-loaded view of an ELF32 relocatable file:
// its header, its section header table, and the section-header string table.
// Section headers are kept in a mutable slice because the section loader
// (§4.C) writes each section's runtime address back into shdrs[i].addr.
type object struct {
	path     string
	data     []byte
	ehdr     ehdr32
	shdrs    []shdr32
	shstrtab []byte
}

// openObject reads path in full and validates it as a 32-bit relocatable
// ELF object (spec.md §4.B): magic bytes and e_type == ET_REL. Class,
// endianness, version, and machine bytes are not checked.
func openObject(path string) (*object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotFindLibrary, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidElf, err)
	}

	ehdr, err := parseEhdr32(data)
	if err != nil {
		return nil, err
	}
	if ehdr.typ != etRel {
		return nil, fmt.Errorf("%w: e_type=%d, want ET_REL", ErrInvalidElf, ehdr.typ)
	}

	o := &object{path: path, data: data, ehdr: ehdr}
	if err := o.readSectionHeaders(); err != nil {
		return nil, err
	}
	if err := o.readShStrtab(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *object) readSectionHeaders() error {
	off := int(o.ehdr.shoff)
	n := int(o.ehdr.shnum)
	shdrs := make([]shdr32, n)
	for i := 0; i < n; i++ {
		start := off + i*shdrSize
		if start+shdrSize > len(o.data) {
			return fmt.Errorf("%w: section header %d truncated", ErrInvalidElf, i)
		}
		shdrs[i] = parseShdr32(o.data[start : start+shdrSize])
	}
	o.shdrs = shdrs
	return nil
}

func (o *object) readShStrtab() error {
	idx := int(o.ehdr.shstrndx)
	if idx < 0 || idx >= len(o.shdrs) {
		return fmt.Errorf("%w: bad shstrndx", ErrInvalidElf)
	}
	sh := o.shdrs[idx]
	start, end := sh.offset, sh.offset+sh.size
	if int(end) > len(o.data) {
		return fmt.Errorf("%w: shstrtab truncated", ErrInvalidElf)
	}
	o.shstrtab = o.data[start:end]
	return nil
}

// sectionName returns the name of section i from the section-header string
// table.
func (o *object) sectionName(i int) string {
	return cstr(o.shstrtab, o.shdrs[i].name)
}

// sectionData returns the on-disk bytes of section i. Callers must not call
// this for SHT_NOBITS sections, which occupy no file space.
func (o *object) sectionData(i int) ([]byte, error) {
	sh := o.shdrs[i]
	start, end := sh.offset, sh.offset+sh.size
	if int(end) > len(o.data) {
		return nil, fmt.Errorf("%w: section %d truncated", ErrInvalidElf, i)
	}
	return o.data[start:end], nil
}
