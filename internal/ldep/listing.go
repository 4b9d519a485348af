package ldep

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// kind classifies a symbol sighting as an export or an import, spec.md §4.H.
type kind int

const (
	kindImport kind = iota
	kindExport
)

// classifyType implements the nm type-character dispatch of spec.md §4.H.
// 'w' is always treated as an import (a documented gcc quirk carried over
// from original_source/ldep/ldep.c); '?' is only accepted as an import when
// lenient is true.
func classifyType(t byte, lenient bool) (k kind, weak bool, ok bool) {
	switch t {
	case 'U', 'w':
		return kindImport, false, true
	case '?':
		if lenient {
			return kindImport, false, true
		}
		return 0, false, false
	case 'D', 'T', 'B', 'R', 'G', 'S', 'A', 'C':
		return kindExport, false, true
	case 'W', 'V':
		return kindExport, true, true
	default:
		return 0, false, false
	}
}

// splitName splits an archive-member name of the form "lib[member]" into
// its library and member components. ok is false for a plain object name.
func splitName(name string) (lib, member string, ok bool) {
	open := strings.IndexByte(name, '[')
	if open < 0 || !strings.HasSuffix(name, "]") {
		return "", "", false
	}
	return name[:open], name[open+1 : len(name)-1], true
}

// ScanListing reads one nm -g -fposix listing (spec.md §4.H) and populates
// g with objects, symbols, and their export/import cross-references.
// Callers must call Fixup once after every listing has been scanned.
func (g *Graph) ScanListing(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	var current *Object
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" {
			continue
		}

		if strings.HasSuffix(line, ":") && !strings.ContainsAny(line, " \t") {
			name := strings.TrimSuffix(line, ":")
			current = g.objectForListingName(name)
			continue
		}

		if current == nil {
			return fmt.Errorf("listing line %d: symbol line before any object marker", lineNo)
		}

		if err := g.scanSymbolLine(current, line); err != nil {
			return fmt.Errorf("listing line %d: %w", lineNo, err)
		}
	}
	return sc.Err()
}

// objectForListingName resolves an object marker, splitting archive-member
// syntax and interning the backing library if present.
func (g *Graph) objectForListingName(name string) *Object {
	if libName, member, ok := splitName(name); ok {
		lib := g.library(libName)
		return g.newObject(member, lib)
	}
	return g.newObject(name, nil)
}

func (g *Graph) scanSymbolLine(obj *Object, line string) error {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return fmt.Errorf("malformed symbol line %q", line)
	}
	name := fields[0]
	if len(fields[1]) != 1 {
		return fmt.Errorf("malformed type field in %q", line)
	}
	typeChar := fields[1][0]

	k, weak, ok := classifyType(typeChar, g.Lenient)
	if !ok {
		return fmt.Errorf("unrecognized symbol type %q for %q", string(typeChar), name)
	}

	var value, size uint64
	if len(fields) >= 3 {
		v, err := strconv.ParseUint(fields[2], 16, 64)
		if err == nil {
			value = v
		}
	}
	if len(fields) >= 4 {
		v, err := strconv.ParseUint(fields[3], 16, 64)
		if err == nil {
			size = v
		}
	}

	sym := g.symbol(name)

	switch k {
	case kindExport:
		if sym.Type == 0 || sym.Type == 'U' {
			sym.Type = typeChar
			sym.Weak = weak
			sym.Value = value
			sym.Size = size
		}
		xref := &Xref{Object: obj, Symbol: sym, Weak: weak}
		obj.Exports = append(obj.Exports, xref)

	case kindImport:
		if sym.Type == 0 {
			sym.Type = 'U'
		}
		xref := &Xref{Object: obj, Symbol: sym}
		obj.Imports = append(obj.Imports, xref)
	}

	return nil
}

// Fixup chains each object's export cross-references onto its symbols'
// ExportedBy lists (spec.md §4.I). It must run only after every listing has
// been scanned, since Object.Exports may have been grown by reallocation up
// to that point. Import cross-references are chained onto a symbol's
// ImportedBy list later, by Link, and unchained by Unlink — imports only
// exist in a symbol's "who needs me" list while the importing object is
// actually anchored into a link set (spec.md §4.J).
func (g *Graph) Fixup() {
	for _, o := range g.allObjects {
		for _, x := range o.Exports {
			x.Symbol.ExportedBy = append(x.Symbol.ExportedBy, x)
		}
	}
}

// AttachUndefined walks every interned symbol and, for any with no
// exporter, records it as an export of the synthetic UNDEFINED object
// (spec.md §4.H final pass, P9). Must run after Fixup.
func (g *Graph) AttachUndefined() {
	for _, s := range g.symbols {
		if len(s.ExportedBy) == 0 {
			xref := &Xref{Object: g.undefinedObj, Symbol: s}
			g.undefinedObj.Exports = append(g.undefinedObj.Exports, xref)
			s.ExportedBy = append(s.ExportedBy, xref)
		}
	}
}
