package ldep

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Interactive runs the line-oriented query REPL of SPEC_FULL.md §3
// ("Interactive query mode"), reading symbol or lib[member] object queries
// from r and writing one level of dependencies to w: an object's direct
// imports and exports, or a symbol's exporting and importing objects. It
// does not recurse further. Pretty-printing concerns are explicitly out of
// scope (spec.md §1); this only formats plain indented lines, without the
// excluded database-query presentation layer.
func (g *Graph) Interactive(r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	fmt.Fprintln(bw, "query (symbol or lib[member], blank line to quit):")
	for sc.Scan() {
		query := strings.TrimSpace(sc.Text())
		if query == "" {
			break
		}
		if lib, member, ok := splitName(query); ok {
			objs := g.ObjectsNamed(member)
			found := false
			for _, o := range objs {
				if o.Library != nil && o.Library.Name == lib {
					g.trackObj(bw, o)
					found = true
					break
				}
			}
			if !found {
				fmt.Fprintf(bw, "%s: %v\n", query, ErrObjectNotFound)
			}
			continue
		}

		if objs := g.ObjectsNamed(query); len(objs) > 0 {
			if len(objs) > 1 {
				fmt.Fprintf(bw, "%s: %v (%d libraries)\n", query, ErrAmbiguousObject, len(objs))
				continue
			}
			g.trackObj(bw, objs[0])
			continue
		}

		g.trackSym(bw, query)
	}
	return sc.Err()
}

// trackObj prints one object's direct imports and exports, mirroring the
// original's trackObj query.
func (g *Graph) trackObj(w *bufio.Writer, o *Object) {
	fmt.Fprintf(w, "%s", objectBanner(o))
	if o.Anchor != nil {
		fmt.Fprintf(w, " [%s]", o.Anchor.Name)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  imports:")
	for _, x := range o.Imports {
		fmt.Fprintf(w, "    %s\n", x.Symbol.Name)
	}
	fmt.Fprintln(w, "  exports:")
	for _, x := range o.Exports {
		fmt.Fprintf(w, "    %s\n", x.Symbol.Name)
	}
}

// trackSym prints the set of objects that export and import a symbol,
// mirroring the original's trackSym query.
func (g *Graph) trackSym(w *bufio.Writer, name string) {
	sym, ok := g.symbols[name]
	if !ok {
		fmt.Fprintf(w, "%s: %v\n", name, ErrObjectNotFound)
		return
	}
	fmt.Fprintf(w, "%s (type %c)\n", sym.Name, sym.Type)
	fmt.Fprintln(w, "  exported by:")
	for _, x := range sym.ExportedBy {
		fmt.Fprintf(w, "    %s\n", objectBanner(x.Object))
	}
	fmt.Fprintln(w, "  imported by:")
	for _, x := range sym.ImportedBy {
		fmt.Fprintf(w, "    %s\n", objectBanner(x.Object))
	}
}
