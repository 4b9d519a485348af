package ldep

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// stripVersion removes a "@version" suffix from a symbol name, spec.md §6:
// "version suffix after @ is stripped from the real name."
func stripVersion(name string) string {
	if i := strings.IndexByte(name, '@'); i >= 0 {
		return name[:i]
	}
	return name
}

// EmitLinkerDirective writes spec.md §6's linker-directive output: one
// EXTERN(symbol) line per exported symbol, grouped under a per-object
// banner comment, in set.Members iteration order (insertion order, which is
// already deterministic because Members only ever grows via append).
func EmitLinkerDirective(w io.Writer, set *LinkSet) error {
	bw := bufio.NewWriter(w)
	for _, o := range set.Members {
		fmt.Fprintf(bw, "/* %s */\n", objectBanner(o))
		for _, x := range o.Exports {
			fmt.Fprintf(bw, "EXTERN(%s) /* size %d */\n", x.Symbol.Name, x.Symbol.Size)
		}
	}
	return bw.Flush()
}

// objectBanner names an object for a banner comment, including its owning
// library when present (spec.md §4.H archive-member naming).
func objectBanner(o *Object) string {
	if o.Library != nil {
		return fmt.Sprintf("%s[%s]", o.Library.Name, o.Name)
	}
	return o.Name
}

// EmitSymbolTableSource writes spec.md §6's source-embedding output: an
// embeddable C-like table suitable for internal/loader's ProcessRegistry.
// Declarations are emitted in a first pass, then the table literal in a
// second, matching spec.md §4.K's "two passes: declarations first, then the
// table literal."
func EmitSymbolTableSource(w io.Writer, setName string, set *LinkSet) error {
	bw := bufio.NewWriter(w)

	type entry struct {
		alias string
		real  string
		value uint64
	}
	var entries []entry
	idx := 0
	for _, o := range set.Members {
		for _, x := range o.Exports {
			alias := fmt.Sprintf("__dummy_alias_%s%d", setName, idx)
			idx++
			entries = append(entries, entry{alias: alias, real: stripVersion(x.Symbol.Name), value: x.Symbol.Value})
		}
	}

	for _, e := range entries {
		fmt.Fprintf(bw, "extern int %s;\n", e.alias)
		fmt.Fprintf(bw, "asm(\".set %s, %s\\n\");\n", e.alias, e.real)
	}

	fmt.Fprintf(bw, "\nstruct sym_entry %s_symtab[] = {\n", setName)
	for _, e := range entries {
		fmt.Fprintf(bw, "\t{\"%s\", (unsigned int)&%s},\n", e.real, e.alias)
	}
	fmt.Fprintf(bw, "\t{0, 0},\n};\n")

	return bw.Flush()
}
