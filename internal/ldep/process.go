package ldep

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// readListFile returns the object names named by path, charging budget with
// SeverityListFileNotFound if it cannot be opened (spec.md §6's -o/-x list
// files, SPEC_FULL.md §3's sloppiness-budget processing). A ".yaml"/".yml"
// path is parsed as a YAML sequence of names (SPEC_FULL.md §2's DOMAIN
// STACK entry for gopkg.in/yaml.v3); anything else is read as one
// non-blank, non-comment name per line, the original list-file format.
func readListFile(path string, budget *Budget) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		budget.Charge(SeverityListFileNotFound, fmt.Sprintf("list file %q: %v", path, err))
		return nil, fmt.Errorf("%w: %s", ErrListFileNotFound, path)
	}
	defer f.Close()

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return readYAMLList(f)
	default:
		return readPlainList(f)
	}
}

func readYAMLList(r io.Reader) ([]string, error) {
	var names []string
	if err := yaml.NewDecoder(r).Decode(&names); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decoding YAML list: %w", err)
	}
	return names, nil
}

func readPlainList(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	return names, sc.Err()
}

// resolveName looks up name in the graph, charging budget on ambiguity or
// absence (spec.md §4.H archive disambiguation, SPEC_FULL.md §3).
func (g *Graph) resolveName(name string, budget *Budget) (*Object, bool) {
	if lib, member, ok := splitName(name); ok {
		for _, o := range g.ObjectsNamed(member) {
			if o.Library != nil && o.Library.Name == lib {
				return o, true
			}
		}
		budget.Charge(SeverityObjectNotFound, fmt.Sprintf("object %q not found", name))
		return nil, false
	}

	objs := g.ObjectsNamed(name)
	switch len(objs) {
	case 0:
		budget.Charge(SeverityObjectNotFound, fmt.Sprintf("object %q not found", name))
		return nil, false
	case 1:
		return objs[0], true
	default:
		budget.Charge(SeverityAmbiguousObject, fmt.Sprintf("object %q is ambiguous across %d libraries", name, len(objs)))
		return nil, false
	}
}

// ProcessOptionalList implements spec.md §6's -o <list>: every named object
// not already anchored is linked into the Optional set.
func (g *Graph) ProcessOptionalList(path string, budget *Budget) error {
	names, err := readListFile(path, budget)
	if err != nil {
		return err
	}
	for _, name := range names {
		o, ok := g.resolveName(name, budget)
		if !ok {
			continue
		}
		if err := g.LinkInto(g.Optional, o, "optional list "+path); err != nil {
			return err
		}
	}
	return nil
}

// ProcessExcludeList implements spec.md §6's -x <list>: every named object
// is unlinked (cascading to its dependents). An object whose removal would
// damage the Application set charges SeverityMandatoryRejected and is
// otherwise skipped, matching spec.md scenario 5: "Excluding c.o via -x
// must be rejected."
func (g *Graph) ProcessExcludeList(path string, budget *Budget) error {
	names, err := readListFile(path, budget)
	if err != nil {
		return err
	}
	for _, name := range names {
		o, ok := g.resolveName(name, budget)
		if !ok {
			continue
		}
		rejected, _, err := g.Unlink(o, false)
		if err != nil {
			return err
		}
		if rejected != nil {
			budget.Charge(SeverityMandatoryRejected,
				fmt.Sprintf("cannot exclude %q: %s is mandatory", name, rejected.Name))
		}
	}
	return nil
}

// LinkMandatoryBySymbol implements spec.md §6's -A <sym>: find the object
// that exports sym and anchor it (and its transitive dependencies) into the
// Application set, overriding the "first file is mandatory" convention.
func (g *Graph) LinkMandatoryBySymbol(symName string) error {
	sym, ok := g.symbols[symName]
	if !ok || len(sym.ExportedBy) == 0 {
		return fmt.Errorf("%w: no object exports %q", ErrObjectNotFound, symName)
	}
	return g.LinkInto(g.Application, sym.ExportedBy[0].Object, "mandatory root -A "+symName)
}
