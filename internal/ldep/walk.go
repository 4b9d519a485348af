package ldep

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Direction selects which cross-reference lists a walk follows, spec.md
// §4.J's WALK_EXPORTS vs WALK_IMPORTS mode flags.
type Direction int

const (
	// DirDependents walks from an object to every object that imports one
	// of its exported symbols ("who needs me"), spec.md's WALK_EXPORTS
	// mode: "Recursion branches through imported-from lists". This is the
	// direction Unlink uses to build its cascading closure.
	DirDependents Direction = iota
	// DirDependencies walks from an object to every object that exports
	// one of its imported symbols ("who do I need"), spec.md's
	// WALK_IMPORTS mode: "branches through exported-by lists".
	DirDependencies
)

// walker implements the depth-first traversal of spec.md §4.J. The
// original threads per-traversal state through each node's scratch
// pointer; spec.md §9's design note prescribes replacing that with an
// explicit visited set, so this uses a map keyed by object instead — on-path
// membership only (cleared on backtrack) unless buildList is set, in which
// case membership is permanent and doubles as the de-duplicated work list.
type walker struct {
	dir       Direction
	buildList bool
	action    func(*Object)
	onPath    map[*Object]bool
	list      []*Object
}

func (w *walker) visit(o *Object) {
	if w.onPath[o] {
		return // cycle break: re-encountering a marked node terminates the branch
	}
	w.onPath[o] = true

	if w.buildList {
		w.list = append(w.list, o)
	} else if w.action != nil {
		w.action(o)
	}

	switch w.dir {
	case DirDependents:
		for _, x := range o.Exports {
			for _, imp := range x.Symbol.ImportedBy {
				w.visit(imp.Object)
			}
		}
	case DirDependencies:
		for _, x := range o.Imports {
			for _, exp := range x.Symbol.ExportedBy {
				w.visit(exp.Object)
			}
		}
	}

	if !w.buildList {
		delete(w.onPath, o)
	}
}

// Walk performs the depth-first traversal of spec.md §4.J starting at
// start. When buildList is false, action fires on each node at first visit
// along the current path, and the node's on-path mark is cleared on
// backtrack, so the same node may be visited again via a different branch.
// When buildList is true, action is ignored and every first-visited node is
// appended to the returned slice instead (the work list is never cleared,
// so the result has no duplicates); this is the mode Unlink uses.
func (g *Graph) Walk(start *Object, dir Direction, buildList bool, action func(*Object)) []*Object {
	w := &walker{dir: dir, buildList: buildList, action: action, onPath: make(map[*Object]bool)}
	w.visit(start)
	return w.list
}

// Link implements spec.md §4.J's link(object, reason): the object's
// link-set anchor must already be assigned. For each import, the importing
// relationship is registered on the defining symbol's ImportedBy list (this
// is the only place ImportedBy ever grows, per listing.go's Fixup doc
// comment), and if the defining object has no anchor yet it inherits this
// object's anchor and is linked in turn.
func (g *Graph) Link(o *Object, reason string) error {
	if o.Anchor == nil {
		return fmt.Errorf("%w: %s (%s)", ErrNoAnchor, o.Name, reason)
	}
	for _, imp := range o.Imports {
		sym := imp.Symbol
		if len(sym.ExportedBy) == 0 {
			return fmt.Errorf("%w: %s needed by %s", ErrSymbolUndefined, sym.Name, o.Name)
		}
		def := sym.ExportedBy[0].Object
		sym.ImportedBy = append(sym.ImportedBy, imp)

		if def.Anchor == nil {
			o.Anchor.addMember(def)
			if err := g.Link(def, reason); err != nil {
				return err
			}
		}
	}
	return nil
}

// LinkInto anchors o into set (if not already anchored elsewhere) and links
// it. Objects already anchored are left untouched: re-linking an object
// that is already part of a set is a no-op, matching the original's
// guard against re-processing a mandatory root that a later -o listing
// also names.
func (g *Graph) LinkInto(set *LinkSet, o *Object, reason string) error {
	if o.Anchor != nil {
		return nil
	}
	set.addMember(o)
	return g.Link(o, reason)
}

// detachObject removes o from every symbol's ImportedBy list it appears on
// as an importer, drops it from its link-set's member chain, and clears its
// anchor. It does not touch o's own Exports/ExportedBy entries: any object
// still depending on one of o's exports is, by construction of the
// exports-closure work list Unlink builds, also being detached in the same
// pass.
func detachObject(o *Object) {
	for _, imp := range o.Imports {
		sym := imp.Symbol
		for i, x := range sym.ImportedBy {
			if x == imp {
				sym.ImportedBy = append(sym.ImportedBy[:i], sym.ImportedBy[i+1:]...)
				break
			}
		}
	}
	if o.Anchor != nil {
		o.Anchor.removeMember(o)
		o.Anchor = nil
	}
}

// Unlink implements spec.md §4.J's unlink(root, check-only). It first
// builds the full exports-closure work list (root plus every object
// transitively depending on root, via DirDependents). If any member
// belongs to the Application set, the unlink is refused and that object is
// returned as rejected — P7 holds regardless of checkOnly, since spec.md
// says check-only must report exactly what a real unlink would refuse.
// When not rejected and checkOnly is false, every work-list member is
// detached and a sanity pass (spec.md §9 / SPEC_FULL.md §3
// "checkObjPtrs/checkCircWorkList") asserts no removed object's exported
// symbol is still claimed by a surviving importer.
func (g *Graph) Unlink(root *Object, checkOnly bool) (rejected *Object, worklist []*Object, err error) {
	worklist = g.Walk(root, DirDependents, true, nil)

	for _, o := range worklist {
		if o.Anchor == g.Application {
			return o, worklist, nil
		}
	}

	if checkOnly {
		return nil, worklist, nil
	}

	for _, o := range worklist {
		detachObject(o)
	}

	for _, o := range worklist {
		for _, x := range o.Exports {
			if len(x.Symbol.ImportedBy) != 0 {
				return nil, worklist, fmt.Errorf("%w: %s still imported after unlinking %s",
					ErrSymbolUndefined, x.Symbol.Name, o.Name)
			}
		}
	}

	return nil, worklist, nil
}

// PurgeUndefined implements spec.md §4.J's undefined purge: for each export
// of the synthetic UNDEFINED object, every importer is a candidate for
// unlinking; rejections (the importer is mandatory) are skipped silently,
// "assumed to be provided by link scripts or startup files."
func (g *Graph) PurgeUndefined() ([]*Object, error) {
	var unlinked []*Object
	for _, x := range g.undefinedObj.Exports {
		sym := x.Symbol
		importers := append([]*Xref(nil), sym.ImportedBy...)
		for _, imp := range importers {
			rejected, worklist, err := g.Unlink(imp.Object, false)
			if err != nil {
				return unlinked, err
			}
			if rejected != nil {
				continue
			}
			unlinked = append(unlinked, worklist...)
		}
	}
	return unlinked, nil
}

// Clash is one multiply-defined symbol report, spec.md §4.J's
// multiple-definition check / P8.
type Clash struct {
	Symbol    *Symbol
	Exporters []*Object
}

// MultipleDefinitions reports every exported symbol whose ExportedBy list
// has length > 1, excluding type 'C'/'c' (common, which coalesces rather
// than clashing), in deterministic name order.
func (g *Graph) MultipleDefinitions() []Clash {
	var out []Clash
	for _, s := range g.symbols {
		if len(s.ExportedBy) <= 1 {
			continue
		}
		if s.Type == 'C' || s.Type == 'c' {
			continue
		}
		exporters := make([]*Object, 0, len(s.ExportedBy))
		for _, x := range s.ExportedBy {
			exporters = append(exporters, x.Object)
		}
		out = append(out, Clash{Symbol: s, Exporters: exporters})
	}
	slices.SortFunc(out, func(a, b Clash) int {
		if a.Symbol.Name < b.Symbol.Name {
			return -1
		}
		if a.Symbol.Name > b.Symbol.Name {
			return 1
		}
		return 0
	})
	return out
}
