package ldep

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildGraph scans listing and runs the standard Fixup/AttachUndefined
// pipeline every caller needs before linking.
func buildGraph(t *testing.T, listing string) *Graph {
	t.Helper()
	g := NewGraph()
	require.NoError(t, g.ScanListing(strings.NewReader(listing)))
	g.Fixup()
	g.AttachUndefined()
	return g
}

// Scenario 5: a.o imports x, b.o exports x and imports y, c.o exports y.
// Running with a.o mandatory must yield Application = {a, b, c}.
func TestLinkSetClosure(t *testing.T) {
	listing := `a.o:
x U
b.o:
x T 0 4
y U
c.o:
y T 0 4
`
	g := buildGraph(t, listing)

	a := g.ObjectsNamed("a.o")[0]
	require.NoError(t, g.LinkInto(g.Application, a, "mandatory"))

	names := map[string]bool{}
	for _, o := range g.Application.Members {
		names[o.Name] = true
	}
	require.True(t, names["a.o"], "Application set = %v, want a.o present", names)
	require.True(t, names["b.o"], "Application set = %v, want b.o present", names)
	require.True(t, names["c.o"], "Application set = %v, want c.o present", names)
}

// Scenario 5 continued: excluding c.o via -x must be rejected once it is
// part of the mandatory Application set.
func TestExcludeMandatoryRejected(t *testing.T) {
	listing := `a.o:
x U
b.o:
x T 0 4
y U
c.o:
y T 0 4
`
	g := buildGraph(t, listing)
	a := g.ObjectsNamed("a.o")[0]
	require.NoError(t, g.LinkInto(g.Application, a, "mandatory"))

	c := g.ObjectsNamed("c.o")[0]
	rejected, _, err := g.Unlink(c, false)
	require.NoError(t, err)
	require.NotNil(t, rejected, "unlink of c.o should be rejected, it is in the Application set")
}

// P7: unlink(o, check-only=true) returns rejected iff a real unlink would
// remove an Application-set member.
func TestUnlinkCheckOnlyMatchesRealRun(t *testing.T) {
	listing := `root.o:
x U
dep.o:
x T 0 4
`
	g := buildGraph(t, listing)
	root := g.ObjectsNamed("root.o")[0]
	require.NoError(t, g.LinkInto(g.Application, root, "mandatory"))

	dep := g.ObjectsNamed("dep.o")[0]
	rejectedCheck, worklistCheck, err := g.Unlink(dep, true)
	require.NoError(t, err)
	require.NotNil(t, rejectedCheck)

	// A real run must report the exact same rejection.
	rejectedReal, worklistReal, err := g.Unlink(dep, false)
	require.NoError(t, err)
	require.Equal(t, rejectedCheck, rejectedReal)
	require.ElementsMatch(t, worklistCheck, worklistReal)

	// dep.o must remain anchored: the rejected run never detaches anything.
	require.Equal(t, g.Application, dep.Anchor)
}

// Optional objects can be freely unlinked.
func TestUnlinkOptionalSucceeds(t *testing.T) {
	listing := `root.o:
x U
dep.o:
x T 0 4
`
	g := buildGraph(t, listing)
	root := g.ObjectsNamed("root.o")[0]
	require.NoError(t, g.LinkInto(g.Optional, root, "optional"))

	rejected, worklist, err := g.Unlink(root, false)
	require.NoError(t, err)
	require.Nil(t, rejected)
	require.Len(t, worklist, 1)
	require.Nil(t, root.Anchor)

	sym := g.symbols["x"]
	require.Empty(t, sym.ImportedBy, "dep.o's x export should have no importers left")
}

// Scenario 6: two objects both export GLOBAL symbol k (type T); -m must
// report exactly one clash. With type C instead, zero clashes.
func TestMultipleDefinitions(t *testing.T) {
	listing := `a.o:
k T 0 4
b.o:
k T 0 4
`
	g := buildGraph(t, listing)
	clashes := g.MultipleDefinitions()
	require.Len(t, clashes, 1)
	require.Equal(t, "k", clashes[0].Symbol.Name)
}

func TestMultipleDefinitionsCommonCoalesces(t *testing.T) {
	listing := `a.o:
k C 0 4
b.o:
k C 0 4
`
	g := buildGraph(t, listing)
	require.Empty(t, g.MultipleDefinitions())
}

// P9: after scan, every symbol with no definer is an export of exactly the
// synthetic UNDEFINED object.
func TestUndefinedAttachment(t *testing.T) {
	listing := `a.o:
mystery U
`
	g := buildGraph(t, listing)
	sym := g.symbols["mystery"]
	require.Len(t, sym.ExportedBy, 1)
	require.Equal(t, "UNDEFINED", sym.ExportedBy[0].Object.Name)
}

// Archive-member disambiguation: a bare member name resolving to more than
// one library is ambiguous.
func TestAmbiguousObjectAcrossLibraries(t *testing.T) {
	listing := `liba.a[mod.o]:
f T 0 4
libb.a[mod.o]:
g T 0 4
`
	g := buildGraph(t, listing)
	budget := NewBudget(-10)
	_, ok := g.resolveName("mod.o", budget)
	require.False(t, ok)
	require.Equal(t, SeverityAmbiguousObject, budget.Total())
}

func TestCyclicImportsDoNotHang(t *testing.T) {
	listing := `a.o:
x U
y T 0 4
b.o:
y U
x T 0 4
`
	g := buildGraph(t, listing)
	a := g.ObjectsNamed("a.o")[0]
	require.NoError(t, g.LinkInto(g.Application, a, "mandatory"))

	worklist := g.Walk(a, DirDependents, true, nil)
	require.NotEmpty(t, worklist)
}
