// Command ldep is the static dependency linker / link-set analyzer
// (spec.md §C2): it ingests nm -g -fposix symbol listings, builds the
// inter-object dependency graph, partitions objects into mandatory
// (Application) and optional link sets, and emits either a linker
// directive file or an embeddable symbol-table source file.
package main

import (
	"fmt"
	"math"
	"os"

	"github.com/openobjdl/objdl/internal/config"
	"github.com/openobjdl/objdl/internal/ldep"
	objlog "github.com/openobjdl/objdl/internal/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	mandatorySymbol string
	searchDirs      []string
	optionalLists   []string
	excludeLists    []string
	emitLinker      string
	emitSource      string
	omitApplication bool
	sloppyUnlink    bool
	lenient         bool
	checkMultiDefs  bool
	interactive     bool
	listObjects     bool
	listUndefined   bool
	dumpStats       bool
	showSloppiness  bool
	quiet           bool
	cfgFile         string
	debug           bool
	tolerance       int
)

func main() {
	cmd := &cobra.Command{
		Use:   "ldep [listing files...]",
		Short: "Analyze nm symbol listings and partition objects into link sets",
		Long: `ldep reads one or more "nm -g -fposix" symbol listings (or stdin if
none are given), builds the symbol/object dependency graph they describe,
computes the mandatory (Application) and optional link-set closures, checks
for multiply defined symbols, and emits a linker directive file or an
embeddable symbol-table source file.`,
		RunE: run,
	}

	cmd.Flags().StringVarP(&mandatorySymbol, "mandatory-symbol", "A", "", "set the mandatory root by symbol name, overrides first-file convention")
	cmd.Flags().StringSliceVarP(&searchDirs, "search-path", "L", nil, "append a search path directory (repeatable)")
	cmd.Flags().StringSliceVarP(&optionalLists, "optional", "o", nil, "add optional objects from list file (repeatable)")
	cmd.Flags().StringSliceVarP(&excludeLists, "exclude", "x", nil, "remove objects from list file (repeatable)")
	cmd.Flags().StringVarP(&emitLinker, "emit-linker", "e", "", "emit a linker directive file")
	cmd.Flags().StringVarP(&emitSource, "emit-source", "C", "", "emit a C-like symbol-table source file")
	cmd.Flags().BoolVarP(&omitApplication, "omit-application", "O", false, "omit the Application set from output")
	cmd.Flags().BoolVarP(&sloppyUnlink, "sloppy-unlink", "F", false, "do not fail the run when the sloppiness budget is exceeded")
	cmd.Flags().BoolVarP(&lenient, "lenient", "f", false, "lenient symbol-type scanning ('?' accepted as import)")
	cmd.Flags().BoolVarP(&checkMultiDefs, "multi-defs", "m", false, "check and report multiply defined symbols")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "run the interactive query REPL")
	cmd.Flags().BoolVarP(&listObjects, "list-objects", "l", false, "list every scanned object")
	cmd.Flags().BoolVarP(&listUndefined, "list-undefined", "u", false, "list every symbol attached to UNDEFINED")
	cmd.Flags().BoolVarP(&dumpStats, "dump", "d", false, "dump object/symbol counts")
	cmd.Flags().BoolVarP(&showSloppiness, "show-sloppiness", "s", false, "print the accumulated sloppiness budget events")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress informational output")
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	cmd.Flags().BoolVarP(&debug, "verbose", "v", false, "verbose debug logging")
	cmd.Flags().IntVar(&tolerance, "sloppiness-tolerance", -10, "sloppiness budget tolerance (non-positive)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	objlog.Init(debug)
	if err := config.ReadConfigFile(cfgFile); err != nil {
		return err
	}
	config.BindAnalyzerFlags(&searchDirs, &tolerance, &debug)
	cfg := config.ResolveAnalyzer()

	budget := ldep.NewBudget(cfg.SloppinessTolerance)
	if sloppyUnlink {
		budget = ldep.NewBudget(math.MinInt32)
	}

	g := ldep.NewGraph()
	g.Lenient = lenient

	if err := scanInputs(g, args); err != nil {
		return err
	}
	g.Fixup()
	g.AttachUndefined()

	log := objlog.L
	if log == nil {
		log = objlog.NewNop()
	}

	if err := linkMandatoryRoot(g); err != nil {
		return err
	}

	for _, path := range optionalLists {
		if err := g.ProcessOptionalList(path, budget); err != nil {
			return err
		}
	}
	for _, path := range excludeLists {
		if err := g.ProcessExcludeList(path, budget); err != nil {
			return err
		}
	}
	if _, err := g.PurgeUndefined(); err != nil {
		return err
	}

	if checkMultiDefs {
		reportMultiDefs(g, quiet)
	}
	if listObjects && !quiet {
		for _, o := range g.Objects() {
			fmt.Println(o.Name)
		}
	}
	if listUndefined && !quiet {
		for _, x := range g.Undefined.Members[0].Exports {
			fmt.Println(x.Symbol.Name)
		}
	}
	if dumpStats && !quiet {
		fmt.Printf("objects=%d symbols=%d application=%d optional=%d\n",
			len(g.Objects()), len(g.Symbols()), len(g.Application.Members), len(g.Optional.Members))
	}
	if showSloppiness && !quiet {
		for _, e := range budget.Events() {
			fmt.Println(e)
		}
		fmt.Printf("sloppiness total: %d\n", budget.Total())
	}

	if interactive {
		if err := g.Interactive(os.Stdin, os.Stdout); err != nil {
			return err
		}
	}

	if emitLinker != "" {
		if err := emitTo(emitLinker, func(w *os.File) error {
			if !omitApplication {
				if err := ldep.EmitLinkerDirective(w, g.Application); err != nil {
					return err
				}
			}
			return ldep.EmitLinkerDirective(w, g.Optional)
		}); err != nil {
			return err
		}
	}

	if emitSource != "" {
		if err := emitTo(emitSource, func(w *os.File) error {
			if !omitApplication {
				if err := ldep.EmitSymbolTableSource(w, g.Application.Name, g.Application); err != nil {
					return err
				}
			}
			return ldep.EmitSymbolTableSource(w, g.Optional.Name, g.Optional)
		}); err != nil {
			return err
		}
	}

	if budget.Exceeded() {
		log.Warn("sloppiness budget exceeded", zap.Int("total", budget.Total()), zap.Int("tolerance", budget.Tolerance))
		return fmt.Errorf("sloppiness budget exceeded: total=%d tolerance=%d", budget.Total(), budget.Tolerance)
	}
	return nil
}

func scanInputs(g *ldep.Graph, paths []string) error {
	if len(paths) == 0 {
		return g.ScanListing(os.Stdin)
	}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening listing %q: %w", path, err)
		}
		err = g.ScanListing(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("scanning listing %q: %w", path, err)
		}
	}
	return nil
}

// linkMandatoryRoot implements spec.md §6's -A override vs. the default
// "first file is mandatory" convention: absent -A, the first real object
// encountered (the synthetic UNDEFINED object is always id 0) anchors the
// Application set.
func linkMandatoryRoot(g *ldep.Graph) error {
	if mandatorySymbol != "" {
		return g.LinkMandatoryBySymbol(mandatorySymbol)
	}
	objs := g.Objects()
	if len(objs) <= 1 {
		return nil
	}
	return g.LinkInto(g.Application, objs[1], "first-file convention")
}

func reportMultiDefs(g *ldep.Graph, quiet bool) {
	clashes := g.MultipleDefinitions()
	if quiet {
		return
	}
	for _, c := range clashes {
		fmt.Printf("multiply defined: %s\n", c.Symbol.Name)
		for _, o := range c.Exporters {
			fmt.Printf("  %s\n", o.Name)
		}
	}
}

func emitTo(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %q: %w", path, err)
	}
	defer f.Close()
	return write(f)
}
