// Command objdl drives the runtime loader (spec.md §C1) from the command
// line: open a relocatable object against a search path and a process
// symbol map, look up an exported symbol, and close it again. It exists to
// give the loader package an end-to-end entry point the way cmd/galago gave
// the teacher's emulator one.
package main

import (
	"fmt"
	"os"

	"github.com/openobjdl/objdl/internal/config"
	"github.com/openobjdl/objdl/internal/loader"
	objlog "github.com/openobjdl/objdl/internal/log"
	"github.com/spf13/cobra"
)

var (
	searchPath     []string
	searchPathFile string
	symbolMap      string
	cfgFile        string
	debug          bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "objdl",
		Short: "Load 32-bit ELF relocatable objects and resolve their symbols",
		Long: `objdl is a runtime loader for 32-bit ELF relocatable objects.

It reads an object file, allocates memory for its sections, resolves its
external references against a process symbol table, applies relocations,
and exposes the result's exported symbols by name — the same pipeline a
dlopen/dlsym/dlclose veneer would drive.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			objlog.Init(debug)
			return config.ReadConfigFile(cfgFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringSliceVarP(&searchPath, "search-path", "L", []string{"."}, "library search path, repeatable")
	rootCmd.PersistentFlags().StringVar(&symbolMap, "symbol-map", "", "process symbol-map file (spec.md §6)")
	rootCmd.PersistentFlags().StringVar(&searchPathFile, "search-path-file", "", "YAML file listing additional search-path directories")
	rootCmd.PersistentFlags().BoolVarP(&debug, "verbose", "v", false, "verbose debug logging")

	rootCmd.AddCommand(openCmd(), symbolCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLoader() (*loader.Loader, error) {
	config.BindLoaderFlags(&searchPath, &symbolMap, &debug)
	cfg := config.ResolveLoader()

	extra, err := config.LoadSearchPathYAML(searchPathFile)
	if err != nil {
		return nil, err
	}
	sp := &loader.SearchPath{Dirs: append(cfg.SearchPath, extra...)}
	registry := loader.NewProcessRegistry()
	if path := cfg.ExistingSymbolMapPath(); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening symbol map %q: %w", path, err)
		}
		defer f.Close()
		if err := registry.LoadSymbolMap(f); err != nil {
			return nil, fmt.Errorf("loading symbol map %q: %w", path, err)
		}
	}
	return loader.NewLoader(sp, registry), nil
}

func openCmd() *cobra.Command {
	var lazy bool
	cmd := &cobra.Command{
		Use:   "open <object.o>",
		Short: "Load an object, report its handle, and close it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLoader()
			if err != nil {
				return err
			}
			flags := loader.RtldNow
			if lazy {
				flags = loader.RtldLazy
			}
			h, err := l.Open(args[0], flags)
			if err != nil {
				return fmt.Errorf("open %q: %w (%s)", args[0], err, l.LastError())
			}
			fmt.Printf("loaded %s as handle %d\n", args[0], h)
			return l.Close(h)
		},
	}
	cmd.Flags().BoolVar(&lazy, "lazy", false, "pass RTLD_LAZY instead of RTLD_NOW")
	return cmd
}

func symbolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "symbol <object.o> <name>",
		Short: "Load an object and print the resolved address of one exported symbol",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLoader()
			if err != nil {
				return err
			}
			h, err := l.Open(args[0], loader.RtldNow)
			if err != nil {
				return fmt.Errorf("open %q: %w", args[0], err)
			}
			defer l.Close(h)

			addr, err := l.Symbol(h, args[1])
			if err != nil {
				return fmt.Errorf("symbol %q: %w", args[1], err)
			}
			fmt.Printf("%s = 0x%08x\n", args[1], addr)
			return nil
		},
	}
	return cmd
}
