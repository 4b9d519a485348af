// Package config binds cobra flags, a viper-layered config file, and
// environment variables into the settings shared by cmd/objdl and
// cmd/ldep, following the viper/cobra wiring pattern of the sibling
// toolchain repo's cmd/root.go (cfgFile flag, AutomaticEnv, optional
// config file read).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

// Loader holds the settings cmd/objdl resolves for one loader invocation.
type Loader struct {
	// SearchPath is the ordered list of directories tried to resolve a
	// library name, spec.md §4.A. It is the search_path setting (the -L
	// flag value, replaced by a config file's search_path list when one is
	// read), followed by the entries of the OBJDL_LIBRARY_PATH environment
	// variable (colon-separated), which are therefore tried last, mirroring
	// LD_LIBRARY_PATH — a capability spec.md §6 notes the original loader
	// left as a TODO.
	SearchPath []string

	// SymbolMap is the path to the process symbol-map file (spec.md §6);
	// OBJDL_SYMBOL_MAP, when set, overrides the flag and config-file value.
	SymbolMap string

	Debug bool
}

// Analyzer holds the settings cmd/ldep resolves for one analyzer invocation.
type Analyzer struct {
	SearchPath []string

	// SloppinessTolerance bounds the accumulated severity budget of §7
	// before the analyzer exits nonzero. The original's list-file-not-found
	// / ambiguous-object / object-not-found / mandatory-rejection severities
	// are negative integers (SPEC_FULL.md §3); tolerance is therefore
	// non-positive too, and a run fails once its running total drops below
	// it.
	SloppinessTolerance int

	Debug bool
}

const (
	envLibraryPath = "OBJDL_LIBRARY_PATH"
	envSymbolMap   = "OBJDL_SYMBOL_MAP"
	envSloppiness  = "OBJDL_SLOPPINESS_TOLERANCE"

	defaultSloppinessTolerance = -10
)

// v is the package-level viper instance both CLIs bind their flags into,
// following the cucaracha cmd/root.go pattern of a single shared viper
// plus cobra.OnInitialize for config-file loading.
var v = viper.New()

func init() {
	v.SetDefault("search_path", []string{"."})
	v.SetDefault("symbol_map", "")
	v.SetDefault("sloppiness_tolerance", defaultSloppinessTolerance)
	v.SetDefault("debug", false)
}

// ReadConfigFile loads an optional YAML config file (viper.SetConfigFile +
// ReadInConfig). An empty path reads nothing; a named file that is missing
// or cannot be parsed is returned as an error.
func ReadConfigFile(path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %q: %w", path, err)
	}
	return nil
}

// BindLoaderFlags records the objdl CLI's persistent flag values in v as
// defaults (SetDefault), so a value from a config file read by
// ReadConfigFile takes precedence over the flag value. Environment
// variables are applied afterwards, by ResolveLoader.
func BindLoaderFlags(searchPath *[]string, symbolMap *string, debug *bool) {
	v.SetDefault("search_path", *searchPath)
	v.SetDefault("symbol_map", *symbolMap)
	v.SetDefault("debug", *debug)
}

// ResolveLoader produces the effective Loader config after flags, env, and
// config file have all been considered.
func ResolveLoader() Loader {
	search := v.GetStringSlice("search_path")
	if lp := env.Str(envLibraryPath, ""); lp != "" {
		search = append(append([]string{}, search...), strings.Split(lp, ":")...)
	}
	symMap := v.GetString("symbol_map")
	if sm := env.Str(envSymbolMap, ""); sm != "" {
		symMap = sm
	}
	return Loader{
		SearchPath: dedupe(search),
		SymbolMap:  symMap,
		Debug:      v.GetBool("debug"),
	}
}

// BindAnalyzerFlags mirrors BindLoaderFlags for cmd/ldep.
func BindAnalyzerFlags(searchPath *[]string, tolerance *int, debug *bool) {
	v.SetDefault("search_path", *searchPath)
	v.SetDefault("sloppiness_tolerance", *tolerance)
	v.SetDefault("debug", *debug)
}

// ResolveAnalyzer produces the effective Analyzer config.
func ResolveAnalyzer() Analyzer {
	search := v.GetStringSlice("search_path")
	if lp := env.Str(envLibraryPath, ""); lp != "" {
		search = append(append([]string{}, search...), strings.Split(lp, ":")...)
	}
	tolerance := env.Int(envSloppiness, v.GetInt("sloppiness_tolerance"))
	return Analyzer{
		SearchPath:          dedupe(search),
		SloppinessTolerance: tolerance,
		Debug:               v.GetBool("debug"),
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// searchPathFile is the shape of the loader's standalone YAML search-path
// config file, a lighter-weight alternative to the full viper config file
// for embedded targets that just want to list directories (SPEC_FULL.md
// §2's DOMAIN STACK entry for gopkg.in/yaml.v3, "YAML form of... the
// loader's search-path config file").
type searchPathFile struct {
	SearchPath []string `yaml:"search_path"`
}

// LoadSearchPathYAML reads a standalone YAML file of the form
// "search_path: [dir1, dir2]" and returns its entries. Returns (nil, nil)
// if path is empty.
func LoadSearchPathYAML(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening search-path file %q: %w", path, err)
	}
	defer f.Close()

	var spf searchPathFile
	if err := yaml.NewDecoder(f).Decode(&spf); err != nil {
		return nil, fmt.Errorf("decoding search-path file %q: %w", path, err)
	}
	return spf.SearchPath, nil
}

// ExistingSymbolMapPath returns cfg.SymbolMap if it names a readable file,
// or "" if unset or unreadable — callers treat a missing map as "registry
// starts empty" rather than a hard error, since spec.md §4.G only requires
// ingesting the map "at loader initialization", not that one must exist.
func (cfg Loader) ExistingSymbolMapPath() string {
	if cfg.SymbolMap == "" {
		return ""
	}
	if st, err := os.Stat(cfg.SymbolMap); err == nil && st.Mode().IsRegular() {
		return cfg.SymbolMap
	}
	return ""
}
