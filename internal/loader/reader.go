package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxNameLen bounds library names per spec.md §4.A.
const maxNameLen = 256

// SearchPath is an ordered list of directory prefixes tried when a library
// name does not begin with "/". The zero value searches the current
// directory only, matching the original loader's default of {"."}.
type SearchPath struct {
	Dirs []string
}

// DefaultSearchPath returns a SearchPath containing only the current
// directory, the original loader's default.
func DefaultSearchPath() *SearchPath {
	return &SearchPath{Dirs: []string{"."}}
}

// Append adds a directory to the end of the search order.
func (sp *SearchPath) Append(dir string) {
	sp.Dirs = append(sp.Dirs, dir)
}

// Resolve finds an object file by name using the search-path policy of
// spec.md §4.A: an absolute name (leading "/") is tried verbatim; otherwise
// each directory prefix is tried in order. The first candidate that stats as
// a regular file wins. Returns ErrCannotFindLibrary if none match, and
// ErrNameTooLong if name exceeds 256 bytes.
func (sp *SearchPath) Resolve(name string) (string, error) {
	if len(name) > maxNameLen {
		return "", fmt.Errorf("%w: %q", ErrNameTooLong, name)
	}
	if strings.HasPrefix(name, "/") {
		if isRegularFile(name) {
			return name, nil
		}
		return "", fmt.Errorf("%w: %q", ErrCannotFindLibrary, name)
	}
	dirs := sp.Dirs
	if len(dirs) == 0 {
		dirs = []string{"."}
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if isRegularFile(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrCannotFindLibrary, name)
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Open resolves name and opens it for reading.
func (sp *SearchPath) Open(name string) (*os.File, string, error) {
	path, err := sp.Resolve(name)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrCannotFindLibrary, err)
	}
	return f, path, nil
}
