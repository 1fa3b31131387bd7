// Package toolchain holds the table of named toolchain profiles that select how the
// CMake generator is invoked on the current host.
package toolchain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Supported target architectures.
const (
	ArchAMD64 = "amd64"
	ArchX86   = "x86"
)

// Toolchain describes a single toolchain profile.
type Toolchain struct {
	// Name is the profile name; it is also the basename of the <name>.cmake toolchain file.
	Name string
	// Generator is the CMake generator passed with -G. Empty means the CMake default.
	Generator string
	// Arch is an optional target architecture (amd64 or x86).
	Arch string
}

// IsMake reports whether the generator produces Makefiles.
func (t Toolchain) IsMake() bool {
	return strings.HasSuffix(t.Generator, "Makefiles")
}

// IsVisualStudio reports whether the generator is a Visual Studio generator.
func (t Toolchain) IsVisualStudio() bool {
	return strings.HasPrefix(t.Generator, "Visual Studio")
}

// PlatformFlag returns the value for CMake's -A option, if any.
func (t Toolchain) PlatformFlag() string {
	if !t.IsVisualStudio() {
		return ""
	}
	switch t.Arch {
	case ArchAMD64:
		return "x64"
	case ArchX86:
		return "Win32"
	}
	return ""
}

// Validate checks the profile fields.
func (t Toolchain) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("toolchain name is empty")
	}
	if strings.ContainsAny(t.Name, `/\`) {
		return fmt.Errorf("toolchain %q: name must not contain path separators", t.Name)
	}
	switch t.Arch {
	case "", ArchAMD64, ArchX86:
	default:
		return fmt.Errorf("toolchain %q: unsupported arch %q (expected %s or %s)", t.Name, t.Arch, ArchAMD64, ArchX86)
	}
	return nil
}

// File returns the path of the toolchain file inside dir.
func (t Toolchain) File(dir string) string {
	return filepath.Join(dir, t.Name+".cmake")
}

// NotFoundError is returned when a toolchain name is not present in the table.
type NotFoundError struct {
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("toolchain %q not found", e.Name)
	}
	return fmt.Sprintf("toolchain %q not found (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// ErrUnspecified is returned by Resolve when no source names a toolchain.
var ErrUnspecified = errors.New("no toolchain specified: use --toolchain, BUILDCTL_TOOLCHAIN or defaultToolchain in the project config")

// Table is an ordered set of toolchain profiles.
type Table struct {
	entries []Toolchain
	index   map[string]int
}

// NewTable builds a table from the given entries, validating each one.
func NewTable(entries ...Toolchain) (*Table, error) {
	t := &Table{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		if err := t.Add(e); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add appends a profile. Duplicate names are rejected.
func (t *Table) Add(tc Toolchain) error {
	if err := tc.Validate(); err != nil {
		return err
	}
	if _, ok := t.index[tc.Name]; ok {
		return fmt.Errorf("toolchain %q is already defined", tc.Name)
	}
	t.index[tc.Name] = len(t.entries)
	t.entries = append(t.entries, tc)
	return nil
}

// Lookup returns the profile with the given name.
func (t *Table) Lookup(name string) (Toolchain, error) {
	if i, ok := t.index[name]; ok {
		return t.entries[i], nil
	}
	return Toolchain{}, &NotFoundError{Name: name, Available: t.Names()}
}

// Names lists profile names in table order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		names = append(names, e.Name)
	}
	return names
}

// Entries returns a copy of the profiles in table order.
func (t *Table) Entries() []Toolchain {
	out := make([]Toolchain, len(t.entries))
	copy(out, t.entries)
	return out
}

// Sorted returns the profiles sorted by name.
func (t *Table) Sorted() []Toolchain {
	out := t.Entries()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve picks the toolchain name from, in order, the explicit flag, the environment
// and the project default.
func Resolve(candidates ...string) (string, error) {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c, nil
		}
	}
	return "", ErrUnspecified
}

// CheckFile verifies that the toolchain file for tc exists inside dir.
func CheckFile(tc Toolchain, dir string) (string, error) {
	path := tc.File(dir)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return path, fmt.Errorf("toolchain file not found: %s", path)
		}
		return path, fmt.Errorf("check toolchain file %s: %w", path, err)
	}
	if info.IsDir() {
		return path, fmt.Errorf("toolchain file %s is a directory", path)
	}
	return path, nil
}
