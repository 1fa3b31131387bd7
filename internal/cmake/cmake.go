// Package cmake probes the CMake installation used by the build.
package cmake

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Tool names.
const (
	CMake = "cmake"
	CTest = "ctest"
	CPack = "cpack"
)

var versionRe = regexp.MustCompile(`(?i)^\s*cmake version\s+(\d+\.\d+(?:\.\d+)?)`)

// ParseVersion extracts the version from `cmake --version` output.
func ParseVersion(output string) (*semver.Version, error) {
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		m := versionRe.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		v, err := semver.NewVersion(m[1])
		if err != nil {
			return nil, fmt.Errorf("parse cmake version %q: %w", m[1], err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("no cmake version found in %q", strings.TrimSpace(output))
}

// CheckMinimum verifies that v satisfies ">= minimum". An empty minimum always passes.
func CheckMinimum(v *semver.Version, minimum string) error {
	minimum = strings.TrimSpace(minimum)
	if minimum == "" {
		return nil
	}
	c, err := semver.NewConstraint(">= " + minimum)
	if err != nil {
		return fmt.Errorf("invalid minimum cmake version %q: %w", minimum, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("cmake %s is older than the required %s", v, minimum)
	}
	return nil
}

// Capturer runs a command and returns its stdout.
type Capturer interface {
	Capture(ctx context.Context, args []string) ([]byte, error)
}

// Version runs `cmake --version` through c and parses the result.
func Version(ctx context.Context, c Capturer) (*semver.Version, error) {
	out, err := c.Capture(ctx, []string{CMake, "--version"})
	if err != nil {
		return nil, err
	}
	return ParseVersion(string(out))
}

// PackPath returns the cpack executable to run. On Windows cpack is resolved next to
// cmake because Chocolatey ships an unrelated "cpack" command that may come first on PATH.
func PackPath(goos string, lookPath func(string) (string, error)) (string, error) {
	if goos != "windows" {
		return CPack, nil
	}
	cmakePath, err := lookPath(CMake)
	if err != nil {
		return "", fmt.Errorf("locate cmake: %w", err)
	}
	return filepath.Join(filepath.Dir(cmakePath), CPack), nil
}
