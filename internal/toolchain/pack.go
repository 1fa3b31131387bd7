package toolchain

import (
	"fmt"
	"strings"
)

// PackGenerators lists the CPack generators supported on the given host.
func PackGenerators(goos string) []string {
	out := []string{"TBZ2", "TGZ"}
	if goos == "linux" {
		out = append(out, "DEB", "RPM")
	}
	return out
}

// DefaultPackGenerator is used when packaging is requested without naming a generator.
func DefaultPackGenerator(goos string) string {
	if goos == "linux" {
		return "RPM"
	}
	return "TGZ"
}

// ValidatePackGenerator checks that gen is available on goos.
func ValidatePackGenerator(goos, gen string) error {
	for _, g := range PackGenerators(goos) {
		if g == gen {
			return nil
		}
	}
	return fmt.Errorf("unsupported pack generator %q (available: %s)", gen, strings.Join(PackGenerators(goos), ", "))
}
