package toolchain

const (
	generatorMake  = "Unix Makefiles"
	generatorNinja = "Ninja"
	generatorVS17  = "Visual Studio 17 2022"
)

// isPOSIX mirrors the set of GOOS values that ship a Unix make toolchain.
func isPOSIX(goos string) bool {
	switch goos {
	case "linux", "darwin", "freebsd", "openbsd", "netbsd", "dragonfly", "solaris", "illumos", "aix":
		return true
	}
	return false
}

// Builtin returns the built-in profiles available on the given host OS.
func Builtin(goos string) []Toolchain {
	var out []Toolchain

	if goos == "linux" {
		out = append(out,
			Toolchain{Name: "sanitize-leak", Generator: generatorMake},
			Toolchain{Name: "sanitize-memory", Generator: generatorMake},
			Toolchain{Name: "sanitize-thread", Generator: generatorMake},
			Toolchain{Name: "sanitize-undefined", Generator: generatorMake},
		)
	}

	if isPOSIX(goos) {
		out = append(out,
			Toolchain{Name: "analyze", Generator: generatorMake},
			Toolchain{Name: "clang", Generator: generatorMake},
			Toolchain{Name: "clang-lto", Generator: generatorMake},
			Toolchain{Name: "gcc", Generator: generatorMake},
			Toolchain{Name: "gcc-lto", Generator: generatorMake},
			Toolchain{Name: "sanitize-address", Generator: generatorMake},
		)
	}

	if goos == "windows" {
		out = append(out,
			Toolchain{Name: "vs-17-2022", Generator: generatorVS17, Arch: ArchX86},
			Toolchain{Name: "vs-17-2022-x64", Generator: generatorVS17, Arch: ArchAMD64},
			Toolchain{Name: "ninja", Generator: generatorNinja},
		)
	}

	return out
}

// HostTable returns the built-in table for goos extended with extra profiles.
func HostTable(goos string, extra ...Toolchain) (*Table, error) {
	t, err := NewTable(Builtin(goos)...)
	if err != nil {
		return nil, err
	}
	for _, e := range extra {
		if err := t.Add(e); err != nil {
			return nil, err
		}
	}
	return t, nil
}
