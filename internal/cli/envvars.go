package cli

import (
	"os"
	"strings"

	envparse "github.com/caarlos0/env/v11"
)

// baseEnv defines root CLI defaults sourced from BUILDCTL_* env vars.
type baseEnv struct {
	// ProjectConfig is the project file path from BUILDCTL_PROJECT_CONFIG.
	ProjectConfig string `env:"BUILDCTL_PROJECT_CONFIG"`
	// LogLevel is the logging level from BUILDCTL_LOG_LEVEL.
	LogLevel string `env:"BUILDCTL_LOG_LEVEL"`
	// NoColor disables colors when NO_COLOR holds any value.
	NoColor string `env:"NO_COLOR"`
}

// buildEnv captures BUILDCTL_* defaults for the build command.
type buildEnv struct {
	// Toolchain is the profile name from BUILDCTL_TOOLCHAIN.
	Toolchain string `env:"BUILDCTL_TOOLCHAIN"`
	// Config is the build type from BUILDCTL_CONFIG.
	Config string `env:"BUILDCTL_CONFIG"`
	// ToolchainsDir is the toolchain file directory from BUILDCTL_TOOLCHAINS_DIR.
	ToolchainsDir string `env:"BUILDCTL_TOOLCHAINS_DIR"`
	// Jobs is the parallel job count from BUILDCTL_JOBS.
	Jobs int `env:"BUILDCTL_JOBS"`
	// Fwd is a newline separated NAME=VALUE list from BUILDCTL_FWD; values may hold commas.
	Fwd []string `env:"BUILDCTL_FWD" envSeparator:"\n"`
}

// ciEnv captures the variables a CI agent sets for the ci command.
type ciEnv struct {
	// Toolchain is the profile name from TOOLCHAIN.
	Toolchain string `env:"TOOLCHAIN"`
	// Config is the build type from CONFIG.
	Config string `env:"CONFIG"`
}

// parseEnv fills target from env vars via caarlos0/env.
func parseEnv(target any) error {
	return envparse.Parse(target)
}

// envPresent reports whether a non-empty env var exists.
func envPresent(key string) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	return strings.TrimSpace(val) != ""
}
