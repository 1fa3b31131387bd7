package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/codex-k8s/buildctl/internal/cmake"
	"github.com/codex-k8s/buildctl/internal/logging"
	"github.com/codex-k8s/buildctl/internal/toolchain"
)

// doctor holds the host probes so tests can replace them.
type doctor struct {
	logger   *logging.Writer
	lookPath func(string) (string, error)
	version  func(ctx context.Context, w io.Writer) error
}

func (d *doctor) run(ctx context.Context, logger *slog.Logger, table *toolchain.Table, toolchainsDir, minVersion string) error {
	if logger == nil {
		logger = slog.Default()
	}

	required := []string{cmake.CMake, cmake.CTest, cmake.CPack}
	missing := make([]string, 0, len(required))
	for _, tool := range required {
		path, err := d.lookPath(tool)
		if err != nil {
			logger.Error("doctor check failed: missing required tool", "tool", tool, "error", err)
			missing = append(missing, tool)
			continue
		}
		logger.Info("doctor check ok", "tool", tool, "path", path)
	}
	if len(missing) > 0 {
		return envErr(fmt.Errorf("required tools missing from PATH: %s: %w", strings.Join(missing, ", "), exec.ErrNotFound))
	}

	var out bytes.Buffer
	err := d.version(ctx, io.MultiWriter(&out, d.logger))
	d.logger.Flush()
	if err != nil {
		return envErr(fmt.Errorf("cmake --version: %w", err))
	}
	v, err := cmake.ParseVersion(out.String())
	if err != nil {
		return envErr(err)
	}
	if minVersion != "" {
		if err := cmake.CheckMinimum(v, minVersion); err != nil {
			logger.Error("doctor check failed: cmake too old", "version", v.String(), "minimum", minVersion)
			return configErr(err)
		}
	}
	logger.Info("doctor check ok", "tool", cmake.CMake, "version", v.String())

	found := 0
	for _, tc := range table.Sorted() {
		path, err := toolchain.CheckFile(tc, toolchainsDir)
		if err != nil {
			logger.Warn("toolchain file unavailable", "toolchain", tc.Name, "path", path)
			continue
		}
		found++
		logger.Info("toolchain file ok", "toolchain", tc.Name, "path", path)
	}
	if found == 0 {
		return configErr(fmt.Errorf("no toolchain files found in %s", toolchainsDir))
	}
	return nil
}
