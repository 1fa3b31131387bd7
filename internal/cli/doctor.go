package cli

import (
	"context"
	"io"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/buildctl/internal/cmake"
	"github.com/codex-k8s/buildctl/internal/logging"
	"github.com/codex-k8s/buildctl/internal/toolchain"
)

// newDoctorCommand creates the "doctor" subcommand that checks the host before a build.
func newDoctorCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check CMake tools and toolchain files on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			proj, err := loadProject(opts)
			if err != nil {
				return err
			}
			table, err := toolchain.HostTable(opts.goos(), proj.ToolchainEntries()...)
			if err != nil {
				return configErr(err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			d := &doctor{
				logger:   logging.NewWriter(logger, cmake.CMake),
				lookPath: exec.LookPath,
				version:  runCMakeVersion,
			}
			if err := d.run(ctx, logger, table, proj.ToolchainsPath(), proj.MinCMakeVersion); err != nil {
				return err
			}
			logger.Info("doctor checks completed successfully")
			return nil
		},
	}
	return cmd
}

// runCMakeVersion runs `cmake --version`, copying its output to w.
func runCMakeVersion(ctx context.Context, w io.Writer) error {
	c := exec.CommandContext(ctx, cmake.CMake, "--version")
	c.Stdout = w
	c.Stderr = w
	return c.Run()
}
