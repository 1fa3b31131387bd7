package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/buildctl/internal/build"
	"github.com/codex-k8s/buildctl/internal/ghoutput"
	"github.com/codex-k8s/buildctl/internal/toolchain"
)

// newCICommand creates "ci", a fixed verbose clean build with tests driven by TOOLCHAIN and CONFIG.
func newCICommand(opts *Options) *cobra.Command {
	var toolchainsDir string

	cmd := &cobra.Command{
		Use:   "ci",
		Short: "Run a clean verbose build with tests for TOOLCHAIN and CONFIG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			cenv := ciEnv{}
			if err := parseEnv(&cenv); err != nil {
				return configErr(err)
			}
			if cenv.Toolchain == "" {
				return configErr(errors.New("environment variable TOOLCHAIN is empty"))
			}
			if cenv.Config == "" {
				return configErr(errors.New("environment variable CONFIG is empty"))
			}

			proj, err := loadProject(opts)
			if err != nil {
				return err
			}
			table, err := toolchain.HostTable(opts.goos(), proj.ToolchainEntries()...)
			if err != nil {
				return configErr(err)
			}
			tc, err := table.Lookup(cenv.Toolchain)
			if err != nil {
				return configErr(err)
			}
			wd, err := os.Getwd()
			if err != nil {
				return envErr(err)
			}

			out := opts.stdout()
			fmt.Fprintf(out, "Toolchain: %s\n", tc.Name)
			fmt.Fprintf(out, "Config: %s\n", cenv.Config)

			bopts := build.Options{
				Toolchain:       tc,
				Config:          cenv.Config,
				WorkDir:         wd,
				ToolchainsDir:   proj.ToolchainsPath(),
				Verbose:         true,
				Clear:           true,
				Test:            true,
				Jobs:            proj.Jobs,
				Fwd:             proj.Fwd,
				MinCMakeVersion: proj.MinCMakeVersion,
			}
			if toolchainsDir != "" {
				bopts.ToolchainsDir = absFrom(wd, toolchainsDir)
			}
			if proj.Home != "" {
				bopts.Home = proj.ResolvePath(proj.Home)
			}

			res, runErr := runBuild(cmd.Context(), opts, logger, proj, bopts, nil)
			if err := publishCIResult(res, runErr); err != nil {
				logger.Warn("failed to write GitHub outputs", "error", err)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&toolchainsDir, "toolchains-dir", "", "Directory with <toolchain>.cmake files")
	return cmd
}

// publishCIResult exposes the build outcome to GitHub Actions.
func publishCIResult(res *build.Result, runErr error) error {
	status := "success"
	if runErr != nil {
		status = "failure"
	}
	values := map[string]string{"status": status}
	if runErr != nil {
		values["error"] = runErr.Error()
	}
	if res == nil {
		return ghoutput.Write(values)
	}

	values["build_dir"] = res.Plan.BuildDir
	if res.LogPath != "" {
		values["log_path"] = res.LogPath
	}
	if err := ghoutput.Write(values); err != nil {
		return err
	}
	return ghoutput.Summary(res.Plan.Tag, status, res.Timer.Steps())
}
