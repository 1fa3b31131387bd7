package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/codex-k8s/buildctl/internal/build"
	"github.com/codex-k8s/buildctl/internal/cmake"
	"github.com/codex-k8s/buildctl/internal/config"
	"github.com/codex-k8s/buildctl/internal/env"
	"github.com/codex-k8s/buildctl/internal/toolchain"
)

// buildFlags holds the values of the build command flags.
type buildFlags struct {
	toolchain     string
	config        string
	home          string
	toolchainsDir string
	test          bool
	testXML       string
	pack          string
	noBuild       bool
	verbose       bool
	install       bool
	strip         bool
	clear         bool
	reconfig      bool
	fwd           []string
	env           []string
	jobs          int
	report        string
}

// newBuildCommand creates the "build" subcommand running generate, build, test and pack.
func newBuildCommand(opts *Options) *cobra.Command {
	f := &buildFlags{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Generate and build the project with a toolchain profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			proj, err := loadProject(opts)
			if err != nil {
				return err
			}
			bopts, extra, err := resolveBuildOptions(cmd.Flags(), opts, proj, f)
			if err != nil {
				return err
			}
			_, err = runBuild(cmd.Context(), opts, logger, proj, bopts, extra)
			return err
		},
	}

	bindBuildFlags(cmd.Flags(), f, opts.goos())
	return cmd
}

// bindBuildFlags registers the build flags on fs.
func bindBuildFlags(fs *pflag.FlagSet, f *buildFlags, goos string) {
	fs.StringVar(&f.toolchain, "toolchain", "", "Toolchain profile name (see buildctl toolchains)")
	fs.StringVar(&f.config, "config", "", "CMake build type (Release, Debug, ...)")
	fs.StringVar(&f.home, "home", "", "Project directory with the top-level CMakeLists.txt (default: working directory)")
	fs.StringVar(&f.toolchainsDir, "toolchains-dir", "", "Directory with <toolchain>.cmake files")
	fs.BoolVar(&f.test, "test", false, "Run ctest after build")
	fs.StringVar(&f.testXML, "test-xml", "", "Run ctest and save the XML results to this path")
	fs.StringVar(&f.pack, "pack", "", fmt.Sprintf("Run cpack after build; name the generator with --pack=GEN (%s, default %s)", strings.Join(toolchain.PackGenerators(goos), ", "), toolchain.DefaultPackGenerator(goos)))
	fs.Lookup("pack").NoOptDefVal = toolchain.DefaultPackGenerator(goos)
	fs.BoolVar(&f.noBuild, "nobuild", false, "Only generate, do not build")
	fs.BoolVar(&f.verbose, "verbose", false, "Show tool output on the console")
	fs.BoolVar(&f.install, "install", false, "Run the install target into _install/<toolchain>")
	fs.BoolVar(&f.strip, "strip", false, "Run the install/strip target (Makefile generators, implies --install)")
	fs.BoolVar(&f.clear, "clear", false, "Remove build and install directories before generating")
	fs.BoolVar(&f.reconfig, "reconfig", false, "Run the generator even if the arguments did not change")
	fs.StringArrayVar(&f.fwd, "fwd", nil, "Cache variable passed to the generator as NAME=VALUE (no -D, repeatable, kept verbatim)")
	fs.StringArrayVar(&f.env, "env", nil, "Extra environment variable for the tools (KEY=VALUE, repeatable)")
	fs.IntVarP(&f.jobs, "jobs", "j", 0, "Number of parallel build jobs")
	fs.StringVar(&f.report, "report", "", "Write a JSON timing report to this path")
}

// resolveBuildOptions merges flags, BUILDCTL_* env vars and the project config, in that order.
func resolveBuildOptions(fs *pflag.FlagSet, opts *Options, proj *config.ProjectConfig, f *buildFlags) (build.Options, env.Vars, error) {
	benv := buildEnv{}
	if err := parseEnv(&benv); err != nil {
		return build.Options{}, nil, configErr(err)
	}

	goos := opts.goos()
	table, err := toolchain.HostTable(goos, proj.ToolchainEntries()...)
	if err != nil {
		return build.Options{}, nil, configErr(err)
	}
	name, err := toolchain.Resolve(f.toolchain, benv.Toolchain, proj.DefaultToolchain)
	if err != nil {
		return build.Options{}, nil, configErr(err)
	}
	tc, err := table.Lookup(name)
	if err != nil {
		return build.Options{}, nil, configErr(err)
	}

	wd, err := os.Getwd()
	if err != nil {
		return build.Options{}, nil, envErr(err)
	}

	bopts := build.Options{
		Toolchain:       tc,
		Config:          firstNonEmpty(f.config, benv.Config, proj.DefaultConfig),
		WorkDir:         wd,
		Test:            f.test,
		TestXML:         f.testXML,
		Pack:            f.pack,
		NoBuild:         f.noBuild,
		Verbose:         f.verbose,
		Install:         f.install,
		Strip:           f.strip,
		Clear:           f.clear,
		Reconfig:        f.reconfig,
		Report:          f.report,
		MinCMakeVersion: proj.MinCMakeVersion,
	}

	switch {
	case f.home != "":
		bopts.Home = f.home
	case proj.Home != "":
		bopts.Home = proj.ResolvePath(proj.Home)
	}

	switch {
	case f.toolchainsDir != "":
		bopts.ToolchainsDir = absFrom(wd, f.toolchainsDir)
	case benv.ToolchainsDir != "":
		bopts.ToolchainsDir = absFrom(wd, benv.ToolchainsDir)
	default:
		bopts.ToolchainsDir = proj.ToolchainsPath()
	}

	switch {
	case fs.Changed("jobs"):
		bopts.Jobs = f.jobs
	case envPresent("BUILDCTL_JOBS"):
		bopts.Jobs = benv.Jobs
	default:
		bopts.Jobs = proj.Jobs
	}

	bopts.Fwd = append(bopts.Fwd, proj.Fwd...)
	bopts.Fwd = append(bopts.Fwd, benv.Fwd...)
	bopts.Fwd = append(bopts.Fwd, f.fwd...)

	if bopts.Pack != "" {
		if err := toolchain.ValidatePackGenerator(goos, bopts.Pack); err != nil {
			return build.Options{}, nil, configErr(err)
		}
		cpack, err := cmake.PackPath(goos, exec.LookPath)
		if err != nil {
			return build.Options{}, nil, envErr(err)
		}
		bopts.CPack = cpack
	}

	extra, err := env.ParseAssignments(f.env)
	if err != nil {
		return build.Options{}, nil, configErr(err)
	}
	return bopts, extra, nil
}

// runBuild executes one build and prints the final banner.
func runBuild(ctx context.Context, opts *Options, logger *slog.Logger, proj *config.ProjectConfig, bopts build.Options, extra env.Vars) (*build.Result, error) {
	vars, err := proj.Environment(extra)
	if err != nil {
		return nil, configErr(err)
	}

	b := &build.Builder{
		Stdout: opts.stdout(),
		Logger: logger,
		Env:    vars.Environ(),
		GOOS:   opts.goos(),
	}
	logger.Debug("starting build", "toolchain", bopts.Toolchain.Name, "config", bopts.Config, "toolchains_dir", bopts.ToolchainsDir)

	res, err := b.Run(ctx, bopts)
	out := opts.stdout()
	if err != nil {
		fmt.Fprintln(out, opts.color("[red][bold]*** FAILED ***"))
		return res, err
	}
	fmt.Fprintln(out, "-")
	fmt.Fprintln(out, opts.color("[green][bold]SUCCESS"))
	return res, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func absFrom(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
