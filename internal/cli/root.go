// Package cli defines the command-line interface for buildctl.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/mitchellh/colorstring"
	"github.com/spf13/cobra"

	"github.com/codex-k8s/buildctl/internal/config"
	"github.com/codex-k8s/buildctl/internal/logging"
)

// Options stores global CLI options shared between commands.
type Options struct {
	// ProjectConfig is an explicit project file; empty means discover one in the working directory.
	ProjectConfig string
	LogLevel      logging.Level
	NoColor       bool

	// Stdout receives the build transcript; nil means os.Stdout.
	Stdout io.Writer
	// GOOS overrides the host OS for tests; empty means runtime.GOOS.
	GOOS string
}

// Execute builds the root command, runs it with the provided args and logger, and returns any error.
// Cancelling ctx stops the running tools.
func Execute(ctx context.Context, args []string, logger *slog.Logger) error {
	return ExecuteWith(ctx, &Options{LogLevel: logging.LevelInfo}, args, logger)
}

// ExecuteWith runs the CLI using pre-populated options.
func ExecuteWith(ctx context.Context, opts *Options, args []string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	rootCmd := newRootCommand(opts, logger)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// newRootCommand constructs the root cobra.Command with global flags and subcommands.
func newRootCommand(opts *Options, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "buildctl",
		Short:         "buildctl drives CMake builds with named toolchain profiles",
		Long:          "buildctl generates, builds, tests and packs CMake projects for a named toolchain profile, keeping a full log of every tool it runs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			base := baseEnv{}
			if err := parseEnv(&base); err != nil {
				return configErr(err)
			}
			if !cmd.Flags().Changed("project-config") && base.ProjectConfig != "" {
				opts.ProjectConfig = base.ProjectConfig
			}
			levelValue := cmd.Flag("log-level").Value.String()
			if !cmd.Flags().Changed("log-level") && base.LogLevel != "" {
				levelValue = base.LogLevel
			}
			if !cmd.Flags().Changed("no-color") && base.NoColor != "" {
				opts.NoColor = true
			}

			level := logging.ParseLevel(levelValue)
			opts.LogLevel = level
			logger = logging.NewLogger(os.Stderr, level, logging.Options{NoColor: opts.NoColor})
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))
			logger.Debug("logger initialized", "level", level)
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return configErr(err)
	})

	cmd.PersistentFlags().StringVar(&opts.ProjectConfig, "project-config", opts.ProjectConfig, "Path to buildctl.yaml or buildctl.toml (default: discovered in the working directory)")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", opts.NoColor, "Disable colored output")

	cmd.AddCommand(
		newBuildCommand(opts),
		newCICommand(opts),
		newToolchainsCommand(opts),
		newDoctorCommand(opts),
	)

	return cmd
}

// loggerKey is a private context key used to store a logger in command contexts.
type loggerKey struct{}

// LoggerFromContext extracts a logger from the context or falls back to a default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return logging.NewLogger(os.Stderr, logging.LevelInfo)
}

func (o *Options) stdout() io.Writer {
	if o.Stdout != nil {
		return o.Stdout
	}
	return os.Stdout
}

func (o *Options) goos() string {
	if o.GOOS != "" {
		return o.GOOS
	}
	return runtime.GOOS
}

// color expands colorstring tags, or strips them when colors are disabled.
func (o *Options) color(s string) string {
	c := colorstring.Colorize{
		Colors:  colorstring.DefaultColors,
		Disable: o.NoColor,
		Reset:   true,
	}
	return c.Color(s)
}

// loadProject reads the explicit project file or discovers one in the working directory.
func loadProject(opts *Options) (*config.ProjectConfig, error) {
	if path := strings.TrimSpace(opts.ProjectConfig); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, configErr(err)
		}
		return cfg, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, envErr(err)
	}
	cfg, err := config.Discover(wd)
	if err != nil {
		return nil, configErr(err)
	}
	return cfg, nil
}
