// main.go bootstraps ohosbuild: it builds the root Cobra command and executes it with a
// signal-aware context, mapping failures to process exit codes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/miscdec/flutter-engine/internal/appconfig"
	"github.com/miscdec/flutter-engine/internal/execx"
	"github.com/miscdec/flutter-engine/internal/featureflags"
	"github.com/miscdec/flutter-engine/internal/logging"
	"github.com/miscdec/flutter-engine/internal/overlay"
	"github.com/miscdec/flutter-engine/internal/patch"
	"github.com/miscdec/flutter-engine/internal/stages"
	"github.com/miscdec/flutter-engine/internal/toolchain"
	"github.com/miscdec/flutter-engine/internal/workflows/enginebuild"
)

// EnvConfig names the global config file, replacing ~/.ohosbuild/config.yaml.
const EnvConfig = "OHOSBUILD_CONFIG"

func main() {
	os.Args = normalizeListArgs(os.Args)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := &app{}
	rootCmd := newRootCommand(a)
	err := rootCmd.ExecuteContext(ctx)
	a.close()
	handleError(os.Stderr, err)
	if err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// app carries state shared by every subcommand. Zero fields get process defaults.
type app struct {
	root      string
	logLevel  string
	features  []string
	runner    execx.Runner
	getenv    func(string) string
	environ   func() []string
	now       func() time.Time
	cfg       appconfig.Config
	flags     featureflags.Flags
	log       logr.Logger
	closeLogs []func() error
}

func (a *app) env(key string) string {
	if a.getenv != nil {
		return a.getenv(key)
	}
	return os.Getenv(key)
}

func (a *app) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

func (a *app) execRunner() execx.Runner {
	if a.runner != nil {
		return a.runner
	}
	return execx.NewOSRunner(a.log)
}

// prepare resolves the engine root, loads the layered config, the feature flags and a
// console logger. It runs before every subcommand.
func (a *app) prepare(cmd *cobra.Command) error {
	if err := applyEnv(cmd.Flags()); err != nil {
		return err
	}
	if strings.TrimSpace(a.root) == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		a.root = cwd
		if found := appconfig.FindEngineRoot(cwd); found != "" {
			a.root = found
		}
	}
	if abs, err := filepath.Abs(a.root); err == nil {
		a.root = abs
	}
	global := strings.TrimSpace(a.env(EnvConfig))
	if global == "" {
		global = appconfig.DefaultGlobalPath()
	}
	cfg, err := appconfig.Load(cmd.Context(), global, appconfig.DefaultRepoPath(a.root))
	if err != nil {
		return err
	}
	a.cfg = cfg
	if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
		a.logLevel = cfg.LogLevel
	}
	flags, err := featureflags.Resolve(a.features, cfg.Features, featureflags.EnabledFromEnv(a.environment()))
	if err != nil {
		return err
	}
	a.flags = flags
	cmd.SetContext(featureflags.ContextWithFlags(cmd.Context(), flags))
	return a.openLog(cmd.ErrOrStderr(), "")
}

// openLog (re)creates the logger, teeing into logFile when set.
func (a *app) openLog(console io.Writer, logFile string) error {
	logger, closer, err := logging.NewWithFile(a.logLevel, console, logFile)
	if err != nil {
		return err
	}
	a.log = logger
	a.closeLogs = append(a.closeLogs, closer)
	return nil
}

func (a *app) close() {
	for i := len(a.closeLogs) - 1; i >= 0; i-- {
		_ = a.closeLogs[i]()
	}
	a.closeLogs = nil
}

func (a *app) streams(cmd *cobra.Command) enginebuild.Streams {
	return enginebuild.Streams{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr()}
}

func (a *app) environment() []string {
	if a.environ != nil {
		return a.environ()
	}
	return os.Environ()
}

func newRootCommand(a *app) *cobra.Command {
	a.logLevel = "info"
	buildOpts, buildRun := newBuildRunner(a)
	cmd := &cobra.Command{
		Use:   "ohosbuild",
		Short: "Prepare and build the Flutter engine for OpenHarmony",
		Long: `ohosbuild prepares a Flutter engine checkout for OpenHarmony and builds it.

Without a subcommand it runs the build matrix: config and compile for every build type
unless stages, types or a branch are given.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.prepare(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
		RunE: buildRun,
	}
	cmd.PersistentFlags().StringVar(&a.root, "root", "", "Engine root holding src/ (default: nearest parent with src/flutter)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", a.logLevel, "Log level for ohosbuild output (debug, info, warn, error)")
	cmd.PersistentFlags().StringSliceVar(&a.features, "feature", nil, fmt.Sprintf("Enable ohosbuild features (%s); see 'ohosbuild version --features'", strings.Join(featureflags.KnownNames(), ", ")))
	if err := cmd.PersistentFlags().MarkHidden("feature"); err != nil {
		cobra.CheckErr(err)
	}
	buildOpts.BindFlags(cmd.Flags())
	cmd.AddCommand(
		newBuildCommand(a),
		newSetupCommand(a),
		newToolchainCommand(a),
		newHarCommand(a),
		newPublishCommand(a),
		newHistoryCommand(a),
		newVersionCommand(),
	)
	cmd.Example = `  # Configure and compile every build type
  ohosbuild

  # Sync a branch, re-run setup, then build and archive release only
  ohosbuild -b dev -n config compile zip -t release

  # Preview what setup would change without touching the checkout
  ohosbuild setup --dry-run`
	decorateCommandHelp(cmd, "Build Flags")
	return cmd
}

// applyEnv sets every flag not given on the command line from OHOSBUILD_<FLAG>.
func applyEnv(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("OHOSBUILD")
	v.AutomaticEnv()
	var firstErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		val := v.GetString(f.Name)
		if val == "" {
			return
		}
		if err := fs.Set(f.Name, val); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("OHOSBUILD_%s: %w", strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err)
		}
	})
	return firstErr
}

func handleError(w io.Writer, err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()
	var nf *toolchain.NotFoundError
	var exitErr *execx.ExitError
	var applyErr *patch.ApplyError
	var copyErr *overlay.CopyError
	switch {
	case errors.As(err, &nf):
		message = fmt.Sprintf("%s\nHint: run 'ohosbuild toolchain' after setting %s to check the resolution.", err, toolchain.EnvNDKHome)
	case errors.Is(err, stages.ErrNotEngineRoot):
		message = fmt.Sprintf("%s\nHint: pass --root or run ohosbuild from the gclient directory that holds src/flutter.", err)
	case errors.Is(err, execx.ErrTimeout):
		message = fmt.Sprintf("%s\nHint: the command was killed after its timeout; see logs/ohosbuild.log under the outputs directory.", err)
	case errors.As(err, &exitErr):
		message = fmt.Sprintf("%s\nHint: the full tool output is in logs/ohosbuild.log under the outputs directory.", err)
	case errors.As(err, &applyErr):
		message = fmt.Sprintf("%s\nHint: run 'git -C %s status' and resolve the conflict, or re-run setup after a checkout.", err, applyErr.Repo)
	case errors.As(err, &copyErr):
		message = fmt.Sprintf("%s\nHint: check the file_path and target of the task in the attachment config.", err)
	case errors.Is(err, context.Canceled):
		message = "interrupted"
	}
	fmt.Fprintf(w, "Error: %s\n", message)
}

// exitCodeFor maps err to the process exit code: 10 for a missing toolchain, the external
// tool's code for a failed stage, 1 otherwise.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, toolchain.ErrToolchainNotFound) {
		return toolchain.ExitCodeNotFound
	}
	code := execx.ExitCode(err, 1)
	if code <= 0 {
		return 1
	}
	return code
}
