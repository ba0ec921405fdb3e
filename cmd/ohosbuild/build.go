// File: cmd/ohosbuild/build.go
// Brief: CLI command wiring for the build matrix.

package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/miscdec/flutter-engine/internal/config"
	"github.com/miscdec/flutter-engine/internal/featureflags"
	"github.com/miscdec/flutter-engine/internal/runlog"
	"github.com/miscdec/flutter-engine/internal/toolchain"
	"github.com/miscdec/flutter-engine/internal/version"
	"github.com/miscdec/flutter-engine/internal/workflows/enginebuild"
)

// ledgerPath is shared by every dated outputs directory so history spans days.
func ledgerPath(root string) string {
	return filepath.Join(root, "outputs", runlog.FileName)
}

func newBuildCommand(a *app) *cobra.Command {
	opts, run := newBuildRunner(a)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run build stages for the selected build types",
		Long: `Run build stages (clean, config, har, compile, zip, zip2) for each build type.

Stages always run in that order regardless of how they are listed. A failing config stage
is logged and the run continues; any other failing stage stops the run with the tool's
exit code.`,
		Args: cobra.NoArgs,
		RunE: run,
	}
	cmd.Example = `  ohosbuild build -n clean config compile -t debug
  ohosbuild build -n zip2 -t release --arch x64
  ohosbuild build -g "\--enable-unittests"`
	opts.AddFlags(cmd)
	decorateCommandHelp(cmd, "Build Flags")
	return cmd
}

// newBuildRunner returns the build options and the RunE that executes them; the root
// command and build share it.
func newBuildRunner(a *app) (*config.Options, func(cmd *cobra.Command, args []string) error) {
	opts := config.NewOptions()
	run := func(cmd *cobra.Command, args []string) error {
		opts.ApplyConfig(a.cfg, cmd.Flags().Changed)
		if err := opts.Validate(); err != nil {
			return err
		}
		if err := enginebuild.CheckEngineRoot(a.root); err != nil {
			return err
		}
		outputs := opts.OutputsDir
		if outputs == "" {
			outputs = enginebuild.OutputsDir(a.root, a.clock())
		}
		if err := a.openLog(cmd.ErrOrStderr(), enginebuild.LogFile(outputs)); err != nil {
			return err
		}
		a.log.Info("ohosbuild start", "version", version.Get().String(), "root", a.root,
			"stages", opts.Names, "types", opts.BuildTypes, "branch", opts.Branch, "gnExtraParam", opts.GNExtraParam,
			"features", a.flags.EnabledNames())

		var ledger *runlog.Ledger
		if l, err := runlog.Open(ledgerPath(a.root)); err != nil {
			a.log.Error(err, "run ledger unavailable")
		} else {
			ledger = l
			defer ledger.Close()
		}
		svc := enginebuild.New(enginebuild.Dependencies{
			Runner: a.execRunner(),
			Resolver: toolchain.Resolver{
				Getenv:     a.env,
				BundledDir: filepath.Join(a.root, "ndk"),
				Override:   opts.ToolchainRoot,
				Log:        a.log,
			},
			Ledger:  ledger,
			Log:     a.log,
			Now:     a.now,
			Environ: a.environ,
		})
		_, err := svc.Run(cmd.Context(), enginebuild.Options{
			Root:            a.root,
			Types:           opts.BuildTypes,
			Stages:          opts.Stages,
			Branch:          opts.Branch,
			GNExtraParam:    opts.GNExtraParam,
			Arch:            opts.Arch,
			ToolchainRoot:   opts.ToolchainRoot,
			OutputsDir:      outputs,
			ArchiveIncludes: opts.ArchiveIncludes,
			ArchiveExcludes: opts.ArchiveExcludes,
			Setup:           a.setupDefaults(cmd),
			Streams:         a.streams(cmd),
		})
		return err
	}
	return opts, run
}

// setupDefaults are the setup options a branch sync uses: the config file's document and
// source root plus the feature flags.
func (a *app) setupDefaults(cmd *cobra.Command) enginebuild.SetupOptions {
	flags := featureflags.FromContext(cmd.Context())
	return enginebuild.SetupOptions{
		Root:       a.root,
		Document:   a.cfg.Setup.Document,
		SourceRoot: a.cfg.Setup.SourceRoot,
		Strict:     flags.Enabled(featureflags.FeatureStrictPatchCheck),
		ShowDiff:   flags.Enabled(featureflags.FeatureSetupDiff),
		Streams:    a.streams(cmd),
	}
}
