package main

import (
	"github.com/spf13/cobra"

	"github.com/miscdec/flutter-engine/internal/runlog"
	"github.com/miscdec/flutter-engine/internal/workflows/enginebuild"
)

func newSetupCommand(a *app) *cobra.Command {
	var (
		verbose    bool
		document   string
		sourceRoot string
		noStash    bool
		dryRun     bool
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Apply the attachment task document to the engine checkout",
		Long: `Apply the attachment task document (src/flutter/attachment/scripts/config.json by
default) to the engine checkout: every patch target is stashed first, then each task
copies its overlay or applies its patch in document order.

A patch that does not apply cleanly is skipped. A copy that fails stops the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				a.logLevel = "debug"
				if err := a.openLog(cmd.ErrOrStderr(), ""); err != nil {
					return err
				}
			}
			opts := a.setupDefaults(cmd)
			if cmd.Flags().Changed("config") || opts.Document == "" {
				opts.Document = document
			}
			if cmd.Flags().Changed("source-root") || opts.SourceRoot == "" {
				opts.SourceRoot = sourceRoot
			}
			opts.NoStash = noStash
			if !cmd.Flags().Changed("no-stash") && a.cfg.Setup.Stash != nil {
				opts.NoStash = !*a.cfg.Setup.Stash
			}
			opts.DryRun = dryRun

			var ledger *runlog.Ledger
			if !dryRun {
				if l, err := runlog.Open(ledgerPath(a.root)); err != nil {
					a.log.Error(err, "run ledger unavailable")
				} else {
					ledger = l
					defer ledger.Close()
				}
			}
			runID, _ := ledger.Begin(cmd.Context(), "setup", "")
			svc := enginebuild.New(enginebuild.Dependencies{Runner: a.execRunner(), Log: a.log, Now: a.now})
			_, err := svc.Setup(cmd.Context(), opts)
			if ferr := ledger.Finish(cmd.Context(), runID, exitCodeFor(err), err); ferr != nil {
				a.log.Error(ferr, "run ledger finish failed")
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every git command and its output")
	cmd.Flags().StringVar(&document, "config", "", "Task document to apply (default src/flutter/attachment/scripts/config.json)")
	cmd.Flags().StringVar(&sourceRoot, "source-root", "", "Directory task file_path values are relative to (default <root>/src)")
	cmd.Flags().BoolVar(&noStash, "no-stash", false, "Do not stash patch targets before applying")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what each task would do without changing anything")
	decorateCommandHelp(cmd, "Setup Flags")
	return cmd
}
