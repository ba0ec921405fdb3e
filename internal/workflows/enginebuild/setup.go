// File: internal/workflows/enginebuild/setup.go
// Brief: Runs the attachment task document against the engine checkout.

package enginebuild

import (
	"context"
	"fmt"
	"sort"

	"github.com/miscdec/flutter-engine/internal/overlay"
	"github.com/miscdec/flutter-engine/internal/patch"
	"github.com/miscdec/flutter-engine/internal/tasks"
)

// Setup loads the task document and applies it.
func (s *service) Setup(ctx context.Context, opts SetupOptions) (*tasks.Report, error) {
	if opts.Root == "" {
		opts.Root = "."
	}
	if err := CheckEngineRoot(opts.Root); err != nil {
		return nil, err
	}
	doc := opts.Document
	if doc == "" {
		doc = DefaultDocument(opts.Root)
	}
	sourceRoot := opts.SourceRoot
	if sourceRoot == "" {
		sourceRoot = EngineDir(opts.Root)
	}
	applier := patch.NewApplier(s.runner, s.log)
	applier.Strict = opts.Strict
	engine := &tasks.Engine{
		SourceRoot: sourceRoot,
		TargetRoot: EngineDir(opts.Root),
		Copier:     overlay.NewCopier(s.log),
		Patches:    applier,
		Stash:      patch.NewStashGuard(s.runner, s.log),
		Log:        s.log,
	}
	s.log.Info("setup", "document", doc, "stash", !opts.NoStash, "dryRun", opts.DryRun)
	report, err := engine.RunFile(ctx, doc, tasks.Options{Stash: !opts.NoStash, DryRun: opts.DryRun})
	if report != nil {
		printReport(newConsole(opts.Streams), report, opts.ShowDiff)
	}
	if err != nil {
		return report, fmt.Errorf("setup: %w", err)
	}
	return report, nil
}

func printReport(c *console, report *tasks.Report, showDiff bool) {
	for _, r := range report.Results {
		line := fmt.Sprintf("[%d] %-5s %-11s %s", r.Index, r.Kind, r.Status, r.Target)
		switch r.Status {
		case tasks.StatusFailed:
			c.fail.Fprintln(c.out, line)
		case tasks.StatusSkipped, tasks.StatusIgnored, tasks.StatusWouldSkip:
			c.warn.Fprintln(c.out, line)
		default:
			c.line("%s", line)
		}
		for _, ch := range r.Changes {
			if ch.Op == overlay.OpUnchanged {
				continue
			}
			c.line("      %s %s", ch.Op, ch.Target)
			if showDiff && ch.Diff != "" {
				fmt.Fprint(c.out, ch.Diff)
			}
		}
	}
	counts := map[tasks.Status]int{}
	for _, r := range report.Results {
		counts[r.Status]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	summary := ""
	for _, k := range keys {
		summary += fmt.Sprintf(" %s=%d", k, counts[tasks.Status(k)])
	}
	c.line("setup: %d tasks, stashed %d,%s", len(report.Results), report.Stashed, summary)
}
