package tasks

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/miscdec/flutter-engine/internal/execx"
	"github.com/miscdec/flutter-engine/internal/overlay"
	"github.com/miscdec/flutter-engine/internal/patch"
)

// PatchApplier is the part of patch.Applier the engine uses.
type PatchApplier interface {
	Check(ctx context.Context, patchFile, repoDir string) (bool, execx.Result)
	CheckThenApply(ctx context.Context, patchFile, repoDir string) (patch.Outcome, error)
}

// Protector is the part of patch.StashGuard the engine uses.
type Protector interface {
	Protect(ctx context.Context, repoDir string) bool
}

// Status is what happened to one task.
type Status string

const (
	StatusCopied     Status = "copied"
	StatusApplied    Status = "applied"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
	StatusIgnored    Status = "ignored"
	StatusPreview    Status = "preview"
	StatusWouldApply Status = "would-apply"
	StatusWouldSkip  Status = "would-skip"
)

// Result records one task's outcome.
type Result struct {
	Index   int
	Kind    string
	Source  string
	Target  string
	Status  Status
	Err     error
	Changes []overlay.Change
}

// Report lists task results in document order.
type Report struct {
	Stashed int
	Results []Result
}

// Count returns how many results have status.
func (r *Report) Count(status Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Options tune one run.
type Options struct {
	// Stash protects every patch target before the apply pass.
	Stash bool
	// DryRun previews copies and checks patches without changing anything.
	DryRun bool
}

// Engine runs task documents. Task sources resolve against SourceRoot and targets
// against TargetRoot; absolute paths are used as given.
type Engine struct {
	SourceRoot string
	TargetRoot string
	Copier     *overlay.Copier
	Patches    PatchApplier
	Stash      Protector
	Log        logr.Logger
}

// RunFile loads the document at path and runs it.
func (e *Engine) RunFile(ctx context.Context, path string, opts Options) (*Report, error) {
	list, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, list, opts)
}

// Run executes list. The first copy error aborts the run and is returned together with the
// partial report; patch problems are recorded and the run continues.
func (e *Engine) Run(ctx context.Context, list []Task, opts Options) (*Report, error) {
	report := &Report{}
	if opts.Stash && !opts.DryRun {
		for _, t := range list {
			p, ok := t.(Patch)
			if !ok {
				continue
			}
			if err := ctx.Err(); err != nil {
				return report, err
			}
			_, target := e.resolve(p)
			e.Stash.Protect(ctx, target)
			report.Stashed++
		}
	}

	for _, t := range list {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		source, target := e.resolve(t)
		res := Result{Index: t.Position(), Kind: t.Kind(), Source: source, Target: target}
		switch task := t.(type) {
		case DirCopy:
			res.Status, res.Changes, res.Err = e.copy(overlay.KindDir, source, target, opts.DryRun)
		case FileSetCopy:
			res.Status, res.Changes, res.Err = e.copy(overlay.KindFiles, source, target, opts.DryRun)
		case FileCopy:
			res.Status, res.Changes, res.Err = e.copy(overlay.KindFile, source, target, opts.DryRun)
		case Patch:
			res.Status, res.Err = e.patch(ctx, source, target, opts.DryRun)
		case Unknown:
			e.Log.Info("ignoring task with unknown type", "index", task.Index, "type", task.Type, "file_path", task.Source)
			res.Status = StatusIgnored
		}
		report.Results = append(report.Results, res)
		if res.Status == StatusFailed && res.Kind != "patch" {
			return report, fmt.Errorf("task %d (%s %s): %w", res.Index, res.Kind, res.Source, res.Err)
		}
	}
	return report, nil
}

func (e *Engine) resolve(t Task) (source, target string) {
	source, target = t.Paths()
	if !filepath.IsAbs(source) {
		source = filepath.Join(e.SourceRoot, source)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(e.TargetRoot, target)
	}
	return filepath.Clean(source), filepath.Clean(target)
}

func (e *Engine) copy(kind overlay.Kind, source, target string, dryRun bool) (Status, []overlay.Change, error) {
	if dryRun {
		changes, err := e.Copier.Preview(kind, source, target)
		if err != nil {
			return StatusFailed, nil, err
		}
		return StatusPreview, changes, nil
	}
	if err := e.Copier.Copy(kind, source, target); err != nil {
		return StatusFailed, nil, err
	}
	e.Log.V(1).Info("copied", "kind", kind, "source", source, "target", target)
	return StatusCopied, nil, nil
}

func (e *Engine) patch(ctx context.Context, patchFile, repoDir string, dryRun bool) (Status, error) {
	if dryRun {
		ok, res := e.Patches.Check(ctx, patchFile, repoDir)
		if ok {
			return StatusWouldApply, nil
		}
		return StatusWouldSkip, fmt.Errorf("%w: %s", patch.ErrCheckFailed, res.Stderr)
	}
	outcome, err := e.Patches.CheckThenApply(ctx, patchFile, repoDir)
	switch outcome {
	case patch.Applied:
		return StatusApplied, nil
	case patch.Skipped:
		e.Log.Info("patch skipped", "patch", patchFile, "reason", err)
		return StatusSkipped, err
	default:
		return StatusFailed, err
	}
}
