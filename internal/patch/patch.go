// Package patch applies attachment patches to engine sub-repositories with a pre-flight
// `git apply --check`, and stashes local edits before a run touches them.
package patch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/miscdec/flutter-engine/internal/execx"
	"github.com/miscdec/flutter-engine/internal/gitrepo"
)

// Outcome is the result of CheckThenApply.
type Outcome string

const (
	Applied Outcome = "applied"
	Skipped Outcome = "skipped"
	Failed  Outcome = "failed"
)

// ErrCheckFailed marks a patch whose check phase judged it not cleanly applicable,
// which is also how an already-applied patch is recognised.
var ErrCheckFailed = errors.New("patch check failed")

// ApplyError is a patch that passed its check but failed to apply.
type ApplyError struct {
	Patch  string
	Repo   string
	Code   int
	Stderr string
}

func (e *ApplyError) Error() string {
	msg := fmt.Sprintf("apply %s to %s failed with code %d", e.Patch, e.Repo, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// CheckPassed judges a check run: the command must have completed (code is not the
// sentinel) and its stderr must not mention "error". A non-zero code with clean stderr
// still passes.
func CheckPassed(code int, stderr string) bool {
	return code != execx.SentinelCode && !strings.Contains(stderr, "error")
}

// Applier runs check-then-apply against a repository.
type Applier struct {
	Runner execx.Runner
	Log    logr.Logger
	// Strict additionally requires the check to exit zero.
	Strict bool
}

// NewApplier returns an Applier using runner.
func NewApplier(runner execx.Runner, log logr.Logger) *Applier {
	return &Applier{Runner: runner, Log: log}
}

// Check runs only the check phase.
func (a *Applier) Check(ctx context.Context, patchFile, repoDir string) (bool, execx.Result) {
	res, err := gitrepo.New(repoDir, a.Runner).ApplyCheck(ctx, patchFile)
	if err != nil {
		res.Code = execx.SentinelCode
		if res.Stderr == "" {
			res.Stderr = err.Error()
		}
	}
	a.Log.V(1).Info("apply check", "patch", patchFile, "repo", repoDir, "code", res.Code, "stdout", strings.TrimSpace(res.Stdout), "stderr", strings.TrimSpace(res.Stderr))
	if res.Code != 0 {
		a.Log.Info("Apply check failed", "patch", patchFile, "code", res.Code, "stderr", strings.TrimSpace(res.Stderr))
	}
	ok := CheckPassed(res.Code, res.Stderr)
	if a.Strict && res.Code != 0 {
		ok = false
	}
	return ok, res
}

// CheckThenApply applies patchFile to repoDir when its check passes. Skipped and Failed
// outcomes come with an error describing why; neither is meant to stop a task run.
func (a *Applier) CheckThenApply(ctx context.Context, patchFile, repoDir string) (Outcome, error) {
	ok, check := a.Check(ctx, patchFile, repoDir)
	if !ok {
		reason := strings.TrimSpace(check.Stderr)
		if reason == "" {
			reason = fmt.Sprintf("exit code %d", check.Code)
		}
		return Skipped, fmt.Errorf("%w: %s: %s", ErrCheckFailed, patchFile, reason)
	}
	res, err := gitrepo.New(repoDir, a.Runner).Apply(ctx, patchFile)
	if err != nil {
		res.Code = execx.SentinelCode
		if res.Stderr == "" {
			res.Stderr = err.Error()
		}
	}
	if res.Code != 0 {
		applyErr := &ApplyError{Patch: patchFile, Repo: repoDir, Code: res.Code, Stderr: strings.TrimSpace(res.Stderr)}
		a.Log.Error(applyErr, "Apply failed", "patch", patchFile)
		return Failed, applyErr
	}
	a.Log.Info("Apply succeeded", "patch", patchFile, "repo", repoDir)
	return Applied, nil
}
