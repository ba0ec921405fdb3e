package patch

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/miscdec/flutter-engine/internal/execx"
	"github.com/miscdec/flutter-engine/internal/gitrepo"
)

// DefaultStashMessage names the stash entries created before patching.
const DefaultStashMessage = "Auto stash by ohosbuild setup"

// StashGuard parks local modifications of a patch target in a named stash entry.
// Failures are logged and never stop the caller; stashing a clean tree is a no-op for git.
type StashGuard struct {
	Runner  execx.Runner
	Log     logr.Logger
	Message string
}

// NewStashGuard returns a guard using DefaultStashMessage.
func NewStashGuard(runner execx.Runner, log logr.Logger) *StashGuard {
	return &StashGuard{Runner: runner, Log: log, Message: DefaultStashMessage}
}

// Protect runs `git add -A` then `git stash save` in repoDir and reports whether both worked.
func (g *StashGuard) Protect(ctx context.Context, repoDir string) bool {
	repo := gitrepo.New(repoDir, g.Runner)
	ok := true
	if err := repo.AddAll(ctx); err != nil {
		g.Log.Error(err, "stash guard: add failed", "repo", repoDir)
		ok = false
	}
	msg := g.Message
	if msg == "" {
		msg = DefaultStashMessage
	}
	if err := repo.StashSave(ctx, msg); err != nil {
		g.Log.Error(err, "stash guard: stash failed", "repo", repoDir)
		ok = false
	}
	if ok {
		g.Log.V(1).Info("stash guard: protected", "repo", repoDir)
	}
	return ok
}
