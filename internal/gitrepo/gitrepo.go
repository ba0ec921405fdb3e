// gitrepo.go wraps the git invocations ohosbuild needs against the engine checkout:
// patch check/apply, stashing, branch sync and the metadata used to stamp uploads.
package gitrepo

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/miscdec/flutter-engine/internal/execx"
)

// DefaultApplyTimeout bounds `git apply` calls.
const DefaultApplyTimeout = 20 * time.Second

// Repo is a git working tree addressed with `git -C <Dir>`.
type Repo struct {
	Dir    string
	Runner execx.Runner
	// Timeout bounds every call except apply/check, which use DefaultApplyTimeout. Zero means none.
	Timeout time.Duration
}

// New returns a Repo for dir.
func New(dir string, runner execx.Runner) *Repo {
	return &Repo{Dir: dir, Runner: runner}
}

func (r *Repo) command(timeout time.Duration, args ...string) execx.Command {
	return execx.Command{
		Name:    "git",
		Args:    append([]string{"-C", r.Dir}, args...),
		Dir:     r.Dir,
		Timeout: timeout,
	}
}

// Exec runs git with args and returns the raw result; a non-zero exit is not an error.
func (r *Repo) Exec(ctx context.Context, args ...string) (execx.Result, error) {
	return r.Runner.Run(ctx, r.command(r.Timeout, args...))
}

// RunChecked runs git with args streaming output to the given writers. A non-zero exit is
// returned as *execx.ExitError so callers can propagate git's exit code.
func (r *Repo) RunChecked(ctx context.Context, stdout, stderr io.Writer, args ...string) error {
	cmd := r.command(r.Timeout, args...)
	cmd.Stdout, cmd.Stderr = stdout, stderr
	res, err := r.Runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	return res.Err(cmd)
}

// run executes git and turns a non-zero exit into an error carrying stderr.
func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	cmd := r.command(r.Timeout, args...)
	res, err := r.Runner.Run(ctx, cmd)
	if err != nil {
		return "", err
	}
	if res.Code != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg != "" {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), res.Err(cmd))
	}
	return strings.TrimSpace(res.Stdout), nil
}

// ApplyCheck dry-runs patchFile against the tree, ignoring whitespace differences.
func (r *Repo) ApplyCheck(ctx context.Context, patchFile string) (execx.Result, error) {
	return r.Runner.Run(ctx, r.command(DefaultApplyTimeout, "apply", "--check", "--ignore-whitespace", patchFile))
}

// Apply applies patchFile for real, tolerating whitespace-only mismatches.
func (r *Repo) Apply(ctx context.Context, patchFile string) (execx.Result, error) {
	return r.Runner.Run(ctx, r.command(DefaultApplyTimeout, "apply", "--ignore-whitespace", "--whitespace=nowarn", patchFile))
}

// AddAll stages every pending change, including untracked files.
func (r *Repo) AddAll(ctx context.Context) error {
	_, err := r.run(ctx, "add", "-A")
	return err
}

// StashSave stores staged and unstaged changes in a named stash entry.
func (r *Repo) StashSave(ctx context.Context, message string) error {
	_, err := r.run(ctx, "stash", "save", message)
	return err
}

// Checkout switches the working tree to ref.
func (r *Repo) Checkout(ctx context.Context, ref string) error {
	_, err := r.run(ctx, "checkout", ref)
	return err
}

// PullRebase pulls the current branch with --rebase.
func (r *Repo) PullRebase(ctx context.Context) error {
	_, err := r.run(ctx, "pull", "--rebase")
	return err
}

// LastCommit returns the one-line summary of HEAD.
func (r *Repo) LastCommit(ctx context.Context) (string, error) {
	return r.run(ctx, "log", "-1", "--oneline")
}

// Head returns the current commit hash and whether the tree has local modifications.
func (r *Repo) Head(ctx context.Context) (commit string, dirty bool, err error) {
	commit, err = r.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", false, err
	}
	status, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return commit, false, fmt.Errorf("git status: %w", err)
	}
	return commit, status != "", nil
}

// RemoteTags lists the object hashes of remote's tags in the order git reports them.
func (r *Repo) RemoteTags(ctx context.Context, remote string) ([]string, error) {
	if strings.TrimSpace(remote) == "" {
		remote = "origin"
	}
	out, err := r.run(ctx, "ls-remote", "--tags", remote)
	if err != nil {
		return nil, err
	}
	return parseLsRemote(out), nil
}

func parseLsRemote(out string) []string {
	var hashes []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		hashes = append(hashes, fields[0])
	}
	return hashes
}
