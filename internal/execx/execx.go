// File: internal/execx/execx.go
// Brief: External command execution with captured output, timeouts and exit codes.

// Package execx runs the external collaborators (git, gn, ninja, hvigorw) and
// reports their exit codes without interpreting them.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// SentinelCode is reported when a command could not be started, timed out or was cancelled.
const SentinelCode = -1

// ErrTimeout marks a command that exceeded its Timeout.
var ErrTimeout = errors.New("command timed out")

// Command describes one external process invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
	// Stdout and Stderr optionally receive live output in addition to the capture buffers.
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for logs.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, arg := range c.Args {
		if arg == "" || strings.ContainsAny(arg, " \t\"'") {
			arg = fmt.Sprintf("%q", arg)
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

// Result captures what a finished command produced.
type Result struct {
	Code     int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Err converts a non-zero result into an *ExitError.
func (r Result) Err(cmd Command) error {
	if r.Code == 0 {
		return nil
	}
	return &ExitError{Command: cmd.String(), Code: r.Code, Stderr: strings.TrimSpace(r.Stderr)}
}

// ExitError reports a command that exited with a non-zero code.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.Code, lastLine(e.Stderr))
	}
	return fmt.Sprintf("%s exited with code %d", e.Command, e.Code)
}

// ExitCode returns the code a CLI should propagate for err, or fallback when err carries none.
func ExitCode(err error, fallback int) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code > 0 {
		return exitErr.Code
	}
	return fallback
}

// Runner executes commands. Implementations must be safe to call sequentially from one goroutine.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// OSRunner runs commands as child processes.
type OSRunner struct {
	Log logr.Logger
}

// NewOSRunner returns a Runner backed by os/exec.
func NewOSRunner(log logr.Logger) *OSRunner {
	return &OSRunner{Log: log}
}

// Run starts the command and waits for it. A non-zero exit is not an error: it is reported
// through Result.Code. Errors are returned only when the process could not run to completion
// (start failure, timeout, cancellation) and in that case Result.Code is SentinelCode.
func (r *OSRunner) Run(ctx context.Context, c Command) (Result, error) {
	if strings.TrimSpace(c.Name) == "" {
		return Result{Code: SentinelCode}, errors.New("command name is empty")
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = c.Env
		if p := lookPathEnv(c.Name, c.Env); p != "" {
			cmd.Path = p
			cmd.Err = nil
		}
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = tee(&stdout, c.Stdout)
	cmd.Stderr = tee(&stderr, c.Stderr)
	configureCommandProcess(cmd)
	cmd.Cancel = func() error {
		terminateCommandProcess(cmd)
		return nil
	}
	cmd.WaitDelay = 5 * time.Second

	r.Log.V(1).Info("runCommand start", "command", c.String(), "dir", c.Dir)
	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.Code = SentinelCode
		if errors.Is(ctxErr, context.DeadlineExceeded) && c.Timeout > 0 {
			return res, fmt.Errorf("%s: %w after %s", c.String(), ErrTimeout, c.Timeout)
		}
		return res, fmt.Errorf("%s: %w", c.String(), ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.Code = exitErr.ExitCode()
			r.Log.V(1).Info("runCommand error", "code", res.Code, "command", c.String())
			return res, nil
		}
		res.Code = SentinelCode
		return res, fmt.Errorf("start %s: %w", c.Name, err)
	}
	r.Log.V(1).Info("runCommand finish", "code", 0, "command", c.String(), "duration", res.Duration.Round(time.Millisecond).String())
	return res, nil
}

// lookPathEnv resolves a bare command name against the PATH carried in env, so tools the
// toolchain puts on PATH are found even when the parent process PATH lacks them. It
// returns "" when name contains a separator or nothing matches.
func lookPathEnv(name string, env []string) string {
	if strings.ContainsAny(name, `/\`) {
		return ""
	}
	path, ok := envPath(env)
	if !ok {
		return ""
	}
	exts := []string{""}
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		exts = []string{".exe", ".bat", ".cmd"}
	}
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		for _, ext := range exts {
			candidate := filepath.Join(dir, name+ext)
			if isExecutable(candidate) {
				return candidate
			}
		}
	}
	return ""
}

// envPath returns the last PATH entry of env, the one a child process sees.
func envPath(env []string) (string, bool) {
	var path string
	found := false
	for _, kv := range env {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if key == "PATH" || (runtime.GOOS == "windows" && strings.EqualFold(key, "PATH")) {
			path, found = val, true
		}
	}
	return path, found
}

func isExecutable(p string) bool {
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

func tee(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndex(s, "\n"); idx >= 0 {
		return strings.TrimSpace(s[idx+1:])
	}
	return s
}
