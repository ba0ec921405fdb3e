package execx

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skip on windows: sh is not available")
	}
}

func TestOSRunnerCapturesOutputAndCode(t *testing.T) {
	skipOnWindows(t)
	var live bytes.Buffer
	r := NewOSRunner(logr.Discard())
	res, err := r.Run(context.Background(), Command{
		Name:   "sh",
		Args:   []string{"-c", "echo out; echo problem >&2; exit 3"},
		Stdout: &live,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Code != 3 {
		t.Fatalf("expected code 3, got %d", res.Code)
	}
	if strings.TrimSpace(res.Stdout) != "out" || strings.TrimSpace(res.Stderr) != "problem" {
		t.Fatalf("unexpected capture stdout=%q stderr=%q", res.Stdout, res.Stderr)
	}
	if strings.TrimSpace(live.String()) != "out" {
		t.Fatalf("expected live stdout, got %q", live.String())
	}
}

func TestOSRunnerTimeoutReportsSentinel(t *testing.T) {
	skipOnWindows(t)
	r := NewOSRunner(logr.Discard())
	res, err := r.Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "sleep 5"},
		Timeout: 100 * time.Millisecond,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if res.Code != SentinelCode {
		t.Fatalf("expected sentinel code, got %d", res.Code)
	}
}

func TestOSRunnerMissingBinary(t *testing.T) {
	r := NewOSRunner(logr.Discard())
	res, err := r.Run(context.Background(), Command{Name: "definitely-not-a-real-binary-ohosbuild"})
	if err == nil {
		t.Fatalf("expected start error")
	}
	if res.Code != SentinelCode {
		t.Fatalf("expected sentinel code, got %d", res.Code)
	}
}

func TestResultErrAndExitCode(t *testing.T) {
	cmd := Command{Name: "ninja", Args: []string{"-C", "src/out/ohos_release_arm64"}}
	if err := (Result{Code: 0}).Err(cmd); err != nil {
		t.Fatalf("expected nil error for code 0, got %v", err)
	}
	err := Result{Code: 2, Stderr: "ninja: error: loading 'build.ninja'\n"}.Err(cmd)
	if got := ExitCode(err, 1); got != 2 {
		t.Fatalf("expected exit code 2, got %d", got)
	}
	if !strings.Contains(err.Error(), "loading 'build.ninja'") {
		t.Fatalf("expected stderr in message, got %q", err.Error())
	}
	if got := ExitCode(errors.New("plain"), 7); got != 7 {
		t.Fatalf("expected fallback, got %d", got)
	}
}

func TestCommandStringQuotesArgs(t *testing.T) {
	cmd := Command{Name: "git", Args: []string{"stash", "save", "Auto stash"}}
	if got := cmd.String(); got != `git stash save "Auto stash"` {
		t.Fatalf("unexpected rendering %q", got)
	}
}

func TestOSRunnerFindsToolOnCommandPath(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	script := "#!/bin/sh\necho from-command-path\n"
	if err := os.WriteFile(filepath.Join(dir, "ohosbuild-test-tool"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	r := NewOSRunner(logr.Discard())
	res, err := r.Run(context.Background(), Command{
		Name: "ohosbuild-test-tool",
		Env:  []string{"PATH=" + dir + string(os.PathListSeparator) + "/usr/bin:/bin"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Code != 0 || strings.TrimSpace(res.Stdout) != "from-command-path" {
		t.Fatalf("unexpected result code=%d stdout=%q", res.Code, res.Stdout)
	}
}

func TestLookPathEnv(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	tool := filepath.Join(dir, "tool")
	if err := os.WriteFile(tool, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	env := []string{"PATH=/nonexistent", "PATH=" + dir}
	if got := lookPathEnv("tool", env); got != tool {
		t.Fatalf("lookPathEnv(tool) = %q, want %q", got, tool)
	}
	if got := lookPathEnv("data", env); got != "" {
		t.Fatalf("non-executable file matched: %q", got)
	}
	if got := lookPathEnv("./tool", env); got != "" {
		t.Fatalf("path with separator must be left alone, got %q", got)
	}
	if got := lookPathEnv("tool", []string{"HOME=/root"}); got != "" {
		t.Fatalf("env without PATH matched %q", got)
	}
}
