// File: internal/workflows/enginebuild/run_test.go
// Brief: Scenario tests for the build matrix.

package enginebuild

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

	"github.com/miscdec/flutter-engine/internal/buildinfo"
	"github.com/miscdec/flutter-engine/internal/execx"
	"github.com/miscdec/flutter-engine/internal/execx/execxtest"
	"github.com/miscdec/flutter-engine/internal/runlog"
	"github.com/miscdec/flutter-engine/internal/stages"
	"github.com/miscdec/flutter-engine/internal/toolchain"
)

type fakeResolver struct {
	tc    toolchain.Toolchain
	err   error
	calls int
}

func (f *fakeResolver) Resolve(ctx context.Context) (toolchain.Toolchain, error) {
	f.calls++
	return f.tc, f.err
}

func engineRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src", "flutter"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return root
}

func validToolchain(t *testing.T) toolchain.Toolchain {
	t.Helper()
	root := filepath.Join(t.TempDir(), "11", "native")
	for _, sub := range toolchain.RequiredSubpaths {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	return toolchain.Toolchain{Root: root, Source: "env"}
}

func newTestService(rec execx.Runner, resolver ToolchainResolver, ledger *runlog.Ledger) Service {
	return New(Dependencies{
		Runner:   rec,
		Resolver: resolver,
		Ledger:   ledger,
		Log:      logr.Discard(),
		Now:      func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) },
		Environ:  func() []string { return []string{"PATH=/usr/bin"} },
	})
}

func quietStreams() Streams {
	var buf bytes.Buffer
	return Streams{Out: &buf, Err: &buf}
}

func TestCompileOnlyPropagatesExitCode(t *testing.T) {
	root := engineRoot(t)
	rec := &execxtest.Recorder{Handler: func(cmd execx.Command) (execx.Result, error) {
		return execx.Result{Code: 7, Stderr: "ninja: error: loading 'build.ninja': No such file or directory"}, nil
	}}
	resolver := &fakeResolver{}
	res, err := newTestService(rec, resolver, nil).Run(context.Background(), Options{
		Root:    root,
		Types:   []buildinfo.BuildType{buildinfo.Release, buildinfo.Debug},
		Stages:  []stages.Name{stages.Compile},
		Streams: quietStreams(),
	})
	var exitErr *execx.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 7 {
		t.Fatalf("expected exit code 7, got %v", err)
	}
	if resolver.calls != 0 {
		t.Fatalf("compile alone must not resolve the toolchain")
	}
	lines := rec.Lines()
	if len(lines) != 1 || lines[0] != "ninja -C "+filepath.Join("src", "out", "ohos_debug_unopt_arm64") {
		t.Fatalf("expected a single debug ninja call, got %v", lines)
	}
	if len(res.Steps) != 1 || !res.Steps[0].Fatal {
		t.Fatalf("unexpected steps %+v", res.Steps)
	}
}

func TestMissingToolchainFailsBeforeAnyStage(t *testing.T) {
	root := engineRoot(t)
	outDir := filepath.Join(root, "src", "out", "ohos_debug_unopt_arm64")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	broken := validToolchain(t)
	if err := os.RemoveAll(filepath.Join(broken.Root, "llvm", "bin")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	resolver := toolchain.Resolver{Getenv: func(k string) string {
		if k == toolchain.EnvNDKHome {
			return broken.Root
		}
		return ""
	}, Log: logr.Discard()}
	rec := &execxtest.Recorder{}
	streams := quietStreams()
	res, err := newTestService(rec, resolver, nil).Run(context.Background(), Options{
		Root:    root,
		Stages:  []stages.Name{stages.Compile, stages.Config, stages.Clean},
		Streams: streams,
	})
	if !errors.Is(err, toolchain.ErrToolchainNotFound) || exitCode(err) != toolchain.ExitCodeNotFound {
		t.Fatalf("expected toolchain error with code 10, got %v", err)
	}
	if len(rec.Commands) != 0 || len(res.Steps) != 0 {
		t.Fatalf("no stage may run: %v %+v", rec.Lines(), res.Steps)
	}
	if _, err := os.Stat(outDir); err != nil {
		t.Fatalf("clean must not have run: %v", err)
	}
	if !strings.Contains(streams.Err.(*bytes.Buffer).String(), toolchain.EnvHOSSDKHome) {
		t.Fatalf("guidance not printed")
	}
}

func TestConfigureFailureIsNonFatalAndOrderIsCanonical(t *testing.T) {
	root := engineRoot(t)
	tc := validToolchain(t)
	rec := &execxtest.Recorder{Handler: func(cmd execx.Command) (execx.Result, error) {
		if strings.HasSuffix(cmd.Name, "gn") {
			return execx.Result{Code: 1}, nil
		}
		return execx.Result{}, nil
	}}
	res, err := newTestService(rec, &fakeResolver{tc: tc}, nil).Run(context.Background(), Options{
		Root:    root,
		Types:   []buildinfo.BuildType{buildinfo.Debug},
		Stages:  []stages.Name{stages.Compile, stages.Config},
		Streams: quietStreams(),
	})
	if err != nil {
		t.Fatalf("configure failure must not abort: %v", err)
	}
	if len(rec.Commands) != 2 || !strings.HasSuffix(rec.Commands[0].Name, filepath.Join("tools", "gn")) || rec.Commands[1].Name != "ninja" {
		t.Fatalf("expected gn then ninja, got %v", rec.Lines())
	}
	gn := rec.Commands[0]
	if gn.Timeout != stages.Policies[stages.Config].Timeout {
		t.Fatalf("gn must run with the config timeout, got %s", gn.Timeout)
	}
	if !strings.Contains(rec.Lines()[0], "--runtime-mode debug --unoptimized --no-lto") {
		t.Fatalf("debug flags missing: %s", rec.Lines()[0])
	}
	var path string
	for _, kv := range gn.Env {
		if strings.HasPrefix(kv, "PATH=") {
			path = kv
		}
	}
	if !strings.Contains(path, filepath.Join(tc.Root, "llvm", "bin")) || !strings.Contains(path, "depot_tools") {
		t.Fatalf("toolchain not on PATH: %q", path)
	}
	if len(res.Steps) != 2 || res.Steps[0].Err == nil || res.Steps[0].Fatal {
		t.Fatalf("unexpected steps %+v", res.Steps)
	}
}

func TestGNArgs(t *testing.T) {
	info, _ := buildinfo.New(buildinfo.Release, "arm64")
	tc := toolchain.Toolchain{Root: "/sdk/native"}
	args, err := GNArgs(info, tc, `\--enable-unittests --gn-args='use_foo=true bar=1'`, false)
	if err != nil {
		t.Fatalf("gn args: %v", err)
	}
	joined := strings.Join(args, "|")
	if strings.Contains(joined, "--unoptimized") {
		t.Fatalf("release must be optimized: %s", joined)
	}
	if !strings.Contains(joined, "--target-sysroot|"+filepath.Join("/sdk/native", "sysroot")) {
		t.Fatalf("missing sysroot: %s", joined)
	}
	if !strings.HasSuffix(joined, "--verbose|--enable-unittests|--gn-args=use_foo=true bar=1") {
		t.Fatalf("extra params not appended: %s", joined)
	}
	winArgs, _ := GNArgs(info, tc, "", true)
	if strings.Contains(strings.Join(winArgs, " "), "--target-sysroot") {
		t.Fatalf("windows hosts must not pass the toolchain layout")
	}
}

func TestHarNativeLibs(t *testing.T) {
	profile, _ := buildinfo.New(buildinfo.Profile, "")
	if libs := HarNativeLibs("/out", profile); len(libs) != 2 || !strings.HasSuffix(libs[1], filepath.Join("libs", "arm64-v8a", "libvmservice_snapshot.so")) {
		t.Fatalf("profile libs: %v", libs)
	}
	release, _ := buildinfo.New(buildinfo.Release, "")
	if libs := HarNativeLibs("/out", release); len(libs) != 1 {
		t.Fatalf("release libs: %v", libs)
	}
}

func TestZipStageWritesNamedArchive(t *testing.T) {
	root := engineRoot(t)
	out := filepath.Join(root, "src", "out", "ohos_release_arm64")
	for _, f := range []string{"libflutter.so", filepath.Join("obj", "x.o")} {
		p := filepath.Join(out, f)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(f), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	ledger, err := runlog.Open(filepath.Join(root, "outputs", runlog.FileName))
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	defer ledger.Close()
	res, err := newTestService(&execxtest.Recorder{}, &fakeResolver{tc: validToolchain(t)}, ledger).Run(context.Background(), Options{
		Root:       root,
		Types:      []buildinfo.BuildType{buildinfo.Release},
		Stages:     []stages.Name{stages.Zip2},
		OutputsDir: filepath.Join(root, "outputs", "20240501"),
		Streams:    quietStreams(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Archives) != 1 || res.Archives[0].Unstripped == nil {
		t.Fatalf("expected split archives, got %+v", res.Archives)
	}
	name := filepath.Base(res.Archives[0].Primary.Path)
	want := "ohos_11_release-" + buildinfo.HostOS() + "-" + buildinfo.HostMachine() + "-20240501-0930.zip"
	if name != want {
		t.Fatalf("want archive %s, got %s", want, name)
	}
	recorded, err := ledger.Stages(context.Background(), res.RunID)
	if err != nil || len(recorded) != 1 || recorded[0].Stage != "zip2" {
		t.Fatalf("ledger not updated: %+v %v", recorded, err)
	}
}

func TestNotEngineRoot(t *testing.T) {
	_, err := newTestService(&execxtest.Recorder{}, &fakeResolver{}, nil).Run(context.Background(), Options{Root: t.TempDir()})
	if !errors.Is(err, stages.ErrNotEngineRoot) {
		t.Fatalf("expected ErrNotEngineRoot, got %v", err)
	}
}

func TestCompileFindsNinjaInDepotTools(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skip on windows: sh is not available")
	}
	root := engineRoot(t)
	depot := filepath.Join(root, "depot_tools")
	if err := os.MkdirAll(depot, 0o755); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(root, "ninja.args")
	script := "#!/bin/sh\necho \"$@\" > '" + marker + "'\n"
	if err := os.WriteFile(filepath.Join(depot, "ninja"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	svc := New(Dependencies{
		Runner:   execx.NewOSRunner(logr.Discard()),
		Resolver: &fakeResolver{},
		Log:      logr.Discard(),
		Now:      func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) },
		Environ:  func() []string { return []string{"PATH=/usr/bin:/bin"} },
	})
	_, err := svc.Run(context.Background(), Options{
		Root:    root,
		Types:   []buildinfo.BuildType{buildinfo.Debug},
		Stages:  []stages.Name{stages.Compile},
		Streams: quietStreams(),
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	got, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("ninja from depot_tools did not run: %v", err)
	}
	if !strings.Contains(string(got), filepath.Join("src", "out", "ohos_debug_unopt_arm64")) {
		t.Fatalf("unexpected ninja args %q", got)
	}
}
