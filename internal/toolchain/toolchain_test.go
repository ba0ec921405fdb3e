package toolchain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"
)

func makeToolchain(t *testing.T, root string) string {
	t.Helper()
	for _, sub := range RequiredSubpaths {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	return root
}

func noEnv(string) string { return "" }

func TestValidRequiresAllSubpaths(t *testing.T) {
	for _, missing := range RequiredSubpaths[1:] {
		root := makeToolchain(t, filepath.Join(t.TempDir(), "native"))
		if !IsValid(root) {
			t.Fatalf("expected complete root to be valid")
		}
		if err := os.RemoveAll(filepath.Join(root, missing)); err != nil {
			t.Fatalf("remove: %v", err)
		}
		if IsValid(root) {
			t.Fatalf("expected root without %s to be invalid", missing)
		}
	}
	if IsValid("") {
		t.Fatalf("empty root must be invalid")
	}
}

func TestResolveEnvMissingLLVMBin(t *testing.T) {
	root := makeToolchain(t, filepath.Join(t.TempDir(), "native"))
	if err := os.RemoveAll(filepath.Join(root, "llvm", "bin")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	r := Resolver{Getenv: func(k string) string {
		if k == EnvNDKHome {
			return root
		}
		return ""
	}, Log: logr.Discard()}
	_, err := r.Resolve(context.Background())
	if !errors.Is(err, ErrToolchainNotFound) {
		t.Fatalf("expected ErrToolchainNotFound, got %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || !strings.Contains(nf.Reason, "llvm/bin") {
		t.Fatalf("expected reason naming llvm/bin, got %v", err)
	}
	if !strings.Contains(nf.Guidance(), EnvHOSSDKHome) {
		t.Fatalf("guidance should name %s: %s", EnvHOSSDKHome, nf.Guidance())
	}
}

func TestResolvePrefersEnv(t *testing.T) {
	root := makeToolchain(t, filepath.Join(t.TempDir(), "native"))
	r := Resolver{Getenv: func(k string) string {
		if k == EnvNDKHome {
			return root
		}
		return ""
	}, Override: "/nowhere", Log: logr.Discard()}
	tc, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tc.Root != root || tc.Source != "env" {
		t.Fatalf("unexpected toolchain %+v", tc)
	}
}

func TestResolveBundledFirstMatch(t *testing.T) {
	bundled := t.TempDir()
	first := makeToolchain(t, filepath.Join(bundled, "linux", "a", "native"))
	makeToolchain(t, filepath.Join(bundled, "linux", "b", "native"))
	r := Resolver{Getenv: noEnv, BundledDir: bundled, GOOS: "linux", Log: logr.Discard()}
	tc, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tc.Root != first || tc.Source != "bundled" {
		t.Fatalf("expected %s from bundled, got %+v", first, tc)
	}
}

func TestResolveSDKHomeSkipsInvalidNewest(t *testing.T) {
	sdk := t.TempDir()
	older := makeToolchain(t, filepath.Join(sdk, "10", "native"))
	if err := os.MkdirAll(filepath.Join(sdk, "11", "native"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	r := Resolver{Getenv: func(k string) string {
		if k == EnvHOSSDKHome {
			return sdk
		}
		return ""
	}, Log: logr.Discard()}
	tc, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tc.Root != older {
		t.Fatalf("expected fallback to %s, got %s", older, tc.Root)
	}
}

func TestResolveNothingConfigured(t *testing.T) {
	_, err := Resolver{Getenv: noEnv, Log: logr.Discard()}.Resolve(context.Background())
	if !errors.Is(err, ErrToolchainNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSortCandidatesDescending(t *testing.T) {
	c := []string{"/sdk/9/native", "/sdk/11/native", "/sdk/12/native", "/sdk/10/native"}
	SortCandidates(c)
	want := []string{"/sdk/9/native", "/sdk/12/native", "/sdk/11/native", "/sdk/10/native"}
	for i := range want {
		if c[i] != want[i] {
			t.Fatalf("position %d: want %s, got %s (%v)", i, want[i], c[i], c)
		}
	}
	if Rank("/sdk/11/native/") != "/sdk/11/native" {
		t.Fatalf("rank should clean trailing separators")
	}
}

func TestEnvPrependsBinDirs(t *testing.T) {
	tc := Toolchain{Root: "/sdk/native"}
	env := tc.Env([]string{"HOME=/root", "PATH=/usr/bin"}, "/engine/depot_tools")
	var path string
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			path = strings.TrimPrefix(kv, "PATH=")
		}
	}
	parts := filepath.SplitList(path)
	if len(parts) != 4 || parts[0] != filepath.Join("/sdk/native", "build-tools", "cmake", "bin") || parts[3] != "/usr/bin" {
		t.Fatalf("unexpected PATH %q", path)
	}
	if parts[2] != "/engine/depot_tools" {
		t.Fatalf("expected depot_tools before system PATH, got %q", path)
	}
	if len(env) != 2 {
		t.Fatalf("expected base entries preserved, got %v", env)
	}
}

func TestVersionFromPackageOrParent(t *testing.T) {
	root := makeToolchain(t, filepath.Join(t.TempDir(), "11", "native"))
	if v := (Toolchain{Root: root}).Version(); v != "11" {
		t.Fatalf("expected parent name, got %q", v)
	}
	if err := os.WriteFile(filepath.Join(root, "oh-uni-package.json"), []byte(`{"apiVersion":"11","version":"4.1.7.5"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if v := (Toolchain{Root: root}).Version(); v != "4.1.7.5" {
		t.Fatalf("expected package version, got %q", v)
	}
}
