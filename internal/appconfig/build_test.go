package appconfig

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mitchellh/go-homedir"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMergesRepoOverGlobal(t *testing.T) {
	dir := t.TempDir()
	global := filepath.Join(dir, "global.yaml")
	repo := filepath.Join(dir, "repo", RepoFileName)
	writeFile(t, global, `
logLevel: debug
features: [setup-diff]
toolchain:
  root: /opt/ohos/native
build:
  types: [debug, release]
  arch: arm64
setup:
  stash: false
publish:
  bucket: global-bucket
  region: cn-north-4
`)
	writeFile(t, repo, `
features: [strict-patch-check]
build:
  types: [profile]
  gnExtraParam: "--enable-unittests"
setup:
  stash: true
publish:
  bucket: repo-bucket
  targets:
    - name: ohos-arm64
      outDir: ohos_debug_unopt_arm64
`)
	cfg, err := Load(context.Background(), global, repo)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Toolchain.Root != "/opt/ohos/native" {
		t.Fatalf("global values lost: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Build.Types, []string{"profile"}) {
		t.Fatalf("repo types should replace global, got %v", cfg.Build.Types)
	}
	if cfg.Build.Arch != "arm64" || cfg.Build.GNExtraParam != "--enable-unittests" {
		t.Fatalf("unexpected build config %+v", cfg.Build)
	}
	if cfg.Setup.Stash == nil || !*cfg.Setup.Stash {
		t.Fatalf("repo stash=true should win")
	}
	if !reflect.DeepEqual(cfg.Features, []string{"setup-diff", "strict-patch-check"}) {
		t.Fatalf("features should accumulate, got %v", cfg.Features)
	}
	if cfg.Publish.Bucket != "repo-bucket" || cfg.Publish.Region != "cn-north-4" {
		t.Fatalf("unexpected publish config %+v", cfg.Publish)
	}
	if len(cfg.Publish.Targets) != 1 || cfg.Publish.Targets[0].OutDir != "ohos_debug_unopt_arm64" {
		t.Fatalf("unexpected targets %+v", cfg.Publish.Targets)
	}
}

func TestLoadMissingAndEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yaml")
	writeFile(t, empty, "\n\n")
	cfg, err := Load(context.Background(), filepath.Join(dir, "missing.yaml"), empty)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Config{}) {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "build: [unterminated")
	if _, err := Load(context.Background(), "", bad); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	path := filepath.Join(home, "cfg.yaml")
	writeFile(t, path, "toolchain:\n  root: ~/sdk/native\n")
	cfg, err := Load(context.Background(), "~/cfg.yaml", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := filepath.Join(home, "sdk", "native"); cfg.Toolchain.Root != want {
		t.Fatalf("root = %q, want %q", cfg.Toolchain.Root, want)
	}
}

func TestDefaultRepoPath(t *testing.T) {
	if DefaultRepoPath("  ") != "" {
		t.Fatalf("blank root should give empty path")
	}
	if got := DefaultRepoPath("/e"); got != filepath.Join("/e", ".ohosbuild.yaml") {
		t.Fatalf("DefaultRepoPath = %q", got)
	}
}

func TestFindEngineRoot(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "src", "flutter", "shell", "platform")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}
	got := FindEngineRoot(deep)
	// src/flutter is itself a directory with neither marker, so the walk stops at root.
	if got != root {
		t.Fatalf("FindEngineRoot = %q, want %q", got, root)
	}

	other := t.TempDir()
	writeFile(t, filepath.Join(other, RepoFileName), "logLevel: info\n")
	if got := FindEngineRoot(filepath.Join(other, RepoFileName)); got != other {
		t.Fatalf("FindEngineRoot(file) = %q, want %q", got, other)
	}
}
