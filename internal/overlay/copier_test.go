package overlay

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/go-logr/logr"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(root, path)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	sort.Strings(out)
	return out
}

func TestCopyDirRemovesExtraFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "A")
	dst := filepath.Join(dir, "B")
	writeFile(t, filepath.Join(src, "x.txt"), "x")
	writeFile(t, filepath.Join(dst, "y.txt"), "y")

	if err := NewCopier(logr.Discard()).Copy(KindDir, src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	got := listFiles(t, dst)
	if len(got) != 1 || got[0] != "x.txt" {
		t.Fatalf("expected exactly x.txt, got %v", got)
	}
}

func TestCopyDirKeepsModesAndSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks and exec bits need a unix host")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeFile(t, filepath.Join(src, "bin", "tool.sh"), "#!/bin/sh\n")
	if err := os.Chmod(filepath.Join(src, "bin", "tool.sh"), 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := os.Symlink("bin/tool.sh", filepath.Join(src, "tool")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	dst := filepath.Join(dir, "dst")
	if err := NewCopier(logr.Discard()).CopyDir(src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	info, err := os.Stat(filepath.Join(dst, "bin", "tool.sh"))
	if err != nil || info.Mode().Perm() != 0o755 {
		t.Fatalf("expected 0755 file, got %v (%v)", info, err)
	}
	link, err := os.Readlink(filepath.Join(dst, "tool"))
	if err != nil || link != "bin/tool.sh" {
		t.Fatalf("expected symlink to bin/tool.sh, got %q (%v)", link, err)
	}
}

func TestCopyFilesOverwritesButKeepsExtras(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeFile(t, filepath.Join(src, "a.gn"), "new")
	writeFile(t, filepath.Join(src, "sub", "b.gn"), "b")
	writeFile(t, filepath.Join(dst, "a.gn"), "old")
	writeFile(t, filepath.Join(dst, "keep.txt"), "keep")

	if err := NewCopier(logr.Discard()).Copy(KindFiles, src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	got := strings.Join(listFiles(t, dst), ",")
	if got != "a.gn,keep.txt,sub/b.gn" {
		t.Fatalf("unexpected tree %s", got)
	}
	data, _ := os.ReadFile(filepath.Join(dst, "a.gn"))
	if string(data) != "new" {
		t.Fatalf("expected overwrite, got %q", data)
	}
}

func TestCopyFilesGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "one.h"), "1")
	writeFile(t, filepath.Join(dir, "src", "two.h"), "2")
	writeFile(t, filepath.Join(dir, "src", "skip.cc"), "3")
	dst := filepath.Join(dir, "dst")
	if err := NewCopier(logr.Discard()).CopyFiles(filepath.Join(dir, "src", "*.h"), dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if got := strings.Join(listFiles(t, dst), ","); got != "one.h,two.h" {
		t.Fatalf("unexpected tree %s", got)
	}
	err := NewCopier(logr.Discard()).CopyFiles(filepath.Join(dir, "src", "*.none"), dst)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist for empty glob, got %v", err)
	}
}

func TestCopyFileIntoExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "DEPS")
	writeFile(t, src, "deps")
	target := filepath.Join(dir, "engine")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	c := NewCopier(logr.Discard())
	if err := c.CopyFile(src, target); err != nil {
		t.Fatalf("copy into dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "DEPS")); err != nil {
		t.Fatalf("expected file inside dir: %v", err)
	}
	if err := c.CopyFile(src, filepath.Join(dir, "new", "nested", "DEPS.copy")); err != nil {
		t.Fatalf("copy with parents: %v", err)
	}
}

func TestMissingSourceIsCopyError(t *testing.T) {
	dir := t.TempDir()
	for _, kind := range []Kind{KindDir, KindFiles, KindFile} {
		err := NewCopier(logr.Discard()).Copy(kind, filepath.Join(dir, "missing"), filepath.Join(dir, "out"))
		var ce *CopyError
		if !errors.As(err, &ce) {
			t.Fatalf("%s: expected CopyError, got %v", kind, err)
		}
	}
}

func TestCopyOntoItselfKeepsContent(t *testing.T) {
	dir := t.TempDir()
	deps := filepath.Join(dir, "DEPS")
	if err := os.WriteFile(deps, []byte("deps = {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := NewCopier(logr.Discard())
	if err := c.CopyFile(deps, deps); !errors.Is(err, ErrSameFile) {
		t.Fatalf("expected ErrSameFile, got %v", err)
	}
	if err := c.CopyFile(deps, dir); !errors.Is(err, ErrSameFile) {
		t.Fatalf("copy into own directory: expected ErrSameFile, got %v", err)
	}
	if data, _ := os.ReadFile(deps); string(data) != "deps = {}" {
		t.Fatalf("content lost: %q", data)
	}
	if err := c.CopyDir(dir, dir); !errors.Is(err, ErrSameFile) {
		t.Fatalf("dir onto itself: expected ErrSameFile, got %v", err)
	}
	if _, err := os.Stat(deps); err != nil {
		t.Fatalf("dir copy onto itself removed the source: %v", err)
	}
}
