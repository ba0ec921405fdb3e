// Package overlay copies the platform attachment tree into the engine checkout.
//
// A dir copy mirrors its source exactly (the target is removed first); files and file
// copies only add or overwrite.
package overlay

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-logr/logr"
)

// Kind selects the copy semantics.
type Kind string

const (
	KindDir   Kind = "dir"
	KindFiles Kind = "files"
	KindFile  Kind = "file"
)

// ErrSameFile is returned when source and target resolve to the same file or directory.
var ErrSameFile = errors.New("source and target are the same file")

// CopyError reports the operation and path that failed. Copy errors are fatal to a run.
type CopyError struct {
	Op   string
	Path string
	Err  error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("overlay %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }

// Copier performs overlay copies.
type Copier struct {
	Log logr.Logger
}

// NewCopier returns a Copier logging through log.
func NewCopier(log logr.Logger) *Copier {
	return &Copier{Log: log}
}

// Copy dispatches on kind.
func (c *Copier) Copy(kind Kind, source, target string) error {
	switch kind {
	case KindDir:
		return c.CopyDir(source, target)
	case KindFiles:
		return c.CopyFiles(source, target)
	case KindFile:
		return c.CopyFile(source, target)
	default:
		return &CopyError{Op: "copy", Path: source, Err: fmt.Errorf("unknown copy kind %q", kind)}
	}
}

// CopyDir replaces target with an exact copy of the source tree.
func (c *Copier) CopyDir(source, target string) error {
	info, err := os.Stat(source)
	if err != nil {
		return &CopyError{Op: "stat", Path: source, Err: err}
	}
	if !info.IsDir() {
		return &CopyError{Op: "copy dir", Path: source, Err: fmt.Errorf("not a directory")}
	}
	if ti, err := os.Stat(target); err == nil && os.SameFile(info, ti) {
		return &CopyError{Op: "copy dir", Path: target, Err: ErrSameFile}
	}
	if err := os.RemoveAll(target); err != nil {
		return &CopyError{Op: "remove", Path: target, Err: err}
	}
	c.Log.V(1).Info("copy dir", "source", source, "target", target)
	err = filepath.WalkDir(source, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return &CopyError{Op: "walk", Path: path, Err: walkErr}
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return &CopyError{Op: "walk", Path: path, Err: err}
		}
		dst := filepath.Join(target, rel)
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			return copySymlink(path, dst)
		case d.IsDir():
			fi, err := d.Info()
			if err != nil {
				return &CopyError{Op: "stat", Path: path, Err: err}
			}
			if err := os.MkdirAll(dst, fi.Mode().Perm()|0o700); err != nil {
				return &CopyError{Op: "mkdir", Path: dst, Err: err}
			}
			return nil
		case d.Type().IsRegular():
			return copyFile(path, dst)
		default:
			c.Log.V(1).Info("skip special file", "path", path)
			return nil
		}
	})
	return err
}

// CopyFiles copies every regular file selected by source into the target directory.
// source is either a directory (walked recursively, relative layout kept) or a glob.
// Existing files are overwritten; files already in target are left alone.
func (c *Copier) CopyFiles(source, target string) error {
	pairs, err := planFiles(source, target)
	if err != nil {
		return err
	}
	c.Log.V(1).Info("copy files", "source", source, "target", target, "count", len(pairs))
	for _, p := range pairs {
		if err := copyFile(p.src, p.dst); err != nil {
			return err
		}
	}
	return nil
}

// CopyFile copies one file. When target is an existing directory the file keeps its name
// inside it.
func (c *Copier) CopyFile(source, target string) error {
	p, err := planFile(source, target)
	if err != nil {
		return err
	}
	c.Log.V(1).Info("copy file", "source", p.src, "target", p.dst)
	return copyFile(p.src, p.dst)
}

type pair struct {
	src string
	dst string
}

func planFile(source, target string) (pair, error) {
	info, err := os.Stat(source)
	if err != nil {
		return pair{}, &CopyError{Op: "stat", Path: source, Err: err}
	}
	if info.IsDir() {
		return pair{}, &CopyError{Op: "copy file", Path: source, Err: fmt.Errorf("is a directory")}
	}
	if ti, err := os.Stat(target); err == nil && ti.IsDir() {
		target = filepath.Join(target, filepath.Base(source))
	}
	return pair{src: source, dst: target}, nil
}

func planFiles(source, target string) ([]pair, error) {
	if info, err := os.Stat(source); err == nil && info.IsDir() {
		return planTree(source, target)
	}
	if !hasGlobMeta(source) {
		_, err := os.Stat(source)
		return nil, &CopyError{Op: "stat", Path: source, Err: err}
	}
	matches, err := filepath.Glob(source)
	if err != nil {
		return nil, &CopyError{Op: "glob", Path: source, Err: err}
	}
	if len(matches) == 0 {
		return nil, &CopyError{Op: "glob", Path: source, Err: fs.ErrNotExist}
	}
	sort.Strings(matches)
	var out []pair
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, &CopyError{Op: "stat", Path: m, Err: err}
		}
		dst := filepath.Join(target, filepath.Base(m))
		if info.IsDir() {
			sub, err := planTree(m, dst)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}
		out = append(out, pair{src: m, dst: dst})
	}
	return out, nil
}

func planTree(source, target string) ([]pair, error) {
	var out []pair
	err := filepath.WalkDir(source, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return &CopyError{Op: "walk", Path: path, Err: walkErr}
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return &CopyError{Op: "walk", Path: path, Err: err}
		}
		out = append(out, pair{src: path, dst: filepath.Join(target, rel)})
		return nil
	})
	return out, err
}

func hasGlobMeta(p string) bool {
	return strings.ContainsAny(p, "*?[")
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return &CopyError{Op: "stat", Path: src, Err: err}
	}
	if di, err := os.Stat(dst); err == nil && os.SameFile(info, di) {
		return &CopyError{Op: "copy file", Path: dst, Err: ErrSameFile}
	}
	in, err := os.Open(src)
	if err != nil {
		return &CopyError{Op: "open", Path: src, Err: err}
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &CopyError{Op: "mkdir", Path: filepath.Dir(dst), Err: err}
	}
	// A read-only leftover would make O_TRUNC fail.
	if fi, err := os.Lstat(dst); err == nil && (fi.Mode().Perm()&0o200 == 0 || fi.Mode()&fs.ModeSymlink != 0) {
		_ = os.Remove(dst)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return &CopyError{Op: "create", Path: dst, Err: err}
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return &CopyError{Op: "write", Path: dst, Err: err}
	}
	if err := out.Close(); err != nil {
		return &CopyError{Op: "close", Path: dst, Err: err}
	}
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return &CopyError{Op: "chmod", Path: dst, Err: err}
	}
	return nil
}

func copySymlink(src, dst string) error {
	link, err := os.Readlink(src)
	if err != nil {
		return &CopyError{Op: "readlink", Path: src, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &CopyError{Op: "mkdir", Path: filepath.Dir(dst), Err: err}
	}
	if err := os.Symlink(link, dst); err != nil {
		return &CopyError{Op: "symlink", Path: dst, Err: err}
	}
	return nil
}
