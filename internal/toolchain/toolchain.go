// Package toolchain locates and validates the OHOS native toolchain (the SDK "native"
// directory holding sysroot, llvm and the bundled cmake).
package toolchain

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"
)

// RequiredSubpaths lists the directories, relative to the root, that make a toolchain valid.
// The empty entry stands for the root itself.
var RequiredSubpaths = []string{
	"",
	"sysroot",
	filepath.Join("llvm", "bin"),
	filepath.Join("build-tools", "cmake", "bin"),
}

// Validate reports the first required subpath missing under root.
func Validate(root string) error {
	if strings.TrimSpace(root) == "" {
		return fmt.Errorf("toolchain root is empty")
	}
	for _, sub := range RequiredSubpaths {
		p := filepath.Join(root, sub)
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("toolchain %s: missing %s", root, displaySubpath(sub))
		}
		if !info.IsDir() {
			return fmt.Errorf("toolchain %s: %s is not a directory", root, displaySubpath(sub))
		}
	}
	return nil
}

// IsValid reports whether root contains every required subpath.
func IsValid(root string) bool {
	return Validate(root) == nil
}

func displaySubpath(sub string) string {
	if sub == "" {
		return "root directory"
	}
	return filepath.ToSlash(sub)
}

// Toolchain is a validated toolchain root. It is a plain value: commands that need the
// toolchain on PATH get it through Env rather than through the process environment.
type Toolchain struct {
	Root string
	// Source records which resolution step produced Root (env, config, bundled, sdk).
	Source string
}

// Sysroot is passed to gn as --target-sysroot.
func (t Toolchain) Sysroot() string { return filepath.Join(t.Root, "sysroot") }

// LLVM is passed to gn as --target-toolchain.
func (t Toolchain) LLVM() string { return filepath.Join(t.Root, "llvm") }

// BinDirs are the toolchain directories prepended to PATH.
func (t Toolchain) BinDirs() []string {
	return []string{
		filepath.Join(t.Root, "build-tools", "cmake", "bin"),
		filepath.Join(t.Root, "llvm", "bin"),
	}
}

// Env returns a copy of base whose PATH starts with BinDirs followed by extraDirs.
func (t Toolchain) Env(base []string, extraDirs ...string) []string {
	return PrependPath(base, append(t.BinDirs(), extraDirs...)...)
}

// PrependPath returns a copy of base whose PATH starts with dirs. A missing PATH is added.
func PrependPath(base []string, dirs ...string) []string {
	prefix := strings.Join(dirs, string(os.PathListSeparator))
	out := make([]string, 0, len(base)+1)
	replaced := false
	for _, kv := range base {
		key, val, ok := strings.Cut(kv, "=")
		if ok && isPathKey(key) && !replaced {
			if val != "" {
				val = prefix + string(os.PathListSeparator) + val
			} else {
				val = prefix
			}
			out = append(out, key+"="+val)
			replaced = true
			continue
		}
		out = append(out, kv)
	}
	if !replaced {
		out = append(out, "PATH="+prefix)
	}
	return out
}

func isPathKey(key string) bool {
	if os.PathListSeparator == ';' {
		return strings.EqualFold(key, "PATH")
	}
	return key == "PATH"
}

type unifiedPackage struct {
	Version    string `json:"version"`
	APIVersion string `json:"apiVersion"`
}

// Version identifies the SDK the toolchain ships with. It prefers the version recorded in
// oh-uni-package.json and falls back to the name of the directory holding the root.
func (t Toolchain) Version() string {
	data, err := os.ReadFile(filepath.Join(t.Root, "oh-uni-package.json"))
	if err == nil {
		var pkg unifiedPackage
		if yaml.Unmarshal(data, &pkg) == nil {
			if v := strings.TrimSpace(pkg.Version); v != "" {
				return v
			}
			if v := strings.TrimSpace(pkg.APIVersion); v != "" {
				return v
			}
		}
	}
	parent := filepath.Base(filepath.Dir(filepath.Clean(t.Root)))
	if parent == "." || parent == string(filepath.Separator) {
		return "unknown"
	}
	return parent
}
