package appconfig

import (
	"os"
	"path/filepath"
	"strings"
)

// RepoFileName is the per-checkout config file kept in the engine root.
const RepoFileName = ".ohosbuild.yaml"

// FindEngineRoot walks up from start to the first directory that holds
// src/flutter or an .ohosbuild.yaml. It returns "" when none is found.
func FindEngineRoot(start string) string {
	start = strings.TrimSpace(start)
	if start == "" {
		return ""
	}
	if abs, err := filepath.Abs(start); err == nil {
		start = abs
	}
	info, err := os.Stat(start)
	if err == nil && !info.IsDir() {
		start = filepath.Dir(start)
	}
	current := start
	for {
		if isEngineRoot(current) {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}

func isEngineRoot(dir string) bool {
	if dir == "" {
		return false
	}
	if fi, err := os.Stat(filepath.Join(dir, "src", "flutter")); err == nil && fi.IsDir() {
		return true
	}
	if fi, err := os.Stat(filepath.Join(dir, RepoFileName)); err == nil && !fi.IsDir() {
		return true
	}
	return false
}
