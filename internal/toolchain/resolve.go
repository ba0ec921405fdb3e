package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/go-logr/logr"
)

const (
	EnvNDKHome    = "OHOS_NDK_HOME"
	EnvSDKHome    = "OHOS_SDK_HOME"
	EnvHOSSDKHome = "HOS_SDK_HOME"

	// MarkerName is the directory suffix that identifies a toolchain root inside an SDK.
	MarkerName = "native"

	// ExitCodeNotFound is the process exit code when no valid toolchain is found.
	ExitCodeNotFound = 10
)

// ErrToolchainNotFound is matched with errors.Is by callers that map it to ExitCodeNotFound.
var ErrToolchainNotFound = errors.New("no valid OHOS toolchain found")

// NotFoundError carries the candidates that were tried and the operator guidance.
type NotFoundError struct {
	Tried []string
	// Reason explains why the last explicit candidate was rejected, when there was one.
	Reason string
}

func (e *NotFoundError) Error() string {
	msg := ErrToolchainNotFound.Error()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return ErrToolchainNotFound }

// Guidance is the message printed to the operator before exiting.
func (e *NotFoundError) Guidance() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Set %s to the SDK native directory, or set %s or %s to the HarmonyOS SDK home.\n", EnvNDKHome, EnvHOSSDKHome, EnvSDKHome)
	b.WriteString("The native directory must contain:\n")
	for _, sub := range RequiredSubpaths[1:] {
		fmt.Fprintf(&b, "  %s/%s\n", MarkerName, filepath.ToSlash(sub))
	}
	b.WriteString("and native/llvm/bin/clang must exist and be executable.")
	if len(e.Tried) > 0 {
		b.WriteString("\nCandidates tried:")
		for _, c := range e.Tried {
			b.WriteString("\n  " + c)
		}
	}
	return b.String()
}

// Resolver finds the toolchain. Each Resolve call searches afresh.
type Resolver struct {
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// BundledDir is the directory holding per-host bundled SDKs (<engine root>/ndk).
	BundledDir string
	// Override is used when OHOS_NDK_HOME is unset (from the config file's toolchainRoot).
	Override string
	// GOOS defaults to runtime.GOOS; it selects the bundled host subdirectory.
	GOOS string
	Log  logr.Logger
}

func (r Resolver) getenv(key string) string {
	if r.Getenv != nil {
		return r.Getenv(key)
	}
	return os.Getenv(key)
}

// Resolve runs the resolution order: explicit root (env, then config), bundled SDK,
// SDK-home search. An explicit or bundled candidate is final: if it is invalid the search
// stops with a NotFoundError instead of falling through.
func (r Resolver) Resolve(ctx context.Context) (Toolchain, error) {
	if err := ctx.Err(); err != nil {
		return Toolchain{}, err
	}
	root, source := strings.TrimSpace(r.getenv(EnvNDKHome)), "env"
	if root == "" && strings.TrimSpace(r.Override) != "" {
		root, source = strings.TrimSpace(r.Override), "config"
	}
	if root == "" {
		root, source = r.findBundled(), "bundled"
	}
	if root != "" {
		r.Log.Info("toolchain candidate", EnvNDKHome, root, "source", source)
		if err := Validate(root); err != nil {
			return Toolchain{}, &NotFoundError{Tried: []string{root}, Reason: err.Error()}
		}
		return Toolchain{Root: root, Source: source}, nil
	}

	var candidates []string
	for _, env := range []string{EnvSDKHome, EnvHOSSDKHome} {
		home := strings.TrimSpace(r.getenv(env))
		if home == "" {
			continue
		}
		candidates = append(candidates, findMarkers(home, true)...)
	}
	SortCandidates(candidates)
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return Toolchain{}, err
		}
		if IsValid(c) {
			r.Log.Info("toolchain resolved", EnvNDKHome, c, "source", "sdk")
			return Toolchain{Root: c, Source: "sdk"}, nil
		}
		r.Log.V(1).Info("toolchain candidate rejected", "candidate", c)
	}
	return Toolchain{}, &NotFoundError{Tried: candidates}
}

func (r Resolver) findBundled() string {
	if strings.TrimSpace(r.BundledDir) == "" {
		return ""
	}
	goos := r.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	hostDir := goos
	if goos == "darwin" {
		hostDir = "mac"
	}
	found := findMarkers(filepath.Join(r.BundledDir, hostDir), false)
	if len(found) == 0 {
		return ""
	}
	return found[0]
}

// findMarkers walks root depth-first (entries in name order, symlinked directories not
// followed) and returns every directory whose path ends with MarkerName. When all is false
// the walk stops at the first match.
func findMarkers(root string, all bool) []string {
	var out []string
	var walk func(dir string) bool
	walk = func(dir string) bool {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return false
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			p := filepath.Join(dir, entry.Name())
			if strings.HasSuffix(p, MarkerName) {
				abs, err := filepath.Abs(p)
				if err != nil {
					abs = p
				}
				out = append(out, abs)
				if !all {
					return true
				}
			}
			if walk(p) && !all {
				return true
			}
		}
		return false
	}
	walk(root)
	return out
}

// Rank returns the sort key of a candidate. Candidates are tried in descending key order so
// that newer-looking SDK version directories come first.
func Rank(candidate string) string {
	return filepath.ToSlash(filepath.Clean(candidate))
}

// SortCandidates orders candidates by descending Rank.
func SortCandidates(candidates []string) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return Rank(candidates[i]) > Rank(candidates[j])
	})
}
