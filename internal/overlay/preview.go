package overlay

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// ChangeOp classifies one previewed file.
type ChangeOp string

const (
	OpCreate    ChangeOp = "create"
	OpUpdate    ChangeOp = "update"
	OpDelete    ChangeOp = "delete"
	OpUnchanged ChangeOp = "unchanged"
)

// Change is what a copy would do to one target file.
type Change struct {
	Op     ChangeOp
	Source string
	Target string
	// Diff is a unified diff for text files being updated.
	Diff string
}

const maxDiffBytes = 1 << 20

// Preview computes the changes Copy(kind, source, target) would make without touching the
// filesystem. Errors match the ones Copy would return for a missing source.
func (c *Copier) Preview(kind Kind, source, target string) ([]Change, error) {
	var pairs []pair
	switch kind {
	case KindDir:
		info, err := os.Stat(source)
		if err != nil {
			return nil, &CopyError{Op: "stat", Path: source, Err: err}
		}
		if !info.IsDir() {
			return nil, &CopyError{Op: "copy dir", Path: source, Err: fs.ErrInvalid}
		}
		pairs, err = planTree(source, target)
		if err != nil {
			return nil, err
		}
	case KindFiles:
		var err error
		pairs, err = planFiles(source, target)
		if err != nil {
			return nil, err
		}
	case KindFile:
		p, err := planFile(source, target)
		if err != nil {
			return nil, err
		}
		pairs = []pair{p}
	default:
		return nil, &CopyError{Op: "preview", Path: source, Err: fs.ErrInvalid}
	}

	changes := make([]Change, 0, len(pairs))
	wanted := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		wanted[p.dst] = struct{}{}
		changes = append(changes, previewPair(p))
	}
	if kind == KindDir {
		extras, err := extraFiles(target, wanted)
		if err != nil {
			return nil, err
		}
		for _, path := range extras {
			changes = append(changes, Change{Op: OpDelete, Target: path})
		}
	}
	return changes, nil
}

func previewPair(p pair) Change {
	ch := Change{Source: p.src, Target: p.dst}
	newData, err := os.ReadFile(p.src)
	if err != nil {
		ch.Op = OpCreate
		return ch
	}
	oldData, err := os.ReadFile(p.dst)
	if err != nil {
		ch.Op = OpCreate
		return ch
	}
	if bytes.Equal(oldData, newData) {
		ch.Op = OpUnchanged
		return ch
	}
	ch.Op = OpUpdate
	if isText(oldData) && isText(newData) {
		ch.Diff = unifiedDiff(string(oldData), string(newData), p.dst)
	}
	return ch
}

func extraFiles(target string, wanted map[string]struct{}) ([]string, error) {
	if _, err := os.Lstat(target); os.IsNotExist(err) {
		return nil, nil
	}
	var extras []string
	err := filepath.WalkDir(target, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return &CopyError{Op: "walk", Path: path, Err: walkErr}
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := wanted[path]; !ok {
			extras = append(extras, path)
		}
		return nil
	})
	sort.Strings(extras)
	return extras, err
}

func isText(data []byte) bool {
	if len(data) > maxDiffBytes {
		return false
	}
	sample := data
	if len(sample) > 8000 {
		sample = sample[:8000]
	}
	return bytes.IndexByte(sample, 0) < 0
}

func unifiedDiff(before, after, path string) string {
	before = strings.TrimRight(before, "\n")
	after = strings.TrimRight(after, "\n")
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before + "\n"),
		B:        difflib.SplitLines(after + "\n"),
		FromFile: path + " (current)",
		ToFile:   path + " (overlay)",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return ""
	}
	return text
}
