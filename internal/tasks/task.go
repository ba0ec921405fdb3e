// Package tasks loads the attachment task document and runs it against the engine tree:
// a stash pass over every patch target, then the copy/patch pass in document order.
package tasks

import (
	"fmt"
	"io"
	"os"
	"strings"

	"sigs.k8s.io/yaml"
)

// Task is one document entry. The concrete types are DirCopy, FileSetCopy, FileCopy,
// Patch and Unknown.
type Task interface {
	Position() int
	Kind() string
	Paths() (source, target string)
	isTask()
}

// Entry holds the fields every task carries. Index is the position in the document.
type Entry struct {
	Index  int
	Source string
	Target string
}

func (e Entry) Position() int                  { return e.Index }
func (e Entry) Paths() (source, target string) { return e.Source, e.Target }
func (Entry) isTask()                          {}

// DirCopy mirrors a directory over its target.
type DirCopy struct{ Entry }

// FileSetCopy copies a directory's files or a glob's matches into the target directory.
type FileSetCopy struct{ Entry }

// FileCopy copies one file.
type FileCopy struct{ Entry }

// Patch applies a patch file to the git repository at Target.
type Patch struct{ Entry }

// Unknown is a record whose type is not recognised. It is kept so the engine can warn.
type Unknown struct {
	Entry
	Type string
}

func (DirCopy) Kind() string     { return "dir" }
func (FileSetCopy) Kind() string { return "files" }
func (FileCopy) Kind() string    { return "file" }
func (Patch) Kind() string       { return "patch" }
func (u Unknown) Kind() string   { return u.Type }

type record struct {
	Type     string `json:"type"`
	FilePath string `json:"file_path"`
	Target   string `json:"target"`
}

// Load parses a JSON or YAML list of {type, file_path, target} records in order.
func Load(r io.Reader) ([]Task, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read task document: %w", err)
	}
	var records []record
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse task document: %w", err)
	}
	out := make([]Task, 0, len(records))
	for i, rec := range records {
		entry := Entry{Index: i, Source: strings.TrimSpace(rec.FilePath), Target: strings.TrimSpace(rec.Target)}
		if entry.Source == "" || entry.Target == "" {
			return nil, fmt.Errorf("task %d (%s): file_path and target are required", i, rec.Type)
		}
		switch strings.TrimSpace(rec.Type) {
		case "dir":
			out = append(out, DirCopy{entry})
		case "files":
			out = append(out, FileSetCopy{entry})
		case "file":
			out = append(out, FileCopy{entry})
		case "patch":
			out = append(out, Patch{entry})
		default:
			out = append(out, Unknown{Entry: entry, Type: rec.Type})
		}
	}
	return out, nil
}

// LoadFile reads the task document at path.
func LoadFile(path string) ([]Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open task document: %w", err)
	}
	defer f.Close()
	tasks, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tasks, nil
}
