// File: internal/workflows/enginebuild/options.go
// Brief: Options and IO streams for the engine build workflow.

package enginebuild

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/term"

	"github.com/miscdec/flutter-engine/internal/buildinfo"
	"github.com/miscdec/flutter-engine/internal/stages"
)

// Streams defines the IO handles a workflow should use.
type Streams struct {
	Out io.Writer
	Err io.Writer
}

func (s Streams) OutWriter() io.Writer {
	if s.Out != nil {
		return s.Out
	}
	return os.Stdout
}

func (s Streams) ErrWriter() io.Writer {
	if s.Err != nil {
		return s.Err
	}
	if s.Out != nil {
		return s.Out
	}
	return os.Stderr
}

// IsTerminal reports whether w is attached to a terminal.
func (s Streams) IsTerminal(w io.Writer) bool {
	type fdProvider interface {
		Fd() uintptr
	}
	if v, ok := w.(fdProvider); ok {
		return term.IsTerminal(int(v.Fd()))
	}
	return false
}

// Options contains everything needed to run the build matrix.
type Options struct {
	// Root is the gclient root holding src/.
	Root         string
	Types        []buildinfo.BuildType
	Stages       []stages.Name
	Branch       string
	GNExtraParam string
	Arch         string
	// ToolchainRoot is used when OHOS_NDK_HOME is unset.
	ToolchainRoot string
	// OutputsDir receives archives; empty means OutputsDir(Root, now).
	OutputsDir      string
	ArchiveIncludes []string
	ArchiveExcludes []string
	// Setup configures the task run that follows a branch sync.
	Setup   SetupOptions
	Streams Streams
}

// SetupOptions configure one run of the attachment task document.
type SetupOptions struct {
	Root string
	// Document defaults to DefaultDocument(Root).
	Document string
	// SourceRoot resolves task file_path values; defaults to <Root>/src.
	SourceRoot string
	NoStash    bool
	DryRun     bool
	Strict     bool
	// ShowDiff prints text diffs of previewed overlay changes.
	ShowDiff bool
	Streams  Streams
}

// EngineDir is the engine checkout (<root>/src).
func EngineDir(root string) string { return filepath.Join(root, "src") }

// FlutterDir is the flutter repository inside the engine checkout.
func FlutterDir(root string) string { return filepath.Join(root, "src", "flutter") }

// AttachmentDir holds the OHOS attachment tree shipped in the flutter repository.
func AttachmentDir(root string) string { return filepath.Join(FlutterDir(root), "attachment") }

// DefaultDocument is the task document setup runs when none is given.
func DefaultDocument(root string) string {
	return filepath.Join(AttachmentDir(root), "scripts", "config.json")
}

// OutDir is src/out/<output>.
func OutDir(root string, info buildinfo.Info) string {
	return filepath.Join(root, "src", "out", info.OutputName())
}

// OutputsDir is the dated directory for logs, archives and the run ledger.
func OutputsDir(root string, now time.Time) string {
	return filepath.Join(root, "outputs", now.Format("20060102"))
}

// LogFile is where a run's log is teed.
func LogFile(outputsDir string) string {
	return filepath.Join(outputsDir, "logs", "ohosbuild.log")
}
