// Package archive packs a build output directory into the primary zip and, for zip2, a
// second "-unstripped" zip holding everything the primary one leaves out.
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/klauspost/compress/zip"
	"github.com/moby/patternmatcher"
	"github.com/opencontainers/go-digest"
)

// DefaultExcludes keeps intermediates and unstripped binaries out of the primary archive.
// On Windows hosts debug symbol files are excluded as well.
func DefaultExcludes(windows bool) []string {
	ex := []string{"**/obj", "**/exe.unstripped", "**/so.unstripped"}
	if windows {
		ex = append(ex, "**/*.ilk", "**/*.pdb")
	}
	return ex
}

// Name builds the archive base name ohos_<sdk>_<type>-<os>-<machine>-<YYYYMMDD-HHMM>.
func Name(sdkVersion, buildType, hostOS, machine string, at time.Time) string {
	return fmt.Sprintf("ohos_%s_%s-%s-%s-%s", sdkVersion, buildType, hostOS, machine, at.Format("20060102-1504"))
}

// Options configure one archive run.
type Options struct {
	// SourceDir is walked recursively.
	SourceDir string
	// Prefix is prepended to every entry name (src/out/<output>).
	Prefix string
	// OutputDir receives <Name>.zip and <Name>-unstripped.zip.
	OutputDir string
	Name      string
	// Includes, when set, accept only matching paths; Excludes are then ignored.
	Includes []string
	Excludes []string
	// Split writes rejected files to the unstripped archive instead of dropping them.
	Split bool
	Log   logr.Logger
}

// Artifact describes one written zip.
type Artifact struct {
	Path    string
	Digest  digest.Digest
	Entries int
	Size    int64
}

// Result holds the primary archive and, when Split, the unstripped one.
type Result struct {
	Primary    Artifact
	Unstripped *Artifact
}

type classifier struct {
	include *patternmatcher.PatternMatcher
	exclude *patternmatcher.PatternMatcher
}

func newClassifier(includes, excludes []string) (*classifier, error) {
	c := &classifier{}
	if len(includes) > 0 {
		pm, err := patternmatcher.New(includes)
		if err != nil {
			return nil, fmt.Errorf("include patterns: %w", err)
		}
		c.include = pm
		return c, nil
	}
	pm, err := patternmatcher.New(excludes)
	if err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}
	c.exclude = pm
	return c, nil
}

// accept reports whether rel (slash separated, relative to SourceDir) goes to the primary archive.
func (c *classifier) accept(rel string) (bool, error) {
	if c.include != nil {
		return c.include.MatchesOrParentMatches(rel)
	}
	excluded, err := c.exclude.MatchesOrParentMatches(rel)
	return !excluded, err
}

// Create writes the archives described by opts.
func Create(ctx context.Context, opts Options) (*Result, error) {
	if info, err := os.Stat(opts.SourceDir); err != nil {
		return nil, fmt.Errorf("archive source: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("archive source %s is not a directory", opts.SourceDir)
	}
	cls, err := newClassifier(opts.Includes, opts.Excludes)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	primary, err := newZipSink(filepath.Join(opts.OutputDir, opts.Name+".zip"))
	if err != nil {
		return nil, err
	}
	var unstripped *zipSink
	if opts.Split {
		unstripped, err = newZipSink(filepath.Join(opts.OutputDir, opts.Name+"-unstripped.zip"))
		if err != nil {
			primary.abort()
			return nil, err
		}
	}
	abortAll := func() {
		primary.abort()
		if unstripped != nil {
			unstripped.abort()
		}
	}

	prefix := filepath.ToSlash(opts.Prefix)
	walkErr := filepath.WalkDir(opts.SourceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(opts.SourceDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		ok, err := cls.accept(rel)
		if err != nil {
			return fmt.Errorf("match %s: %w", rel, err)
		}
		name := path.Join(prefix, rel)
		switch {
		case ok:
			return primary.add(p, name)
		case unstripped != nil:
			return unstripped.add(p, name)
		default:
			opts.Log.V(1).Info("archive skip", "path", rel)
			return nil
		}
	})
	if walkErr != nil {
		abortAll()
		return nil, fmt.Errorf("archive %s: %w", opts.SourceDir, walkErr)
	}

	res := &Result{}
	art, err := primary.close()
	if err != nil {
		if unstripped != nil {
			unstripped.abort()
		}
		return nil, err
	}
	res.Primary = art
	if unstripped != nil {
		art, err := unstripped.close()
		if err != nil {
			return nil, err
		}
		res.Unstripped = &art
	}
	opts.Log.Info("archive written", "path", res.Primary.Path, "entries", res.Primary.Entries, "digest", res.Primary.Digest.String())
	return res, nil
}

type zipSink struct {
	path     string
	file     *os.File
	digester digest.Digester
	counter  *countingWriter
	zw       *zip.Writer
	entries  int
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func newZipSink(p string) (*zipSink, error) {
	f, err := os.Create(p)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	d := digest.Canonical.Digester()
	cw := &countingWriter{w: io.MultiWriter(f, d.Hash())}
	return &zipSink{path: p, file: f, digester: d, counter: cw, zw: zip.NewWriter(cw)}, nil
}

func (s *zipSink) add(src, name string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = strings.TrimPrefix(name, "/")
	hdr.Method = zip.Deflate
	w, err := s.zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("compress %s: %w", src, err)
	}
	s.entries++
	return nil
}

func (s *zipSink) close() (Artifact, error) {
	if err := s.zw.Close(); err != nil {
		s.abort()
		return Artifact{}, fmt.Errorf("finish %s: %w", s.path, err)
	}
	if err := s.file.Close(); err != nil {
		_ = os.Remove(s.path)
		return Artifact{}, fmt.Errorf("close %s: %w", s.path, err)
	}
	return Artifact{Path: s.path, Digest: s.digester.Digest(), Entries: s.entries, Size: s.counter.n}, nil
}

func (s *zipSink) abort() {
	_ = s.file.Close()
	_ = os.Remove(s.path)
}
