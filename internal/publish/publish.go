// Package publish uploads engine artifact zips to the OBS bucket that serves
// flutter_infra_release, keyed by the engine commit.
package publish

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/miscdec/flutter-engine/internal/gitrepo"
)

const (
	DefaultBucket   = "flutter-ohos"
	DefaultEndpoint = "https://obs.cn-south-1.myhuaweicloud.com"
	DefaultRegion   = "cn-south-1"
	KeyPrefix       = "flutter_infra_release/flutter"

	EnvAccessKey = "AccessKeyID"
	EnvSecretKey = "SecretAccessKey"
)

// Target maps a published engine name to the src/out directory it is built in.
type Target struct {
	Name   string
	OutDir string
}

// DefaultTargets lists the engine variants published per commit.
var DefaultTargets = []Target{
	{Name: "ohos-arm64", OutDir: "ohos_debug_unopt_arm64"},
	{Name: "ohos-arm64-profile", OutDir: "ohos_profile_arm64"},
	{Name: "ohos-arm64-release", OutDir: "ohos_release_arm64"},
	{Name: "ohos-x64", OutDir: "ohos_debug_unopt_x64"},
	{Name: "ohos-x64-profile", OutDir: "ohos_profile_x64"},
	{Name: "ohos-x64-release", OutDir: "ohos_release_x64"},
}

// ArtifactFiles are the zip names looked for in each output directory.
var ArtifactFiles = []string{"artifacts.zip", "linux-x64.zip", "windows-x64.zip", "darwin-x64.zip", "symbols.zip"}

// HostArtifactFiles filters ArtifactFiles for goos: Windows and macOS hosts only publish
// their own host bundle.
func HostArtifactFiles(goos string) []string {
	switch goos {
	case "windows":
		return []string{"windows-x64.zip"}
	case "darwin":
		return []string{"darwin-x64.zip"}
	default:
		return append([]string(nil), ArtifactFiles...)
	}
}

// ObjectKey is the bucket key for file of target at commit.
func ObjectKey(commit, target, file string) string {
	return fmt.Sprintf("%s/%s/%s/%s", KeyPrefix, commit, target, filepath.Base(file))
}

// ObjectPutter stores one object.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, key string, body io.ReadSeeker, size int64) error
}

// Publisher checks for a new engine commit and uploads its artifacts.
type Publisher struct {
	Repo   *gitrepo.Repo
	Putter ObjectPutter
	// Remote whose tags mark published commits; defaults to origin.
	Remote  string
	Bucket  string
	OutRoot string
	Targets []Target
	Files   []string
	Log     logr.Logger
}

// Upload is one attempted upload.
type Upload struct {
	Target string
	File   string
	Key    string
	Err    error
}

// Summary reports a publish run.
type Summary struct {
	Commit  string
	Skipped bool
	Uploads []Upload
}

// Failed counts uploads that returned an error.
func (s *Summary) Failed() int {
	n := 0
	for _, u := range s.Uploads {
		if u.Err != nil {
			n++
		}
	}
	return n
}

// CheckForUpdate compares HEAD with the hash of the last remote tag. changed is true when
// they differ, meaning HEAD has not been published under a tag yet.
func (p *Publisher) CheckForUpdate(ctx context.Context) (commit string, changed bool, err error) {
	remote := p.Remote
	if remote == "" {
		remote = "origin"
	}
	tags, err := p.Repo.RemoteTags(ctx, remote)
	if err != nil {
		return "", false, errors.Wrap(err, "list remote tags")
	}
	commit, _, err = p.Repo.Head(ctx)
	if err != nil {
		return "", false, errors.Wrap(err, "resolve HEAD")
	}
	if len(tags) == 0 {
		return commit, true, nil
	}
	return commit, tags[len(tags)-1] != commit, nil
}

// Run uploads every artifact found for the configured targets unless HEAD matches the
// last remote tag (force skips that check). Upload errors are logged and collected; they
// are not retried and do not stop the remaining uploads.
func (p *Publisher) Run(ctx context.Context, force bool) (*Summary, error) {
	commit, changed, err := p.CheckForUpdate(ctx)
	if err != nil {
		return nil, err
	}
	summary := &Summary{Commit: commit}
	if !changed && !force {
		p.Log.Info("Local repository is up to date", "commit", commit)
		summary.Skipped = true
		return summary, nil
	}
	p.Log.Info("Remote repository has updates", "commit", commit)
	if p.Putter == nil {
		return nil, errors.New("no object store configured")
	}
	bucket := p.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}
	targets := p.Targets
	if len(targets) == 0 {
		targets = DefaultTargets
	}
	files := p.Files
	if len(files) == 0 {
		files = ArtifactFiles
	}
	for _, target := range targets {
		dir := filepath.Join(p.OutRoot, target.OutDir)
		for _, name := range files {
			found := findFile(dir, name)
			if found == "" {
				continue
			}
			up := Upload{Target: target.Name, File: found, Key: ObjectKey(commit, target.Name, found)}
			up.Err = p.upload(ctx, bucket, up.Key, found)
			if up.Err != nil {
				p.Log.Error(up.Err, "Put Content Failed", "file", found, "key", up.Key)
			} else {
				p.Log.Info("Put Content Succeeded", "file", found, "key", up.Key)
			}
			summary.Uploads = append(summary.Uploads, up)
			if err := ctx.Err(); err != nil {
				return summary, err
			}
		}
	}
	return summary, nil
}

func (p *Publisher) upload(ctx context.Context, bucket, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat %s", path)
	}
	body := newProgressReader(f, info.Size(), func(pct int) {
		p.Log.Info("upload progress", "file", filepath.Base(path), "percent", pct)
	})
	if err := p.Putter.PutObject(ctx, bucket, key, body, info.Size()); err != nil {
		return errors.Wrapf(err, "put %s", key)
	}
	return nil
}

// findFile returns the first file named name under dir, walking in lexical order.
func findFile(dir, name string) string {
	var found string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if found == "" && d.Name() == name {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	return found
}

// progressReader reports whole-percent milestones in steps of ten while the SDK reads the
// body. Seeking back to the start (for payload hashing) restarts the count.
type progressReader struct {
	r        io.ReadSeeker
	total    int64
	read     int64
	reported int
	report   func(int)
}

func newProgressReader(r io.ReadSeeker, total int64, report func(int)) *progressReader {
	return &progressReader{r: r, total: total, reported: -1, report: report}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		pct := int(p.read * 100 / p.total)
		step := pct / 10 * 10
		if step > p.reported && (n > 0 || pct == 100) {
			p.reported = step
			p.report(step)
		}
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.r.Seek(offset, whence)
	if err == nil {
		p.read = pos
		if pos == 0 {
			p.reported = -1
		}
	}
	return pos, err
}

// Credentials reads the access key pair from getenv.
func Credentials(getenv func(string) string) (accessKey, secretKey string, err error) {
	return CredentialsFrom(getenv, EnvAccessKey, EnvSecretKey)
}

// CredentialsFrom reads the access key pair from the named variables. Empty names
// fall back to EnvAccessKey and EnvSecretKey.
func CredentialsFrom(getenv func(string) string, accessEnv, secretEnv string) (accessKey, secretKey string, err error) {
	if accessEnv == "" {
		accessEnv = EnvAccessKey
	}
	if secretEnv == "" {
		secretEnv = EnvSecretKey
	}
	accessKey = strings.TrimSpace(getenv(accessEnv))
	secretKey = strings.TrimSpace(getenv(secretEnv))
	var missing []string
	if accessKey == "" {
		missing = append(missing, accessEnv)
	}
	if secretKey == "" {
		missing = append(missing, secretEnv)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", "", errors.Errorf("missing object storage credentials: set %s", strings.Join(missing, " and "))
	}
	return accessKey, secretKey, nil
}
