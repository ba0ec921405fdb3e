// version.go exposes ohosbuild build metadata for the version command and run ledger.
package version

import (
	"fmt"
	"runtime"
)

// These values are overridden at build time via -ldflags "-X ...".
var (
	Version      = "dev"
	GitCommit    = "unknown"
	GitTreeState = "unknown" // clean|dirty|unknown
	BuildDate    = "unknown" // RFC3339 UTC preferred
)

type Info struct {
	Version      string
	GitCommit    string
	GitTreeState string
	BuildDate    string
	GoVersion    string
	Platform     string
}

func Get() Info {
	return Info{
		Version:      Version,
		GitCommit:    GitCommit,
		GitTreeState: GitTreeState,
		BuildDate:    BuildDate,
		GoVersion:    runtime.Version(),
		Platform:     fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String renders a single-line summary used in log headers.
func (i Info) String() string {
	if i.GitCommit == "" || i.GitCommit == "unknown" {
		return fmt.Sprintf("ohosbuild %s (%s, %s)", i.Version, i.GoVersion, i.Platform)
	}
	commit := i.GitCommit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("ohosbuild %s+%s (%s, %s)", i.Version, commit, i.GoVersion, i.Platform)
}
