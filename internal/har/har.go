// Package har assembles flutter.har from the embedding sources and the engine's native
// libraries using the hvigor wrapper shipped with the embedding project.
package har

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/go-logr/logr"

	"github.com/miscdec/flutter-engine/internal/execx"
	"github.com/miscdec/flutter-engine/internal/overlay"
)

// DefaultAPI is the OHOS API level the HAR is compiled against.
const DefaultAPI = 11

// OutputRelPath is where hvigor leaves the HAR inside the build dir.
var OutputRelPath = filepath.Join("flutter", "build", "default", "outputs", "default", "flutter.har")

var profileTemplate = template.Must(template.New("build-profile.json5").Parse(`
{
  "app": {
    "signingConfigs": [],
    "products": [
      {
        "name": "default",
        "signingConfig": "default",
        "compileSdkVersion": "{{.SDK}}",
        "compatibleSdkVersion": "{{.SDK}}",
        "runtimeOS": "HarmonyOS",
      }
    ],
    "buildModeSet": [
      {
        "name": "debug",
      },
      {
        "name": "release"
      },
      {
        "name": "profile"
      },
    ]
  },
  "modules": [
    {
      "name": "flutter",
      "srcPath": "./flutter"
    }
  ]
}
`))

// SDKVersion maps an API level to the SDK version string hvigor expects.
func SDKVersion(api int) string {
	if api == 11 {
		return "4.1.0(11)"
	}
	return "4.0.0(10)"
}

// RenderProfile returns the build-profile.json5 contents for api.
func RenderProfile(api int) ([]byte, error) {
	var buf bytes.Buffer
	if err := profileTemplate.Execute(&buf, struct{ SDK string }{SDK: SDKVersion(api)}); err != nil {
		return nil, fmt.Errorf("render build profile: %w", err)
	}
	return buf.Bytes(), nil
}

// Options describe one HAR build.
type Options struct {
	EmbeddingSrc string
	BuildDir     string
	BuildType    string
	Output       string
	NativeLibs   []string
	ABI          string
	API          int
	// Env is the environment hvigorw runs with; nil inherits the process environment.
	Env []string
	// Stdout and Stderr receive hvigorw's live output; nil keeps it captured only.
	Stdout io.Writer
	Stderr io.Writer
}

// Validate checks the required options.
func (o Options) Validate() error {
	switch {
	case o.EmbeddingSrc == "":
		return fmt.Errorf("embedding source is required")
	case o.BuildDir == "":
		return fmt.Errorf("build dir is required")
	case o.Output == "":
		return fmt.Errorf("output is required")
	case o.ABI == "":
		return fmt.Errorf("abi is required")
	}
	switch o.BuildType {
	case "debug", "profile", "release":
	default:
		return fmt.Errorf("unsupported build type %q", o.BuildType)
	}
	return nil
}

// Packager runs HAR builds.
type Packager struct {
	Runner execx.Runner
	Copier *overlay.Copier
	Log    logr.Logger
}

// NewPackager returns a Packager.
func NewPackager(runner execx.Runner, log logr.Logger) *Packager {
	return &Packager{Runner: runner, Copier: overlay.NewCopier(log), Log: log}
}

// Build stages the embedding project, adds the native libraries, runs hvigorw and copies
// the HAR to opts.Output. A failing hvigorw is returned as *execx.ExitError.
func (p *Packager) Build(ctx context.Context, opts Options) error {
	if opts.API == 0 {
		opts.API = DefaultAPI
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if err := p.Copier.CopyDir(opts.EmbeddingSrc, opts.BuildDir); err != nil {
		return err
	}
	libDir := filepath.Join(opts.BuildDir, "flutter", "libs", opts.ABI)
	for _, lib := range opts.NativeLibs {
		if err := p.Copier.CopyFile(lib, filepath.Join(libDir, filepath.Base(lib))); err != nil {
			return err
		}
	}
	profile, err := RenderProfile(opts.API)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(opts.BuildDir, "build-profile.json5"), profile, 0o644); err != nil {
		return fmt.Errorf("write build profile: %w", err)
	}

	cmd := execx.Command{
		Name: hvigorw(),
		Args: []string{
			"clean", "--mode", "module",
			"-p", "module=flutter@default",
			"-p", "product=default",
			"-p", "buildMode=" + opts.BuildType,
			"assembleHar", "--no-daemon",
		},
		Dir:    opts.BuildDir,
		Env:    opts.Env,
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
	}
	p.Log.Info("runCommand start", "command", cmd.String(), "dir", cmd.Dir)
	res, err := p.Runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if exitErr := res.Err(cmd); exitErr != nil {
		p.Log.Error(exitErr, "runCommand error", "code", res.Code)
		return exitErr
	}
	p.Log.Info("runCommand finish", "code", 0, "command", cmd.String())
	return p.Copier.CopyFile(filepath.Join(opts.BuildDir, OutputRelPath), opts.Output)
}

func hvigorw() string {
	if runtime.GOOS == "windows" {
		return `.\hvigorw.bat`
	}
	return "./hvigorw"
}
