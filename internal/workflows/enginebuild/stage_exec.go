// File: internal/workflows/enginebuild/stage_exec.go
// Brief: Per-stage actions (clean, gn, har, ninja, archives).

package enginebuild

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/miscdec/flutter-engine/internal/archive"
	"github.com/miscdec/flutter-engine/internal/buildinfo"
	"github.com/miscdec/flutter-engine/internal/execx"
	"github.com/miscdec/flutter-engine/internal/har"
	"github.com/miscdec/flutter-engine/internal/stages"
	"github.com/miscdec/flutter-engine/internal/toolchain"
)

// gnFixedFlags follow the per-variant flags on every gn invocation.
var gnFixedFlags = []string{
	"--no-goma",
	"--no-prebuilt-dart-sdk",
	"--embedder-for-target",
	"--disable-desktop-embeddings",
	"--no-build-embedder-examples",
	"--verbose",
}

func (s *service) execStage(ctx context.Context, opts Options, stage stages.Name, info buildinfo.Info, tc *toolchain.Toolchain, policy stages.Policy) (*archive.Result, error) {
	switch stage {
	case stages.Clean:
		return nil, s.clean(opts, info)
	case stages.Config:
		return nil, s.configure(ctx, opts, info, tc, policy)
	case stages.Har:
		return nil, s.har(ctx, opts, info, tc)
	case stages.Compile:
		return nil, s.compile(ctx, opts, info, tc, policy)
	case stages.Zip:
		return s.zip(ctx, opts, info, tc, false)
	case stages.Zip2:
		return s.zip(ctx, opts, info, tc, true)
	default:
		s.log.Info("Other name", "stage", stage)
		return nil, nil
	}
}

func (s *service) clean(opts Options, info buildinfo.Info) error {
	target := OutDir(opts.Root, info)
	s.log.Info("Remove directory", "path", target)
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("clean %s: %w", target, err)
	}
	return nil
}

// GNArgs builds the gn argument list for info. Unix hosts pass the toolchain layout
// explicitly; the extra string is split like a shell would after dropping backslashes,
// which only serve to keep leading dashes away from flag parsing.
func GNArgs(info buildinfo.Info, tc toolchain.Toolchain, extra string, windows bool) ([]string, error) {
	args := []string{
		"--ohos",
		"--ohos-cpu", info.TargetArch,
		"--runtime-mode", string(info.BuildType),
	}
	if info.BuildType == buildinfo.Debug {
		args = append(args, "--unoptimized", "--no-lto")
	}
	if !windows {
		args = append(args,
			"--target-sysroot", tc.Sysroot(),
			"--target-toolchain", tc.LLVM(),
			"--target-triple", info.TargetTriple,
		)
	}
	args = append(args, gnFixedFlags...)
	extra = strings.TrimSpace(strings.ReplaceAll(extra, `\`, ""))
	if extra != "" {
		words, err := shellwords.Parse(extra)
		if err != nil {
			return nil, fmt.Errorf("parse gn extra params %q: %w", extra, err)
		}
		args = append(args, words...)
	}
	return args, nil
}

// toolEnv is the environment of every external build tool: depot_tools is always on PATH,
// preceded by the toolchain's bin directories once the toolchain is resolved.
func (s *service) toolEnv(opts Options, tc *toolchain.Toolchain) []string {
	depot, err := filepath.Abs(filepath.Join(opts.Root, "depot_tools"))
	if err != nil {
		depot = filepath.Join(opts.Root, "depot_tools")
	}
	if tc == nil {
		return toolchain.PrependPath(s.environ(), depot)
	}
	return tc.Env(s.environ(), depot)
}

func (s *service) runTool(ctx context.Context, opts Options, cmd execx.Command) error {
	cmd.Stdout = opts.Streams.OutWriter()
	cmd.Stderr = opts.Streams.ErrWriter()
	s.log.Info("runCommand start", "command", cmd.String())
	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		s.log.Error(err, "runCommand error", "code", res.Code, "command", cmd.String())
		return err
	}
	if exitErr := res.Err(cmd); exitErr != nil {
		s.log.Error(exitErr, "runCommand error", "code", res.Code, "command", cmd.String())
		return exitErr
	}
	s.log.Info("runCommand finish", "code", 0, "command", cmd.String())
	return nil
}

func (s *service) configure(ctx context.Context, opts Options, info buildinfo.Info, tc *toolchain.Toolchain, policy stages.Policy) error {
	if tc == nil {
		return fmt.Errorf("configure %s: %w", info.OutputName(), toolchain.ErrToolchainNotFound)
	}
	args, err := GNArgs(info, *tc, opts.GNExtraParam, buildinfo.IsWindows())
	if err != nil {
		return err
	}
	return s.runTool(ctx, opts, execx.Command{
		Name:    filepath.Join(FlutterDir(opts.Root), "tools", "gn"),
		Args:    args,
		Dir:     opts.Root,
		Env:     s.toolEnv(opts, tc),
		Timeout: policy.Timeout,
	})
}

func (s *service) compile(ctx context.Context, opts Options, info buildinfo.Info, tc *toolchain.Toolchain, policy stages.Policy) error {
	return s.runTool(ctx, opts, execx.Command{
		Name:    "ninja",
		Args:    []string{"-C", filepath.Join("src", "out", info.OutputName())},
		Dir:     opts.Root,
		Env:     s.toolEnv(opts, tc),
		Timeout: policy.Timeout,
	})
}

// HarNativeLibs lists the libraries packed into flutter.har for info; profile builds also
// carry the VM service snapshot.
func HarNativeLibs(outDir string, info buildinfo.Info) []string {
	libs := []string{filepath.Join(outDir, "libflutter.so")}
	if info.BuildType == buildinfo.Profile {
		libs = append(libs, filepath.Join(outDir, "gen", "flutter", "shell", "vmservice", "ohos", "libs", info.ABI, "libvmservice_snapshot.so"))
	}
	return libs
}

func (s *service) har(ctx context.Context, opts Options, info buildinfo.Info, tc *toolchain.Toolchain) error {
	outDir := OutDir(opts.Root, info)
	packager := newHarPackager(s.runner, s.log)
	return packager.Build(ctx, har.Options{
		EmbeddingSrc: filepath.Join(FlutterDir(opts.Root), "shell", "platform", "ohos", "flutter_embedding"),
		BuildDir:     filepath.Join(outDir, "obj", "ohos", "flutter_embedding"),
		BuildType:    string(info.BuildType),
		Output:       filepath.Join(outDir, "flutter.har"),
		NativeLibs:   HarNativeLibs(outDir, info),
		ABI:          info.ABI,
		API:          har.DefaultAPI,
		Env:          s.toolEnv(opts, tc),
		Stdout:       opts.Streams.OutWriter(),
		Stderr:       opts.Streams.ErrWriter(),
	})
}

func (s *service) zip(ctx context.Context, opts Options, info buildinfo.Info, tc *toolchain.Toolchain, split bool) (*archive.Result, error) {
	if tc == nil {
		return nil, fmt.Errorf("archive %s: %w", info.OutputName(), toolchain.ErrToolchainNotFound)
	}
	excludes := opts.ArchiveExcludes
	if len(excludes) == 0 {
		excludes = archive.DefaultExcludes(buildinfo.IsWindows())
	}
	res, err := archive.Create(ctx, archive.Options{
		SourceDir: OutDir(opts.Root, info),
		Prefix:    filepath.ToSlash(filepath.Join("src", "out", info.OutputName())),
		OutputDir: opts.OutputsDir,
		Name:      archive.Name(tc.Version(), string(info.BuildType), buildinfo.HostOS(), buildinfo.HostMachine(), s.now()),
		Includes:  opts.ArchiveIncludes,
		Excludes:  excludes,
		Split:     split,
		Log:       s.log,
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
