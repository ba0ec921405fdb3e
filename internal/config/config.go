// Package config defines the build command's flag plumbing, translating Cobra/Viper
// flag values and the layered config file into typed stage and build type lists.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/miscdec/flutter-engine/internal/appconfig"
	"github.com/miscdec/flutter-engine/internal/buildinfo"
	"github.com/miscdec/flutter-engine/internal/stages"
)

// Options holds the build command configuration.
type Options struct {
	Names           []string
	Types           []string
	Branch          string
	GNExtraParam    string
	Arch            string
	ToolchainRoot   string
	OutputsDir      string
	ArchiveIncludes []string
	ArchiveExcludes []string

	// Filled by Validate.
	Stages     []stages.Name
	BuildTypes []buildinfo.BuildType
}

// ListFlags take several space-separated values after one flag, as in "-n config compile".
var ListFlags = []string{"-n", "--name", "-t", "--type"}

// NewOptions returns Options with defaults applied.
func NewOptions() *Options {
	return &Options{Arch: buildinfo.DefaultTargetArch}
}

// AddFlags binds configuration flags to the provided Cobra command.
func (o *Options) AddFlags(cmd *cobra.Command) {
	o.BindFlags(cmd.Flags())
}

// BindFlags attaches build flags to fs and returns their names.
func (o *Options) BindFlags(fs *pflag.FlagSet) []string {
	var names []string
	fs.StringSliceVarP(&o.Names, "name", "n", nil, fmt.Sprintf("Build stages to run, any of %s (default config compile unless --branch is set)", joinNames(stages.Canonical)))
	names = append(names, "name")
	fs.StringSliceVarP(&o.Types, "type", "t", nil, "Build types to run, any of debug profile release (default all)")
	names = append(names, "type")
	fs.StringVarP(&o.Branch, "branch", "b", "", "Git branch in src/flutter to check out and pull before building")
	names = append(names, "branch")
	fs.StringVarP(&o.GNExtraParam, "gn-extra-param", "g", "", `Extra parameters for src/flutter/tools/gn, e.g. -g "\--enable-unittests"`)
	names = append(names, "gn-extra-param")
	fs.StringVar(&o.Arch, "arch", o.Arch, fmt.Sprintf("Target CPU architecture (%s)", strings.Join(buildinfo.SupportedArchs(), ", ")))
	names = append(names, "arch")
	fs.StringVar(&o.ToolchainRoot, "toolchain-root", "", "Native toolchain root used when OHOS_NDK_HOME is unset")
	names = append(names, "toolchain-root")
	fs.StringVar(&o.OutputsDir, "outputs-dir", "", "Directory for archives and logs (default outputs/<YYYYMMDD>)")
	names = append(names, "outputs-dir")
	fs.StringSliceVar(&o.ArchiveIncludes, "archive-include", nil, "Pattern of output files always archived, overriding excludes")
	names = append(names, "archive-include")
	fs.StringSliceVar(&o.ArchiveExcludes, "archive-exclude", nil, "Pattern of output files kept out of the primary archive (replaces the defaults)")
	names = append(names, "archive-exclude")
	return names
}

// ApplyConfig fills every option whose flag was not changed from cfg.
func (o *Options) ApplyConfig(cfg appconfig.Config, changed func(name string) bool) {
	if changed == nil {
		changed = func(string) bool { return false }
	}
	b := cfg.Build
	if !changed("name") && len(o.Names) == 0 && len(b.Stages) > 0 {
		o.Names = append([]string(nil), b.Stages...)
	}
	if !changed("type") && len(o.Types) == 0 && len(b.Types) > 0 {
		o.Types = append([]string(nil), b.Types...)
	}
	if !changed("gn-extra-param") && o.GNExtraParam == "" {
		o.GNExtraParam = b.GNExtraParam
	}
	if !changed("arch") && b.Arch != "" {
		o.Arch = b.Arch
	}
	if !changed("toolchain-root") && o.ToolchainRoot == "" {
		o.ToolchainRoot = cfg.Toolchain.Root
	}
	if !changed("outputs-dir") && o.OutputsDir == "" {
		o.OutputsDir = b.OutputsDir
	}
	if !changed("archive-include") && len(o.ArchiveIncludes) == 0 {
		o.ArchiveIncludes = b.ArchiveIncludes
	}
	if !changed("archive-exclude") && len(o.ArchiveExcludes) == 0 {
		o.ArchiveExcludes = b.ArchiveExcludes
	}
}

// Validate parses stage names and build types. Duplicates are dropped; order does not
// matter because the stage matrix runs in canonical order.
func (o *Options) Validate() error {
	o.Stages = o.Stages[:0]
	seenStage := map[stages.Name]bool{}
	for _, raw := range splitValues(o.Names) {
		name, err := stages.ParseName(raw)
		if err != nil {
			return err
		}
		if !seenStage[name] {
			seenStage[name] = true
			o.Stages = append(o.Stages, name)
		}
	}
	o.BuildTypes = o.BuildTypes[:0]
	seenType := map[buildinfo.BuildType]bool{}
	for _, raw := range splitValues(o.Types) {
		bt, err := buildinfo.ParseBuildType(raw)
		if err != nil {
			return err
		}
		if !seenType[bt] {
			seenType[bt] = true
			o.BuildTypes = append(o.BuildTypes, bt)
		}
	}
	if len(o.BuildTypes) == 0 {
		o.BuildTypes = append(o.BuildTypes, buildinfo.BuildTypes...)
	}
	if o.Arch == "" {
		o.Arch = buildinfo.DefaultTargetArch
	}
	if _, err := buildinfo.New(buildinfo.Debug, o.Arch); err != nil {
		return err
	}
	o.Branch = strings.TrimSpace(o.Branch)
	return nil
}

func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

func joinNames(names []stages.Name) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, " ")
}
