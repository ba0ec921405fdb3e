// buildinfo.go describes one engine build variant (type, target arch, triple, ABI)
// and derives the names used for its output directory and archives.
package buildinfo

import (
	"fmt"
	"runtime"
	"strings"
)

// BuildType is the engine runtime mode.
type BuildType string

const (
	Debug   BuildType = "debug"
	Profile BuildType = "profile"
	Release BuildType = "release"
)

// BuildTypes lists the supported build types in canonical order.
var BuildTypes = []BuildType{Debug, Profile, Release}

// ParseBuildType validates raw against BuildTypes.
func ParseBuildType(raw string) (BuildType, error) {
	bt := BuildType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range BuildTypes {
		if bt == known {
			return bt, nil
		}
	}
	return "", fmt.Errorf("unsupported build type %q (want one of %s)", raw, joinTypes(BuildTypes))
}

func joinTypes(types []BuildType) string {
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, string(t))
	}
	return strings.Join(parts, ", ")
}

const (
	DefaultTargetOS   = "ohos"
	DefaultTargetArch = "arm64"
)

var abiByArch = map[string]string{
	"arm64": "arm64-v8a",
	"x64":   "x86_64",
	"arm":   "armeabi-v7a",
}

// SupportedArchs returns the target CPU names ohosbuild knows an ABI for.
func SupportedArchs() []string {
	return []string{"arm64", "x64", "arm"}
}

// Info is one build variant.
type Info struct {
	BuildType    BuildType
	TargetOS     string
	TargetArch   string
	TargetTriple string
	ABI          string
}

// New returns the variant for buildType on arch (DefaultTargetArch when empty).
func New(buildType BuildType, arch string) (Info, error) {
	arch = strings.TrimSpace(arch)
	if arch == "" {
		arch = DefaultTargetArch
	}
	abi, ok := abiByArch[arch]
	if !ok {
		return Info{}, fmt.Errorf("unsupported target arch %q (want one of %s)", arch, strings.Join(SupportedArchs(), ", "))
	}
	if _, err := ParseBuildType(string(buildType)); err != nil {
		return Info{}, err
	}
	return Info{
		BuildType:    buildType,
		TargetOS:     DefaultTargetOS,
		TargetArch:   arch,
		TargetTriple: fmt.Sprintf("%s-%s-ohos", arch, HostOS()),
		ABI:          abi,
	}, nil
}

// OutputName is the directory under src/out that gn and ninja use for this variant.
func (i Info) OutputName() string {
	unopt := ""
	if i.BuildType == Debug {
		unopt = "_unopt"
	}
	return fmt.Sprintf("%s_%s%s_%s", i.TargetOS, i.BuildType, unopt, i.TargetArch)
}

func (i Info) String() string {
	return fmt.Sprintf("BuildInfo(buildType=%s, arch=%s)", i.BuildType, i.TargetArch)
}

// HostOS is the lower-case host system name used in triples and archive names.
func HostOS() string {
	return runtime.GOOS
}

// HostMachine is the host CPU in uname -m spelling.
func HostMachine() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		if runtime.GOOS == "linux" {
			return "aarch64"
		}
		return "arm64"
	case "386":
		return "i386"
	default:
		return runtime.GOARCH
	}
}

// IsWindows reports whether the host is Windows.
func IsWindows() bool {
	return runtime.GOOS == "windows"
}
