// Package appconfig loads the layered ohosbuild config file: the user's global
// file first, then the one checked into the engine root.
package appconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// BuildConfig mirrors the build command flags.
type BuildConfig struct {
	Types           []string `yaml:"types,omitempty"`
	Stages          []string `yaml:"stages,omitempty"`
	Arch            string   `yaml:"arch,omitempty"`
	GNExtraParam    string   `yaml:"gnExtraParam,omitempty"`
	OutputsDir      string   `yaml:"outputsDir,omitempty"`
	ArchiveIncludes []string `yaml:"archiveIncludes,omitempty"`
	ArchiveExcludes []string `yaml:"archiveExcludes,omitempty"`
}

// ToolchainConfig points at a native toolchain when OHOS_NDK_HOME is unset.
type ToolchainConfig struct {
	Root string `yaml:"root,omitempty"`
}

// SetupConfig mirrors the setup command flags.
type SetupConfig struct {
	Document   string `yaml:"document,omitempty"`
	SourceRoot string `yaml:"sourceRoot,omitempty"`
	Stash      *bool  `yaml:"stash,omitempty"`
}

type Config struct {
	LogLevel  string          `yaml:"logLevel,omitempty"`
	Features  []string        `yaml:"features,omitempty"`
	Toolchain ToolchainConfig `yaml:"toolchain,omitempty"`
	Build     BuildConfig     `yaml:"build,omitempty"`
	Setup     SetupConfig     `yaml:"setup,omitempty"`
	Publish   PublishConfig   `yaml:"publish,omitempty"`
}

// DefaultGlobalPath is ~/.ohosbuild/config.yaml, or empty without a home dir.
func DefaultGlobalPath() string {
	home, err := homedir.Dir()
	if err != nil || strings.TrimSpace(home) == "" {
		return ""
	}
	return filepath.Join(home, ".ohosbuild", "config.yaml")
}

func DefaultRepoPath(engineRoot string) string {
	engineRoot = strings.TrimSpace(engineRoot)
	if engineRoot == "" {
		return ""
	}
	return filepath.Join(engineRoot, RepoFileName)
}

// Load reads both layers; later non-empty values win. Missing files are not errors.
func Load(ctx context.Context, globalPath, repoPath string) (Config, error) {
	_ = ctx
	cfg := Config{}
	if strings.TrimSpace(globalPath) != "" {
		c, err := loadOne(globalPath)
		if err != nil {
			return Config{}, fmt.Errorf("load global config: %w", err)
		}
		cfg = merge(cfg, c)
	}
	if strings.TrimSpace(repoPath) != "" {
		c, err := loadOne(repoPath)
		if err != nil {
			return Config{}, fmt.Errorf("load repo config: %w", err)
		}
		cfg = merge(cfg, c)
	}
	return cfg, nil
}

func loadOne(path string) (Config, error) {
	path, err := homedir.Expand(strings.TrimSpace(path))
	if err != nil {
		return Config{}, err
	}
	if path == "" {
		return Config{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, err
	}
	raw = []byte(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return Config{}, nil
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.expandPaths(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Toolchain.Root, &c.Build.OutputsDir, &c.Setup.Document, &c.Setup.SourceRoot} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

func merge(a, b Config) Config {
	out := a
	if b.LogLevel != "" {
		out.LogLevel = b.LogLevel
	}
	if len(b.Features) > 0 {
		out.Features = append(append([]string(nil), a.Features...), b.Features...)
	}
	if b.Toolchain.Root != "" {
		out.Toolchain.Root = b.Toolchain.Root
	}
	out.Build = mergeBuild(a.Build, b.Build)
	out.Setup = mergeSetup(a.Setup, b.Setup)
	out.Publish = mergePublish(a.Publish, b.Publish)
	return out
}

func mergeBuild(a, b BuildConfig) BuildConfig {
	out := a
	if len(b.Types) > 0 {
		out.Types = b.Types
	}
	if len(b.Stages) > 0 {
		out.Stages = b.Stages
	}
	if b.Arch != "" {
		out.Arch = b.Arch
	}
	if b.GNExtraParam != "" {
		out.GNExtraParam = b.GNExtraParam
	}
	if b.OutputsDir != "" {
		out.OutputsDir = b.OutputsDir
	}
	if len(b.ArchiveIncludes) > 0 {
		out.ArchiveIncludes = b.ArchiveIncludes
	}
	if len(b.ArchiveExcludes) > 0 {
		out.ArchiveExcludes = b.ArchiveExcludes
	}
	return out
}

func mergeSetup(a, b SetupConfig) SetupConfig {
	out := a
	if b.Document != "" {
		out.Document = b.Document
	}
	if b.SourceRoot != "" {
		out.SourceRoot = b.SourceRoot
	}
	if b.Stash != nil {
		out.Stash = b.Stash
	}
	return out
}
