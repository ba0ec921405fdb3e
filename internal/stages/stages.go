// Package stages defines the build stages, their canonical order and the failure policy
// applied to each one.
package stages

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miscdec/flutter-engine/internal/buildinfo"
)

// Name identifies a build stage.
type Name string

const (
	Clean   Name = "clean"
	Config  Name = "config"
	Har     Name = "har"
	Compile Name = "compile"
	Zip     Name = "zip"
	Zip2    Name = "zip2"
)

// Canonical is the order stages always run in within one build type.
var Canonical = []Name{Clean, Config, Har, Compile, Zip, Zip2}

// DefaultNames run when neither stage names nor a branch were requested.
var DefaultNames = []Name{Config, Compile}

// ErrNotEngineRoot is returned when the working root has no src/flutter checkout.
var ErrNotEngineRoot = errors.New("not an engine root: src/flutter not found")

// ParseName validates raw against Canonical.
func ParseName(raw string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Canonical {
		if n == known {
			return n, nil
		}
	}
	names := make([]string, 0, len(Canonical))
	for _, known := range Canonical {
		names = append(names, string(known))
	}
	return "", fmt.Errorf("unsupported stage %q (want one of %s)", raw, strings.Join(names, ", "))
}

// Policy is how the orchestrator treats a stage's failure.
type Policy struct {
	// FatalOnNonZero stops the run with the tool's exit code when the stage's command fails.
	FatalOnNonZero bool
	// Timeout bounds the stage's external command; zero means unbounded.
	Timeout time.Duration
}

// Policies is the per-stage failure policy. gn frequently exits non-zero on warnings, so
// config failures are only logged.
var Policies = map[Name]Policy{
	Clean:   {FatalOnNonZero: true},
	Config:  {FatalOnNonZero: false, Timeout: 600 * time.Second},
	Har:     {FatalOnNonZero: true},
	Compile: {FatalOnNonZero: true},
	Zip:     {FatalOnNonZero: true},
	Zip2:    {FatalOnNonZero: true},
}

// PolicyFor returns the policy of name; unknown stages are fatal.
func PolicyFor(name Name) Policy {
	if p, ok := Policies[name]; ok {
		return p
	}
	return Policy{FatalOnNonZero: true}
}

// Step is one (build type, stage) pair of the matrix.
type Step struct {
	Type  buildinfo.BuildType
	Stage Name
}

func (s Step) String() string {
	return fmt.Sprintf("%s/%s", s.Type, s.Stage)
}

// Matrix expands the requested types and stages into steps. Types follow
// buildinfo.BuildTypes order and stages follow Canonical order, whatever order they were
// requested in; duplicates collapse.
func Matrix(types []buildinfo.BuildType, names []Name) []Step {
	wantType := make(map[buildinfo.BuildType]bool, len(types))
	for _, t := range types {
		wantType[t] = true
	}
	wantStage := make(map[Name]bool, len(names))
	for _, n := range names {
		wantStage[n] = true
	}
	var steps []Step
	for _, bt := range buildinfo.BuildTypes {
		if !wantType[bt] {
			continue
		}
		for _, stage := range Canonical {
			if wantStage[stage] {
				steps = append(steps, Step{Type: bt, Stage: stage})
			}
		}
	}
	return steps
}

// Select returns the stages to run: names when given, none when only a branch sync was
// asked for, DefaultNames otherwise.
func Select(names []Name, branch string) []Name {
	if len(names) > 0 {
		return names
	}
	if strings.TrimSpace(branch) != "" {
		return nil
	}
	return append([]Name(nil), DefaultNames...)
}
