package stages

import (
	"strings"
	"testing"

	"github.com/miscdec/flutter-engine/internal/buildinfo"
)

func render(steps []Step) string {
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, ",")
}

func TestMatrixUsesCanonicalOrder(t *testing.T) {
	steps := Matrix(
		[]buildinfo.BuildType{buildinfo.Release, buildinfo.Debug},
		[]Name{Zip, Compile, Config, Compile},
	)
	want := "debug/config,debug/compile,debug/zip,release/config,release/compile,release/zip"
	if got := render(steps); got != want {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestMatrixSkipsUnrequested(t *testing.T) {
	if steps := Matrix([]buildinfo.BuildType{buildinfo.Profile}, nil); len(steps) != 0 {
		t.Fatalf("expected no steps, got %v", steps)
	}
}

func TestSelectDefaults(t *testing.T) {
	if got := Select(nil, ""); len(got) != 2 || got[0] != Config || got[1] != Compile {
		t.Fatalf("expected config+compile, got %v", got)
	}
	if got := Select(nil, "oh-3.0"); len(got) != 0 {
		t.Fatalf("branch-only run should not build, got %v", got)
	}
	if got := Select([]Name{Har}, "oh-3.0"); len(got) != 1 || got[0] != Har {
		t.Fatalf("explicit names win, got %v", got)
	}
}

func TestPolicies(t *testing.T) {
	if PolicyFor(Config).FatalOnNonZero {
		t.Fatalf("config must be non-fatal")
	}
	if PolicyFor(Config).Timeout == 0 {
		t.Fatalf("config must be bounded")
	}
	for _, n := range []Name{Clean, Har, Compile, Zip, Zip2} {
		if !PolicyFor(n).FatalOnNonZero {
			t.Fatalf("%s must be fatal", n)
		}
	}
}

func TestParseName(t *testing.T) {
	if n, err := ParseName("ZIP2"); err != nil || n != Zip2 {
		t.Fatalf("expected zip2, got %q %v", n, err)
	}
	if _, err := ParseName("package"); err == nil {
		t.Fatalf("expected error")
	}
}
