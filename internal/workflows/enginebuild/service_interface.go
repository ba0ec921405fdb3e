// File: internal/workflows/enginebuild/service_interface.go
// Brief: Entry points of the engine build workflow.

// Package enginebuild drives an OHOS engine build: optional branch sync and source setup,
// then the (build type, stage) matrix.
package enginebuild

import (
	"context"

	"github.com/miscdec/flutter-engine/internal/tasks"
)

// Service exposes the build and setup workflows.
type Service interface {
	Run(ctx context.Context, opts Options) (*Result, error)
	Setup(ctx context.Context, opts SetupOptions) (*tasks.Report, error)
}
