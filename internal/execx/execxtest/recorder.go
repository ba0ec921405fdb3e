// Package execxtest provides a scripted execx.Runner for tests.
package execxtest

import (
	"context"
	"strings"
	"sync"

	"github.com/miscdec/flutter-engine/internal/execx"
)

// Handler decides the outcome of one recorded command.
type Handler func(cmd execx.Command) (execx.Result, error)

// Recorder records every command and answers with Handler (or success when nil).
type Recorder struct {
	mu       sync.Mutex
	Handler  Handler
	Commands []execx.Command
}

// Run implements execx.Runner.
func (r *Recorder) Run(ctx context.Context, cmd execx.Command) (execx.Result, error) {
	r.mu.Lock()
	r.Commands = append(r.Commands, cmd)
	handler := r.Handler
	r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return execx.Result{Code: execx.SentinelCode}, err
	}
	if handler == nil {
		return execx.Result{}, nil
	}
	return handler(cmd)
}

// Lines returns the recorded commands rendered with Command.String.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Commands))
	for _, c := range r.Commands {
		out = append(out, c.String())
	}
	return out
}

// Find returns the recorded commands whose rendering contains substr.
func (r *Recorder) Find(substr string) []execx.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []execx.Command
	for _, c := range r.Commands {
		if strings.Contains(c.String(), substr) {
			out = append(out, c)
		}
	}
	return out
}
