// File: internal/workflows/enginebuild/console.go
// Brief: Stage banners and summaries written to the workflow's output stream.

package enginebuild

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
)

type console struct {
	out    io.Writer
	banner *color.Color
	ok     *color.Color
	warn   *color.Color
	fail   *color.Color
}

func newConsole(streams Streams) *console {
	out := streams.OutWriter()
	c := &console{
		out:    out,
		banner: color.New(color.FgCyan, color.Bold),
		ok:     color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		fail:   color.New(color.FgRed, color.Bold),
	}
	if !streams.IsTerminal(out) {
		for _, col := range []*color.Color{c.banner, c.ok, c.warn, c.fail} {
			col.DisableColor()
		}
	}
	return c
}

func (c *console) stage(step string) {
	c.banner.Fprintf(c.out, "==> %s\n", step)
}

func (c *console) stepDone(r StepResult) {
	d := r.Duration.Round(time.Millisecond)
	switch {
	case r.Err == nil:
		c.ok.Fprintf(c.out, "    %s ok (%s)\n", r.Step, d)
	case r.Fatal:
		c.fail.Fprintf(c.out, "    %s failed (%s): %v\n", r.Step, d, r.Err)
	default:
		c.warn.Fprintf(c.out, "    %s finished with warnings (%s): %v\n", r.Step, d, r.Err)
	}
}

func (c *console) line(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}
