// help_template.go gives every ohosbuild command the same help layout: a description,
// usage, subcommands and two flag sections.
package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const (
	localFlagsHeadingKey = "localFlagsHeading"
	localUsageKey        = "localFlagUsages"
	inheritedUsageKey    = "inheritedFlagUsages"
)

const commandHelpTemplate = `{{with or .Long .Short}}{{. | trimTrailingWhitespaces}}{{end}}

Usage:
  {{.UseLine}}
{{if .HasAvailableSubCommands}}
Commands:
{{range .Commands}}{{if (and .IsAvailableCommand (ne .Name "help"))}}  {{rpad .Name .NamePadding}} {{.Short}}
{{end}}{{end}}{{end}}{{if .HasExample}}
Examples:
{{.Example}}
{{end}}
{{index .Annotations "localFlagsHeading"}}:
{{with index .Annotations "localFlagUsages"}}{{.}}{{else}}  (none){{end}}
{{with index .Annotations "inheritedFlagUsages"}}
Global Flags:
{{.}}
{{end}}`

const (
	minHelpWidth     = 60
	defaultHelpWidth = 100
)

func decorateCommandHelp(cmd *cobra.Command, heading string) {
	cmd.SetHelpTemplate(commandHelpTemplate)
	defaultHelp := cmd.HelpFunc()
	cmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		if c.Annotations == nil {
			c.Annotations = make(map[string]string)
		}
		h := heading
		if c != cmd || strings.TrimSpace(h) == "" {
			h = strings.ToUpper(c.Name()[:1]) + c.Name()[1:] + " Flags"
		}
		c.Annotations[localFlagsHeadingKey] = h
		width := helpWidth()
		setAnnotation(c, localUsageKey, formatFlagUsages(c.LocalFlags(), width))
		setAnnotation(c, inheritedUsageKey, formatFlagUsages(c.InheritedFlags(), width))
		defaultHelp(c, args)
	})
}

func setAnnotation(c *cobra.Command, key, value string) {
	if value == "" {
		delete(c.Annotations, key)
		return
	}
	c.Annotations[key] = value
}

// helpWidth wraps flag usages to the terminal, or defaultHelpWidth when stdout is not one.
func helpWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return defaultHelpWidth
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w < minHelpWidth {
		return defaultHelpWidth
	}
	return w
}

func formatFlagUsages(fs *pflag.FlagSet, width int) string {
	if fs == nil || !fs.HasAvailableFlags() {
		return ""
	}
	usages := fs.FlagUsagesWrapped(width)
	usages = strings.ReplaceAll(usages, "\t", "  ")
	return strings.TrimRight(usages, "\n")
}
