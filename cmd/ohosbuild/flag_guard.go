// File: cmd/ohosbuild/flag_guard.go
// Brief: Argument normalization for flags that take several values.

package main

import (
	"strings"

	"github.com/miscdec/flutter-engine/internal/buildinfo"
	"github.com/miscdec/flutter-engine/internal/config"
	"github.com/miscdec/flutter-engine/internal/stages"
)

// normalizeListArgs folds "-n config compile zip" into "-n=config,compile,zip" so the
// list flags accept space-separated values. Collection stops at the next token that
// starts with "-", at "--", or at a subcommand name that is not a legal value for the
// flag ("har" is both a stage and a command).
func normalizeListArgs(args []string) []string {
	if len(args) <= 1 {
		return args
	}
	listFlags := make(map[string]bool, len(config.ListFlags))
	for _, f := range config.ListFlags {
		listFlags[f] = true
	}
	normalized := make([]string, 0, len(args))
	normalized = append(normalized, args[0])
	for i := 1; i < len(args); {
		arg := args[i]
		if arg == "--" {
			normalized = append(normalized, args[i:]...)
			break
		}
		if !listFlags[arg] {
			normalized = append(normalized, arg)
			i++
			continue
		}
		j := i + 1
		var values []string
		for j < len(args) && !strings.HasPrefix(args[j], "-") && (isListValue(arg, args[j]) || !isSubcommand(args[j])) {
			values = append(values, args[j])
			j++
		}
		if len(values) == 0 {
			normalized = append(normalized, arg)
			i++
			continue
		}
		normalized = append(normalized, arg+"="+strings.Join(values, ","))
		i = j
	}
	return normalized
}

var subcommandNames = map[string]bool{
	"build": true, "setup": true, "toolchain": true, "har": true,
	"publish": true, "history": true, "version": true, "help": true,
}

// isSubcommand stops list collection at a command name, as in "ohosbuild -t debug build".
func isSubcommand(arg string) bool {
	return subcommandNames[arg]
}

// isListValue reports whether v is a legal value for the list flag.
func isListValue(flag, v string) bool {
	switch flag {
	case "-n", "--name":
		_, err := stages.ParseName(v)
		return err == nil
	case "-t", "--type":
		_, err := buildinfo.ParseBuildType(v)
		return err == nil
	}
	return false
}
