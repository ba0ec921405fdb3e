package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/miscdec/flutter-engine/internal/featureflags"
	"github.com/miscdec/flutter-engine/internal/version"
)

func newVersionCommand() *cobra.Command {
	var short, features bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the ohosbuild version information",
		Args:  cobra.NoArgs,
		// The engine root and config are irrelevant here.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			out := cmd.OutOrStdout()
			if features {
				printFeatures(out)
				return nil
			}
			if short {
				fmt.Fprintln(out, info.Version)
				return nil
			}
			fmt.Fprintf(out, "Version: %s\n", info.Version)
			for _, kv := range [][2]string{{"GitCommit", info.GitCommit}, {"GitTreeState", info.GitTreeState}, {"BuildDate", info.BuildDate}} {
				if kv[1] != "" && kv[1] != "unknown" {
					fmt.Fprintf(out, "%s: %s\n", kv[0], kv[1])
				}
			}
			fmt.Fprintf(out, "GoVersion: %s\n", info.GoVersion)
			fmt.Fprintf(out, "Platform: %s\n", info.Platform)
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print just the version number")
	cmd.Flags().BoolVar(&features, "features", false, "List the feature flags this build knows and how to enable them")
	decorateCommandHelp(cmd, "Version Flags")
	return cmd
}

// printFeatures lists the registry with the state the process environment gives each flag.
func printFeatures(w io.Writer) {
	enabled, _ := featureflags.Resolve(featureflags.EnabledFromEnv(os.Environ()))
	rows := [][]string{{"NAME", "STAGE", "ENV", "ENABLED", "DESCRIPTION"}}
	for _, def := range featureflags.Definitions() {
		rows = append(rows, []string{
			string(def.Name), string(def.Stage), def.EnvVar(),
			fmt.Sprint(enabled.Enabled(def.Name)), def.Description,
		})
	}
	renderTable(w, rows)
}
