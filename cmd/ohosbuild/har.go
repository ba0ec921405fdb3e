package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/miscdec/flutter-engine/internal/har"
)

func newHarCommand(a *app) *cobra.Command {
	var opts har.Options
	cmd := &cobra.Command{
		Use:   "har",
		Short: "Package the OHOS embedding into flutter.har",
		Long: `Copy the embedding project into a fresh build directory, add the native libraries,
run hvigorw assembleHar and copy the result to --output.

Flags also accept the underscore spelling (--embedding_src, --native_lib, ...).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.API != har.DefaultAPI {
				return fmt.Errorf("unsupported --ohos-api-int %d (want %d)", opts.API, har.DefaultAPI)
			}
			opts.Stdout = cmd.OutOrStdout()
			opts.Stderr = cmd.ErrOrStderr()
			return har.NewPackager(a.execRunner(), a.log).Build(cmd.Context(), opts)
		},
	}
	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.StringVar(&opts.EmbeddingSrc, "embedding-src", "", "Path of the embedding source project")
	fs.StringVar(&opts.BuildDir, "build-dir", "", "Directory to build in; replaced on every run")
	fs.StringVar(&opts.BuildType, "build-type", "", "Build type: debug, profile or release")
	fs.StringVar(&opts.Output, "output", "", "Path of the flutter.har to write")
	fs.StringArrayVar(&opts.NativeLibs, "native-lib", nil, "Native library to pack (repeatable)")
	fs.StringVar(&opts.ABI, "ohos-abi", "", "ABI directory the native libraries go in, e.g. arm64-v8a")
	fs.IntVar(&opts.API, "ohos-api-int", har.DefaultAPI, "OHOS API level")
	decorateCommandHelp(cmd, "HAR Flags")
	return cmd
}
