package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/miscdec/flutter-engine/internal/toolchain"
)

func newToolchainCommand(a *app) *cobra.Command {
	var override string
	cmd := &cobra.Command{
		Use:   "toolchain",
		Short: "Resolve and validate the OHOS native toolchain",
		Long: fmt.Sprintf(`Resolve the native toolchain the way config and zip stages do: %s, then the
config file's toolchain root, then the SDK bundled under <root>/ndk, then the newest
"native" directory under %s or %s.

Exits with code %d when no valid toolchain is found.`, toolchain.EnvNDKHome, toolchain.EnvHOSSDKHome, toolchain.EnvSDKHome, toolchain.ExitCodeNotFound),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("toolchain-root") && override == "" {
				override = a.cfg.Toolchain.Root
			}
			resolver := toolchain.Resolver{
				Getenv:     a.env,
				BundledDir: filepath.Join(a.root, "ndk"),
				Override:   override,
				Log:        a.log,
			}
			tc, err := resolver.Resolve(cmd.Context())
			if err != nil {
				var nf *toolchain.NotFoundError
				if errors.As(err, &nf) {
					fmt.Fprintln(cmd.ErrOrStderr(), nf.Guidance())
				}
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s=%s\n", toolchain.EnvNDKHome, tc.Root)
			fmt.Fprintf(out, "source:  %s\n", tc.Source)
			fmt.Fprintf(out, "version: %s\n", tc.Version())
			fmt.Fprintf(out, "sysroot: %s\n", tc.Sysroot())
			for _, dir := range tc.BinDirs() {
				fmt.Fprintf(out, "path:    %s\n", dir)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&override, "toolchain-root", "", "Toolchain root used when OHOS_NDK_HOME is unset")
	decorateCommandHelp(cmd, "Toolchain Flags")
	return cmd
}
