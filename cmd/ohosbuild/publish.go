package main

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/miscdec/flutter-engine/internal/gitrepo"
	"github.com/miscdec/flutter-engine/internal/publish"
	"github.com/miscdec/flutter-engine/internal/workflows/enginebuild"
)

// newObjectPutter is replaceable in tests.
var newObjectPutter = func(ctx context.Context, endpoint, region, accessKey, secretKey string) (publish.ObjectPutter, error) {
	return publish.NewS3Putter(ctx, endpoint, region, accessKey, secretKey)
}

func newPublishCommand(a *app) *cobra.Command {
	var (
		force    bool
		endpoint string
		region   string
		bucket   string
		remote   string
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload engine artifacts when src/flutter has an unpublished commit",
		Long: fmt.Sprintf(`Compare HEAD of src/flutter with the last tag on the remote. When they differ,
upload the artifact zips of every published output directory to
<bucket>/%s/<commit>/<target>/<file>.

Credentials are read from %s and %s. Failed uploads are reported and not retried.`,
			publish.KeyPrefix, publish.EnvAccessKey, publish.EnvSecretKey),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pc := a.cfg.Publish
			pick := func(flag, value, fromConfig, fallback string) string {
				if cmd.Flags().Changed(flag) && value != "" {
					return value
				}
				if fromConfig != "" {
					return fromConfig
				}
				if value != "" {
					return value
				}
				return fallback
			}
			endpoint = pick("endpoint", endpoint, pc.Endpoint, publish.DefaultEndpoint)
			region = pick("region", region, pc.Region, publish.DefaultRegion)
			bucket = pick("bucket", bucket, pc.Bucket, publish.DefaultBucket)
			remote = pick("remote", remote, pc.Remote, "origin")

			if err := enginebuild.CheckEngineRoot(a.root); err != nil {
				return err
			}
			ak, sk, err := publish.CredentialsFrom(a.env, pc.AccessKeyEnv, pc.SecretKeyEnv)
			if err != nil {
				return err
			}
			putter, err := newObjectPutter(cmd.Context(), endpoint, region, ak, sk)
			if err != nil {
				return err
			}
			var targets []publish.Target
			for _, t := range pc.Targets {
				targets = append(targets, publish.Target{Name: t.Name, OutDir: t.OutDir})
			}
			p := &publish.Publisher{
				Repo:    gitrepo.New(enginebuild.FlutterDir(a.root), a.execRunner()),
				Putter:  putter,
				Remote:  remote,
				Bucket:  bucket,
				OutRoot: filepath.Join(enginebuild.EngineDir(a.root), "out"),
				Targets: targets,
				Files:   publish.HostArtifactFiles(runtime.GOOS),
				Log:     a.log,
			}
			summary, err := p.Run(cmd.Context(), force)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if summary.Skipped {
				fmt.Fprintf(out, "%s is already published\n", summary.Commit)
				return nil
			}
			for _, up := range summary.Uploads {
				status := "ok"
				if up.Err != nil {
					status = "failed: " + up.Err.Error()
				}
				fmt.Fprintf(out, "%-20s %s %s\n", up.Target, up.Key, status)
			}
			fmt.Fprintf(out, "published %s: %d uploaded, %d failed\n", summary.Commit, len(summary.Uploads)-summary.Failed(), summary.Failed())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Upload even when HEAD matches the last remote tag")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "S3-compatible endpoint (default "+publish.DefaultEndpoint+")")
	cmd.Flags().StringVar(&region, "region", "", "Signing region (default "+publish.DefaultRegion+")")
	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket to upload to (default "+publish.DefaultBucket+")")
	cmd.Flags().StringVar(&remote, "remote", "", "Git remote whose tags mark published commits (default origin)")
	decorateCommandHelp(cmd, "Publish Flags")
	return cmd
}
