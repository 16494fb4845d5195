package cli

import (
	"path/filepath"

	"github.com/renkit/renotize/pkg/checkpoint"
	"github.com/renkit/renotize/pkg/pipeline"
	"github.com/spf13/cobra"
)

// defaultCheckpointName is the checkpoint written into the output
// directory when -j is not given.
const defaultCheckpointName = "renotize-checkpoint.json"

var fullRunCmd = &cobra.Command{
	Use:   "full-run ZIP",
	Short: "Unpack, sign, notarize and staple an app and its disk image",
	Long: `Run every stage in order: unpack the app from ZIP, sign, notarize and
staple it, package it into a disk image, then sign, notarize and staple
the image.

Progress is recorded in the checkpoint file (-j). Running the same command
again after a failure skips the stages that completed and resumes a
pending notarization instead of uploading again. The output directory is
owned by the run: the app and the disk image in it are replaced.`,
	Args: exactArgs(1),
	RunE: runFullRun,
}

func runFullRun(cmd *cobra.Command, args []string) error {
	ctx, err := newContext(cmd)
	if err != nil {
		return err
	}
	applyIdentityFlags(cmd, ctx.Config)
	setString(cmd, "entitlements", &ctx.Config.Sign.Entitlements)
	applyAPIKeyFlags(cmd, ctx.Config, "api-key")

	flags := cmd.Flags()
	in := &ctx.Inputs
	in.ZipPath = args[0]
	in.BundleID, _ = flags.GetString("bundle-id")
	in.OutputDir, _ = flags.GetString("output-dir")
	in.VolumeName, _ = flags.GetString("volume")
	in.Overwrite = true

	path, _ := flags.GetString("checkpoint")
	if path == "" {
		path = filepath.Join(in.OutputDir, defaultCheckpointName)
	}
	ctx.Checkpoint = checkpoint.Store{Path: path}

	start := ctx.Now()
	if err := pipeline.FullRun(ctx); err != nil {
		ctx.Logger.Infof("Progress saved to %s; run the same command again to resume", path)
		return err
	}

	ctx.Logger.Infof("Full run completed in %s", formatDuration(ctx.Clock.Since(start)))
	cmd.Println(ctx.Artifacts.DMGPath)
	return nil
}
