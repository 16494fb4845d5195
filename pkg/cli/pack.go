package cli

import (
	"path/filepath"

	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/pipe"
	"github.com/renkit/renotize/pkg/pipeline"
	"github.com/renkit/renotize/pkg/sign"
	"github.com/spf13/cobra"
)

var packCmd = &cobra.Command{
	Use:   "pack-dmg APP",
	Short: "Package an app into a disk image",
	Long: `Package APP into a compressed disk image with hdiutil and verify it.
Without -o the image is written next to the app and named after the
volume, which defaults to the app's display name.`,
	Args: exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := artifactArg(args[0], sign.App)
		if err != nil {
			return err
		}

		ctx, err := newContext(cmd)
		if err != nil {
			return err
		}
		ctx.Inputs.DMGPath, _ = cmd.Flags().GetString("output")
		ctx.Inputs.VolumeName, _ = cmd.Flags().GetString("volume")
		ctx.Inputs.Overwrite, _ = cmd.Flags().GetBool("overwrite")

		abs, err := filepath.Abs(a.Path)
		if err != nil {
			return failure.Wrap(failure.Input, err)
		}
		ctx.Artifacts.AppPath = abs

		if err := pipeline.Run(ctx, pipe.PackPipes()); err != nil {
			return err
		}
		cmd.Println(ctx.Artifacts.DMGPath)
		return nil
	},
}
