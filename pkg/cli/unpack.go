package cli

import (
	"github.com/renkit/renotize/pkg/pipe"
	"github.com/renkit/renotize/pkg/pipeline"
	"github.com/spf13/cobra"
)

var unpackCmd = &cobra.Command{
	Use:   "unpack-app ZIP OUTPUT_DIR BUNDLE_ID",
	Short: "Extract and validate the app from a zip",
	Long: `Extract the single top-level .app bundle from ZIP into OUTPUT_DIR and
check its Info.plist. The bundle identifier must equal BUNDLE_ID.
An existing app of the same name in OUTPUT_DIR is replaced.`,
	Args: exactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := newContext(cmd)
		if err != nil {
			return err
		}
		ctx.Inputs.ZipPath = args[0]
		ctx.Inputs.OutputDir = args[1]
		ctx.Inputs.BundleID = args[2]

		if err := pipeline.Run(ctx, pipe.UnpackPipes()); err != nil {
			return err
		}
		cmd.Println(ctx.Artifacts.AppPath)
		return nil
	},
}
