package cli

import (
	"github.com/renkit/renotize/pkg/pipe"
	"github.com/renkit/renotize/pkg/pipeline"
	"github.com/spf13/cobra"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and credentials",
	Long: `Validate the .renotize.yaml configuration file.
This command loads the signing identity and the App Store Connect API key,
checks the polling and stapling limits and makes sure rcodesign, xcrun and
hdiutil are installed.`,
	Args: exactArgs(0),
	RunE: runCheck,
}

// runCheck executes the check command
func runCheck(cmd *cobra.Command, args []string) error {
	ctx, err := newContext(cmd)
	if err != nil {
		return err
	}

	if err := pipeline.Run(ctx, pipe.ConfigPipes()); err != nil {
		return err
	}

	ctx.Logger.Info("Configuration is valid")
	return nil
}
