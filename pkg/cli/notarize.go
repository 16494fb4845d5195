package cli

import (
	"path/filepath"

	"github.com/renkit/renotize/pkg/config"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/pipe"
	"github.com/renkit/renotize/pkg/pipeline"
	"github.com/renkit/renotize/pkg/sign"
	"github.com/spf13/cobra"
)

var notarizeAppCmd = newNotarizeCmd(sign.App, "notarize-app APP", "Notarize and staple a signed app bundle")

var notarizeDMGCmd = newNotarizeCmd(sign.DiskImage, "notarize-dmg DMG", "Notarize and staple a signed disk image")

func newNotarizeCmd(kind sign.Kind, use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.
Apps are zipped before upload. The command waits for the verdict and
staples the ticket unless --no-wait or --no-staple is given; a submission
left waiting can be checked later with "renotize status".`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotarize(cmd, kind, args[0])
		},
	}
	cmd.Flags().StringP("api-key", "k", "", "App Store Connect API key (JSON or .p8)")
	addAPIKeyIDFlags(cmd)
	cmd.Flags().Bool("no-wait", false, "submit without waiting for the verdict")
	cmd.Flags().Bool("no-staple", false, "do not staple the ticket after acceptance")
	return cmd
}

// addAPIKeyIDFlags registers the IDs a .p8 key needs.
func addAPIKeyIDFlags(cmd *cobra.Command) {
	cmd.Flags().String("issuer-id", "", "issuer ID for a .p8 API key")
	cmd.Flags().String("key-id", "", "key ID for a .p8 API key")
}

// applyAPIKeyFlags overrides the notarize section with the API key flags.
func applyAPIKeyFlags(cmd *cobra.Command, cfg *config.Config, flag string) {
	setString(cmd, flag, &cfg.Notarize.APIKeyFile)
	setString(cmd, "issuer-id", &cfg.Notarize.IssuerID)
	setString(cmd, "key-id", &cfg.Notarize.KeyID)
}

func runNotarize(cmd *cobra.Command, kind sign.Kind, path string) error {
	a, err := artifactArg(path, kind)
	if err != nil {
		return err
	}

	ctx, err := newContext(cmd)
	if err != nil {
		return err
	}
	applyAPIKeyFlags(cmd, ctx.Config, "api-key")
	ctx.Inputs.NoWait, _ = cmd.Flags().GetBool("no-wait")
	ctx.Inputs.NoStaple, _ = cmd.Flags().GetBool("no-staple")

	abs, err := filepath.Abs(a.Path)
	if err != nil {
		return failure.Wrap(failure.Input, err)
	}
	ctx.Artifacts.SetPath(kind, abs)

	return pipeline.Run(ctx, pipe.NotarizePipes(kind))
}
