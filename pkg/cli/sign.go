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

var signAppCmd = newSignCmd(sign.App, "sign-app APP", "Sign an app bundle with the hardened runtime")

var signDMGCmd = newSignCmd(sign.DiskImage, "sign-dmg DMG", "Sign a disk image")

func newSignCmd(kind sign.Kind, use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + ` in place with rcodesign and verify the signature.
The identity is a PEM key and certificate (-k, -c) or a PKCS#12 file
(--p12). Flags override the sign section of the configuration file.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSign(cmd, kind, args[0])
		},
	}
	addIdentityFlags(cmd)
	if kind == sign.App {
		cmd.Flags().StringP("entitlements", "e", "", "entitlements plist applied to the app")
	}
	return cmd
}

// addIdentityFlags registers the signing identity flags.
func addIdentityFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("key", "k", "", "PEM private key of the Developer ID identity")
	cmd.Flags().StringP("cert", "c", "", "PEM certificate of the Developer ID identity")
	cmd.Flags().String("key-password", "", "password of an encrypted private key")
	cmd.Flags().String("p12", "", "PKCS#12 file holding the identity")
	cmd.Flags().String("p12-password", "", "password of the PKCS#12 file")
}

// applyIdentityFlags overrides the sign section with the identity flags.
// A key pair given on the command line wins over a configured .p12 file.
func applyIdentityFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if (flags.Changed("key") || flags.Changed("cert")) && !flags.Changed("p12") {
		cfg.Sign.P12File = ""
		cfg.Sign.P12Password = ""
	}
	setString(cmd, "key", &cfg.Sign.KeyFile)
	setString(cmd, "cert", &cfg.Sign.CertFile)
	setString(cmd, "key-password", &cfg.Sign.KeyPassword)
	setString(cmd, "p12", &cfg.Sign.P12File)
	setString(cmd, "p12-password", &cfg.Sign.P12Password)
}

func runSign(cmd *cobra.Command, kind sign.Kind, path string) error {
	a, err := artifactArg(path, kind)
	if err != nil {
		return err
	}

	ctx, err := newContext(cmd)
	if err != nil {
		return err
	}
	applyIdentityFlags(cmd, ctx.Config)
	setString(cmd, "entitlements", &ctx.Config.Sign.Entitlements)

	abs, err := filepath.Abs(a.Path)
	if err != nil {
		return failure.Wrap(failure.Input, err)
	}
	ctx.Artifacts.SetPath(kind, abs)

	return pipeline.Run(ctx, pipe.SignPipes(kind))
}

// artifactArg checks that a positional argument names an artifact of kind.
func artifactArg(path string, kind sign.Kind) (sign.Artifact, error) {
	a, err := sign.NewArtifact(path)
	if err != nil || a.Kind != kind {
		return sign.Artifact{}, failure.New(failure.Input, "%s is not a %s (expected %s)", path, kind, expectedExt[kind])
	}
	return a, nil
}

var expectedExt = map[sign.Kind]string{sign.App: ".app", sign.DiskImage: ".dmg"}
