package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/renkit/renotize/internal/pipe/unpack"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/version"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "renotize",
	Short:   "Sign, notarize and staple macOS apps and disk images",
	Version: version.VersionInfo(),
	Long: `renotize takes a zipped macOS application through code signing,
notarization and stapling, packages it into a disk image and takes the
image through the same steps. Progress of a full run is kept in a
checkpoint file so an interrupted run resumes where it stopped.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and runs it.
// SIGINT and SIGTERM cancel the running command. The returned error
// carries the failure kind that decides the exit code.
func Execute() error {
	registerCommands()
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		reportError(err)
	}
	return err
}

var registerOnce sync.Once

// registerCommands initializes flags and registers all subcommands
func registerCommands() {
	registerOnce.Do(register)
}

func register() {
	rootCmd.PersistentFlags().String("config", ".renotize.yaml", "config file path")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return failure.Wrap(failure.Input, err)
	})

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(unpackCmd)
	rootCmd.AddCommand(signAppCmd, signDMGCmd)
	rootCmd.AddCommand(notarizeAppCmd, notarizeDMGCmd)
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(fullRunCmd)
	rootCmd.AddCommand(inspectCmd)

	packCmd.Flags().StringP("output", "o", "", "path of the disk image")
	packCmd.Flags().StringP("volume", "v", "", "volume name shown when the image is mounted")
	packCmd.Flags().Bool("overwrite", false, "replace an existing disk image")

	statusCmd.Flags().StringArrayP("uuid", "u", nil, "submission ID to check (repeatable)")
	statusCmd.Flags().StringP("api-key", "k", "", "App Store Connect API key (JSON or .p8)")
	addAPIKeyIDFlags(statusCmd)
	statusCmd.Flags().Bool("wait", false, "poll until every submission has a verdict")

	addIdentityFlags(fullRunCmd)
	fullRunCmd.Flags().StringP("bundle-id", "b", "", "expected bundle identifier of the app")
	fullRunCmd.Flags().StringP("api-key", "a", "", "App Store Connect API key (JSON or .p8)")
	addAPIKeyIDFlags(fullRunCmd)
	fullRunCmd.Flags().StringP("entitlements", "e", "", "entitlements plist applied to the app")
	fullRunCmd.Flags().StringP("checkpoint", "j", "", "checkpoint file (default OUTPUT_DIR/renotize-checkpoint.json)")
	fullRunCmd.Flags().StringP("output-dir", "o", unpack.DefaultOutputDir, "directory receiving the app and the disk image")
	fullRunCmd.Flags().StringP("volume", "v", "", "volume name of the disk image")

	provisionCmd.Flags().StringP("output", "o", defaultAPIKeyPath, "where to write the API key JSON file")
	provisionCmd.Flags().String("issuer-id", "", "issuer ID (prompted when omitted)")
	provisionCmd.Flags().String("key-id", "", "key ID (prompted when omitted)")
	provisionCmd.Flags().String("p8", "", ".p8 private key file (prompted when omitted)")
}

// GetConfigPath returns the config file path from flags
func GetConfigPath() string {
	configPath, _ := rootCmd.PersistentFlags().GetString("config")
	return configPath
}

// GetDebugMode returns debug mode flag value
func GetDebugMode() bool {
	debug, _ := rootCmd.PersistentFlags().GetBool("debug")
	return debug
}

// configExplicit reports whether --config was given on the command line.
func configExplicit() bool {
	return rootCmd.PersistentFlags().Changed("config")
}
