package cli

import (
	"os"

	"github.com/renkit/renotize/pkg/config"
	"github.com/spf13/cobra"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate example renotize configuration",
	Long: `Generate an example .renotize.yaml configuration file in the current directory.
It names the signing identity, the App Store Connect API key and the
notarization and stapling limits with example values.`,
	Args: exactArgs(0),
	RunE: runInit,
}

// runInit executes the init command
func runInit(cmd *cobra.Command, args []string) error {
	logger := SetupLogger(GetDebugMode())
	configPath := config.DefaultPath
	if configExplicit() {
		configPath = GetConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		logger.Infof("Configuration file %s already exists", configPath)
		return nil
	}

	if err := config.SaveConfig(configPath, config.ExampleConfig()); err != nil {
		return err
	}

	logger.Infof("Example configuration created: %s", configPath)
	logger.Info("Edit this file to point at your signing identity and API key")
	return nil
}
