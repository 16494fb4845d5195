package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/renkit/renotize/pkg/config"
	macContext "github.com/renkit/renotize/pkg/context"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// SetupLogger creates and configures a logger based on debug mode
func SetupLogger(debug bool) *logrus.Logger {
	logger := logrus.New()

	if debug {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logging.BulletFormatter{})
	}

	return logger
}

// reportError prints a failed command's error to stderr.
func reportError(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
}

// newContext loads the configuration and builds the run context for cmd.
func newContext(cmd *cobra.Command) (*macContext.Context, error) {
	logger := SetupLogger(GetDebugMode())

	cfg, err := config.Load(GetConfigPath(), configExplicit())
	if err != nil {
		return nil, failure.Wrapf(failure.Input, err, "failed to load configuration")
	}
	if configExplicit() {
		logger.Debugf("Loaded configuration from %s", GetConfigPath())
	}

	return macContext.NewContext(cmd.Context(), cfg, logger), nil
}

// exactArgs is cobra.ExactArgs with usage errors classified as input errors.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return failure.Wrap(failure.Input, cobra.ExactArgs(n)(cmd, args))
	}
}

// setString overrides *dst with the flag's value when the flag was given.
func setString(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}

// formatDuration renders d for humans: milliseconds below one second,
// otherwise whole minutes and seconds.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	d = d.Round(time.Second)
	minutes := int(d / time.Minute)
	seconds := int(d % time.Minute / time.Second)
	switch {
	case minutes == 0:
		return fmt.Sprintf("%ds", seconds)
	case seconds == 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
}
