package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/renkit/renotize/pkg/credential"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/spf13/cobra"
)

const defaultAPIKeyPath = "~/.renotize/api-key.json"

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Create an API key file from an App Store Connect .p8 key",
	Long: `Ask for the issuer ID, the key ID and the .p8 private key downloaded
from App Store Connect (Users and Access, Integrations), check that they
form a usable key and store them as one JSON file readable only by you.
Values given as flags are not asked for.`,
	Args: exactArgs(0),
	RunE: runProvision,
}

func runProvision(cmd *cobra.Command, args []string) error {
	logger := SetupLogger(GetDebugMode())
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	color.New(color.Bold).Fprintln(out, "App Store Connect API key")
	fmt.Fprintln(out, "Create a key with the Developer role under Users and Access > Integrations.")

	issuer, err := flagOrPrompt(cmd, in, out, "issuer-id", "Issuer ID")
	if err != nil {
		return err
	}
	keyID, err := flagOrPrompt(cmd, in, out, "key-id", "Key ID")
	if err != nil {
		return err
	}
	p8, err := flagOrPrompt(cmd, in, out, "p8", "Path to the .p8 file")
	if err != nil {
		return err
	}

	key, err := credential.LoadAPIKeyP8(p8, issuer, keyID)
	if err != nil {
		return err
	}

	dest, _ := cmd.Flags().GetString("output")
	path, err := credential.ExpandPath(dest)
	if err != nil {
		return failure.Wrap(failure.Input, err)
	}
	if err := credential.WriteAPIKey(path, key); err != nil {
		return failure.Wrap(failure.Input, err)
	}

	color.New(color.FgGreen).Fprintf(out, "API key written to %s\n", path)
	logger.Infof("Use it with -k %s or set notarize.api_key_file in %s", path, GetConfigPath())
	return nil
}

// flagOrPrompt returns the flag's value, asking for it when it is unset.
func flagOrPrompt(cmd *cobra.Command, in *bufio.Reader, out io.Writer, flag, label string) (string, error) {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v, nil
	}
	color.New(color.FgCyan).Fprintf(out, "%s: ", label)
	line, err := in.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && (err != io.EOF || line == "") {
		return "", failure.New(failure.Input, "no %s given", strings.ToLower(label))
	}
	if line == "" {
		return "", failure.New(failure.Input, "%s is required", strings.ToLower(label))
	}
	return line, nil
}
