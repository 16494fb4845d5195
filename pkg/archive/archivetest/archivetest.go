// Package archivetest fakes hdiutil on a command.FakeRunner.
package archivetest

import (
	"fmt"
	"os"

	"github.com/renkit/renotize/pkg/command"
)

// InstallHdiutil makes `hdiutil create` write a small image at its output
// path and `hdiutil verify` succeed for any non-empty file.
func InstallHdiutil(r *command.FakeRunner) {
	r.Handle("hdiutil create", func(args []string) (string, error) {
		out := args[len(args)-1]
		if err := os.WriteFile(out, []byte("koly-fake-image"), 0644); err != nil {
			return "", err
		}
		return fmt.Sprintf("created: %s\n", out), nil
	})
	r.Handle("hdiutil verify", func(args []string) (string, error) {
		info, err := os.Stat(args[len(args)-1])
		if err != nil || info.Size() == 0 {
			return "checksum invalid\n", &command.ExitError{Code: 1}
		}
		return "hdiutil: verify: checksum of \"image\" is VALID\n", nil
	})
}
