package notarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/renkit/renotize/pkg/command"
	"github.com/renkit/renotize/pkg/sign"
)

// AssessArgs returns the spctl arguments for a Gatekeeper assessment of a.
// Disk images are assessed as opened documents against their primary
// signature.
func AssessArgs(a sign.Artifact) []string {
	if a.Kind == sign.DiskImage {
		return []string{"--assess", "--type", "open", "--context", "context:primary-signature", "--verbose", a.Path}
	}
	return []string{"--assess", "--type", "execute", "--verbose", a.Path}
}

// RunAssess verifies a passes Gatekeeper assessment using spctl --assess.
// Returns combined output and any error.
func RunAssess(ctx context.Context, r command.Runner, a sign.Artifact) (string, error) {
	if err := command.Require(r, "spctl", "this tool is required for Gatekeeper verification on macOS"); err != nil {
		return "", err
	}

	output, err := r.Run(ctx, "spctl", AssessArgs(a)...)
	if err != nil {
		if strings.Contains(output, "rejected") {
			return output, fmt.Errorf("Gatekeeper rejected %s — it may not be properly signed or notarized", a.Name()) //nolint:staticcheck // proper noun
		}
		return output, fmt.Errorf("spctl assess failed: %s: %w", output, err)
	}

	return output, nil
}
