// Package sign signs and verifies app bundles and disk images with
// rcodesign.
package sign

import (
	"context"
	"os"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/renkit/renotize/pkg/bundle"
	"github.com/renkit/renotize/pkg/command"
	"github.com/renkit/renotize/pkg/credential"
	"github.com/renkit/renotize/pkg/failure"
)

// DefaultTool is the signing tool looked up in PATH.
const DefaultTool = "rcodesign"

const installHint = "install it with: cargo install apple-codesign"

// Signer wraps rcodesign. The zero value uses rcodesign from PATH through
// os/exec.
type Signer struct {
	Runner       command.Runner
	Clock        clock.Clock
	Tool         string
	Entitlements string
}

func (s Signer) runner() command.Runner {
	if s.Runner == nil {
		return command.Exec{}
	}
	return s.Runner
}

func (s Signer) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s Signer) tool() string {
	if s.Tool == "" {
		return DefaultTool
	}
	return s.Tool
}

// BuildSignArgs returns the rcodesign arguments that sign a in place.
// Apps get the hardened runtime, which notarization requires.
func BuildSignArgs(a Artifact, id *credential.SigningIdentity, entitlements string) []string {
	args := []string{"sign"}
	if id.IsPKCS12() {
		args = append(args, "--p12-file", id.P12File, "--p12-password", id.P12Password)
	} else {
		args = append(args, "--pem-file", id.KeyFile, "--pem-file", id.CertFile)
	}
	if a.Kind == App {
		args = append(args, "--code-signature-flags", "runtime")
		if entitlements != "" {
			args = append(args, "--entitlements-xml-file", entitlements)
		}
	}
	return append(args, a.Path)
}

// Sign signs a in place, then verifies the result. Signing an already
// signed artifact replaces its signature. Returns combined tool output.
func (s Signer) Sign(ctx context.Context, a Artifact, id *credential.SigningIdentity) (string, error) {
	if err := a.Check(); err != nil {
		return "", err
	}
	if id == nil {
		return "", failure.New(failure.Signing, "no signing identity configured")
	}
	if err := id.Check(s.now()); err != nil {
		return "", err
	}
	if a.Kind == App {
		if _, err := bundle.Open(a.Path); err != nil {
			return "", err
		}
		if s.Entitlements != "" {
			if _, err := os.Stat(s.Entitlements); err != nil {
				return "", failure.Wrapf(failure.Signing, err, "entitlements file")
			}
		}
	}
	if err := command.Require(s.runner(), s.tool(), installHint); err != nil {
		return "", failure.Wrap(failure.Signing, err)
	}

	out, err := s.runner().Run(ctx, s.tool(), BuildSignArgs(a, id, s.Entitlements)...)
	if err != nil {
		if ctx.Err() != nil {
			return out, failure.Cancel(ctx.Err())
		}
		return out, failure.New(failure.Signing, "rcodesign sign failed for %s: %s: %v", a.Name(), strings.TrimSpace(out), err)
	}

	verifyOut, err := s.Verify(ctx, a)
	return out + verifyOut, err
}

// Verify checks the signature of a and, for apps, that the signed
// identifier equals the bundle identifier.
func (s Signer) Verify(ctx context.Context, a Artifact) (string, error) {
	if err := a.Check(); err != nil {
		return "", err
	}
	var expectedID string
	if a.Kind == App {
		b, err := bundle.Read(a.Path)
		if err != nil {
			return "", failure.Wrap(failure.Signing, err)
		}
		expectedID = b.ID
	}
	if err := command.Require(s.runner(), s.tool(), installHint); err != nil {
		return "", failure.Wrap(failure.Signing, err)
	}

	out, err := s.runner().Run(ctx, s.tool(), "verify", a.Path)
	if err != nil {
		if ctx.Err() != nil {
			return out, failure.Cancel(ctx.Err())
		}
		return out, failure.New(failure.Signing, "signature verification failed for %s: %s: %v", a.Name(), strings.TrimSpace(out), err)
	}

	info, err := s.runner().Run(ctx, s.tool(), "print-signature-info", a.Path)
	if err != nil {
		if ctx.Err() != nil {
			return out, failure.Cancel(ctx.Err())
		}
		return out, failure.New(failure.Signing, "failed to read signature of %s: %v", a.Name(), err)
	}
	signedID, err := ParseSignatureIdentifier(info)
	if err != nil {
		return out, failure.Wrapf(failure.Signing, err, "%s", a.Name())
	}
	if expectedID != "" && signedID != expectedID {
		return out, failure.New(failure.Signing, "signed identifier %q does not match bundle identifier %q", signedID, expectedID)
	}
	return out, nil
}
