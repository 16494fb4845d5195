package pipe

import (
	"github.com/renkit/renotize/internal/pipe/dmg"
	"github.com/renkit/renotize/internal/pipe/notarize"
	"github.com/renkit/renotize/internal/pipe/sign"
	"github.com/renkit/renotize/internal/pipe/staple"
	"github.com/renkit/renotize/internal/pipe/unpack"
	signer "github.com/renkit/renotize/pkg/sign"
)

// ValidationPipes run before any stage of a full run.
var ValidationPipes = []Piper{
	unpack.CheckPipe{},   // Validate input zip, bundle ID and output directory
	sign.CheckPipe{},     // Load and check the signing identity
	notarize.CheckPipe{}, // Load the API key and check polling limits
	staple.CheckPipe{},   // Check stapler availability and retry policy
	dmg.CheckPipe{},      // Check hdiutil availability
}

// FullRunStages is the canonical stage order of a full run.
var FullRunStages = []Stage{
	unpack.Pipe{},                         // Extract and validate the .app
	sign.Pipe{Kind: signer.App},           // Sign the .app with hardened runtime
	notarize.Pipe{Kind: signer.App},       // Submit the .app and wait for a verdict
	staple.Pipe{Kind: signer.App},         // Staple the ticket to the .app
	dmg.Pipe{},                            // Package the stapled .app into a DMG
	sign.Pipe{Kind: signer.DiskImage},     // Sign the DMG
	notarize.Pipe{Kind: signer.DiskImage}, // Submit the DMG and wait for a verdict
	staple.Pipe{Kind: signer.DiskImage},   // Staple the ticket to the DMG
}

// StageNames returns the identifiers of FullRunStages in order.
func StageNames() []string {
	names := make([]string, 0, len(FullRunStages))
	for _, s := range FullRunStages {
		names = append(names, s.Name())
	}
	return names
}

// UnpackPipes extracts an app without signing it.
func UnpackPipes() []Piper {
	return []Piper{unpack.CheckPipe{}, unpack.Pipe{}}
}

// SignPipes signs an artifact of the given kind.
func SignPipes(kind signer.Kind) []Piper {
	return []Piper{sign.CheckPipe{}, sign.Pipe{Kind: kind}}
}

// NotarizePipes submits an artifact, waits for the verdict and staples it.
// Inputs.NoWait and Inputs.NoStaple turn the later steps into skips.
func NotarizePipes(kind signer.Kind) []Piper {
	return []Piper{
		notarize.CheckPipe{},
		staple.CheckPipe{},
		notarize.Pipe{Kind: kind},
		staple.Pipe{Kind: kind},
	}
}

// PackPipes packages an app into a disk image.
func PackPipes() []Piper {
	return []Piper{dmg.CheckPipe{}, dmg.Pipe{}}
}

// CredentialPipes load the API key for commands that only talk to the
// notary service.
func CredentialPipes() []Piper {
	return []Piper{notarize.CheckPipe{}}
}

// ConfigPipes check configuration and credentials without an input zip.
func ConfigPipes() []Piper {
	return []Piper{
		sign.CheckPipe{},
		notarize.CheckPipe{},
		staple.CheckPipe{},
		dmg.CheckPipe{},
	}
}
