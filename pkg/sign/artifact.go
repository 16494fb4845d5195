package sign

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/renkit/renotize/pkg/failure"
)

// Kind is the type of a signable artifact.
type Kind int

const (
	App Kind = iota + 1
	DiskImage
)

func (k Kind) String() string {
	switch k {
	case App:
		return "app"
	case DiskImage:
		return "dmg"
	default:
		return "unknown"
	}
}

// Artifact is a file or bundle the pipeline signs, notarizes and staples.
type Artifact struct {
	Path string
	Kind Kind
}

// NewArtifact derives the artifact kind from the path's extension.
func NewArtifact(path string) (Artifact, error) {
	switch strings.ToLower(filepath.Ext(strings.TrimRight(path, "/"))) {
	case ".app":
		return Artifact{Path: strings.TrimRight(path, "/"), Kind: App}, nil
	case ".dmg":
		return Artifact{Path: path, Kind: DiskImage}, nil
	default:
		return Artifact{}, failure.New(failure.Signing, "unsupported artifact type: %s (expected .app or .dmg)", path)
	}
}

// Name returns the artifact's base name.
func (a Artifact) Name() string {
	return filepath.Base(a.Path)
}

// Check verifies the artifact exists and has the shape its kind requires.
func (a Artifact) Check() error {
	if a.Kind != App && a.Kind != DiskImage {
		return failure.New(failure.Signing, "unsupported artifact type: %s", a.Path)
	}
	info, err := os.Stat(a.Path)
	if err != nil {
		return failure.Wrapf(failure.Signing, err, "artifact %s", a.Path)
	}
	if a.Kind == App && !info.IsDir() {
		return failure.New(failure.Signing, "%s is not a bundle directory", a.Path)
	}
	if a.Kind == DiskImage && !info.Mode().IsRegular() {
		return failure.New(failure.Signing, "%s is not a regular file", a.Path)
	}
	return nil
}

func (a Artifact) String() string {
	return fmt.Sprintf("%s (%s)", a.Name(), a.Kind)
}
