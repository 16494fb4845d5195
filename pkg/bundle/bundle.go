// Package bundle reads and validates macOS application bundles and unpacks
// them from zip archives.
package bundle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/renkit/renotize/pkg/failure"
	"howett.net/plist"
)

const maxIDLength = 255

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Bundle describes a .app directory.
type Bundle struct {
	Path        string
	ID          string
	Executable  string
	Name        string
	DisplayName string
	Version     string
}

type infoPlist struct {
	BundleID    string `plist:"CFBundleIdentifier"`
	Executable  string `plist:"CFBundleExecutable"`
	Name        string `plist:"CFBundleName"`
	DisplayName string `plist:"CFBundleDisplayName"`
	Version     string `plist:"CFBundleShortVersionString"`
}

// InfoPlistPath returns the location of the bundle's Info.plist.
func InfoPlistPath(appPath string) string {
	return filepath.Join(appPath, "Contents", "Info.plist")
}

// Read parses the bundle's Info.plist without validating its structure.
func Read(appPath string) (*Bundle, error) {
	data, err := os.ReadFile(InfoPlistPath(appPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read Info.plist: %w", err)
	}
	var info infoPlist
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse Info.plist: %w", err)
	}
	return &Bundle{
		Path:        appPath,
		ID:          info.BundleID,
		Executable:  info.Executable,
		Name:        info.Name,
		DisplayName: info.DisplayName,
		Version:     info.Version,
	}, nil
}

// Open reads and validates the bundle at appPath. Every structural problem
// is reported in one InputError.
func Open(appPath string) (*Bundle, error) {
	info, err := os.Stat(appPath)
	if err != nil {
		return nil, failure.Wrapf(failure.Input, err, "application bundle")
	}
	if !info.IsDir() || filepath.Ext(appPath) != ".app" {
		return nil, failure.New(failure.Input, "%s is not an application bundle", appPath)
	}

	b, err := Read(appPath)
	if err != nil {
		return nil, failure.Wrapf(failure.Input, err, "invalid bundle %s", appPath)
	}
	if err := Validate(b); err != nil {
		return nil, failure.Wrapf(failure.Input, err, "invalid bundle %s", appPath)
	}
	return b, nil
}

// Validate checks the bundle identifier and that the main executable exists.
func Validate(b *Bundle) error {
	var result *multierror.Error

	if err := ValidID(b.ID); err != nil {
		result = multierror.Append(result, fmt.Errorf("CFBundleIdentifier: %w", err))
	}

	switch {
	case b.Executable == "":
		result = multierror.Append(result, errors.New("CFBundleExecutable is missing"))
	case strings.ContainsRune(b.Executable, '/') || b.Executable == "." || b.Executable == "..":
		result = multierror.Append(result, fmt.Errorf("CFBundleExecutable %q is not a file name", b.Executable))
	default:
		exe := filepath.Join(b.Path, "Contents", "MacOS", b.Executable)
		info, err := os.Stat(exe)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("executable %s not found", filepath.Join("Contents", "MacOS", b.Executable)))
		} else if !info.Mode().IsRegular() {
			result = multierror.Append(result, fmt.Errorf("executable %s is not a regular file", filepath.Join("Contents", "MacOS", b.Executable)))
		}
	}

	return result.ErrorOrNil()
}

// ValidID reports whether id is a reverse-DNS bundle identifier.
func ValidID(id string) error {
	if id == "" {
		return errors.New("bundle identifier is empty")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("bundle identifier exceeds %d characters", maxIDLength)
	}
	labels := strings.Split(id, ".")
	if len(labels) < 2 {
		return fmt.Errorf("bundle identifier %q must be reverse-DNS (e.g. com.example.app)", id)
	}
	for _, label := range labels {
		if label == "" {
			return fmt.Errorf("bundle identifier %q has an empty component", id)
		}
		if !labelPattern.MatchString(label) {
			return fmt.Errorf("bundle identifier %q contains invalid characters in %q", id, label)
		}
	}
	return nil
}

// VolumeName returns the name to show for the bundle, falling back from the
// display name to the bundle name to the file name.
func (b *Bundle) VolumeName() string {
	if b.DisplayName != "" {
		return b.DisplayName
	}
	if b.Name != "" {
		return b.Name
	}
	return strings.TrimSuffix(filepath.Base(b.Path), ".app")
}

// Stem returns the bundle file name without the .app extension.
func (b *Bundle) Stem() string {
	return strings.TrimSuffix(filepath.Base(b.Path), ".app")
}
