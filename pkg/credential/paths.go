package credential

import (
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/renkit/renotize/pkg/failure"
)

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", path, err)
	}
	return expanded, nil
}

// resolveFile expands path and checks it names a readable regular file.
func resolveFile(path, what string) (string, error) {
	if path == "" {
		return "", failure.New(failure.Input, "%s file is required", what)
	}
	expanded, err := ExpandPath(path)
	if err != nil {
		return "", failure.Wrap(failure.Input, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return "", failure.Wrapf(failure.Input, err, "%s file", what)
	}
	if !info.Mode().IsRegular() {
		return "", failure.New(failure.Input, "%s file %s is not a regular file", what, expanded)
	}
	return expanded, nil
}
