package validate

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/renkit/renotize/pkg/bundle"
	"github.com/renkit/renotize/pkg/credential"
)

// RequiredString validates that a string field is not empty
func RequiredString(value, field string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

// RequiredFile validates that a path field names an existing regular file.
// A leading ~ is expanded.
func RequiredFile(path, field string) error {
	if err := RequiredString(path, field); err != nil {
		return err
	}
	expanded, err := credential.ExpandPath(path)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return fmt.Errorf("%s: %s does not exist", field, path)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s: %s is not a regular file", field, path)
	}
	return nil
}

// BundleID validates a reverse-DNS bundle identifier.
func BundleID(id, field string) error {
	if err := bundle.ValidID(id); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

// SubmissionID validates a notarization submission ID.
func SubmissionID(id, field string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%s: %q is not a valid submission ID", field, id)
	}
	return nil
}

// PositiveDuration validates that d is greater than zero.
func PositiveDuration(d time.Duration, field string) error {
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", field, d)
	}
	return nil
}

// NonNegative validates a count that may be zero.
func NonNegative(n int, field string) error {
	if n < 0 {
		return fmt.Errorf("%s must not be negative, got %d", field, n)
	}
	return nil
}
