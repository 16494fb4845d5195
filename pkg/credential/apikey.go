package credential

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
	"github.com/moby/sys/atomicwriter"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/sigstore/sigstore/pkg/cryptoutils"
)

var keyIDPattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)

// APIKey is an App Store Connect API key used to authenticate with the
// notary service.
type APIKey struct {
	IssuerID      string `json:"issuer_id"`
	KeyID         string `json:"key_id"`
	PrivateKeyPEM string `json:"private_key"`

	PrivateKey *ecdsa.PrivateKey `json:"-"`
	Path       string            `json:"-"`
}

// LoadAPIKey reads a JSON key file as written by `renotize provision`.
func LoadAPIKey(path string) (*APIKey, error) {
	resolved, err := resolveFile(path, "API key")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, failure.Wrapf(failure.Input, err, "failed to read API key")
	}

	var key APIKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, failure.Wrapf(failure.Input, err, "failed to parse API key %s", resolved)
	}
	key.Path = resolved
	if err := key.parse(); err != nil {
		return nil, err
	}
	return &key, nil
}

// LoadAPIKeyP8 builds an API key from a .p8 private key downloaded from
// App Store Connect plus its issuer and key IDs.
func LoadAPIKeyP8(p8File, issuerID, keyID string) (*APIKey, error) {
	resolved, err := resolveFile(p8File, ".p8 key")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, failure.Wrapf(failure.Input, err, "failed to read .p8 key")
	}
	key := &APIKey{
		IssuerID:      issuerID,
		KeyID:         keyID,
		PrivateKeyPEM: string(data),
		Path:          resolved,
	}
	if err := key.parse(); err != nil {
		return nil, err
	}
	return key, nil
}

func (k *APIKey) parse() error {
	if _, err := uuid.Parse(k.IssuerID); err != nil {
		return failure.New(failure.Input, "issuer_id %q is not a UUID", k.IssuerID)
	}
	if !keyIDPattern.MatchString(k.KeyID) {
		return failure.New(failure.Input, "key_id %q must be 10 uppercase letters or digits", k.KeyID)
	}
	if k.PrivateKeyPEM == "" {
		return failure.New(failure.Input, "private_key is required")
	}

	priv, err := cryptoutils.UnmarshalPEMToPrivateKey([]byte(k.PrivateKeyPEM), nil)
	if err != nil {
		return failure.Wrapf(failure.Input, err, "failed to parse API private key")
	}
	ec, ok := priv.(*ecdsa.PrivateKey)
	if !ok || ec.Curve != elliptic.P256() {
		return failure.New(failure.Input, "API private key must be an ECDSA P-256 key")
	}
	k.PrivateKey = ec
	return nil
}

// WriteAPIKey stores key as JSON at path with owner-only permissions.
func WriteAPIKey(path string, key *APIKey) error {
	if key == nil {
		return fmt.Errorf("API key cannot be nil")
	}
	data, err := json.MarshalIndent(key, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal API key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory for API key: %w", err)
	}
	if err := atomicwriter.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write API key: %w", err)
	}
	return nil
}
