// Package credentialtest writes throwaway signing identities and API keys
// for tests.
package credentialtest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/renkit/renotize/pkg/credential"
)

const (
	TeamID   = "ABCDE12345"
	IssuerID = "69a6de70-03db-47e3-e053-5b8c7c11a4d1"
	KeyID    = "2X9R4HXF34"
)

// CertOptions tweaks the generated certificate.
type CertOptions struct {
	NotBefore   time.Time
	NotAfter    time.Time
	ExtKeyUsage []x509.ExtKeyUsage
}

// Identity holds the paths of a generated PEM key and certificate.
type Identity struct {
	KeyFile  string
	CertFile string
	Key      *ecdsa.PrivateKey
	Cert     *x509.Certificate
}

// NewKey generates a P-256 key.
func NewKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

// NewCertificate self-signs a Developer ID style certificate for key.
func NewCertificate(t testing.TB, key crypto.Signer, opts CertOptions) *x509.Certificate {
	t.Helper()
	if opts.NotBefore.IsZero() {
		opts.NotBefore = time.Now().Add(-time.Hour)
	}
	if opts.NotAfter.IsZero() {
		opts.NotAfter = time.Now().Add(365 * 24 * time.Hour)
	}
	if opts.ExtKeyUsage == nil {
		opts.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning}
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			CommonName:         "Developer ID Application: Example Corp (" + TeamID + ")",
			OrganizationalUnit: []string{TeamID},
			Organization:       []string{"Example Corp"},
		},
		NotBefore:   opts.NotBefore,
		NotAfter:    opts.NotAfter,
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: opts.ExtKeyUsage,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}
	return cert
}

// WriteIdentity writes key.pem and cert.pem into dir.
func WriteIdentity(t testing.TB, dir string, opts CertOptions) Identity {
	t.Helper()
	key := NewKey(t)
	cert := NewCertificate(t, key, opts)
	return Identity{
		KeyFile:  WriteKey(t, filepath.Join(dir, "key.pem"), key),
		CertFile: WriteCertificate(t, filepath.Join(dir, "cert.pem"), cert),
		Key:      key,
		Cert:     cert,
	}
}

// WriteKey writes key as a PKCS#8 PEM file.
func WriteKey(t testing.TB, path string, key *ecdsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	writePEM(t, path, "PRIVATE KEY", der)
	return path
}

// WriteCertificate writes cert as a PEM file.
func WriteCertificate(t testing.TB, path string, cert *x509.Certificate) string {
	t.Helper()
	writePEM(t, path, "CERTIFICATE", cert.Raw)
	return path
}

// LoadIdentity writes and loads an identity in one step.
func LoadIdentity(t testing.TB, dir string) *credential.SigningIdentity {
	t.Helper()
	files := WriteIdentity(t, dir, CertOptions{})
	id, err := credential.LoadSigningIdentity(files.KeyFile, files.CertFile, "")
	if err != nil {
		t.Fatalf("failed to load identity: %v", err)
	}
	return id
}

// WriteAPIKey writes a JSON API key file into dir and returns it loaded.
func WriteAPIKey(t testing.TB, dir string) *credential.APIKey {
	t.Helper()
	key := NewKey(t)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	path := filepath.Join(dir, "api-key.json")
	err = credential.WriteAPIKey(path, &credential.APIKey{
		IssuerID:      IssuerID,
		KeyID:         KeyID,
		PrivateKeyPEM: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
	})
	if err != nil {
		t.Fatalf("failed to write API key: %v", err)
	}
	loaded, err := credential.LoadAPIKey(path)
	if err != nil {
		t.Fatalf("failed to load API key: %v", err)
	}
	return loaded
}

func writePEM(t testing.TB, path, blockType string, der []byte) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
