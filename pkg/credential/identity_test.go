package credential_test

import (
	"crypto/x509"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/renkit/renotize/pkg/credential"
	"github.com/renkit/renotize/pkg/credential/credentialtest"
	"github.com/renkit/renotize/pkg/failure"
	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

func TestLoadSigningIdentity(t *testing.T) {
	dir := t.TempDir()
	files := credentialtest.WriteIdentity(t, dir, credentialtest.CertOptions{})

	id, err := credential.LoadSigningIdentity(files.KeyFile, files.CertFile, "")
	if err != nil {
		t.Fatalf("LoadSigningIdentity() error = %v", err)
	}
	if id.TeamID != credentialtest.TeamID {
		t.Errorf("TeamID = %q, want %q", id.TeamID, credentialtest.TeamID)
	}
	if !strings.HasPrefix(id.CommonName, "Developer ID Application") {
		t.Errorf("CommonName = %q", id.CommonName)
	}
	if id.IsPKCS12() {
		t.Error("IsPKCS12() = true, want false")
	}
}

func TestLoadSigningIdentityErrors(t *testing.T) {
	dir := t.TempDir()
	good := credentialtest.WriteIdentity(t, dir, credentialtest.CertOptions{})

	otherDir := t.TempDir()
	other := credentialtest.WriteIdentity(t, otherDir, credentialtest.CertOptions{})

	expiredDir := t.TempDir()
	expired := credentialtest.WriteIdentity(t, expiredDir, credentialtest.CertOptions{
		NotBefore: time.Now().Add(-48 * time.Hour),
		NotAfter:  time.Now().Add(-24 * time.Hour),
	})

	serverDir := t.TempDir()
	server := credentialtest.WriteIdentity(t, serverDir, credentialtest.CertOptions{
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})

	garbage := filepath.Join(dir, "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a pem"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		keyFile  string
		certFile string
		errMsg   string
	}{
		{"missing key file", filepath.Join(dir, "nope.pem"), good.CertFile, "signing key file"},
		{"missing cert path", good.KeyFile, "", "certificate file is required"},
		{"directory as key", dir, good.CertFile, "not a regular file"},
		{"unparseable key", garbage, good.CertFile, "failed to parse signing key"},
		{"unparseable cert", good.KeyFile, garbage, "failed to parse certificate"},
		{"mismatched pair", good.KeyFile, other.CertFile, "does not match certificate"},
		{"expired certificate", expired.KeyFile, expired.CertFile, "expired on"},
		{"no code signing usage", server.KeyFile, server.CertFile, "not valid for code signing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := credential.LoadSigningIdentity(tt.keyFile, tt.certFile, "")
			if err == nil {
				t.Fatal("LoadSigningIdentity() expected error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %q, want containing %q", err.Error(), tt.errMsg)
			}
			if failure.KindOf(err) != failure.Input {
				t.Errorf("KindOf() = %v, want %v", failure.KindOf(err), failure.Input)
			}
		})
	}
}

func TestLoadPKCS12Identity(t *testing.T) {
	dir := t.TempDir()
	key := credentialtest.NewKey(t)
	cert := credentialtest.NewCertificate(t, key, credentialtest.CertOptions{})

	data, err := pkcs12.Modern.Encode(key, cert, nil, "hunter2")
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	path := filepath.Join(dir, "identity.p12")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	id, err := credential.LoadPKCS12Identity(path, "hunter2")
	if err != nil {
		t.Fatalf("LoadPKCS12Identity() error = %v", err)
	}
	if !id.IsPKCS12() || id.P12Password != "hunter2" {
		t.Errorf("identity = %+v, want PKCS#12 backed", id)
	}

	if _, err := credential.LoadPKCS12Identity(path, "wrong"); err == nil {
		t.Error("LoadPKCS12Identity() with wrong password expected error")
	}
}

func TestCheckNotYetValid(t *testing.T) {
	key := credentialtest.NewKey(t)
	cert := credentialtest.NewCertificate(t, key, credentialtest.CertOptions{
		NotBefore: time.Now().Add(24 * time.Hour),
		NotAfter:  time.Now().Add(48 * time.Hour),
	})
	id := &credential.SigningIdentity{PrivateKey: key, Certificate: cert, CommonName: "x"}
	if err := id.Check(time.Now()); err == nil || !strings.Contains(err.Error(), "not valid before") {
		t.Errorf("Check() error = %v, want not valid before", err)
	}
}
