// Package credential loads and validates the signing identity and the
// notary API key. Both are loaded once and never mutated afterwards, so a
// single value may be shared by concurrent pipelines.
package credential

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/renkit/renotize/pkg/failure"
	"github.com/sigstore/sigstore/pkg/cryptoutils"
	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// SigningIdentity is a code-signing private key with its certificate chain.
// It is backed either by a PEM key/certificate pair or by a PKCS#12 file.
type SigningIdentity struct {
	KeyFile     string
	CertFile    string
	P12File     string
	P12Password string

	PrivateKey  crypto.Signer
	Certificate *x509.Certificate
	Chain       []*x509.Certificate

	CommonName string
	// TeamID is the Apple team identifier taken from the certificate
	// subject's organizational unit, when present.
	TeamID string
}

// LoadSigningIdentity loads a PEM private key and PEM certificate chain.
// keyPassword is only consulted for encrypted keys.
func LoadSigningIdentity(keyFile, certFile, keyPassword string) (*SigningIdentity, error) {
	keyPath, err := resolveFile(keyFile, "signing key")
	if err != nil {
		return nil, err
	}
	certPath, err := resolveFile(certFile, "certificate")
	if err != nil {
		return nil, err
	}

	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, failure.Wrapf(failure.Input, err, "failed to read signing key")
	}
	var pf cryptoutils.PassFunc
	if keyPassword != "" {
		pf = func(_ bool) ([]byte, error) {
			return []byte(keyPassword), nil
		}
	}
	priv, err := cryptoutils.UnmarshalPEMToPrivateKey(keyPEM, pf)
	if err != nil {
		return nil, failure.Wrapf(failure.Input, err, "failed to parse signing key %s", keyPath)
	}
	signer, ok := priv.(crypto.Signer)
	if !ok {
		return nil, failure.New(failure.Input, "signing key %s is not usable for signing", keyPath)
	}

	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, failure.Wrapf(failure.Input, err, "failed to read certificate")
	}
	certs, err := cryptoutils.UnmarshalCertificatesFromPEM(certPEM)
	if err != nil {
		return nil, failure.Wrapf(failure.Input, err, "failed to parse certificate %s", certPath)
	}
	if len(certs) == 0 {
		return nil, failure.New(failure.Input, "no certificate found in %s", certPath)
	}

	id := newIdentity(signer, certs[0], certs[1:])
	id.KeyFile = keyPath
	id.CertFile = certPath
	if err := id.Check(time.Now()); err != nil {
		return nil, err
	}
	return id, nil
}

// LoadPKCS12Identity loads a key and certificate chain from a .p12 file.
func LoadPKCS12Identity(p12File, password string) (*SigningIdentity, error) {
	path, err := resolveFile(p12File, "PKCS#12")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.Wrapf(failure.Input, err, "failed to read PKCS#12 file")
	}
	priv, cert, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, failure.Wrapf(failure.Input, err, "failed to decode %s", path)
	}
	signer, ok := priv.(crypto.Signer)
	if !ok {
		return nil, failure.New(failure.Input, "private key in %s is not usable for signing", path)
	}

	id := newIdentity(signer, cert, chain)
	id.P12File = path
	id.P12Password = password
	if err := id.Check(time.Now()); err != nil {
		return nil, err
	}
	return id, nil
}

func newIdentity(key crypto.Signer, cert *x509.Certificate, chain []*x509.Certificate) *SigningIdentity {
	id := &SigningIdentity{
		PrivateKey:  key,
		Certificate: cert,
		Chain:       chain,
		CommonName:  cert.Subject.CommonName,
	}
	for _, ou := range cert.Subject.OrganizationalUnit {
		if len(ou) == 10 {
			id.TeamID = ou
			break
		}
	}
	return id
}

// Check verifies the key matches the certificate and that the certificate
// is valid for code signing at now.
func (id *SigningIdentity) Check(now time.Time) error {
	if id.PrivateKey == nil || id.Certificate == nil {
		return failure.New(failure.Input, "signing identity is incomplete")
	}
	if err := cryptoutils.EqualKeys(id.PrivateKey.Public(), id.Certificate.PublicKey); err != nil {
		return failure.New(failure.Input, "private key does not match certificate %q", id.CommonName)
	}
	if !allowsCodeSigning(id.Certificate) {
		return failure.New(failure.Input, "certificate %q is not valid for code signing", id.CommonName)
	}
	if now.After(id.Certificate.NotAfter) {
		return failure.New(failure.Input, "certificate %q expired on %s", id.CommonName,
			id.Certificate.NotAfter.Format(time.DateOnly))
	}
	if now.Before(id.Certificate.NotBefore) {
		return failure.New(failure.Input, "certificate %q is not valid before %s", id.CommonName,
			id.Certificate.NotBefore.Format(time.DateOnly))
	}
	return nil
}

// IsPKCS12 reports whether the identity came from a .p12 file.
func (id *SigningIdentity) IsPKCS12() bool {
	return id.P12File != ""
}

func (id *SigningIdentity) String() string {
	if id.TeamID != "" && id.CommonName != "" {
		return fmt.Sprintf("%s [%s]", id.CommonName, id.TeamID)
	}
	return id.CommonName
}

func allowsCodeSigning(cert *x509.Certificate) bool {
	if len(cert.ExtKeyUsage) == 0 {
		return false
	}
	for _, u := range cert.ExtKeyUsage {
		if u == x509.ExtKeyUsageCodeSigning || u == x509.ExtKeyUsageAny {
			return true
		}
	}
	return false
}
