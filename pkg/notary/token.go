package notary

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/renkit/renotize/pkg/credential"
	"golang.org/x/oauth2"
)

const (
	audience      = "appstoreconnect-v1"
	tokenLifetime = 15 * time.Minute
	// tokens are refreshed this long before they expire
	tokenLeeway = time.Minute
)

// tokenSource mints App Store Connect JWTs. Wrap it in
// oauth2.ReuseTokenSource so a token is reused until shortly before expiry.
type tokenSource struct {
	key *credential.APIKey
	now func() time.Time
}

func (s tokenSource) Token() (*oauth2.Token, error) {
	now := time.Now()
	if s.now != nil {
		now = s.now()
	}
	expiry := now.Add(tokenLifetime)

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": s.key.IssuerID,
		"iat": now.Unix(),
		"exp": expiry.Unix(),
		"aud": audience,
	})
	token.Header["kid"] = s.key.KeyID

	signed, err := token.SignedString(s.key.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign API token: %w", err)
	}
	return &oauth2.Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		Expiry:      expiry.Add(-tokenLeeway),
	}, nil
}

// NewTokenSource returns a caching token source for key.
func NewTokenSource(key *credential.APIKey) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, tokenSource{key: key})
}
