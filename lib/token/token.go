// Package token mints the signed credential handed out after a challenge is
// accepted. Tokens are standard HS256 JWTs so any downstream service in any
// language can verify them; captchify itself never verifies a token it
// issued.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer signs access tokens with a server-held symmetric key.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewIssuer builds an Issuer. The key is typically the dedicated signing
// secret, falling back to the prefix-derivation secret when none is
// configured.
func NewIssuer(key []byte, ttl time.Duration) *Issuer {
	return &Issuer{
		key: key,
		ttl: ttl,
		now: time.Now,
	}
}

// WithNow overrides the issuer clock for tests.
func (i *Issuer) WithNow(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// TTL returns how long minted tokens are valid for.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Mint signs a token asserting that challenge cid was solved from origin ip.
func (i *Issuer) Mint(cid, ip string) (string, error) {
	now := i.now()

	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"cid": cid,
		"iat": now.Unix(),
		"exp": now.Add(i.ttl).Unix(),
		"ip":  ip,
	}).SignedString(i.key)
}
