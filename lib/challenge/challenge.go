// Package challenge tracks outstanding proof of work challenges through
// their lifecycle: created at init, consumed exactly once on a successful
// verify, expired by timestamp after that.
package challenge

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// Challenge is the server-side record of a single issued puzzle.
type Challenge struct {
	ID          string    `json:"id"`          // opaque random identifier handed to the client
	ServerNonce string    `json:"serverNonce"` // never leaves the server
	Prefix      string    `json:"prefix"`      // hex keyed digest the client hashes against
	Difficulty  int       `json:"difficulty"`  // required leading zero bits
	IssuedAt    time.Time `json:"issuedAt"`
	Used        bool      `json:"used"`
	IP          string    `json:"ip"` // originating network address
}

// Expired reports whether the challenge is past its solvable lifetime.
func (c Challenge) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.IssuedAt) > ttl
}

// randomToken returns n bytes of entropy as an unpadded URL-safe string.
func randomToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
