// Package pow derives proof of work challenges and judges solutions.
//
// A challenge is a 16 byte prefix derived from the challenge identity with a
// keyed MAC. Clients search for a nonce such that
// SHA-256(prefix || nonce) has at least the required number of leading zero
// bits. The server can recompute the prefix from the identity and its key
// alone, so the prefix is unforgeable without being secret.
package pow

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PrefixSize is how many bytes of the MAC become the challenge prefix.
const PrefixSize = 16

// DerivePrefix computes the hex-encoded challenge prefix for a challenge
// identifier and server nonce. Deterministic given (id, nonce, key).
func DerivePrefix(key []byte, id, serverNonce string) string {
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s:%s", id, serverNonce)
	return hex.EncodeToString(mac.Sum(nil)[:PrefixSize])
}

// LeadingZeroBits counts the consecutive zero bits at the most significant
// end of digest, scanning bytes from index zero. An all-zero digest counts
// every bit.
func LeadingZeroBits(digest []byte) int {
	zeroBits := 0
	for _, b := range digest {
		if b == 0 {
			zeroBits += 8
			continue
		}
		for i := 7; i >= 0; i-- {
			if (b>>i)&1 != 0 {
				return zeroBits
			}
			zeroBits++
		}
	}
	return zeroBits
}

// Check judges a client's solution against a challenge prefix. It returns
// the achieved leading zero bit count and whether it meets difficulty. The
// client nonce is treated as opaque bytes, so any encoding the client picks
// works as long as it sends the same bytes it hashed.
func Check(prefixHex, clientNonce string, difficulty int) (int, bool, error) {
	prefix, err := hex.DecodeString(prefixHex)
	if err != nil {
		return 0, false, fmt.Errorf("pow: prefix is not hex: %w", err)
	}

	h := sha256.New()
	h.Write(prefix)
	h.Write([]byte(clientNonce))
	achieved := LeadingZeroBits(h.Sum(nil))

	return achieved, achieved >= difficulty, nil
}

// Solve brute-forces a nonce satisfying the challenge. It only exists for
// tests and the command line solver; real clients do this in the browser.
func Solve(prefixHex string, difficulty int) (string, error) {
	for i := 0; ; i++ {
		nonce := fmt.Sprint(i)
		_, ok, err := Check(prefixHex, nonce, difficulty)
		if err != nil {
			return "", err
		}
		if ok {
			return nonce, nil
		}
	}
}
