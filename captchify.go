// Package captchify holds shared constants and tunables for the captchify
// anti-automation gateway.
package captchify

import "time"

var (
	// Version is the version of captchify, usually installed by the
	// release pipeline via ldflags.
	Version = "devel"
)

const (
	// DefaultDifficulty is the number of leading zero bits a proof of
	// work solution digest must have.
	DefaultDifficulty = 18

	// ChallengeTTL is how long an issued challenge can be solved for.
	ChallengeTTL = 180 * time.Second

	// TokenTTL is how long a minted access token is valid for.
	TokenTTL = 300 * time.Second

	// RateWindow is the length of the per-origin rate limiting window.
	RateWindow = 10 * time.Second

	// RateLimit is the number of requests one origin may make per window.
	RateLimit = 50

	// APIPrefix is where the challenge API routes are mounted.
	APIPrefix = "/captcha/"

	// StaticPath is where the embedded client assets are mounted.
	StaticPath = "/static/"
)
