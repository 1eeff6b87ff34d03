// Package lib implements the captchify gateway: it issues short-lived proof
// of work challenges, scores client interaction telemetry, and mints signed
// access tokens for clients that look human enough.
package lib

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/uvensys/captchify/internal"
	"github.com/uvensys/captchify/lib/botfilter"
	"github.com/uvensys/captchify/lib/challenge"
	"github.com/uvensys/captchify/lib/pow"
	"github.com/uvensys/captchify/lib/ratelimit"
	"github.com/uvensys/captchify/lib/risk"
	"github.com/uvensys/captchify/lib/token"
)

var (
	challengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "captchify_challenges_issued",
		Help: "The total number of challenges issued",
	})

	challengesValidated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "captchify_challenges_validated",
		Help: "The total number of challenges validated and consumed",
	})

	failedValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "captchify_failed_validations",
		Help: "The total number of soft verification failures",
	}, []string{"cause"})

	rejectedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "captchify_rejected_requests",
		Help: "The total number of requests rejected before verification",
	}, []string{"cause"})

	tokensMinted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "captchify_tokens_minted",
		Help: "The total number of access tokens minted",
	})
)

type Server struct {
	mux      *http.ServeMux
	registry *challenge.Registry
	limiter  ratelimit.Limiter
	issuer   *token.Issuer
	opts     Options
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// InitResponse is the challenge handed to a client.
type InitResponse struct {
	ChallengeID string `json:"challenge_id"`
	Prefix      string `json:"prefix"`
	Difficulty  int    `json:"difficulty"`
	ExpiresIn   int    `json:"expires_in"`
}

// VerifyRequest is a client's claim that it solved a challenge. Everything
// in it is untrusted.
type VerifyRequest struct {
	ChallengeID string        `json:"challenge_id"`
	ClientNonce string        `json:"client_nonce"`
	Features    risk.Features `json:"features"`
	PuzzleOK    bool          `json:"puzzle_ok"`
}

// VerifyResponse reports the verification outcome. Token is present iff OK;
// Reason carries the single public failure explanation and never the
// internal rule names.
type VerifyResponse struct {
	OK     bool    `json:"ok"`
	Token  string  `json:"token,omitempty"`
	Risk   float64 `json:"risk"`
	Reason string  `json:"reason,omitempty"`
}

// Init handles GET /captcha/init: rate limit, bot filter, then allocate and
// return a fresh challenge.
func (s *Server) Init(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)
	ip := clientIP(r)

	if res := s.limiter.Admit(ip); !res.Allowed {
		rejectedRequests.WithLabelValues("ratelimit").Inc()
		lg.Debug("rate limited", "reset_after", res.ResetAfter)
		respondRateLimited(w, res)
		return
	}

	if automated, rule := botfilter.Check(r); automated {
		rejectedRequests.WithLabelValues("botfilter").Inc()
		lg.Info("bot filter rejected request", "rule", rule)
		respondError(w, http.StatusForbidden, "bots are not allowed")
		return
	}

	c, err := s.registry.Create(r.Context(), ip)
	if err != nil {
		lg.Error("can't create challenge", "err", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	challengesIssued.Inc()
	lg.Debug("issued challenge", "challenge_id", c.ID, "difficulty", c.Difficulty)

	respondJSON(w, http.StatusOK, InitResponse{
		ChallengeID: c.ID,
		Prefix:      c.Prefix,
		Difficulty:  c.Difficulty,
		ExpiresIn:   int(s.registry.TTL().Seconds()),
	})
}

// Verify handles POST /captcha/verify: rate limit, look up the challenge,
// check the proof of work, score the telemetry, and mint a token on
// acceptance.
func (s *Server) Verify(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)
	ip := clientIP(r)

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		lg.Debug("malformed verify body", "err", err)
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if res := s.limiter.Admit(ip); !res.Allowed {
		rejectedRequests.WithLabelValues("ratelimit").Inc()
		respondRateLimited(w, res)
		return
	}

	c, err := s.registry.Get(r.Context(), req.ChallengeID)
	if err != nil {
		s.respondChallengeError(w, lg, "get", err)
		return
	}

	achieved, solved, err := pow.Check(c.Prefix, req.ClientNonce, c.Difficulty)
	if err != nil {
		// the prefix came from our own store, so this can't happen
		lg.Error("can't check proof of work", "err", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !solved {
		// soft failure: the challenge stays open so the client can retry
		// with another nonce until the TTL runs out
		failedValidations.WithLabelValues("pow").Inc()
		lg.Debug("insufficient proof of work", "achieved", achieved, "required", c.Difficulty)
		respondJSON(w, http.StatusOK, VerifyResponse{
			OK:     false,
			Risk:   1.0,
			Reason: fmt.Sprintf("insufficient PoW: %d < %d", achieved, c.Difficulty),
		})
		return
	}

	score, reasons := risk.Score(req.Features)
	lg.Debug("scored interaction", "risk", score, "rules", reasons, "puzzle_ok", req.PuzzleOK)

	if score > risk.AllowThreshold && !req.PuzzleOK {
		failedValidations.WithLabelValues("risk").Inc()
		respondJSON(w, http.StatusOK, VerifyResponse{
			OK:     false,
			Risk:   score,
			Reason: "couldn't verify, solve puzzle",
		})
		return
	}

	// the check-and-set inside Consume is what makes double spending a
	// challenge impossible under concurrent verifies
	if err := s.registry.Consume(r.Context(), c.ID); err != nil {
		s.respondChallengeError(w, lg, "consume", err)
		return
	}

	tok, err := s.issuer.Mint(c.ID, ip)
	if err != nil {
		lg.Error("can't mint token", "err", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	challengesValidated.Inc()
	tokensMinted.Inc()
	lg.Info("challenge passed", "challenge_id", c.ID, "risk", score)

	respondJSON(w, http.StatusOK, VerifyResponse{
		OK:    true,
		Token: tok,
		Risk:  score,
	})
}

// respondChallengeError maps the challenge error taxonomy onto wire
// responses. Hard rejects are 400s; anything else is a bug or a store
// failure.
func (s *Server) respondChallengeError(w http.ResponseWriter, lg *slog.Logger, verb string, err error) {
	var public string

	switch {
	case errors.Is(err, challenge.ErrNotFound):
		public = "unknown challenge id"
	case errors.Is(err, challenge.ErrAlreadyUsed):
		public = "challenge id already solved/used"
	case errors.Is(err, challenge.ErrExpired):
		public = "challenge expired"
	default:
		lg.Error("challenge store failure", "verb", verb, "err", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	cerr := challenge.NewError(verb, public, err)
	lg.Debug("challenge rejected", "verb", verb, "err", err)
	respondError(w, cerr.StatusCode, cerr.PublicReason)
}
