package lib

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/uvensys/captchify/lib/ratelimit"
)

// clientIP resolves the originating network address. The X-Real-Ip header is
// filled in by the middleware chain in cmd; if it is somehow absent, fall
// back to the socket peer.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("can't encode response", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: message})
}

func respondRateLimited(w http.ResponseWriter, res ratelimit.Result) {
	if secs := int(math.Ceil(res.ResetAfter.Seconds())); secs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	respondError(w, http.StatusTooManyRequests, "too many requests")
}
