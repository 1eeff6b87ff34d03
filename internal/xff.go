package internal

import (
	"net"
	"net/http"

	"github.com/sebest/xff"
)

func setXRealIPFromRemoteAddr(r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	r.Header.Set("X-Real-Ip", host)
}

// RemoteXRealIP overrides the X-Real-Ip header with the socket peer address.
// Useful when captchify is exposed directly instead of behind a load
// balancer, and prevents clients from spoofing their origin.
func RemoteXRealIP(useRemoteAddress bool, next http.Handler) http.Handler {
	if !useRemoteAddress {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setXRealIPFromRemoteAddr(r)
		next.ServeHTTP(w, r)
	})
}

// XForwardedForToXRealIP fills in the X-Real-Ip header from the
// X-Forwarded-For chain when an upstream proxy did not set it.
func XForwardedForToXRealIP(next http.Handler) http.Handler {
	xffmw, err := xff.Default()
	if err != nil {
		// xff.Default only fails on invalid options, and we pass none
		panic(err)
	}

	return xffmw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Real-Ip") == "" {
			setXRealIPFromRemoteAddr(r)
		}
		next.ServeHTTP(w, r)
	}))
}
