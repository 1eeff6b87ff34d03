package botfilter

import (
	"net/http"
	"strings"
	"testing"
)

func mkRequest(t *testing.T, ua string, headers ...string) *http.Request {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "/captcha/init", nil)
	if err != nil {
		t.Fatal(err)
	}

	req.Header.Set("User-Agent", ua)
	for _, h := range headers {
		req.Header.Set(h, "whatever")
	}

	return req
}

const browserUA = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

var browserHeaders = []string{"Accept", "Accept-Language", "Accept-Encoding"}

func TestCheck(t *testing.T) {
	for _, tt := range []struct {
		name string
		req  *http.Request
		want bool
	}{
		{"browser", mkRequest(t, browserUA, browserHeaders...), false},
		{"curl", mkRequest(t, "curl/8.5.0", browserHeaders...), true},
		{"python requests", mkRequest(t, "python-requests/2.31", browserHeaders...), true},
		{"headless chrome", mkRequest(t, "Mozilla/5.0 HeadlessChrome/120.0", browserHeaders...), true},
		{"uppercase tool name", mkRequest(t, "WGET/1.21", browserHeaders...), true},
		{"crawler", mkRequest(t, "Googlebot/2.1 (+http://www.google.com/bot.html)", browserHeaders...), true},
		{"no accept", mkRequest(t, browserUA, "Accept-Language", "Accept-Encoding"), true},
		{"no accept-language", mkRequest(t, browserUA, "Accept", "Accept-Encoding"), true},
		{"no accept-encoding", mkRequest(t, browserUA, "Accept", "Accept-Language"), true},
		{"no headers at all", mkRequest(t, browserUA), true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, rule := Check(tt.req)
			if got != tt.want {
				t.Errorf("Check: wanted %v, got %v (rule %q)", tt.want, got, rule)
			}
			if got && rule == "" {
				t.Error("automated verdicts must name the matched rule")
			}
		})
	}
}

func TestCheckIsDeterministic(t *testing.T) {
	req := mkRequest(t, "curl/8.5.0", browserHeaders...)

	first, rule := Check(req)
	for range 10 {
		got, gotRule := Check(req)
		if got != first || gotRule != rule {
			t.Fatal("verdict changed between identical calls")
		}
	}
}

func TestRuleNamesStayInternal(t *testing.T) {
	// rule names leak threshold internals, so they intentionally look
	// nothing like user-facing text
	_, rule := Check(mkRequest(t, "curl/8.5.0", browserHeaders...))
	if !strings.Contains(rule, "/") {
		t.Errorf("rule %q should be namespaced", rule)
	}
}
