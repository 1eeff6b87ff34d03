// Package botfilter is a stateless classifier that rejects obvious
// non-browser clients before any challenge is allocated. It is a cheap
// heuristic, not an authentication mechanism: everything it checks is
// client-controlled.
package botfilter

import (
	"net/http"
	"strings"
)

// automationIdentifiers are substrings that only show up in the user agents
// of scripting tools and automation frameworks.
var automationIdentifiers = []string{
	"wget", "curl", "python", "requests", "selenium", "chromedriver",
	"phantomjs", "headless", "puppet", "bot", "crawl", "spider",
	"scripted", "automated",
}

// requiredHeaders are sent by every interactive browser. A client missing
// any of them is not a browser.
var requiredHeaders = []string{
	"Accept",
	"Accept-Language",
	"Accept-Encoding",
}

// Check returns whether the request looks automated and, if so, which rule
// matched. The rule name is for logging only and must not be sent to the
// client.
func Check(r *http.Request) (bool, string) {
	ua := strings.ToLower(r.UserAgent())

	for _, id := range automationIdentifiers {
		if strings.Contains(ua, id) {
			return true, "user-agent/" + id
		}
	}

	for _, h := range requiredHeaders {
		if r.Header.Get(h) == "" {
			return true, "missing-header/" + strings.ToLower(h)
		}
	}

	return false, ""
}
