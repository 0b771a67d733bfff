// Package bypass recognizes result pages that a search provider served as a
// block, challenge or rate-limit response instead of a listing.
package bypass

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/FranksOps/serpdiff/internal/storage"
)

// Detector examines a fetched page to determine if the provider blocked or
// challenged the request.
type Detector func(page *storage.Page) (detected bool, source string)

// DefaultDetectors returns the standard list of block detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectDuckDuckGo,
		detectGoogle,
		detectCloudflare,
		detectRateLimit,
	}
}

// Analyze runs the page through all provided detectors. It updates the page
// in place with the detection status and returns true if any detection triggered.
func Analyze(page *storage.Page, detectors []Detector) bool {
	if page == nil {
		return false
	}
	for _, d := range detectors {
		if detected, source := d(page); detected {
			page.Blocked = true
			page.BlockedBy = source
			return true
		}
	}
	page.Blocked = false
	page.BlockedBy = ""
	return false
}

func getHeader(headers map[string][]string, key string) string {
	if vals, ok := headers[key]; ok && len(vals) > 0 {
		return vals[0]
	}
	lowerKey := strings.ToLower(key)
	for k, vals := range headers {
		if strings.ToLower(k) == lowerKey && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

// detectDuckDuckGo looks for the anomaly challenge the html endpoint serves
// to suspected bots. It usually arrives with status 202 or 403.
func detectDuckDuckGo(page *storage.Page) (bool, string) {
	if bytes.Contains(page.Body, []byte("anomaly-modal")) ||
		bytes.Contains(page.Body, []byte("Unfortunately, bots use DuckDuckGo too")) ||
		bytes.Contains(page.Body, []byte("challenge-form")) {
		return true, "DuckDuckGo"
	}
	return false, ""
}

// detectGoogle looks for the "unusual traffic" interstitial and /sorry/
// redirect target.
func detectGoogle(page *storage.Page) (bool, string) {
	if strings.Contains(page.URL, "/sorry/") {
		return true, "Google"
	}
	if bytes.Contains(page.Body, []byte("Our systems have detected unusual traffic")) ||
		bytes.Contains(page.Body, []byte("g-recaptcha")) {
		return true, "Google"
	}
	return false, ""
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(page *storage.Page) (bool, string) {
	if page.StatusCode != http.StatusForbidden && page.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(getHeader(page.Headers, "Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	if bytes.Contains(page.Body, []byte("cf-browser-verification")) ||
		bytes.Contains(page.Body, []byte("cf-turnstile")) ||
		bytes.Contains(page.Body, []byte("Attention Required! | Cloudflare")) {
		return true, "Cloudflare"
	}
	return false, ""
}

// detectRateLimit flags plain 429 responses from any provider.
func detectRateLimit(page *storage.Page) (bool, string) {
	if page.StatusCode == http.StatusTooManyRequests {
		return true, "RateLimit"
	}
	return false, ""
}
