package parse

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// skippedHrefPrefixes are hrefs that never point at a crawlable page
var skippedHrefPrefixes = []string{"mailto:", "tel:", "javascript:", "#"}

// NormalizeTarget turns user input into the canonical absolute URL a scan starts from.
// Bare hosts get an https:// prefix, the fragment is dropped and an empty path becomes "/".
// The scheme is lowercased; host case is preserved.
func NormalizeTarget(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty URL", utils.ErrInvalidInput)
	}
	if emailPattern.MatchString(s) {
		return "", fmt.Errorf("%w: looks like an email address, not a URL", utils.ErrInvalidInput)
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", utils.ErrInvalidInput, u.Scheme)
	}
	if u.Host == "" || u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host", utils.ErrInvalidInput)
	}

	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}
	return u.String(), nil
}

// HostOf returns the network location (host[:port]) of an absolute URL, or "" if it cannot be parsed
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// ResolveLink resolves an href found on base into an absolute, fragment-free URL.
// Returns false for empty hrefs, non-navigational schemes and pure fragments.
func ResolveLink(base *url.URL, href string) (string, bool) {
	h := strings.TrimSpace(href)
	if h == "" || base == nil {
		return "", false
	}
	lower := strings.ToLower(h)
	for _, prefix := range skippedHrefPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return "", false
		}
	}

	ref, err := url.Parse(h)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs.String(), true
}

// SameHost reports whether two absolute URLs share the same network location (host[:port])
func SameHost(a, b string) bool {
	ha, hb := HostOf(a), HostOf(b)
	return ha != "" && ha == hb
}
