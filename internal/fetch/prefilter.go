package fetch

import (
	"net/url"
	"strings"
)

// DefaultPlaceholderPatterns match URLs people paste into chat messages as
// illustrations rather than real targets.
var DefaultPlaceholderPatterns = []string{
	"example.com",
	"example.org",
	"forms.gle/example",
	"company.com/apply",
}

// DefaultBlockedDomains are domains known to reject automated access without
// special authorization. Hitting them only burns extraction-service credits.
var DefaultBlockedDomains = []string{
	"linkedin.com",
	"x.com",
	"twitter.com",
	"facebook.com",
	"instagram.com",
}

// Prefilter rejects URLs before any strategy spends a network call on them.
type Prefilter struct {
	placeholders []string
	blocked      []string
}

// NewPrefilter builds a pre-filter. Empty slices fall back to the defaults;
// pass non-nil empty-element-free slices to disable a list explicitly.
func NewPrefilter(placeholders, blocked []string) *Prefilter {
	if placeholders == nil {
		placeholders = DefaultPlaceholderPatterns
	}
	if blocked == nil {
		blocked = DefaultBlockedDomains
	}
	return &Prefilter{placeholders: placeholders, blocked: blocked}
}

// Check validates the URL synchronously. The second return value is true
// when the URL is rejected and the Result carries the typed failure.
func (p *Prefilter) Check(raw string) (Result, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return failure("prefilter", FailureInvalidURL, "empty url"), true
	}

	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return failure("prefilter", FailureInvalidURL, "not an absolute http(s) url"), true
	}

	lower := strings.ToLower(raw)
	for _, pattern := range p.placeholders {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			return failure("prefilter", FailureInvalidURL, "placeholder url: "+pattern), true
		}
	}

	host := strings.ToLower(parsed.Hostname())
	for _, domain := range p.blocked {
		if domain == "" {
			continue
		}
		domain = strings.ToLower(domain)
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return failure("prefilter", FailureBlocked, "blocked domain: "+domain), true
		}
	}

	return Result{}, false
}
