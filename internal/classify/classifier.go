// Package classify decides whether a chat message plausibly describes a job
// opportunity and extracts its URLs, contact addresses and structured fields.
// It is pure text analysis: no network access, no persistence.
package classify

import (
	"regexp"
	"strings"

	"jobscout/internal/ingest"
	"jobscout/internal/opportunity"
)

// DefaultKeywords are hiring-intent signals matched case-insensitively
// anywhere in the message.
var DefaultKeywords = []string{
	"hiring", "job", "vacancy", "opening", "position",
	"career", "opportunity", "internship",
}

// DefaultContactCues mark contact-soliciting language. A message with a URL
// plus one of these is a candidate even without a hiring keyword.
var DefaultContactCues = []string{
	"apply", "contact", "reach out", "send your", "dm me", "email us", "email me",
}

var (
	linkPattern  = regexp.MustCompile(`(?i)https?://\S+`)
	emailPattern = regexp.MustCompile(`(?i)[\w.+-]+@[\w.-]+\.\w+`)

	rolePattern     = regexp.MustCompile(`(?im)(?:role|position|job)\s*[:\-]\s*(.+)$`)
	companyPattern  = regexp.MustCompile(`(?im)(?:company|org|organization)\s*[:\-]\s*(.+)$`)
	locationPattern = regexp.MustCompile(`(?im)(?:location|based in)\s*[:\-]\s*(.+)$`)
	salaryPattern   = regexp.MustCompile(`(?im)(?:salary|ctc|stipend)\s*[:\-]\s*(.+)$`)
)

// Classifier holds the configured signal sets.
type Classifier struct {
	keywords    []string
	contactCues []string
}

// New builds a classifier. Empty slices fall back to the defaults.
func New(keywords, contactCues []string) *Classifier {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	if len(contactCues) == 0 {
		contactCues = DefaultContactCues
	}
	return &Classifier{keywords: lowered(keywords), contactCues: lowered(contactCues)}
}

// Classify returns a fresh Opportunity in status NEW when the message looks
// like a job posting, or nil. Persisting the result is the caller's job.
func (c *Classifier) Classify(msg ingest.Message) *opportunity.Opportunity {
	links := ExtractLinks(msg.Text)

	if !c.hasKeyword(msg.Text) && !(len(links) > 0 && c.hasContactCue(msg.Text)) {
		return nil
	}

	return &opportunity.Opportunity{
		ID:        opportunity.NaturalKey(msg.Sender, msg.Timestamp, msg.Text),
		Sender:    msg.Sender,
		Timestamp: msg.Timestamp,
		Message:   strings.TrimSpace(msg.Text),
		Links:     links,
		Emails:    ExtractEmails(msg.Text),
		Role:      extractField(rolePattern, msg.Text),
		Company:   extractField(companyPattern, msg.Text),
		Location:  extractField(locationPattern, msg.Text),
		Salary:    extractField(salaryPattern, msg.Text),
		Status:    opportunity.StatusNew,
	}
}

func (c *Classifier) hasKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range c.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (c *Classifier) hasContactCue(text string) bool {
	lower := strings.ToLower(text)
	for _, cue := range c.contactCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// ExtractLinks returns the URLs found in text, deduplicated in first-seen
// order, with trailing punctuation trimmed.
func ExtractLinks(text string) []string {
	var links []string
	for _, raw := range linkPattern.FindAllString(text, -1) {
		link := strings.TrimRight(raw, ".,;:!?)]}'\"")
		links = appendUnique(links, link)
	}
	return links
}

// ExtractEmails returns the addresses found in text, deduplicated in
// first-seen order.
func ExtractEmails(text string) []string {
	var emails []string
	for _, raw := range emailPattern.FindAllString(text, -1) {
		emails = appendUnique(emails, strings.TrimRight(raw, "."))
	}
	return emails
}

func extractField(pattern *regexp.Regexp, text string) string {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func appendUnique(items []string, item string) []string {
	if item == "" {
		return items
	}
	for _, existing := range items {
		if existing == item {
			return items
		}
	}
	return append(items, item)
}

func lowered(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
