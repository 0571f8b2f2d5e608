package opportunity

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Skip reasons recorded when an opportunity moves to SKIPPED.
const (
	SkipReasonComposition = "composition unavailable"
	SkipReasonNoRecipient = "no recipient"
)

// Opportunity is a candidate job posting extracted from a single chat
// message, tracked through enrichment, scoring and outreach.
type Opportunity struct {
	// ID is the stable natural key derived from sender, timestamp and
	// message text. Immutable after creation.
	ID        string
	Sender    string
	Timestamp time.Time
	Message   string

	// Links and Emails are extracted from the message text, deduplicated,
	// in first-seen order.
	Links  []string
	Emails []string

	// Structured fields parsed from "key: value" lines, best effort.
	Role     string
	Company  string
	Location string
	Salary   string

	// PageText is the fetched page content for the first link that
	// resolved, truncated. Empty when every fetch failed.
	PageText string

	// Score is the relevance score in [0,1]. Meaningful once the
	// opportunity reached SCORED.
	Score float64

	Status     Status
	Sent       bool
	SentAt     *time.Time
	SkipReason string
	LastError  string
}

// NaturalKey derives the stable identity of a chat message. The same
// (sender, timestamp, text) triple always maps to the same key, which is how
// repeated runs over an overlapping chat export converge on the same
// opportunity rows.
func NaturalKey(sender string, ts time.Time, text string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s", sender, ts.Unix(), text)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// FirstEmail returns the first extracted recipient address, or "".
func (o *Opportunity) FirstEmail() string {
	if len(o.Emails) == 0 {
		return ""
	}
	return o.Emails[0]
}

// Summary returns the text used for scoring and composition: fetched page
// text when available, otherwise the raw message.
func (o *Opportunity) Summary() string {
	if o.PageText != "" {
		return o.PageText
	}
	return o.Message
}
