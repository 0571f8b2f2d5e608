package classify_test

import (
	"reflect"
	"testing"
	"time"

	"jobscout/internal/classify"
	"jobscout/internal/ingest"
	"jobscout/internal/opportunity"
)

func message(text string) ingest.Message {
	return ingest.Message{
		Sender:    "Jane Doe",
		Timestamp: time.Date(2025, 8, 24, 10, 15, 0, 0, time.UTC),
		Text:      text,
	}
}

func TestClassifyKeywordMatch(t *testing.T) {
	c := classify.New(nil, nil)

	opp := c.Classify(message("We are hiring!\nRole: Software Engineer\nCompany: OpenAI\nLocation: Remote\nSalary: $120k"))
	if opp == nil {
		t.Fatal("expected a candidate")
	}
	if opp.Status != opportunity.StatusNew {
		t.Errorf("status = %s, want NEW", opp.Status)
	}
	if opp.Role != "Software Engineer" {
		t.Errorf("role = %q", opp.Role)
	}
	if opp.Company != "OpenAI" {
		t.Errorf("company = %q", opp.Company)
	}
	if opp.Location != "Remote" {
		t.Errorf("location = %q", opp.Location)
	}
	if opp.Salary != "$120k" {
		t.Errorf("salary = %q", opp.Salary)
	}
}

func TestClassifyRejectsChatter(t *testing.T) {
	c := classify.New(nil, nil)

	chatter := []string{
		"Let's catch up tomorrow!",
		"happy birthday!!",
		"did anyone watch the game last night?",
	}
	for _, text := range chatter {
		if opp := c.Classify(message(text)); opp != nil {
			t.Errorf("Classify(%q) = candidate, want nil", text)
		}
	}
}

func TestClassifyURLWithContactCue(t *testing.T) {
	c := classify.New(nil, nil)

	// No hiring keyword, but a link plus contact-soliciting language.
	opp := c.Classify(message("We need a Go dev, apply here: https://corp.io/join"))
	if opp == nil {
		t.Fatal("expected a candidate")
	}

	// A bare link without contact language is not enough.
	if opp := c.Classify(message("interesting read https://blog.corp.io/post")); opp != nil {
		t.Error("bare link should not be a candidate")
	}
}

func TestClassifyScenario(t *testing.T) {
	c := classify.New(nil, nil)

	opp := c.Classify(message("Hiring backend engineer, apply: https://example.com/job, contact: hr@example.com"))
	if opp == nil {
		t.Fatal("expected a candidate")
	}
	if !reflect.DeepEqual(opp.Links, []string{"https://example.com/job"}) {
		t.Errorf("links = %v", opp.Links)
	}
	if !reflect.DeepEqual(opp.Emails, []string{"hr@example.com"}) {
		t.Errorf("emails = %v", opp.Emails)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := classify.New(nil, nil)
	msg := message("Job opening: Data Analyst, email us at jobs@corp.io")

	a := c.Classify(msg)
	b := c.Classify(msg)
	if a == nil || b == nil {
		t.Fatal("expected candidates")
	}
	if a.ID != b.ID {
		t.Fatalf("same message produced different identities: %s vs %s", a.ID, b.ID)
	}
}

func TestExtractLinksDedupAndOrder(t *testing.T) {
	text := "see https://a.io/x and https://b.io/y, also https://a.io/x."
	got := classify.ExtractLinks(text)
	want := []string{"https://a.io/x", "https://b.io/y"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractLinks = %v, want %v", got, want)
	}
}

func TestExtractEmailsDedupAndOrder(t *testing.T) {
	text := "write hr@corp.io or jobs@corp.io, again hr@corp.io"
	got := classify.ExtractEmails(text)
	want := []string{"hr@corp.io", "jobs@corp.io"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractEmails = %v, want %v", got, want)
	}
}

func TestCustomKeywords(t *testing.T) {
	c := classify.New([]string{"freelance gig"}, nil)

	if opp := c.Classify(message("new freelance gig available")); opp == nil {
		t.Fatal("custom keyword should match")
	}
	if opp := c.Classify(message("we are hiring")); opp != nil {
		t.Fatal("default keywords should be replaced, not merged")
	}
}
