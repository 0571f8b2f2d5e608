package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"jobscout/internal/opportunity"
)

func newOpportunity(id string) *opportunity.Opportunity {
	return &opportunity.Opportunity{
		ID:        id,
		Sender:    "Jane Doe",
		Timestamp: time.Date(2025, 8, 24, 10, 15, 0, 0, time.UTC),
		Message:   "Hiring for Backend Dev",
		Status:    opportunity.StatusNew,
	}
}

func TestMemoryCreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	created, err := mem.CreateIfAbsent(ctx, newOpportunity("a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected first insert to create")
	}

	created, err = mem.CreateIfAbsent(ctx, newOpportunity("a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("expected duplicate insert to be a no-op")
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	if _, err := mem.CreateIfAbsent(ctx, newOpportunity("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := mem.Get(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got.Message = "mutated"

	again, err := mem.Get(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Message != "Hiring for Backend Dev" {
		t.Fatalf("store row was mutated through a returned copy: %q", again.Message)
	}
}

func TestMemoryRoundTripsCommaURLs(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	opp := newOpportunity("a")
	opp.Links = []string{"https://corp.io/jobs?tags=go,backend"}
	opp.Emails = []string{"hr@corp.io"}

	if _, err := mem.CreateIfAbsent(ctx, opp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := mem.Get(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Links) != 1 || got.Links[0] != "https://corp.io/jobs?tags=go,backend" {
		t.Fatalf("link with a comma did not survive the round trip: %v", got.Links)
	}
}

func TestTextArrayCoercesNil(t *testing.T) {
	if got := textArray(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected an empty non-nil slice, got %#v", got)
	}
	if got := textArray([]string{"a", "b"}); len(got) != 2 {
		t.Fatalf("unexpected coercion of a populated slice: %v", got)
	}
}

func TestMemoryGetNotFound(t *testing.T) {
	mem := NewMemory()

	if _, err := mem.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryUpdate(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	if _, err := mem.CreateIfAbsent(ctx, newOpportunity("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	enriched := StatusDiff(opportunity.StatusEnriched)
	enriched.PageText = String("Backend Engineer wanted")
	if err := mem.Update(ctx, "a", enriched); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	scored := StatusDiff(opportunity.StatusScored)
	scored.Score = Float(0.75)
	if err := mem.Update(ctx, "a", scored); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := mem.Get(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != opportunity.StatusScored {
		t.Fatalf("expected status %s, got %s", opportunity.StatusScored, got.Status)
	}
	if got.Score != 0.75 {
		t.Fatalf("expected score 0.75, got %v", got.Score)
	}
	if got.PageText != "Backend Engineer wanted" {
		t.Fatalf("unexpected page text: %q", got.PageText)
	}
	if got.Message != "Hiring for Backend Dev" {
		t.Fatal("untouched field changed")
	}
}

func TestMemoryUpdateRejectsBackwardTransition(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	if _, err := mem.CreateIfAbsent(ctx, newOpportunity("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mem.MarkSent(ctx, "a", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := mem.Update(ctx, "a", StatusDiff(opportunity.StatusNew))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	got, err := mem.Get(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != opportunity.StatusSent || !got.Sent {
		t.Fatalf("sent row was rewritten: status=%s sent=%v", got.Status, got.Sent)
	}
}

func TestMemoryUpdateSkipsForward(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	if _, err := mem.CreateIfAbsent(ctx, newOpportunity("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	skip := StatusDiff(opportunity.StatusSkipped)
	skip.SkipReason = String("no recipient address")
	if err := mem.Update(ctx, "a", skip); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A skipped row reopens at the scoring boundary, clearing the reason.
	reopen := StatusDiff(opportunity.StatusScored)
	reopen.SkipReason = String("")
	if err := mem.Update(ctx, "a", reopen); err != nil {
		t.Fatalf("reopening a skipped row must be allowed: %v", err)
	}

	got, err := mem.Get(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != opportunity.StatusScored || got.SkipReason != "" {
		t.Fatalf("unexpected reopened row: status=%s reason=%q", got.Status, got.SkipReason)
	}
}

func TestAllowedSources(t *testing.T) {
	got := allowedSources(opportunity.StatusScored)

	want := map[string]bool{
		string(opportunity.StatusEnriched): true,
		string(opportunity.StatusSkipped):  true,
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected sources for SCORED: %v", got)
	}
	for _, s := range got {
		if !want[s] {
			t.Fatalf("unexpected source %q for SCORED", s)
		}
	}

	if got := allowedSources(opportunity.StatusNew); len(got) != 0 {
		t.Fatalf("nothing may move back to NEW, got %v", got)
	}
}

func TestMemoryUpdateNotFound(t *testing.T) {
	mem := NewMemory()

	if err := mem.Update(context.Background(), "missing", StatusDiff(opportunity.StatusFailed)); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryMarkSent(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	if _, err := mem.CreateIfAbsent(ctx, newOpportunity("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent, err := mem.IsSent(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent {
		t.Fatal("expected fresh row to be unsent")
	}

	at := time.Date(2025, 8, 24, 12, 0, 0, 0, time.UTC)
	if err := mem.MarkSent(ctx, "a", at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent, err = mem.IsSent(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sent {
		t.Fatal("expected row to be sent")
	}

	got, err := mem.Get(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != opportunity.StatusSent {
		t.Fatalf("expected status %s, got %s", opportunity.StatusSent, got.Status)
	}
	if got.SentAt == nil || !got.SentAt.Equal(at) {
		t.Fatalf("unexpected sent_at: %v", got.SentAt)
	}
}

func TestMemoryIsSentUnknownID(t *testing.T) {
	mem := NewMemory()

	sent, err := mem.IsSent(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent {
		t.Fatal("unknown id must not report sent")
	}
}
