package compose

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"jobscout/internal/opportunity"
	"jobscout/internal/profile"
)

type stubGenerator struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	idx := s.calls
	s.calls++
	s.prompts = append(s.prompts, prompt)

	var err error
	if idx < len(s.errs) {
		err = s.errs[idx]
	}
	var resp string
	if idx < len(s.responses) {
		resp = s.responses[idx]
	}

	return resp, err
}

func testProfile() *profile.Profile {
	return &profile.Profile{
		Name:    "Jane Doe",
		Email:   "jane@example.com",
		Context: "Backend engineer, 5 years of Go.",
	}
}

func testOpportunity() *opportunity.Opportunity {
	return &opportunity.Opportunity{
		ID:      "opp-1",
		Message: "Hiring for Backend Dev",
		Role:    "Backend Developer",
		Company: "Acme",
	}
}

func newTestComposer(gen Generator) *Composer {
	return NewComposer(gen, testProfile(), zap.NewNop(),
		WithMaxAttempts(3), WithRetryBackoff(time.Millisecond))
}

func TestComposeParsesTaggedOutput(t *testing.T) {
	gen := &stubGenerator{responses: []string{
		"<subject>Backend Developer application</subject>\n<body>Hello Acme,\nI would love to apply.</body>",
	}}

	email, err := newTestComposer(gen).Compose(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email.Subject != "Backend Developer application" {
		t.Fatalf("unexpected subject: %q", email.Subject)
	}
	if email.Body != "Hello Acme,\nI would love to apply." {
		t.Fatalf("unexpected body: %q", email.Body)
	}
}

func TestComposePromptIncludesProfileAndOpportunity(t *testing.T) {
	gen := &stubGenerator{responses: []string{"<subject>s</subject><body>b</body>"}}

	if _, err := newTestComposer(gen).Compose(context.Background(), testOpportunity()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prompt := gen.prompts[0]
	for _, want := range []string{"Jane Doe", "Backend engineer, 5 years of Go.", "Backend Developer", "Acme", "Hiring for Backend Dev"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestComposeFallbackSubject(t *testing.T) {
	gen := &stubGenerator{responses: []string{"<body>Hello, I am applying.</body>"}}

	email, err := newTestComposer(gen).Compose(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email.Subject != "Application – Jane Doe" {
		t.Fatalf("unexpected fallback subject: %q", email.Subject)
	}
}

func TestComposeUntaggedOutputUsedAsBody(t *testing.T) {
	gen := &stubGenerator{responses: []string{"Hello, I am applying for the role."}}

	email, err := newTestComposer(gen).Compose(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email.Body != "Hello, I am applying for the role." {
		t.Fatalf("unexpected body: %q", email.Body)
	}
}

func TestComposeRetriesThenSucceeds(t *testing.T) {
	gen := &stubGenerator{
		errs:      []error{errors.New("transient"), nil},
		responses: []string{"", "<subject>s</subject><body>b</body>"},
	}

	email, err := newTestComposer(gen).Compose(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email.Body != "b" {
		t.Fatalf("unexpected body: %q", email.Body)
	}
	if gen.calls != 2 {
		t.Fatalf("expected 2 generator calls, got %d", gen.calls)
	}
}

func TestComposeUnavailableAfterRetries(t *testing.T) {
	boom := errors.New("model down")
	gen := &stubGenerator{errs: []error{boom, boom, boom}}

	_, err := newTestComposer(gen).Compose(context.Background(), testOpportunity())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if gen.calls != 3 {
		t.Fatalf("expected 3 generator calls, got %d", gen.calls)
	}
}

func TestComposeEmptyBodyIsUnavailable(t *testing.T) {
	gen := &stubGenerator{responses: []string{
		"<subject>s</subject><body></body>",
		"<subject>s</subject><body></body>",
		"<subject>s</subject><body></body>",
	}}

	_, err := newTestComposer(gen).Compose(context.Background(), testOpportunity())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

// hangingGenerator blocks until the per-call context expires, like a model
// endpoint that accepts the request and never answers.
type hangingGenerator struct {
	calls int
}

func (h *hangingGenerator) GenerateContent(ctx context.Context, _ string) (string, error) {
	h.calls++
	<-ctx.Done()
	return "", ctx.Err()
}

func TestComposeCallTimeoutBoundsHungGenerator(t *testing.T) {
	gen := &hangingGenerator{}
	c := NewComposer(gen, testProfile(), zap.NewNop(),
		WithMaxAttempts(1), WithCallTimeout(10*time.Millisecond))

	done := make(chan struct{})
	var err error
	go func() {
		_, err = c.Compose(context.Background(), testOpportunity())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("compose never returned from a hung generator")
	}

	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the per-call deadline in the chain, got %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected a single generator call, got %d", gen.calls)
	}
}

func TestComposeContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &stubGenerator{errs: []error{errors.New("transient")}}
	c := NewComposer(gen, testProfile(), zap.NewNop(),
		WithMaxAttempts(2), WithRetryBackoff(time.Minute))

	_, err := c.Compose(ctx, testOpportunity())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected a single generator call, got %d", gen.calls)
	}
}
