// Package compose turns a scored opportunity into an outreach email using a
// text generation model. The model is treated as unreliable: calls are
// retried, fenced by a circuit breaker, and when everything fails the caller
// gets ErrUnavailable rather than a half-written email.
package compose

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"jobscout/internal/logger"
	"jobscout/internal/opportunity"
	"jobscout/internal/profile"
	"jobscout/internal/utils"
)

//go:embed prompt.md
var promptTemplate string

// ErrUnavailable means composition failed after all retries, or the breaker
// is open. The opportunity should be skipped, not failed.
var ErrUnavailable = errors.New("composition unavailable")

// Email is a composed outreach message ready for dispatch.
type Email struct {
	Subject string
	Body    string
}

// Generator produces text for a prompt. The gemini subpackage provides the
// production implementation.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 2 * time.Second
	defaultCallTimeout  = 60 * time.Second
	defaultMaxLogLength = 200
)

var (
	subjectPattern = regexp.MustCompile(`(?s)<subject>\s*(.*?)\s*</subject>`)
	bodyPattern    = regexp.MustCompile(`(?s)<body>\s*(.*?)\s*</body>`)
)

type Composer struct {
	generator    Generator
	profile      *profile.Profile
	logger       *zap.Logger
	breaker      *gobreaker.CircuitBreaker[string]
	maxAttempts  int
	retryBackoff time.Duration
	callTimeout  time.Duration
	maxLogLen    int
}

type Option func(*Composer)

func WithMaxAttempts(n int) Option {
	return func(c *Composer) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithRetryBackoff(d time.Duration) Option {
	return func(c *Composer) {
		if d > 0 {
			c.retryBackoff = d
		}
	}
}

// WithCallTimeout bounds each individual generator call. The run-level
// context has no deadline of its own, so without this a hung model endpoint
// would stall the whole run.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Composer) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

func NewComposer(generator Generator, prof *profile.Profile, log *zap.Logger, opts ...Option) *Composer {
	c := &Composer{
		generator:    generator,
		profile:      prof,
		logger:       log,
		maxAttempts:  defaultMaxAttempts,
		retryBackoff: defaultRetryBackoff,
		callTimeout:  defaultCallTimeout,
		maxLogLen:    defaultMaxLogLength,
	}

	for _, opt := range opts {
		opt(c)
	}

	settings := gobreaker.Settings{
		Name:        "composer",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("composer breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	c.breaker = gobreaker.NewCircuitBreaker[string](settings)

	return c
}

// Compose builds the prompt for the opportunity and asks the generator for an
// email. Transient generator failures are retried with a fixed backoff; the
// backoff wait is cancellable through ctx.
func (c *Composer) Compose(ctx context.Context, opp *opportunity.Opportunity) (*Email, error) {
	prompt := c.buildPrompt(opp)

	c.logger.Debug("compose request",
		zap.String(logger.FieldOpportunity, opp.ID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, c.maxLogLen)),
	)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		raw, err := c.breaker.Execute(func() (string, error) {
			callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
			defer cancel()
			return c.generator.GenerateContent(callCtx, prompt)
		})
		if err == nil {
			email, parseErr := parseEmail(raw, c.fallbackSubject())
			if parseErr == nil {
				c.logger.Debug("compose response",
					zap.String(logger.FieldOpportunity, opp.ID),
					zap.String("subject", email.Subject),
					zap.Int("body_length", utf8.RuneCountInString(email.Body)),
				)
				return email, nil
			}
			err = parseErr
		}

		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("composer breaker open, giving up",
				zap.String(logger.FieldOpportunity, opp.ID))
			break
		}

		if attempt < c.maxAttempts {
			c.logger.Warn("compose attempt failed, retrying",
				zap.String(logger.FieldOpportunity, opp.ID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if waitErr := utils.WaitFor(ctx, c.retryBackoff); waitErr != nil {
				return nil, waitErr
			}
		}
	}

	c.logger.Warn("composition unavailable",
		zap.String(logger.FieldOpportunity, opp.ID),
		zap.Error(lastErr),
	)

	return nil, fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

func (c *Composer) buildPrompt(opp *opportunity.Opportunity) string {
	var prof strings.Builder
	fmt.Fprintf(&prof, "Name: %s\nEmail: %s\n", c.profile.Name, c.profile.Email)
	if len(c.profile.Links) > 0 {
		fmt.Fprintf(&prof, "Links: %s\n", strings.Join(c.profile.Links, ", "))
	}
	if c.profile.Context != "" {
		fmt.Fprintf(&prof, "\n%s\n", c.profile.Context)
	}

	var oppText strings.Builder
	if opp.Role != "" {
		fmt.Fprintf(&oppText, "Role: %s\n", opp.Role)
	}
	if opp.Company != "" {
		fmt.Fprintf(&oppText, "Company: %s\n", opp.Company)
	}
	if opp.Location != "" {
		fmt.Fprintf(&oppText, "Location: %s\n", opp.Location)
	}
	if opp.Salary != "" {
		fmt.Fprintf(&oppText, "Salary: %s\n", opp.Salary)
	}
	if len(opp.Links) > 0 {
		fmt.Fprintf(&oppText, "Link: %s\n", opp.Links[0])
	}
	fmt.Fprintf(&oppText, "\n%s\n", opp.Summary())

	prompt := strings.ReplaceAll(promptTemplate, "{{PROFILE}}", strings.TrimSpace(prof.String()))
	prompt = strings.ReplaceAll(prompt, "{{OPPORTUNITY}}", strings.TrimSpace(oppText.String()))

	return prompt
}

func (c *Composer) fallbackSubject() string {
	return fmt.Sprintf("Application – %s", c.profile.Name)
}

// parseEmail extracts the tagged subject and body from the model output. A
// missing subject falls back to the provided default; a missing or empty body
// is an error because sending a blank email is worse than skipping.
func parseEmail(raw, fallbackSubject string) (*Email, error) {
	subject := fallbackSubject
	if m := subjectPattern.FindStringSubmatch(raw); m != nil && strings.TrimSpace(m[1]) != "" {
		subject = strings.TrimSpace(m[1])
	}

	var body string
	if m := bodyPattern.FindStringSubmatch(raw); m != nil {
		body = strings.TrimSpace(m[1])
		if body == "" {
			return nil, errors.New("generator returned an empty body")
		}
	} else {
		// Untagged but non-empty output is usable as-is.
		body = strings.TrimSpace(subjectPattern.ReplaceAllString(raw, ""))
		if body == "" {
			return nil, errors.New("generator returned no usable body")
		}
	}

	return &Email{Subject: subject, Body: body}, nil
}
