// Package fetch resolves opportunity URLs to extracted page text through an
// ordered chain of strategies. A failing URL is never a Go error: every
// outcome is a Result value, typed so callers can tell a blocked domain from
// a transport hiccup.
package fetch

import (
	"context"

	"go.uber.org/zap"
)

// FailureKind classifies why a fetch produced no text.
type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureInvalidURL  FailureKind = "invalid_url"
	FailureBlocked     FailureKind = "blocked_target"
	FailureTransport   FailureKind = "transport_error"
	FailureRateLimited FailureKind = "rate_limited"
	FailureUnsupported FailureKind = "unsupported"
)

// Result is the outcome of fetching one URL. It is transient: the pipeline
// folds it into the opportunity's page text or last error and drops it.
type Result struct {
	Text     string
	Failure  FailureKind
	Detail   string
	Strategy string
}

// OK reports whether the fetch produced text.
func (r Result) OK() bool { return r.Failure == FailureNone }

func failure(strategy string, kind FailureKind, detail string) Result {
	return Result{Strategy: strategy, Failure: kind, Detail: detail}
}

// Strategy is one way of retrieving page text for a URL. Strategies are
// tried in a fixed order with early exit on the first success.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, url string) Result
}

// Fetcher runs the pre-filter and then the configured strategy chain.
type Fetcher struct {
	prefilter  *Prefilter
	strategies []Strategy
	maxChars   int
	logger     *zap.Logger
}

const defaultMaxChars = 5000

// New builds a fetcher. The pre-filter is structurally mandatory: it always
// runs before any strategy, so a blocked or placeholder URL costs zero
// network calls.
func New(prefilter *Prefilter, strategies []Strategy, maxChars int, log *zap.Logger) *Fetcher {
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{
		prefilter:  prefilter,
		strategies: strategies,
		maxChars:   maxChars,
		logger:     log,
	}
}

// Fetch resolves one URL. The returned Result is a success with truncated
// text, or the failure from the last strategy tried.
func (f *Fetcher) Fetch(ctx context.Context, url string) Result {
	if res, rejected := f.prefilter.Check(url); rejected {
		f.logger.Info("url rejected before any network call",
			zap.String("url", url),
			zap.String("reason", string(res.Failure)),
			zap.String("detail", res.Detail),
		)
		return res
	}

	last := failure("", FailureUnsupported, "no fetch strategies configured")
	for _, s := range f.strategies {
		res := s.Fetch(ctx, url)
		if res.OK() {
			res.Text = truncate(res.Text, f.maxChars)
			f.logger.Debug("fetch succeeded",
				zap.String("url", url),
				zap.String("strategy", s.Name()),
				zap.Int("chars", len(res.Text)),
			)
			return res
		}

		f.logger.Debug("fetch strategy failed, falling through",
			zap.String("url", url),
			zap.String("strategy", s.Name()),
			zap.String("reason", string(res.Failure)),
			zap.String("detail", res.Detail),
		)
		last = res
	}

	return last
}

// truncate bounds page text to limit runes to cap downstream LLM token cost.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
