// Package pipeline orchestrates a full run: classify chat messages, enrich
// the resulting opportunities over the network, score, compose and dispatch.
// Each opportunity is isolated: a failure, or even a panic, inside one never
// stops the rest of the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"jobscout/internal/autofill"
	"jobscout/internal/compose"
	"jobscout/internal/fetch"
	"jobscout/internal/ingest"
	"jobscout/internal/logger"
	"jobscout/internal/opportunity"
	"jobscout/internal/outreach"
	"jobscout/internal/profile"
	"jobscout/internal/store"
)

type Classifier interface {
	Classify(msg ingest.Message) *opportunity.Opportunity
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) fetch.Result
}

type Scorer interface {
	Score(candidateText, profileContext string) float64
}

type Composer interface {
	Compose(ctx context.Context, opp *opportunity.Opportunity) (*compose.Email, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, opp *opportunity.Opportunity, email *compose.Email) (outreach.Outcome, error)
}

type Filler interface {
	Fill(ctx context.Context, formURL string) bool
}

// Deps wires a pipeline together. Filler is optional; everything else is
// required.
type Deps struct {
	Store      store.Store
	Classifier Classifier
	Fetcher    Fetcher
	Scorer     Scorer
	Composer   Composer
	Dispatcher Dispatcher
	Filler     Filler
	Profile    *profile.Profile
	Logger     *zap.Logger

	// DryRun stops every opportunity after scoring: no composition, no
	// SMTP, no form submissions, no status past SCORED.
	DryRun bool
}

type Pipeline struct {
	deps Deps
}

func New(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("pipeline requires a store")
	case deps.Classifier == nil:
		return nil, errors.New("pipeline requires a classifier")
	case deps.Fetcher == nil:
		return nil, errors.New("pipeline requires a fetcher")
	case deps.Scorer == nil:
		return nil, errors.New("pipeline requires a scorer")
	case deps.Profile == nil:
		return nil, errors.New("pipeline requires a profile")
	case deps.Logger == nil:
		return nil, errors.New("pipeline requires a logger")
	}
	if !deps.DryRun && (deps.Composer == nil || deps.Dispatcher == nil) {
		return nil, errors.New("pipeline requires a composer and dispatcher unless running dry")
	}

	return &Pipeline{deps: deps}, nil
}

// Summary aggregates what a run did.
type Summary struct {
	Messages      int
	Opportunities int
	Created       int
	Sent          int
	AlreadySent   int
	Skipped       int
	Failed        int
	FormsFilled   int
}

// Run processes a batch of chat messages end to end. The returned error is
// only for run-fatal conditions (context cancellation, store unreachable on
// ingest); per-opportunity failures are absorbed into the summary.
func (p *Pipeline) Run(ctx context.Context, messages []ingest.Message) (*Summary, error) {
	summary := &Summary{Messages: len(messages)}

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		opp := p.deps.Classifier.Classify(msg)
		if opp == nil {
			continue
		}
		summary.Opportunities++

		created, err := p.deps.Store.CreateIfAbsent(ctx, opp)
		if err != nil {
			return summary, fmt.Errorf("store opportunity: %w", err)
		}
		if created {
			summary.Created++
		}

		p.processOne(ctx, opp.ID, summary)
	}

	p.deps.Logger.Info("pipeline run finished",
		zap.Int("messages", summary.Messages),
		zap.Int("opportunities", summary.Opportunities),
		zap.Int("created", summary.Created),
		zap.Int("sent", summary.Sent),
		zap.Int("already_sent", summary.AlreadySent),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("forms_filled", summary.FormsFilled),
	)

	return summary, ctx.Err()
}

// processOne advances a single opportunity as far as it can go. The deferred
// recover is the per-opportunity failure boundary: a panic marks the row
// FAILED and the run moves on.
func (p *Pipeline) processOne(ctx context.Context, id string, summary *Summary) {
	log := logger.WithFields(p.deps.Logger, logger.OpportunityFields(id, "")...)

	defer func() {
		if r := recover(); r != nil {
			summary.Failed++
			log.Error("opportunity processing panicked", zap.Any("panic", r))
			p.markFailed(ctx, id, fmt.Sprintf("panic: %v", r), log)
		}
	}()

	opp, err := p.deps.Store.Get(ctx, id)
	if err != nil {
		summary.Failed++
		log.Error("load opportunity", zap.Error(err))
		return
	}

	if opp.Sent || opp.Status == opportunity.StatusSent {
		summary.AlreadySent++
		log.Debug("already sent, not re-entering")
		return
	}
	if !opportunity.Resumable(opp.Status) {
		log.Debug("not resumable", zap.String("status", string(opp.Status)))
		return
	}

	// A row skipped by an earlier run re-enters at the scoring boundary:
	// its enrichment and score are already stored, only the skipped stage
	// is retried. The old skip reason is cleared so a row that goes on to
	// SENT does not keep carrying it.
	if opp.Status == opportunity.StatusSkipped {
		diff := store.StatusDiff(opportunity.StatusScored)
		diff.SkipReason = store.String("")
		if err := p.deps.Store.Update(ctx, opp.ID, diff); err != nil {
			summary.Failed++
			log.Error("reopen skipped opportunity", zap.Error(err))
			return
		}
		opp.Status = opportunity.StatusScored
		opp.SkipReason = ""
	}

	if opp.Status == opportunity.StatusNew {
		if err := p.enrich(ctx, opp, log); err != nil {
			summary.Failed++
			return
		}
	}

	if opp.Status == opportunity.StatusEnriched {
		if err := p.score(ctx, opp, log); err != nil {
			summary.Failed++
			return
		}
	}

	if p.deps.DryRun {
		log.Info("dry run, stopping after scoring",
			zap.Float64("score", opp.Score))
		return
	}

	if opp.Status == opportunity.StatusScored || opp.Status == opportunity.StatusComposed {
		done := p.composeAndDispatch(ctx, opp, summary, log)
		if done && p.deps.Filler != nil {
			p.tryForms(ctx, opp, summary, log)
		}
	}
}

// enrich fetches the linked pages, first success wins. A message without
// links, or whose links all fail, still advances: the pipeline then works
// from the chat message text alone.
func (p *Pipeline) enrich(ctx context.Context, opp *opportunity.Opportunity, log *zap.Logger) error {
	var pageText string
	for _, link := range opp.Links {
		res := p.deps.Fetcher.Fetch(ctx, link)
		if res.OK() {
			pageText = res.Text
			log.Debug("page fetched",
				zap.String(logger.FieldURL, link),
				zap.String("strategy", res.Strategy))
			break
		}
		log.Debug("page fetch failed",
			zap.String(logger.FieldURL, link),
			zap.String("failure", string(res.Failure)),
			zap.String("detail", res.Detail))
	}

	diff := store.StatusDiff(opportunity.StatusEnriched)
	diff.PageText = store.String(pageText)
	if err := p.deps.Store.Update(ctx, opp.ID, diff); err != nil {
		log.Error("record enrichment", zap.Error(err))
		return err
	}

	opp.PageText = pageText
	opp.Status = opportunity.StatusEnriched

	return nil
}

func (p *Pipeline) score(ctx context.Context, opp *opportunity.Opportunity, log *zap.Logger) error {
	score := p.deps.Scorer.Score(opp.Summary(), p.deps.Profile.Context)

	diff := store.StatusDiff(opportunity.StatusScored)
	diff.Score = store.Float(score)
	if err := p.deps.Store.Update(ctx, opp.ID, diff); err != nil {
		log.Error("record score", zap.Error(err))
		return err
	}

	opp.Score = score
	opp.Status = opportunity.StatusScored

	log.Info("opportunity scored", zap.Float64("score", score))

	return nil
}

// composeAndDispatch runs the outreach tail. It returns true when an email
// actually went out.
func (p *Pipeline) composeAndDispatch(ctx context.Context, opp *opportunity.Opportunity, summary *Summary, log *zap.Logger) bool {
	if opp.FirstEmail() == "" {
		summary.Skipped++
		p.skip(ctx, opp, opportunity.SkipReasonNoRecipient, log)
		return false
	}

	email, err := p.deps.Composer.Compose(ctx, opp)
	if err != nil {
		if errors.Is(err, compose.ErrUnavailable) {
			summary.Skipped++
			p.skip(ctx, opp, opportunity.SkipReasonComposition, log)
			return false
		}
		summary.Failed++
		log.Error("compose outreach email", zap.Error(err))
		p.markFailed(ctx, opp.ID, err.Error(), log)
		return false
	}

	if opp.Status != opportunity.StatusComposed {
		if err := p.updateStatus(ctx, opp, opportunity.StatusComposed, log); err != nil {
			summary.Failed++
			return false
		}
	}

	outcome, err := p.deps.Dispatcher.Dispatch(ctx, opp, email)
	if err != nil {
		summary.Failed++
		log.Error("dispatch outreach email", zap.Error(err))
		p.markFailed(ctx, opp.ID, err.Error(), log)
		return false
	}

	switch outcome {
	case outreach.OutcomeSent:
		summary.Sent++
		return true
	case outreach.OutcomeAlreadySent:
		summary.AlreadySent++
	case outreach.OutcomeNoRecipient:
		summary.Skipped++
		p.skip(ctx, opp, opportunity.SkipReasonNoRecipient, log)
	}

	return false
}

// tryForms submits any linked application forms. Purely advisory.
func (p *Pipeline) tryForms(ctx context.Context, opp *opportunity.Opportunity, summary *Summary, log *zap.Logger) {
	for _, link := range opp.Links {
		if !autofill.IsFormURL(link) {
			continue
		}
		if p.deps.Filler.Fill(ctx, link) {
			summary.FormsFilled++
		} else {
			log.Debug("form autofill did not complete",
				zap.String(logger.FieldURL, link))
		}
	}
}

func (p *Pipeline) updateStatus(ctx context.Context, opp *opportunity.Opportunity, to opportunity.Status, log *zap.Logger) error {
	if err := p.deps.Store.Update(ctx, opp.ID, store.StatusDiff(to)); err != nil {
		log.Error("update status",
			zap.String("to", string(to)), zap.Error(err))
		return err
	}
	opp.Status = to
	return nil
}

func (p *Pipeline) skip(ctx context.Context, opp *opportunity.Opportunity, reason string, log *zap.Logger) {
	log.Info("opportunity skipped", zap.String(logger.FieldReason, reason))

	diff := store.StatusDiff(opportunity.StatusSkipped)
	diff.SkipReason = store.String(reason)
	if err := p.deps.Store.Update(ctx, opp.ID, diff); err != nil {
		log.Error("record skip", zap.Error(err))
	}
	opp.Status = opportunity.StatusSkipped
}

func (p *Pipeline) markFailed(ctx context.Context, id string, detail string, log *zap.Logger) {
	diff := store.StatusDiff(opportunity.StatusFailed)
	diff.LastError = store.String(detail)
	if err := p.deps.Store.Update(ctx, id, diff); err != nil {
		log.Error("record failure", zap.Error(err))
	}
}
