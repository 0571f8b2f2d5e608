package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobscout/internal/opportunity"
)

const schema = `
CREATE TABLE IF NOT EXISTS opportunities (
	id          TEXT PRIMARY KEY,
	sender      TEXT NOT NULL,
	ts          TIMESTAMPTZ NOT NULL,
	message     TEXT NOT NULL,
	links       TEXT[] NOT NULL DEFAULT '{}',
	emails      TEXT[] NOT NULL DEFAULT '{}',
	role        TEXT NOT NULL DEFAULT '',
	company     TEXT NOT NULL DEFAULT '',
	location    TEXT NOT NULL DEFAULT '',
	salary      TEXT NOT NULL DEFAULT '',
	page_text   TEXT NOT NULL DEFAULT '',
	score       DOUBLE PRECISION NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'NEW',
	sent        BOOLEAN NOT NULL DEFAULT FALSE,
	sent_at     TIMESTAMPTZ,
	skip_reason TEXT NOT NULL DEFAULT '',
	last_error  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres is the pgx-backed store.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates and verifies a pooled connection and ensures the
// opportunities table exists. A failure here is run-fatal by design: without
// the store there is no idempotency guarantee.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) CreateIfAbsent(ctx context.Context, opp *opportunity.Opportunity) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO opportunities
		   (id, sender, ts, message, links, emails, role, company, location, salary, status)
		 SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		 WHERE NOT EXISTS (
		   SELECT 1 FROM opportunities WHERE id = $1
		 )`,
		opp.ID, opp.Sender, opp.Timestamp, opp.Message,
		textArray(opp.Links), textArray(opp.Emails),
		opp.Role, opp.Company, opp.Location, opp.Salary,
		string(opp.Status),
	)
	if err != nil {
		return false, fmt.Errorf("insert opportunity: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (*opportunity.Opportunity, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, sender, ts, message, links, emails, role, company, location, salary,
		        page_text, score, status, sent, sent_at, skip_reason, last_error
		 FROM opportunities WHERE id = $1`, id)

	var (
		opp    opportunity.Opportunity
		status string
		sentAt *time.Time
	)
	err := row.Scan(
		&opp.ID, &opp.Sender, &opp.Timestamp, &opp.Message, &opp.Links, &opp.Emails,
		&opp.Role, &opp.Company, &opp.Location, &opp.Salary,
		&opp.PageText, &opp.Score, &status, &opp.Sent, &sentAt,
		&opp.SkipReason, &opp.LastError,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get opportunity: %w", err)
	}

	opp.SentAt = sentAt

	parsed, err := opportunity.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("stored status: %w", err)
	}
	opp.Status = parsed

	return &opp, nil
}

func (p *Postgres) Update(ctx context.Context, id string, diff Diff) error {
	sets := []string{"updated_at = now()"}
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if diff.PageText != nil {
		add("page_text", *diff.PageText)
	}
	if diff.Score != nil {
		add("score", *diff.Score)
	}
	if diff.Status != nil {
		add("status", string(*diff.Status))
	}
	if diff.SkipReason != nil {
		add("skip_reason", *diff.SkipReason)
	}
	if diff.LastError != nil {
		add("last_error", *diff.LastError)
	}

	// A status change is guarded in the statement itself: the row only
	// updates when its current status is an allowed source for the new one.
	guard := ""
	if diff.Status != nil {
		args = append(args, allowedSources(*diff.Status))
		guard = fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}

	query := fmt.Sprintf("UPDATE opportunities SET %s WHERE id = $1%s", strings.Join(sets, ", "), guard)
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update opportunity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current string
		err := p.pool.QueryRow(ctx, `SELECT status FROM opportunities WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("update opportunity: %w", err)
		}
		return fmt.Errorf("%w: %s cannot move to %s", ErrInvalidTransition, current, *diff.Status)
	}

	return nil
}

// allowedSources returns every status a row may hold and still be moved to
// the given one.
func allowedSources(to opportunity.Status) []string {
	var from []string
	for _, s := range opportunity.Statuses() {
		if opportunity.AllowedUpdate(s, to) {
			from = append(from, string(s))
		}
	}
	return from
}

func (p *Postgres) IsSent(ctx context.Context, id string) (bool, error) {
	var sent bool
	err := p.pool.QueryRow(ctx,
		`SELECT sent FROM opportunities WHERE id = $1`, id).Scan(&sent)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is sent: %w", err)
	}

	return sent, nil
}

// MarkSent sets the flag, timestamp and SENT status in one statement, so a
// reader never observes the flag without the timestamp. The flag only moves
// false→true; marking an already-sent row is a no-op.
func (p *Postgres) MarkSent(ctx context.Context, id string, at time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE opportunities
		 SET sent = TRUE, sent_at = $2, status = $3, updated_at = now()
		 WHERE id = $1`,
		id, at, string(opportunity.StatusSent),
	)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// textArray coerces a nil slice to an empty one so the NOT NULL array
// columns never receive SQL NULL.
func textArray(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
