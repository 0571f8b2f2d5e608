// Package store persists opportunities keyed by their natural identity. The
// store is the only shared mutable state in a run, and the at-most-once
// outreach guarantee rests on its IsSent / MarkSent pair.
package store

import (
	"context"
	"errors"
	"time"

	"jobscout/internal/opportunity"
)

// ErrNotFound is returned when no opportunity exists for the given id.
var ErrNotFound = errors.New("opportunity not found")

// ErrInvalidTransition is returned by Update when the diff carries a status
// the current row is not allowed to move to. Statuses only move forward;
// see opportunity.AllowedUpdate for the relation.
var ErrInvalidTransition = errors.New("status transition not allowed")

// Diff describes a partial update. Nil fields are left untouched.
type Diff struct {
	PageText   *string
	Score      *float64
	Status     *opportunity.Status
	SkipReason *string
	LastError  *string
}

// Store is the opportunity repository. Implementations must make
// CreateIfAbsent idempotent on the natural key and MarkSent atomic with the
// sent-timestamp write.
type Store interface {
	// CreateIfAbsent persists the opportunity unless a row with the same
	// identity already exists. Returns true when a new row was created.
	CreateIfAbsent(ctx context.Context, opp *opportunity.Opportunity) (bool, error)

	// Get returns the opportunity or ErrNotFound.
	Get(ctx context.Context, id string) (*opportunity.Opportunity, error)

	// Update applies the diff to an existing opportunity. A status in the
	// diff is validated against the current row: backward or otherwise
	// disallowed moves return ErrInvalidTransition and change nothing.
	Update(ctx context.Context, id string, diff Diff) error

	// IsSent reports whether outreach already occurred for this identity.
	// Unknown ids are simply not sent.
	IsSent(ctx context.Context, id string) (bool, error)

	// MarkSent flips the outreach-sent flag and records the timestamp and
	// SENT status in a single write. The flag is monotonic: once set it is
	// never reset.
	MarkSent(ctx context.Context, id string, at time.Time) error
}

// StatusDiff is a convenience constructor for pure status transitions.
func StatusDiff(s opportunity.Status) Diff {
	return Diff{Status: &s}
}

// String returns a pointer for use in Diff literals.
func String(s string) *string { return &s }

// Float returns a pointer for use in Diff literals.
func Float(f float64) *float64 { return &f }
