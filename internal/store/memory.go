package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jobscout/internal/opportunity"
)

// Memory keeps everything in process. It serves dry runs that have no
// database configured, and tests. State is lost on exit, so the idempotency
// guarantee only holds within a single run.
type Memory struct {
	mu   sync.Mutex
	rows map[string]*opportunity.Opportunity
}

func NewMemory() *Memory {
	return &Memory{rows: make(map[string]*opportunity.Opportunity)}
}

func (m *Memory) CreateIfAbsent(_ context.Context, opp *opportunity.Opportunity) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[opp.ID]; ok {
		return false, nil
	}

	clone := *opp
	m.rows[opp.ID] = &clone

	return true, nil
}

func (m *Memory) Get(_ context.Context, id string) (*opportunity.Opportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}

	clone := *row

	return &clone, nil
}

func (m *Memory) Update(_ context.Context, id string, diff Diff) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}

	if diff.Status != nil && !opportunity.AllowedUpdate(row.Status, *diff.Status) {
		return fmt.Errorf("%w: %s cannot move to %s", ErrInvalidTransition, row.Status, *diff.Status)
	}

	if diff.PageText != nil {
		row.PageText = *diff.PageText
	}
	if diff.Score != nil {
		row.Score = *diff.Score
	}
	if diff.Status != nil {
		row.Status = *diff.Status
	}
	if diff.SkipReason != nil {
		row.SkipReason = *diff.SkipReason
	}
	if diff.LastError != nil {
		row.LastError = *diff.LastError
	}

	return nil
}

func (m *Memory) IsSent(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[id]
	if !ok {
		return false, nil
	}

	return row.Sent, nil
}

func (m *Memory) MarkSent(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}

	row.Sent = true
	row.SentAt = &at
	row.Status = opportunity.StatusSent

	return nil
}
