// Package opportunity defines the core entity tracked by the pipeline and
// the outreach state machine it moves through.
//
// Valid status graph:
//
//	NEW ──► ENRICHED ──► SCORED ──► COMPOSED ──► SENT
//	 │          │           │           │
//	 ├──────────┴───────────┴───────────┴──► SKIPPED
//	 └──────────┴───────────┴───────────┴──► FAILED
//
// SENT, SKIPPED and FAILED are terminal within a run. SENT is terminal
// forever: an opportunity that reached SENT is never re-entered into the
// pipeline, which is what guarantees at-most-once outreach across runs.
package opportunity

import "fmt"

// Status values mirror the status column in the opportunities table.
type Status string

const (
	StatusNew      Status = "NEW"
	StatusEnriched Status = "ENRICHED"
	StatusScored   Status = "SCORED"
	StatusComposed Status = "COMPOSED"
	StatusSent     Status = "SENT"
	StatusSkipped  Status = "SKIPPED"
	StatusFailed   Status = "FAILED"
)

// validTransitions lists every allowed (from → to) pair. Transitions are
// forward only; there is no way back once a status has been recorded.
var validTransitions = map[Status][]Status{
	StatusNew:      {StatusEnriched, StatusSkipped, StatusFailed},
	StatusEnriched: {StatusScored, StatusSkipped, StatusFailed},
	StatusScored:   {StatusComposed, StatusSkipped, StatusFailed},
	StatusComposed: {StatusSent, StatusSkipped, StatusFailed},
	// SENT, SKIPPED and FAILED are terminal — no outgoing transitions.
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusNew, StatusEnriched, StatusScored, StatusComposed, StatusSent, StatusSkipped, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown opportunity status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted by the
// state machine.
func IsTransitionAllowed(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal state
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for statuses with no outgoing transitions.
func IsTerminal(s Status) bool {
	_, ok := validTransitions[s]
	return !ok
}

// AllowedUpdate reports whether a stored status may be overwritten with to.
// It is the transition relation plus one sanctioned exception: a later run
// re-enters a SKIPPED row at the scoring boundary, so SKIPPED → SCORED is
// permitted even though SKIPPED has no outgoing transitions within a run.
func AllowedUpdate(from, to Status) bool {
	if from == StatusSkipped && to == StatusScored {
		return true
	}
	return IsTransitionAllowed(from, to)
}

// Statuses returns every defined status, in pipeline order.
func Statuses() []Status {
	return []Status{
		StatusNew, StatusEnriched, StatusScored, StatusComposed,
		StatusSent, StatusSkipped, StatusFailed,
	}
}

// Resumable reports whether an opportunity in this status may be picked up
// again by a later run. SENT must never be re-entered (at-most-once outreach)
// and FAILED is left for the operator; everything else, including SKIPPED,
// retries naturally on the next pass.
func Resumable(s Status) bool {
	return s != StatusSent && s != StatusFailed
}
