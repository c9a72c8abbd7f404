// Package replan repairs the schedule when a planned session is reported as
// missed: unclaimed future capacity is reassigned to the missed course, or
// the miss is recorded as a terminal "no makeup" state.
package replan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/studyplan/internal/logging"
	"github.com/dmitrijs2005/studyplan/internal/planner/store"
)

var (
	// ErrAlreadyResolved reports that the session was already attended (or
	// already resolved as missed-without-makeup) and will not be revisited.
	ErrAlreadyResolved = errors.New("session already resolved")

	// ErrNoCourse reports a missed session with no course to reassign
	// capacity to.
	ErrNoCourse = errors.New("missed session has no course")
)

// Proposal is the replanning plan for one missed session: the candidate
// slots that would absorb its duration, soonest first.
type Proposal struct {
	SessionID    string
	CourseID     string
	RequiredMin  int
	CoveredMin   int
	ShortfallMin int // zero when coverage is sufficient
	CandidateIDs []string
}

// Sufficient reports whether the accumulated candidates cover the missed
// duration. Over-coverage is allowed; a candidate is never split.
func (p Proposal) Sufficient() bool { return p.ShortfallMin == 0 }

// Outcome reports how a missed session was resolved.
type Outcome struct {
	// Replanned is true when the missed session was deleted and its course
	// was reassigned onto the candidates.
	Replanned bool

	ReassignedIDs []string

	// ShortfallMin is the uncovered remainder when capacity was
	// insufficient; reported to the user, but not an error.
	ShortfallMin int
}

// Engine resolves missed sessions against the session store. Writes go
// through the store only; the next sync pass propagates them outward.
type Engine struct {
	store       *store.Store
	log         logging.Logger
	now         func() time.Time
	syncTrigger func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides "now" for candidate selection. Tests only.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSyncTrigger registers a callback fired after any mutation, so the
// surrounding application can schedule a sync pass.
func WithSyncTrigger(fn func()) Option {
	return func(e *Engine) { e.syncTrigger = fn }
}

func New(st *store.Store, log logging.Logger, opts ...Option) *Engine {
	e := &Engine{store: st, log: log, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan computes the replanning proposal for a missed session without
// mutating anything. Callers show it to the user before confirming.
func (e *Engine) Plan(ctx context.Context, sessionID string) (Proposal, error) {
	missed, err := e.store.Get(sessionID)
	if err != nil {
		return Proposal{}, err
	}
	if missed.Attended {
		return Proposal{}, fmt.Errorf("%w: %s", ErrAlreadyResolved, sessionID)
	}
	if missed.CourseID == "" {
		return Proposal{}, fmt.Errorf("%w: %s", ErrNoCourse, sessionID)
	}

	p := Proposal{
		SessionID:   sessionID,
		CourseID:    missed.CourseID,
		RequiredMin: missed.DurationMin,
	}

	// Candidates: unassigned, not attended, strictly in the future, soonest
	// first. Store listing is already ordered by start time.
	now := e.now()
	for _, cand := range e.store.List() {
		if p.CoveredMin >= p.RequiredMin {
			break
		}
		if !cand.Unassigned() || cand.Attended || cand.IsMaster() {
			continue
		}
		if !cand.Start.After(now) {
			continue
		}
		p.CandidateIDs = append(p.CandidateIDs, cand.ID)
		p.CoveredMin += cand.DurationMin
	}

	if p.CoveredMin < p.RequiredMin {
		p.ShortfallMin = p.RequiredMin - p.CoveredMin
	}
	return p, nil
}

// HandleMissedSession resolves a session reported as not attended. When the
// user confirmed the replan and capacity suffices, the missed session is
// deleted and every accumulated candidate is reassigned to its course; each
// candidate update is independently idempotent, so a retry after a partial
// failure is safe. Otherwise the session is marked attended with 0%
// completion, the terminal "missed, no makeup" state, and never revisited.
func (e *Engine) HandleMissedSession(ctx context.Context, sessionID string, userConfirmedReplan bool) (Outcome, error) {
	p, err := e.Plan(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}

	if !p.Sufficient() || !userConfirmedReplan {
		if err := e.resolveWithoutReplan(sessionID); err != nil {
			return Outcome{}, err
		}
		e.log.Info(ctx, "missed session resolved without replan",
			"session", sessionID, "shortfall_min", p.ShortfallMin, "confirmed", userConfirmedReplan)
		e.triggerSync()
		return Outcome{ShortfallMin: p.ShortfallMin}, nil
	}

	reassigned := make([]string, 0, len(p.CandidateIDs))
	for _, id := range p.CandidateIDs {
		cand, err := e.store.Get(id)
		if err != nil {
			return Outcome{}, fmt.Errorf("loading candidate %s: %w", id, err)
		}
		if cand.CourseID == p.CourseID {
			// Already reassigned by an earlier attempt; re-applying is a no-op.
			reassigned = append(reassigned, id)
			continue
		}
		cand.CourseID = p.CourseID
		e.store.Upsert(cand)
		reassigned = append(reassigned, id)
	}

	if err := e.store.Remove(sessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return Outcome{}, fmt.Errorf("deleting missed session: %w", err)
	}

	e.log.Info(ctx, "missed session replanned",
		"session", sessionID, "course", p.CourseID, "reassigned", reassigned)
	e.triggerSync()
	return Outcome{Replanned: true, ReassignedIDs: reassigned}, nil
}

func (e *Engine) resolveWithoutReplan(sessionID string) error {
	sess, err := e.store.Get(sessionID)
	if err != nil {
		return err
	}
	sess.Attended = true
	sess.PercentComplete = 0
	e.store.Upsert(sess)
	return nil
}

func (e *Engine) triggerSync() {
	if e.syncTrigger != nil {
		e.syncTrigger()
	}
}
