// Package models defines the planner's domain types: study sessions, courses
// and recurrence descriptors.
package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidSession marks session data rejected at the boundary before it
	// can enter the store or any engine.
	ErrInvalidSession = errors.New("invalid session")
)

// Session is a single scheduled unit of study time. A session with an empty
// CourseID is an unassigned slot: reserved time that the replanning engine may
// later claim for a missed course.
//
// A session that carries a Recurrence descriptor is a master: it is never
// displayed itself, only the concrete instances derived from it.
type Session struct {
	// ID is a locally stable, opaque identifier.
	ID string

	// MasterID back-references the master session for a derived recurrence
	// instance. Empty for stored sessions; instances are never stored.
	MasterID string

	// CourseID references the course this session belongs to. Empty means
	// the session is an unassigned slot.
	CourseID string

	// Start and End bound the session. End may fall on a later calendar day
	// than Start (sessions can span midnight).
	Start time.Time
	End   time.Time

	// DurationMin is derived from Start/End but persisted for display.
	DurationMin int

	// Attended reports whether the session took place. PercentComplete is the
	// self-reported completion; a missed session resolved without replanning
	// ends up Attended=true with PercentComplete=0.
	Attended        bool
	PercentComplete int

	Notes string

	// RemoteEventID and RemoteCalendarID are set once the session has been
	// pushed to the external calendar. A merge never clears RemoteEventID
	// unless the remote side explicitly reports the event gone.
	RemoteEventID    string
	RemoteCalendarID string

	// LastModified is a logical clock value stamped by the store on every
	// write. It is non-decreasing per session and is the sole mechanism used
	// to order edits that race with an in-flight sync pass.
	LastModified int64

	// LastPushed records the LastModified value at the last successful push
	// to the remote calendar. A session with LastModified > LastPushed has
	// local changes the remote side has not seen.
	LastPushed int64

	// Recurrence is present on masters only.
	Recurrence *Recurrence
}

// Duration returns the session's span. DurationMin is kept in step with this
// at the validation boundary.
func (s Session) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// IsMaster reports whether the session is a recurring-series template.
func (s Session) IsMaster() bool {
	return s.Recurrence != nil
}

// Unassigned reports whether the session is a free slot with no course.
func (s Session) Unassigned() bool {
	return s.CourseID == ""
}

// Validate rejects malformed session data. Engines assume sessions that made
// it past this check; they never re-validate.
func (s Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidSession)
	}
	if s.Start.IsZero() || s.End.IsZero() {
		return fmt.Errorf("%w: missing start or end", ErrInvalidSession)
	}
	if !s.End.After(s.Start) {
		return fmt.Errorf("%w: end %s is not after start %s", ErrInvalidSession,
			s.End.Format(time.RFC3339), s.Start.Format(time.RFC3339))
	}
	if s.DurationMin <= 0 {
		return fmt.Errorf("%w: non-positive duration %d", ErrInvalidSession, s.DurationMin)
	}
	if s.PercentComplete < 0 || s.PercentComplete > 100 {
		return fmt.Errorf("%w: completion %d%% out of range", ErrInvalidSession, s.PercentComplete)
	}
	if s.Recurrence != nil {
		if err := s.Recurrence.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Normalize recomputes DurationMin from the Start/End span. Call it before
// Validate when constructing sessions from user input.
func (s *Session) Normalize() {
	s.DurationMin = int(s.End.Sub(s.Start) / time.Minute)
}

// Course is a minimal course reference; the full course CRUD surface lives in
// the surrounding application.
type Course struct {
	ID   string
	Name string
}
