package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Frequency is the repetition frequency of a recurring series.
type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
)

// DateKey is the canonical form used to key per-date overrides and
// exclusions.
const DateKey = "2006-01-02"

// Recurrence describes a recurring series attached to a master session.
// Concrete instances are derived on demand and never stored, so a master and
// its occurrences cannot diverge.
type Recurrence struct {
	Frequency Frequency      `json:"frequency"`
	Weekdays  []time.Weekday `json:"weekdays,omitempty"`

	// Count limits the series to a fixed number of occurrences. Zero means
	// unbounded (or bounded by Until).
	Count int        `json:"count,omitempty"`
	Until *time.Time `json:"until,omitempty"`

	// Excluded lists dates (DateKey form) removed from the series.
	Excluded []string `json:"excluded,omitempty"`

	// Overrides maps a date (DateKey form) to a per-instance change: a time
	// shift, a cancellation, or a completion state. Overrides never mutate
	// the master.
	Overrides map[string]Override `json:"overrides,omitempty"`
}

// Override is a per-date change to a single instance of a recurring series.
type Override struct {
	// Cancelled removes the instance from expansion output entirely.
	Cancelled bool `json:"cancelled,omitempty"`

	// Start/End replace the instance's times when set (time shift).
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`

	// Attended/PercentComplete override the instance's completion state.
	Attended        *bool `json:"attended,omitempty"`
	PercentComplete *int  `json:"percent_complete,omitempty"`
}

// Validate checks the descriptor's internal consistency.
func (r Recurrence) Validate() error {
	switch r.Frequency {
	case FreqDaily, FreqWeekly, FreqMonthly:
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidSession, r.Frequency)
	}
	if r.Count < 0 {
		return fmt.Errorf("%w: negative recurrence count", ErrInvalidSession)
	}
	for _, d := range r.Excluded {
		if _, err := time.Parse(DateKey, d); err != nil {
			return fmt.Errorf("%w: bad excluded date %q", ErrInvalidSession, d)
		}
	}
	for d, o := range r.Overrides {
		if _, err := time.Parse(DateKey, d); err != nil {
			return fmt.Errorf("%w: bad override date %q", ErrInvalidSession, d)
		}
		if o.Start != nil && o.End != nil && !o.End.After(*o.Start) {
			return fmt.Errorf("%w: override %s end not after start", ErrInvalidSession, d)
		}
		if o.PercentComplete != nil && (*o.PercentComplete < 0 || *o.PercentComplete > 100) {
			return fmt.Errorf("%w: override %s completion out of range", ErrInvalidSession, d)
		}
	}
	return nil
}

// MarshalRecurrence encodes a descriptor for the snapshot repository, which
// stores it as a JSON blob. A nil descriptor encodes to nil.
func MarshalRecurrence(r *Recurrence) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

// UnmarshalRecurrence is the inverse of MarshalRecurrence.
func UnmarshalRecurrence(data []byte) (*Recurrence, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var r Recurrence
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// InstanceID derives the synthetic identifier of a recurrence instance from
// the master's id and the instance date.
func InstanceID(masterID string, date time.Time) string {
	return masterID + ":" + date.Format(DateKey)
}
