package remote

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/studyplan/internal/planner/models"
)

// metadataKey is the extended-property key marking an event as planner-owned.
const metadataKey = "studyplan"

// Metadata is the planner state carried opaquely on every pushed event. Its
// round-trip is what lets a pull distinguish planner-owned events from a
// user's unrelated calendar entries and map them back onto local sessions.
type Metadata struct {
	SessionID       string `json:"session_id"`
	CourseID        string `json:"course_id,omitempty"`
	Attended        bool   `json:"attended,omitempty"`
	PercentComplete int    `json:"percent_complete,omitempty"`
}

func encodeMetadata(m Metadata) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding event metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decoding event metadata: %w", err)
	}
	if m.SessionID == "" {
		return nil, fmt.Errorf("event metadata has no session id")
	}
	return &m, nil
}

// EventFromSession converts a local session into its adapter event shape.
// courseName resolves the course reference into a display title; it may be
// nil, in which case the raw course id is used.
func EventFromSession(sess models.Session, courseName func(id string) string) Event {
	title := "Study slot"
	if sess.CourseID != "" {
		name := sess.CourseID
		if courseName != nil {
			if n := courseName(sess.CourseID); n != "" {
				name = n
			}
		}
		title = "Study: " + name
	}

	return Event{
		ID:    sess.RemoteEventID,
		Title: title,
		Start: sess.Start,
		End:   sess.End,
		Meta: &Metadata{
			SessionID:       sess.ID,
			CourseID:        sess.CourseID,
			Attended:        sess.Attended,
			PercentComplete: sess.PercentComplete,
		},
	}
}

// SessionFromEvent converts a managed remote event back into session shape.
// An event is imported unassigned unless its metadata classifies it.
func SessionFromEvent(ev Event, calendarID string) (models.Session, error) {
	if ev.Meta == nil {
		return models.Session{}, fmt.Errorf("event %s has no planner metadata", ev.ID)
	}
	sess := models.Session{
		ID:               ev.Meta.SessionID,
		CourseID:         ev.Meta.CourseID,
		Start:            ev.Start,
		End:              ev.End,
		Attended:         ev.Meta.Attended,
		PercentComplete:  ev.Meta.PercentComplete,
		RemoteEventID:    ev.ID,
		RemoteCalendarID: calendarID,
	}
	sess.Normalize()
	return sess, nil
}
