// Package ics renders the expanded schedule as an iCalendar feed so external
// viewers can subscribe to it. Masters are expanded first; the feed only
// ever contains concrete instances.
package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/dmitrijs2005/studyplan/internal/planner/models"
	"github.com/dmitrijs2005/studyplan/internal/planner/recurrence"
)

const prodID = "-//studyplan//session planner//EN"

// Export expands sessions over [from, to] and serializes the result as an
// iCalendar document. courseName resolves course references into summaries;
// it may be nil.
func Export(sessions []models.Session, from, to time.Time, courseName func(id string) string) (string, error) {
	expanded, err := recurrence.ExpandAll(sessions, from, to)
	if err != nil {
		return "", fmt.Errorf("expanding sessions: %w", err)
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)

	for _, sess := range expanded {
		ev := cal.AddEvent(sess.ID + "@studyplan")
		ev.SetSummary(summary(sess, courseName))
		ev.SetStartAt(sess.Start)
		ev.SetEndAt(sess.End)
		ev.SetDtStampTime(sess.Start)
		if sess.Notes != "" {
			ev.SetDescription(sess.Notes)
		}
	}

	return cal.Serialize(), nil
}

func summary(sess models.Session, courseName func(id string) string) string {
	if sess.CourseID == "" {
		return "Study slot"
	}
	name := sess.CourseID
	if courseName != nil {
		if n := courseName(sess.CourseID); n != "" {
			name = n
		}
	}
	return "Study: " + name
}
