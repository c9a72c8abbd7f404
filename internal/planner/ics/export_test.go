package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/studyplan/internal/planner/models"
)

func TestExportExpandsAndSerializes(t *testing.T) {
	monday := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	master := models.Session{
		ID:          "m1",
		CourseID:    "math",
		Start:       monday,
		End:         monday.Add(time.Hour),
		DurationMin: 60,
		Recurrence: &models.Recurrence{
			Frequency: models.FreqWeekly,
			Weekdays:  []time.Weekday{time.Monday},
			Count:     2,
		},
	}
	plain := models.Session{
		ID:          "p1",
		Start:       monday.Add(26 * time.Hour),
		End:         monday.Add(27 * time.Hour),
		DurationMin: 60,
		Notes:       "bring notes",
	}

	feed, err := Export([]models.Session{master, plain}, monday, monday.AddDate(0, 0, 14),
		func(id string) string { return "Mathematics" })
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(feed, "BEGIN:VCALENDAR"))
	assert.Equal(t, 3, strings.Count(feed, "BEGIN:VEVENT"))
	assert.Contains(t, feed, "UID:m1:2026-03-02@studyplan")
	assert.Contains(t, feed, "UID:m1:2026-03-09@studyplan")
	assert.Contains(t, feed, "UID:p1@studyplan")
	assert.Contains(t, feed, "SUMMARY:Study: Mathematics")
	assert.Contains(t, feed, "SUMMARY:Study slot")
	assert.Contains(t, feed, "DESCRIPTION:bring notes")
	assert.NotContains(t, feed, "UID:m1@studyplan", "masters never appear in the feed")
}

func TestExportEmptyWindow(t *testing.T) {
	monday := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	feed, err := Export(nil, monday, monday.AddDate(0, 0, 7), nil)
	require.NoError(t, err)
	assert.Contains(t, feed, "BEGIN:VCALENDAR")
	assert.NotContains(t, feed, "BEGIN:VEVENT")
}
