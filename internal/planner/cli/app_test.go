package cli

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/studyplan/internal/logging"
	"github.com/dmitrijs2005/studyplan/internal/planner/config"
	"github.com/dmitrijs2005/studyplan/internal/planner/models"
	"github.com/dmitrijs2005/studyplan/internal/planner/persist"
	syncengine "github.com/dmitrijs2005/studyplan/internal/planner/sync"
)

func newTestApp(t *testing.T, input string) (*App, *bytes.Buffer) {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	cfg.Timezone = "UTC"

	app, err := NewApp(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.db.Close() })

	out := &bytes.Buffer{}
	app.out = out
	app.reader = bufio.NewReader(strings.NewReader(input))
	return app, out
}

func TestCmdAddAndList(t *testing.T) {
	app, out := newTestApp(t, "")
	ctx := context.Background()

	require.Error(t, app.dispatch(ctx, "add", []string{"2099-03-02T09:00"}))
	require.Error(t, app.dispatch(ctx, "add", []string{"not-a-time", "2099-03-02T10:00"}))
	require.Error(t, app.dispatch(ctx, "add",
		[]string{"2099-03-02T10:00", "2099-03-02T09:00"}), "end before start")

	require.NoError(t, app.dispatch(ctx, "add",
		[]string{"2099-03-02T09:00", "2099-03-02T10:00", "math"}))
	require.Len(t, app.store.List(), 1)

	out.Reset()
	require.NoError(t, app.dispatch(ctx, "list", []string{"99999"}))
	assert.Contains(t, out.String(), "math")
	assert.Contains(t, out.String(), "2099-03-02T09:00")
}

func TestCmdAttendAndDelete(t *testing.T) {
	app, _ := newTestApp(t, "")
	ctx := context.Background()

	require.NoError(t, app.dispatch(ctx, "add",
		[]string{"2099-03-02T09:00", "2099-03-02T10:00", "math"}))
	id := app.store.List()[0].ID

	require.NoError(t, app.dispatch(ctx, "attend", []string{id, "80"}))
	sess, err := app.store.Get(id)
	require.NoError(t, err)
	assert.True(t, sess.Attended)
	assert.Equal(t, 80, sess.PercentComplete)

	require.Error(t, app.dispatch(ctx, "attend", []string{id, "150"}))

	require.NoError(t, app.dispatch(ctx, "delete", []string{id}))
	assert.Empty(t, app.store.List())
	require.Error(t, app.dispatch(ctx, "delete", []string{id}))
}

func TestCmdMissDeclined(t *testing.T) {
	// "n" answers the replan confirmation prompt.
	app, out := newTestApp(t, "n\n")
	ctx := context.Background()

	require.NoError(t, app.dispatch(ctx, "add",
		[]string{"2099-03-02T09:00", "2099-03-02T10:00", "math"}))
	require.NoError(t, app.dispatch(ctx, "add",
		[]string{"2099-03-03T09:00", "2099-03-03T10:00"}))

	var missedID string
	for _, sess := range app.store.List() {
		if sess.CourseID == "math" {
			missedID = sess.ID
		}
	}
	require.NotEmpty(t, missedID)

	require.NoError(t, app.dispatch(ctx, "miss", []string{missedID}))
	assert.Contains(t, out.String(), "recorded as missed without makeup")

	sess, err := app.store.Get(missedID)
	require.NoError(t, err)
	assert.True(t, sess.Attended)
	assert.Zero(t, sess.PercentComplete)
}

func TestCmdMissConfirmed(t *testing.T) {
	app, out := newTestApp(t, "y\n")
	ctx := context.Background()

	require.NoError(t, app.dispatch(ctx, "add",
		[]string{"2099-03-02T09:00", "2099-03-02T10:00", "math"}))
	require.NoError(t, app.dispatch(ctx, "add",
		[]string{"2099-03-03T09:00", "2099-03-03T10:00"}))

	var missedID, freeID string
	for _, sess := range app.store.List() {
		if sess.CourseID == "math" {
			missedID = sess.ID
		} else {
			freeID = sess.ID
		}
	}

	require.NoError(t, app.dispatch(ctx, "miss", []string{missedID}))
	assert.Contains(t, out.String(), "replanned onto 1 session(s)")

	free, err := app.store.Get(freeID)
	require.NoError(t, err)
	assert.Equal(t, "math", free.CourseID)
	_, err = app.store.Get(missedID)
	require.Error(t, err)
}

func TestCmdExport(t *testing.T) {
	app, _ := newTestApp(t, "")
	ctx := context.Background()

	require.NoError(t, app.dispatch(ctx, "add",
		[]string{"2099-03-02T09:00", "2099-03-02T10:00", "math"}))

	path := filepath.Join(t.TempDir(), "plan.ics")
	require.NoError(t, app.dispatch(ctx, "export", []string{path, "99999"}))

	feed, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(feed), "BEGIN:VCALENDAR")
	assert.Contains(t, string(feed), "SUMMARY:Study: math")
}

func TestDispatchUnknownCommand(t *testing.T) {
	app, _ := newTestApp(t, "")
	require.Error(t, app.dispatch(context.Background(), "frobnicate", nil))
}

func TestSnapshotSurvivesRestart(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	cfg.Timezone = "UTC"
	ctx := context.Background()

	app, err := NewApp(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	app.out = &bytes.Buffer{}
	app.reader = bufio.NewReader(strings.NewReader(""))

	require.NoError(t, app.dispatch(ctx, "add",
		[]string{"2099-03-02T09:00", "2099-03-02T10:00", "math"}))
	require.NoError(t, app.db.Close())

	reopened, err := NewApp(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	defer reopened.db.Close()

	list := reopened.store.List()
	require.Len(t, list, 1)
	assert.Equal(t, "math", list[0].CourseID)
}

func TestRestartKeepsPendingEditPending(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	cfg.Timezone = "UTC"
	ctx := context.Background()

	app, err := NewApp(ctx, cfg, logging.Discard())
	require.NoError(t, err)

	// An edit that has not been pushed yet, persisted with its stamps.
	start := time.Date(2099, 3, 2, 9, 0, 0, 0, time.UTC)
	pending := models.Session{
		ID:           "pending",
		CourseID:     "math",
		Start:        start,
		End:          start.Add(time.Hour),
		DurationMin:  60,
		LastModified: 12,
		LastPushed:   9,
	}
	require.NoError(t, app.db.Sessions.SaveSnapshot(ctx, []models.Session{pending}))
	require.NoError(t, app.db.Close())

	reopened, err := NewApp(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	defer reopened.db.Close()

	got, err := reopened.store.Get("pending")
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.LastModified)
	assert.Equal(t, int64(9), got.LastPushed)
	assert.Greater(t, got.LastModified, got.LastPushed, "the edit must still read as pending")
}

func TestAfterSyncPassPersistsState(t *testing.T) {
	app, _ := newTestApp(t, "")
	ctx := context.Background()

	require.NoError(t, app.db.Integration.Save(ctx, persist.IntegrationState{
		CalendarID: "cal-1",
		Credential: []byte("sealed"),
		Nonce:      []byte("nonce"),
		Salt:       []byte("salt"),
	}))
	start := time.Date(2099, 3, 2, 9, 0, 0, 0, time.UTC)
	app.store.Upsert(models.Session{
		ID: "s1", CourseID: "math", Start: start, End: start.Add(time.Hour), DurationMin: 60,
	})

	app.afterSyncPass(syncengine.Report{})

	sessions, err := app.db.Sessions.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)

	st, err := app.db.Integration.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.LastSync)
	assert.WithinDuration(t, time.Now(), *st.LastSync, time.Minute)
}
