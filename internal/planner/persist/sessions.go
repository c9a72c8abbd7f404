package persist

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/studyplan/internal/planner/models"
)

// SessionRepository snapshots the session collection into SQLite.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// LoadAll returns every persisted session.
func (r *SessionRepository) LoadAll(ctx context.Context) ([]models.Session, error) {
	query := `SELECT id, course_id, start_at, end_at, duration_min, attended,
		percent_complete, notes, remote_event_id, remote_calendar_id,
		last_modified, last_pushed, recurrence FROM sessions`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select sessions: %w", err)
	}
	defer rows.Close()

	var result []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SaveSnapshot replaces the persisted set with the given sessions in one
// transaction, so a crash never leaves a half-written snapshot.
func (r *SessionRepository) SaveSnapshot(ctx context.Context, sessions []models.Session) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}

	insert := `INSERT INTO sessions (id, course_id, start_at, end_at, duration_min,
		attended, percent_complete, notes, remote_event_id, remote_calendar_id,
		last_modified, last_pushed, recurrence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for _, sess := range sessions {
		rec, err := models.MarshalRecurrence(sess.Recurrence)
		if err != nil {
			return fmt.Errorf("failed to encode recurrence for %s: %w", sess.ID, err)
		}
		_, err = tx.ExecContext(ctx, insert,
			sess.ID, sess.CourseID,
			sess.Start.Format(time.RFC3339), sess.End.Format(time.RFC3339),
			sess.DurationMin, boolToInt(sess.Attended), sess.PercentComplete,
			sess.Notes, sess.RemoteEventID, sess.RemoteCalendarID,
			sess.LastModified, sess.LastPushed, rec)
		if err != nil {
			return fmt.Errorf("failed to insert session %s: %w", sess.ID, err)
		}
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (models.Session, error) {
	var (
		sess       models.Session
		start, end string
		attended   int
		rec        []byte
	)
	err := row.Scan(&sess.ID, &sess.CourseID, &start, &end, &sess.DurationMin,
		&attended, &sess.PercentComplete, &sess.Notes,
		&sess.RemoteEventID, &sess.RemoteCalendarID,
		&sess.LastModified, &sess.LastPushed, &rec)
	if err != nil {
		return models.Session{}, fmt.Errorf("row scan failed: %w", err)
	}

	if sess.Start, err = time.Parse(time.RFC3339, start); err != nil {
		return models.Session{}, fmt.Errorf("bad start %q: %w", start, err)
	}
	if sess.End, err = time.Parse(time.RFC3339, end); err != nil {
		return models.Session{}, fmt.Errorf("bad end %q: %w", end, err)
	}
	if sess.Recurrence, err = models.UnmarshalRecurrence(rec); err != nil {
		return models.Session{}, fmt.Errorf("bad recurrence for %s: %w", sess.ID, err)
	}
	sess.Attended = attended != 0
	return sess, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
