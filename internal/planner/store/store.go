// Package store holds the in-process collection of session records: the
// single source of truth between synchronization passes.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/studyplan/internal/planner/models"
)

var (
	ErrNotFound = errors.New("session not found")
)

// Store is the in-memory session collection. Every write advances a store-
// owned logical clock and stamps the written session with it, so concurrent
// edits can be ordered against a sync pass without reading wall time.
//
// The original runtime was single-threaded cooperative; in Go the store is
// shared between the trigger goroutine, the sync consumer and the CLI, so a
// mutex guards it.
type Store struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	clock    int64

	// tombstones records when a session id was removed, so a sync pass can
	// suppress resurrection of an event the user just deleted before the
	// remote side caught up. Each tombstone carries both wall time (for the
	// grace TTL) and the logical clock at removal (so a commit can tell a
	// mid-pass deletion from an older one).
	tombstones map[string]tombstone
	graceTTL   time.Duration

	now func() time.Time
}

type tombstone struct {
	at    time.Time
	clock int64
}

// New returns an empty store. graceTTL bounds how long a deleted id keeps
// suppressing re-import from the remote side.
func New(graceTTL time.Duration) *Store {
	return &Store{
		sessions:   make(map[string]models.Session),
		tombstones: make(map[string]tombstone),
		graceTTL:   graceTTL,
		now:        time.Now,
	}
}

// Load installs snapshot records as-is, without restamping, and seeds the
// logical clock above every stamp they carry. LastModified stays
// non-decreasing per id across restarts; a pending edit persisted with
// LastModified > LastPushed is still pending after reload.
func (s *Store) Load(sessions []models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range sessions {
		s.sessions[sess.ID] = sess
		if sess.LastModified > s.clock {
			s.clock = sess.LastModified
		}
		if sess.LastPushed > s.clock {
			s.clock = sess.LastPushed
		}
	}
}

// List returns all sessions ordered by start time, then id. Callers receive
// copies; mutating them does not touch the store.
func (s *Store) List() []models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns the session with the given id.
func (s *Store) Get(id string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return models.Session{}, ErrNotFound
	}
	return sess, nil
}

// Upsert inserts or replaces a session, stamping it with the next logical
// clock value. The stamp is strictly greater than every previously issued
// value, which keeps LastModified non-decreasing per id.
func (s *Store) Upsert(sess models.Session) models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clock++
	sess.LastModified = s.clock
	s.sessions[sess.ID] = sess
	delete(s.tombstones, sess.ID)
	return sess
}

// Remove deletes a session and records a tombstone for it. The removal
// advances the logical clock so it can be ordered against an in-flight pass.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	s.clock++
	s.tombstones[id] = tombstone{at: s.now(), clock: s.clock}
	return nil
}

// RecentlyDeleted reports whether id was removed within the grace window.
// Expired tombstones are pruned as a side effect.
func (s *Store) RecentlyDeleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.tombstones[id]
	if !ok {
		return false
	}
	if s.now().Sub(ts.at) > s.graceTTL {
		delete(s.tombstones, id)
		return false
	}
	return true
}

// SetRemoteRef records the external ids for a session without touching its
// clocks. A pass calls it right after a successful create so the id survives
// even when the pass later aborts before committing its working set;
// otherwise the next pass would create a duplicate remote event.
func (s *Store) SetRemoteRef(id, remoteEventID, remoteCalendarID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	sess.RemoteEventID = remoteEventID
	sess.RemoteCalendarID = remoteCalendarID
	s.sessions[id] = sess
}

// Tick advances the logical clock by one and returns the new value. A sync
// pass calls it once at start; any session whose LastModified later exceeds
// the returned value was edited during the pass.
func (s *Store) Tick() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clock++
	return s.clock
}

// Replace commits a merged working set built by a sync pass that started at
// passStart. Sessions the pass never saw, or that were edited after passStart,
// survive the commit untouched: the pass finishes its non-conflicting work and
// the caller schedules a follow-up for the ids returned here. An id the user
// removed after passStart stays removed; its tombstone outranks the pass's
// stale working copy.
func (s *Store) Replace(working []models.Session, passStart int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]models.Session, len(working))
	var preserved []string

	for _, sess := range working {
		if ts, ok := s.tombstones[sess.ID]; ok && ts.clock > passStart {
			continue
		}
		next[sess.ID] = sess
	}
	for id, cur := range s.sessions {
		if cur.LastModified <= passStart {
			continue
		}
		// Edited or created while the pass was in flight; local wins.
		if merged, ok := next[id]; !ok || merged.LastModified < cur.LastModified {
			next[id] = cur
			preserved = append(preserved, id)
		}
	}
	for _, sess := range next {
		if sess.LastModified > s.clock {
			s.clock = sess.LastModified
		}
	}
	sort.Strings(preserved)
	s.sessions = next
	return preserved
}

// SetNow overrides the wall clock used for tombstone aging. Tests only.
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
