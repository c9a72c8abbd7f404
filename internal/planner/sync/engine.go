// Package sync reconciles the local session store with the external calendar:
// push local changes out, pull remote changes in, resolve conflicts, commit
// the merged set. One pass at a time, idempotent, safe to re-trigger.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"github.com/dmitrijs2005/studyplan/internal/logging"
	"github.com/dmitrijs2005/studyplan/internal/planner/models"
	"github.com/dmitrijs2005/studyplan/internal/planner/remote"
	"github.com/dmitrijs2005/studyplan/internal/planner/store"
)

var (
	// ErrPassInFlight reports that a pass was skipped because another one is
	// still running.
	ErrPassInFlight = errors.New("sync pass already in flight")

	// ErrCooldown reports that a pass was skipped because the previous one
	// finished too recently.
	ErrCooldown = errors.New("sync pass ran too recently")

	// ErrNotConnected reports that no usable credential is available.
	ErrNotConnected = errors.New("calendar integration not connected")
)

// CredentialSource supplies the remote credential and owns its lifecycle.
// Invalidate disconnects the integration; it is called exactly when the
// vendor rejects the credential, never on transient failures.
type CredentialSource interface {
	Credential(ctx context.Context) (remote.Credential, error)
	Invalidate(ctx context.Context) error
}

// Report summarizes one pass.
type Report struct {
	PassStart int64 // logical clock value the pass opened with

	Created       int // events created remotely
	Updated       int // events updated remotely
	Imported      int // sessions imported from remote-only events
	Adopted       int // sessions overwritten by the authoritative remote copy
	DeletedLocal  int // sessions dropped because the remote copy was deleted
	DeletedRemote int // remote events deleted to propagate local deletions
	PushFailures  int // per-item push failures (isolated, logged)

	// FollowUp is set when a local edit raced the pass and won; the caller
	// should schedule another pass promptly to push that edit.
	FollowUp bool
}

// Engine runs reconciliation passes. All passes go through the in-flight and
// cooldown guards, so triggering it redundantly is harmless.
type Engine struct {
	store      *store.Store
	adapter    remote.Adapter
	creds      CredentialSource
	log        logging.Logger
	cooldown   time.Duration
	courseName func(id string) string
	now        func() time.Time

	mu       gosync.Mutex
	inFlight bool
	lastDone time.Time
	hasRun   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithCooldown sets the debounce window between passes.
func WithCooldown(d time.Duration) Option {
	return func(e *Engine) { e.cooldown = d }
}

// WithCourseNames supplies a resolver used for remote event titles.
func WithCourseNames(fn func(id string) string) Option {
	return func(e *Engine) { e.courseName = fn }
}

// WithClock overrides the wall clock used by the cooldown guard. Tests only.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(st *store.Store, adapter remote.Adapter, creds CredentialSource, log logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		adapter: adapter,
		creds:   creds,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunPass executes one full push/pull/merge cycle. force bypasses the
// cooldown guard (used for the follow-up pass after a local-wins conflict)
// but never the in-flight guard.
func (e *Engine) RunPass(ctx context.Context, force bool) (Report, error) {
	if err := e.acquire(force); err != nil {
		return Report{}, err
	}
	defer e.release()

	cred, err := e.creds.Credential(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	if err := e.adapter.ValidateCredential(ctx, cred); err != nil {
		if errors.Is(err, remote.ErrInvalidCredential) {
			// Bad credentials are never silently retried: disconnect and
			// require the user to reconnect.
			if ierr := e.creds.Invalidate(ctx); ierr != nil {
				e.log.Error(ctx, "invalidating credential failed", "err", ierr)
			}
			e.log.Warn(ctx, "calendar disconnected: credential rejected", "err", err)
		}
		return Report{}, fmt.Errorf("credential check: %w", err)
	}

	passStart := e.store.Tick()
	rep := Report{PassStart: passStart}

	// The working set holds masters and plain sessions only; recurrence
	// instances are derived on read and never participate in a pass.
	working := make(map[string]models.Session)
	for _, sess := range e.store.List() {
		working[sess.ID] = sess
	}

	if err := e.push(ctx, cred, working, passStart, &rep); err != nil {
		return rep, err
	}

	events, err := e.adapter.ListManagedEvents(ctx, cred)
	if err != nil {
		if errors.Is(err, remote.ErrInvalidCredential) {
			if ierr := e.creds.Invalidate(ctx); ierr != nil {
				e.log.Error(ctx, "invalidating credential failed", "err", ierr)
			}
		}
		return rep, fmt.Errorf("listing remote events: %w", err)
	}

	e.merge(ctx, cred, working, events, passStart, &rep)

	merged := make([]models.Session, 0, len(working))
	for _, sess := range working {
		merged = append(merged, sess)
	}
	preserved := e.store.Replace(merged, passStart)
	if len(preserved) > 0 {
		rep.FollowUp = true
		e.log.Info(ctx, "local edits raced the pass; follow-up scheduled", "ids", preserved)
	}

	e.log.Info(ctx, "sync pass finished",
		"created", rep.Created, "updated", rep.Updated, "imported", rep.Imported,
		"adopted", rep.Adopted, "deleted_local", rep.DeletedLocal,
		"deleted_remote", rep.DeletedRemote, "push_failures", rep.PushFailures,
		"follow_up", rep.FollowUp)
	return rep, nil
}

func (e *Engine) acquire(force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inFlight {
		return ErrPassInFlight
	}
	if !force && e.hasRun && e.cooldown > 0 && e.now().Sub(e.lastDone) < e.cooldown {
		return ErrCooldown
	}
	e.inFlight = true
	return nil
}

func (e *Engine) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight = false
	e.lastDone = e.now()
	e.hasRun = true
}

// push creates or updates the remote copy of every session with unpushed
// local changes. A single failed push is logged and skipped; only a rejected
// credential aborts the pass.
func (e *Engine) push(ctx context.Context, cred remote.Credential, working map[string]models.Session, passStart int64, rep *Report) error {
	ids := make([]string, 0, len(working))
	for id := range working {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		sess := working[id]
		switch {
		case sess.RemoteEventID == "":
			extID, err := e.adapter.CreateEvent(ctx, cred, remote.EventFromSession(sess, e.courseName))
			if err != nil {
				if errors.Is(err, remote.ErrInvalidCredential) {
					if ierr := e.creds.Invalidate(ctx); ierr != nil {
						e.log.Error(ctx, "invalidating credential failed", "err", ierr)
					}
					return fmt.Errorf("pushing session %s: %w", id, err)
				}
				rep.PushFailures++
				e.log.Warn(ctx, "push failed; will retry next pass", "session", id, "err", err)
				continue
			}
			sess.RemoteEventID = extID
			sess.RemoteCalendarID = cred.CalendarID
			sess.LastModified = passStart
			sess.LastPushed = passStart
			working[id] = sess
			// Record the external id immediately. If the pass aborts before
			// committing the working set, the next one must update this event
			// rather than create a duplicate.
			e.store.SetRemoteRef(id, extID, cred.CalendarID)
			rep.Created++

		case sess.LastModified > sess.LastPushed:
			ev := remote.EventFromSession(sess, e.courseName)
			err := e.adapter.UpdateEvent(ctx, cred, sess.RemoteEventID, ev)
			switch {
			case errors.Is(err, remote.ErrNotFound):
				// Gone remotely; the merge step will drop the local record.
			case errors.Is(err, remote.ErrInvalidCredential):
				if ierr := e.creds.Invalidate(ctx); ierr != nil {
					e.log.Error(ctx, "invalidating credential failed", "err", ierr)
				}
				return fmt.Errorf("pushing session %s: %w", id, err)
			case err != nil:
				rep.PushFailures++
				e.log.Warn(ctx, "push failed; will retry next pass", "session", id, "err", err)
				continue
			default:
				sess.LastPushed = sess.LastModified
				working[id] = sess
				rep.Updated++
			}
		}
	}
	return nil
}

// merge folds the pulled remote events into the working set, one decision per
// session identifier appearing on either side.
func (e *Engine) merge(ctx context.Context, cred remote.Credential, working map[string]models.Session, events []remote.Event, passStart int64, rep *Report) {
	remoteByID := make(map[string]remote.Event, len(events))
	for _, ev := range events {
		if ev.Meta == nil {
			continue
		}
		remoteByID[ev.Meta.SessionID] = ev
	}

	// Local side of the merge.
	for id, sess := range working {
		ev, onRemote := remoteByID[id]
		if !onRemote {
			if sess.RemoteEventID == "" {
				// Never pushed (created mid-pass or push failed); keep and
				// defer the push to the next pass.
				if sess.LastModified > passStart {
					rep.FollowUp = true
				}
				continue
			}
			// Pushed once, now absent remotely: the user deleted the event
			// on the calendar side. The local record is dropped, not
			// resurrected.
			delete(working, id)
			rep.DeletedLocal++
			e.log.Info(ctx, "session deleted remotely; dropping local copy", "session", id)
			continue
		}

		if sess.LastModified > passStart {
			// Edited concurrently with this pass: local wins wholesale, and
			// a follow-up pass pushes the edit. The external id is never
			// reverted to an id-less state.
			if sess.RemoteEventID == "" {
				sess.RemoteEventID = ev.ID
				sess.RemoteCalendarID = cred.CalendarID
				working[id] = sess
			}
			rep.FollowUp = true
			continue
		}

		adopted, changed := adoptRemote(sess, ev, cred.CalendarID)
		if changed {
			adopted.LastModified = passStart
			adopted.LastPushed = passStart
			working[id] = adopted
			rep.Adopted++
		}
	}

	// Remote-only events.
	for id, ev := range remoteByID {
		if _, ok := working[id]; ok {
			continue
		}
		if e.store.RecentlyDeleted(id) {
			// The user deleted this session just before the pass; propagate
			// the deletion instead of resurrecting the event.
			if err := e.adapter.DeleteEvent(ctx, cred, ev.ID); err != nil {
				e.log.Warn(ctx, "deleting remote event failed; will retry next pass", "session", id, "err", err)
				continue
			}
			rep.DeletedRemote++
			continue
		}

		sess, err := remote.SessionFromEvent(ev, cred.CalendarID)
		if err != nil {
			e.log.Warn(ctx, "skipping unmappable remote event", "event", ev.ID, "err", err)
			continue
		}
		if err := sess.Validate(); err != nil {
			// Malformed remote data never enters the engine.
			e.log.Warn(ctx, "skipping malformed remote event", "event", ev.ID, "err", err)
			continue
		}
		sess.LastModified = passStart
		sess.LastPushed = passStart
		working[id] = sess
		rep.Imported++
	}
}

// adoptRemote overlays the authoritative remote copy onto a local session.
// Local-only fields the wire format does not carry (notes, the recurrence
// descriptor and its overrides) are preserved. The second return is false
// when the remote copy brings no change, which keeps a no-op pass from
// re-stamping anything.
func adoptRemote(sess models.Session, ev remote.Event, calendarID string) (models.Session, bool) {
	adopted := sess
	adopted.Start = ev.Start
	adopted.End = ev.End
	adopted.CourseID = ev.Meta.CourseID
	adopted.Attended = ev.Meta.Attended
	adopted.PercentComplete = ev.Meta.PercentComplete
	adopted.RemoteEventID = ev.ID
	adopted.RemoteCalendarID = calendarID
	adopted.Normalize()

	changed := !adopted.Start.Equal(sess.Start) ||
		!adopted.End.Equal(sess.End) ||
		adopted.CourseID != sess.CourseID ||
		adopted.Attended != sess.Attended ||
		adopted.PercentComplete != sess.PercentComplete ||
		adopted.RemoteEventID != sess.RemoteEventID
	return adopted, changed
}
