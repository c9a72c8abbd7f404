package sync

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/studyplan/internal/logging"
)

// Trigger names the event source that requested a pass. Triggers are
// producers onto a single queue; the one consumer enforces the in-flight
// guard, so no two passes ever overlap regardless of how many sources fire.
type Trigger string

const (
	TriggerEdit     Trigger = "edit"
	TriggerTimer    Trigger = "timer"
	TriggerFocus    Trigger = "focus"
	TriggerFollowUp Trigger = "follow-up"
)

const triggerQueueSize = 16

// Runner owns the trigger queue and the single consumer goroutine.
type Runner struct {
	engine   *Engine
	log      logging.Logger
	triggers chan Trigger
	done     chan struct{}

	// OnPassComplete, when set before Start, is invoked from the consumer
	// goroutine after every pass that ran to completion. The app uses it to
	// persist the store after background passes mutate it.
	OnPassComplete func(Report)
}

func NewRunner(engine *Engine, log logging.Logger) *Runner {
	return &Runner{
		engine:   engine,
		log:      log,
		triggers: make(chan Trigger, triggerQueueSize),
		done:     make(chan struct{}),
	}
}

// RunSyncPass enqueues a pass request. It never blocks: when the queue is
// full a pass is already pending, which covers this trigger too.
func (r *Runner) RunSyncPass(t Trigger) {
	select {
	case r.triggers <- t:
	default:
	}
}

// Start launches the consumer. It returns immediately; Wait blocks until the
// consumer has drained after ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	go r.loop(ctx)
}

// Wait blocks until the consumer goroutine has exited.
func (r *Runner) Wait() {
	<-r.done
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-r.triggers:
			rep, err := r.engine.RunPass(ctx, t == TriggerFollowUp)
			switch {
			case errors.Is(err, ErrPassInFlight), errors.Is(err, ErrCooldown):
				r.log.Debug(ctx, "sync trigger absorbed", "trigger", t, "reason", err)
			case errors.Is(err, ErrNotConnected):
				r.log.Debug(ctx, "sync trigger ignored; not connected", "trigger", t)
			case err != nil:
				r.log.Error(ctx, "sync pass failed", "trigger", t, "err", err)
			default:
				if r.OnPassComplete != nil {
					r.OnPassComplete(rep)
				}
				if rep.FollowUp {
					r.RunSyncPass(TriggerFollowUp)
				}
			}
		}
	}
}
