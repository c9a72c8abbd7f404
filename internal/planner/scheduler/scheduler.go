// Package scheduler fires timer-triggered sync passes on a cron schedule.
// It is a trigger producer only; the sync runner's single consumer decides
// whether a pass actually runs.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	cron *cron.Cron
}

// New builds a scheduler that calls trigger on the given cron spec
// (standard five-field syntax or descriptors like "@every 5m").
func New(spec string, trigger func()) (*Scheduler, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, trigger); err != nil {
		return nil, fmt.Errorf("bad sync schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running trigger callback to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
