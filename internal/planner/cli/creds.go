package cli

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/studyplan/internal/planner/persist"
	"github.com/dmitrijs2005/studyplan/internal/planner/remote"
)

// unlockingCredentialSource hands the sync engine whatever credential store
// is currently unlocked. Before connect (or after disconnect) it reports
// not-connected, which the runner treats as a quietly ignored trigger.
type unlockingCredentialSource struct {
	app *App

	mu       sync.Mutex
	unlocked *persist.CredentialStore
}

func (s *unlockingCredentialSource) set(cs *persist.CredentialStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlocked = cs
}

func (s *unlockingCredentialSource) Credential(ctx context.Context) (remote.Credential, error) {
	s.mu.Lock()
	cs := s.unlocked
	s.mu.Unlock()

	if cs == nil {
		return remote.Credential{}, persist.ErrNotConnected
	}
	return cs.Credential(ctx)
}

func (s *unlockingCredentialSource) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	cs := s.unlocked
	s.unlocked = nil
	s.mu.Unlock()

	if cs == nil {
		return nil
	}
	return cs.Invalidate(ctx)
}
