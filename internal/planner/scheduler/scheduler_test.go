package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New("not a schedule", func() {})
	require.Error(t, err)
}

func TestSchedulerFiresTrigger(t *testing.T) {
	fired := make(chan struct{}, 1)
	s, err := New("@every 100ms", func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("schedule never fired")
	}
}
