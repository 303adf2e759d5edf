package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirajabi/dlengine/internal/model"
)

func TestScheduleFiresEnqueueAfterDelay(t *testing.T) {
	fired := make(chan model.Request, 1)
	s := New(func(req model.Request) { fired <- req })

	req := model.NewRequest("http://example.invalid/f", "f.bin", model.WithID("sched-1"))
	s.Schedule(req, time.Now().Add(20*time.Millisecond))

	select {
	case got := <-fired:
		assert.Equal(t, "sched-1", got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scheduled enqueue")
	}
}

func TestScheduleInThePastFiresOnNextTick(t *testing.T) {
	fired := make(chan model.Request, 1)
	s := New(func(req model.Request) { fired <- req })

	req := model.NewRequest("http://example.invalid/f", "f.bin", model.WithID("sched-past"))
	s.Schedule(req, time.Now().Add(-time.Hour))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for past-due scheduled enqueue")
	}
}

func TestCancelScheduledStopsPendingTrigger(t *testing.T) {
	fired := make(chan model.Request, 1)
	s := New(func(req model.Request) { fired <- req })

	req := model.NewRequest("http://example.invalid/f", "f.bin", model.WithID("sched-cancel"))
	id := s.Schedule(req, time.Now().Add(50*time.Millisecond))
	s.CancelScheduled(id)

	select {
	case <-fired:
		t.Fatal("cancelled trigger must not fire")
	case <-time.After(150 * time.Millisecond):
	}

	_, stillPending := s.timers[id]
	require.False(t, stillPending)
}

func TestCancelScheduledUnknownIDIsNoop(t *testing.T) {
	s := New(func(model.Request) {})
	assert.NotPanics(t, func() { s.CancelScheduled("does-not-exist") })
}
