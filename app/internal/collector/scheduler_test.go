package collector

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"mcnetwork/app/internal/models"
)

type countingRunner struct {
	n   atomic.Int32
	err error
}

func (r *countingRunner) Run(context.Context) (models.RunResult, error) {
	r.n.Add(1)
	return models.RunResult{}, r.err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScheduler_RunsImmediatelyThenTicks(t *testing.T) {
	r := &countingRunner{}
	s := NewScheduler(r, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	waitFor(t, func() bool { return r.n.Load() >= 3 })
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v, want context.Canceled", err)
	}
}

func TestScheduler_KeepsGoingOnErrors(t *testing.T) {
	r := &countingRunner{err: ErrRunInProgress}
	s := NewScheduler(r, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx)

	waitFor(t, func() bool { return r.n.Load() >= 2 })
}

func TestNewScheduler_DefaultInterval(t *testing.T) {
	s := NewScheduler(&countingRunner{}, 0)
	if s.interval != 5*time.Minute {
		t.Errorf("interval = %v", s.interval)
	}
	if s.String() != "collection-scheduler" {
		t.Errorf("String() = %q", s.String())
	}
}
