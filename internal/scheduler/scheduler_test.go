package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSweeper struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSweeper) CloseDueRounds(context.Context) (int, error) {
	f.calls.Add(1)
	return 2, f.err
}

func TestSweepNow(t *testing.T) {
	f := &fakeSweeper{}
	s := New(context.Background(), f, nil)
	closed, err := s.SweepNow()
	if err != nil || closed != 2 || f.calls.Load() != 1 {
		t.Fatalf("closed=%d err=%v calls=%d", closed, err, f.calls.Load())
	}

	f.err = errors.New("store down")
	if _, err := s.SweepNow(); !errors.Is(err, f.err) {
		t.Fatalf("expected sweep error, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	s := New(context.Background(), &fakeSweeper{}, nil)
	if err := s.Register("not a spec"); err == nil {
		t.Fatalf("expected error for bad spec")
	}
	if err := s.Register("@every 1h"); err != nil {
		t.Fatalf("register: %v", err)
	}
}

func TestScheduledSweepRuns(t *testing.T) {
	f := &fakeSweeper{}
	s := New(context.Background(), f, nil)
	if err := s.Register("@every 1s"); err != nil {
		t.Fatalf("register: %v", err)
	}
	s.Start()
	deadline := time.Now().Add(5 * time.Second)
	for f.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	s.Stop()
	if f.calls.Load() == 0 {
		t.Fatalf("sweep never ran")
	}
}
