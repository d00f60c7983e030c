package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"finsight/internal/amqp"
	"finsight/internal/core"
)

type recordingSubmitter struct {
	mu     sync.Mutex
	ids    []int64
	refuse bool
}

func (r *recordingSubmitter) Submit(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refuse {
		return false
	}
	r.ids = append(r.ids, id)
	return true
}

func TestEventWorker_HandleTransactionChanged(t *testing.T) {
	sub := &recordingSubmitter{}
	w := NewEventWorker(sub, nil)

	msg := amqp.NewTransactionChangedMessage(9, 1, amqp.ActionCreated)
	if err := w.HandleTransactionChanged(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sub.ids) != 1 || sub.ids[0] != 9 {
		t.Errorf("submitted = %v", sub.ids)
	}

	sub.refuse = true
	if err := w.HandleTransactionChanged(context.Background(), msg); !errors.Is(err, ErrDispatcherStopped) {
		t.Errorf("err = %v, want ErrDispatcherStopped", err)
	}
}

type fakeLister struct {
	since core.Date
	ids   []int64
	err   error
}

func (f *fakeLister) ActiveUserIDs(_ context.Context, since core.Date) ([]int64, error) {
	f.since = since
	return f.ids, f.err
}

func TestSweeper_SweepOnce(t *testing.T) {
	tests := []struct {
		name        string
		lister      *fakeLister
		refuse      bool
		wantCount   int
		wantErr     bool
		wantSubmits []int64
	}{
		{name: "submits every active user", lister: &fakeLister{ids: []int64{1, 2, 3}}, wantCount: 3, wantSubmits: []int64{1, 2, 3}},
		{name: "no active users", lister: &fakeLister{}, wantCount: 0},
		{name: "lister failure", lister: &fakeLister{err: core.ErrTransient}, wantErr: true},
		{name: "stopped dispatcher", lister: &fakeLister{ids: []int64{4}}, refuse: true, wantCount: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &recordingSubmitter{refuse: tt.refuse}
			s := NewSweeper(tt.lister, sub, SweeperConfig{Interval: time.Minute, WindowDays: 30}, nil)
			s.now = func() time.Time { return time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC) }

			n, err := s.SweepOnce(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if n != tt.wantCount {
				t.Errorf("submitted = %d, want %d", n, tt.wantCount)
			}
			if len(sub.ids) != len(tt.wantSubmits) {
				t.Errorf("submits = %v, want %v", sub.ids, tt.wantSubmits)
			}
			if tt.lister.since != core.NewDate(2026, 2, 14) {
				t.Errorf("since = %v, want 2026-02-14", tt.lister.since)
			}
		})
	}
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	lister := &fakeLister{ids: []int64{1}}
	sub := &recordingSubmitter{}
	s := NewSweeper(lister, sub, SweeperConfig{Interval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		sub.mu.Lock()
		n := len(sub.ids)
		sub.mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if len(sub.ids) != 1 {
		t.Errorf("initial sweep submits = %v", sub.ids)
	}
}
