package postgres

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakePurger struct {
	cutoff time.Time
	calls  int
	err    error
}

func (p *fakePurger) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.calls++
	p.cutoff = cutoff
	return 3, p.err
}

func TestRetentionJobUsesWindow(t *testing.T) {
	purger := &fakePurger{}
	job := NewRetentionJob(purger, 30*24*time.Hour, "", nil)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	n, err := job.RunOnce(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("expected 3 deleted, got %d (%v)", n, err)
	}
	if want := now.Add(-30 * 24 * time.Hour); !purger.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, purger.cutoff)
	}
	if job.schedule != "@daily" {
		t.Fatalf("expected default daily schedule, got %s", job.schedule)
	}
}

func TestRetentionJobDisabledAndErrors(t *testing.T) {
	purger := &fakePurger{}
	job := NewRetentionJob(purger, 0, "@hourly", nil)
	if n, err := job.RunOnce(context.Background()); n != 0 || err != nil || purger.calls != 0 {
		t.Fatalf("zero retention must not purge")
	}

	purger.err = errors.New("boom")
	job = NewRetentionJob(purger, time.Hour, "@hourly", nil)
	if _, err := job.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected purge error")
	}
}

func TestRetentionJobRejectsBadSchedule(t *testing.T) {
	job := NewRetentionJob(&fakePurger{}, time.Hour, "not a schedule", nil)
	if err := job.Start(); err == nil {
		job.Stop()
		t.Fatalf("expected invalid schedule to fail")
	}
}
