package jobs

import (
	"context"
	"errors"
	"testing"
)

type countingJob struct {
	name  string
	calls int
	err   error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) (any, error) {
	j.calls++
	return map[string]int{"calls": j.calls}, j.err
}

func TestRunNowExecutesRegisteredJob(t *testing.T) {
	svc := New(nil)
	job := &countingJob{name: "leave_escalation"}
	svc.RegisterPeriodic(job, 0)

	details, err := svc.RunNow(context.Background(), "leave_escalation")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.calls != 1 {
		t.Fatalf("expected 1 call, got %d", job.calls)
	}
	got, ok := details.(map[string]int)
	if !ok || got["calls"] != 1 {
		t.Fatalf("unexpected details: %#v", details)
	}
}

func TestRunNowUnknownJob(t *testing.T) {
	svc := New(nil)
	if _, err := svc.RunNow(context.Background(), "missing"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob, got %v", err)
	}
}

func TestRunNowPropagatesJobError(t *testing.T) {
	svc := New(nil)
	boom := errors.New("boom")
	svc.Register(&countingJob{name: "failing", err: boom})
	if _, err := svc.RunNow(context.Background(), "failing"); !errors.Is(err, boom) {
		t.Fatalf("expected job error, got %v", err)
	}
}

func TestRegisterPeriodicIgnoresZeroInterval(t *testing.T) {
	svc := New(nil)
	svc.RegisterPeriodic(&countingJob{name: "off"}, 0)
	svc.RegisterPeriodic(&countingJob{name: "on"}, 1)
	if len(svc.periodic) != 1 || svc.periodic[0].job.Name() != "on" {
		t.Fatalf("unexpected periodic set: %#v", svc.periodic)
	}
}
