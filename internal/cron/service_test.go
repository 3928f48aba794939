package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type fakeLocker struct {
	held     map[string]bool
	released []string
	err      error
}

func (f *fakeLocker) Acquire(_ context.Context, job string) (func(context.Context) error, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if f.held[job] {
		return nil, false, nil
	}
	return func(context.Context) error {
		f.released = append(f.released, job)
		return nil
	}, true, nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newCronService(t *testing.T, locker Locker, reg *prometheus.Registry, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: registry,
		Locker:   locker,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return svc
}

func TestRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "ok"}
	failing := &testJob{name: "fail", err: errors.New("boom")}
	locker := &fakeLocker{}
	svc := newCronService(t, locker, prometheus.NewRegistry(), ok, failing)

	svc.runCycle(context.Background())

	if ok.runs != 1 || failing.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", ok.runs, failing.runs)
	}
	if len(locker.released) != 2 {
		t.Fatalf("expected both locks released, got %v", locker.released)
	}
}

func TestRunCycleSkipsJobsHeldElsewhere(t *testing.T) {
	held := &testJob{name: "inventory-sync"}
	free := &testJob{name: "outbox-retention"}
	locker := &fakeLocker{held: map[string]bool{"inventory-sync": true}}
	reg := prometheus.NewRegistry()
	svc := newCronService(t, locker, reg, held, free)

	svc.runCycle(context.Background())

	if held.runs != 0 {
		t.Fatalf("expected held job skipped")
	}
	if free.runs != 1 {
		t.Fatalf("expected free job to run")
	}
	count, err := testutil.GatherAndCount(reg, "storefront_cron_job_runs_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected a skipped and a succeeded series, got %d", count)
	}
}

func TestRunCycleCountsLockErrorsAsFailures(t *testing.T) {
	job := &testJob{name: "checkout-session-expiry"}
	svc := newCronService(t, &fakeLocker{err: errors.New("redis down")}, prometheus.NewRegistry(), job)

	svc.runCycle(context.Background())

	if job.runs != 0 {
		t.Fatalf("expected job not to run without a lock")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "ok"}
	svc := newCronService(t, &fakeLocker{}, prometheus.NewRegistry(), job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected no job to start on a cancelled context, got %d", job.runs)
	}
}

type panicJob struct{}

func (panicJob) Name() string { return "explodes" }

func (panicJob) Run(context.Context) error { panic("nil map write") }

func TestRunCycleRecoversPanickingJob(t *testing.T) {
	after := &testJob{name: "after"}
	locker := &fakeLocker{}
	svc := newCronService(t, locker, prometheus.NewRegistry(), panicJob{}, after)

	svc.runCycle(context.Background())

	if after.runs != 1 {
		t.Fatalf("expected the job after the panic to run")
	}
	if len(locker.released) != 2 {
		t.Fatalf("expected the panicking job's lock released, got %v", locker.released)
	}
}

type deadlineJob struct{ hadDeadline bool }

func (d *deadlineJob) Name() string { return "bounded" }

func (d *deadlineJob) Run(ctx context.Context) error {
	_, d.hadDeadline = ctx.Deadline()
	return nil
}

func TestRunJobAppliesTimeout(t *testing.T) {
	job := &deadlineJob{}
	svc := newCronService(t, &fakeLocker{}, prometheus.NewRegistry(), job)
	svc.timeout = time.Minute

	svc.runCycle(context.Background())

	if !job.hadDeadline {
		t.Fatalf("expected the job context to carry a deadline")
	}
}

func TestRunCycleStopsWhenCancelled(t *testing.T) {
	job := &testJob{name: "ok"}
	svc := newCronService(t, &fakeLocker{}, prometheus.NewRegistry(), job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc.runCycle(ctx)

	if job.runs != 0 {
		t.Fatalf("expected no runs after cancellation")
	}
}
