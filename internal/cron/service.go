package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const defaultInterval = time.Minute

// ServiceParams configure the cron service. Timeout bounds a single job run
// and should stay below the lock TTL; zero leaves runs unbounded.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locker   Locker
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	Timeout  time.Duration
}

// Service gives every registered job one locked run per tick.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locker   Locker
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	timeout  time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Locker == nil:
		return nil, errors.New("locker required")
	}
	s := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		locker:   params.Locker,
		metrics:  params.Metrics,
		interval: params.Interval,
		timeout:  params.Timeout,
	}
	if s.registry == nil {
		s.registry = &Registry{}
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	return s, nil
}

// Run ticks immediately and then every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.runCycle(ctx)
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runCycle runs each job in registration order; one job failing or
// panicking does not stop the others.
func (s *Service) runCycle(ctx context.Context) {
	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			return
		}
		s.runJob(ctx, job)
	}
}

func (s *Service) runJob(ctx context.Context, job Job) {
	name := job.Name()
	ctx = s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})

	release, acquired, err := s.locker.Acquire(ctx, name)
	switch {
	case err != nil:
		s.logg.Error(ctx, "job lock failed", err)
		s.metrics.Run(name, metrics.CronFailed)
		return
	case !acquired:
		s.logg.Debug(ctx, "job held by another worker, skipping")
		s.metrics.Run(name, metrics.CronSkipped)
		return
	}
	defer func() {
		// release even when the run's context timed out
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "job lock release failed", err)
		}
	}()

	start := time.Now()
	err = s.invoke(ctx, job)
	elapsed := time.Since(start)
	s.metrics.ObserveDuration(name, elapsed)

	ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		s.metrics.Run(name, metrics.CronFailed)
		return
	}
	s.logg.Debug(ctx, "job completed")
	s.metrics.Run(name, metrics.CronSucceeded)
}

func (s *Service) invoke(ctx context.Context, job Job) (err error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return job.Run(ctx)
}
