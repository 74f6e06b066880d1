package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/flexprice/flexbill/internal/config"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/sentry"
	"github.com/flexprice/flexbill/internal/service"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"go.uber.org/fx"
)

// DefaultJobTimeout bounds one run of a job across every app
const DefaultJobTimeout = 10 * time.Minute

// Scheduler runs the billing sweeps on their cron specs, in UTC
type Scheduler struct {
	cron    *cron.Cron
	jobs    service.JobService
	timeout time.Duration
	logger  *logger.Logger
	sentry  *sentry.Service
	entries map[string]cron.EntryID
}

// New registers every configured schedule. An unknown job name or a bad spec
// fails construction, so a typo never silently disables a sweep.
func New(cfg *config.Configuration, jobs service.JobService, log *logger.Logger, sentrySvc *sentry.Service) (*Scheduler, error) {
	adapter := cronLogger{log: log}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		jobs:    jobs,
		timeout: lo.Ternary(cfg.Scheduler.JobTimeout > 0, cfg.Scheduler.JobTimeout, DefaultJobTimeout),
		logger:  log,
		sentry:  sentrySvc,
		entries: make(map[string]cron.EntryID),
	}

	names := lo.Keys(cfg.Scheduler.Schedules)
	sort.Strings(names)
	for _, job := range names {
		spec := cfg.Scheduler.Schedules[job]
		if !lo.Contains(types.JobNames, job) {
			return nil, ierr.NewError("unknown scheduled job").
				WithHintf("Job %s does not exist", job).
				WithReportableDetails(map[string]any{"job": job, "jobs": types.JobNames}).
				Mark(ierr.ErrValidation)
		}
		if spec == "" {
			continue
		}

		job := job
		id, err := s.cron.AddFunc(spec, func() { s.run(job) })
		if err != nil {
			return nil, ierr.WithError(err).
				WithHintf("Invalid cron spec %q for job %s", spec, job).
				Mark(ierr.ErrValidation)
		}
		s.entries[job] = id
	}

	return s, nil
}

// Jobs returns the names of the scheduled jobs
func (s *Scheduler) Jobs() []string {
	names := lo.Keys(s.entries)
	sort.Strings(names)
	return names
}

// Next returns the next run time of job
func (s *Scheduler) Next(job string) (time.Time, bool) {
	id, ok := s.entries[job]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Infow("scheduler started", "jobs", s.Jobs())
}

// Stop stops scheduling and waits for running jobs until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(job string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	span, ctx := s.sentry.StartSpan(ctx, "scheduler.job", job)
	defer sentry.FinishSpan(span)

	resp, err := s.jobs.Run(ctx, job)
	if err != nil {
		s.logger.Errorw("scheduled job failed", "job", job, "error", err)
		s.sentry.CaptureException(ctx, err)
		return
	}
	if resp.Errors > 0 {
		s.logger.Warnw("scheduled job finished with errors",
			"job", job,
			"tenants", resp.Tenants,
			"errors", resp.Errors)
	}
}

// RegisterHooks starts the scheduler with the fx app and stops it on shutdown
func RegisterHooks(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})
}

// cronLogger routes cron's own logging to zap
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
