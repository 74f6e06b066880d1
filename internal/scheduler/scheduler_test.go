package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flexprice/flexbill/internal/api/dto"
	"github.com/flexprice/flexbill/internal/config"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingJobs struct {
	mu      sync.Mutex
	runs    []string
	err     error
	timeout bool
}

func (r *recordingJobs) Run(ctx context.Context, job string) (*dto.JobRunResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, job)
	_, hasDeadline := ctx.Deadline()
	r.timeout = hasDeadline
	if r.err != nil {
		return nil, r.err
	}
	return &dto.JobRunResponse{Job: job, Tenants: 1}, nil
}

func (r *recordingJobs) RunForTenant(ctx context.Context, job string) (int, error) {
	return 0, nil
}

func testConfig(schedules map[string]string) *config.Configuration {
	cfg := config.GetDefaultConfig()
	cfg.Scheduler.Schedules = schedules
	cfg.Scheduler.JobTimeout = time.Minute
	return cfg
}

func TestNewRegistersDefaultSchedules(t *testing.T) {
	s, err := New(testConfig(config.DefaultSchedules()), &recordingJobs{}, logger.NewNoopLogger(), nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, types.JobNames, s.Jobs())

	s.Start()
	defer func() { _ = s.Stop(context.Background()) }()

	next, ok := s.Next(types.JobDeliveryRetry)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), next, time.Minute+time.Second)
	assert.Equal(t, time.UTC, next.Location())
}

func TestNewRejectsBadSchedules(t *testing.T) {
	_, err := New(testConfig(map[string]string{"renewals": "0 0 * * *"}), &recordingJobs{}, logger.NewNoopLogger(), nil)
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))

	_, err = New(testConfig(map[string]string{types.JobRenewalDue: "every day"}), &recordingJobs{}, logger.NewNoopLogger(), nil)
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}

func TestEmptySpecDisablesJob(t *testing.T) {
	s, err := New(testConfig(map[string]string{
		types.JobRenewalDue: "5 0 * * *",
		types.JobPrune:      "",
	}), &recordingJobs{}, logger.NewNoopLogger(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{types.JobRenewalDue}, s.Jobs())
	_, ok := s.Next(types.JobPrune)
	assert.False(t, ok)
}

func TestRunUsesJobTimeout(t *testing.T) {
	jobs := &recordingJobs{}
	s, err := New(testConfig(map[string]string{}), jobs, logger.NewNoopLogger(), nil)
	require.NoError(t, err)

	s.run(types.JobRenewalDue)
	assert.Equal(t, []string{types.JobRenewalDue}, jobs.runs)
	assert.True(t, jobs.timeout)

	// a failing run is logged and does not panic the cron goroutine
	jobs.err = errors.New("database is down")
	s.run(types.JobPrune)
	assert.Len(t, jobs.runs, 2)
}
