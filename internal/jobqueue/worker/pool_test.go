package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/smallbiznis/invosync/internal/clock"
	"github.com/smallbiznis/invosync/internal/config"
	jobdomain "github.com/smallbiznis/invosync/internal/jobqueue/domain"
	jobrepository "github.com/smallbiznis/invosync/internal/jobqueue/repository"
	obsmetrics "github.com/smallbiznis/invosync/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type countingHandler struct {
	calls int
	err   error
}

func (h *countingHandler) Handle(ctx context.Context, job *jobdomain.SyncJob) error {
	h.calls++
	return h.err
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&jobdomain.SyncJob{}))
	return conn
}

func newTestPool(t *testing.T, conn *gorm.DB, clk clock.Clock, handler jobdomain.Handler) *Pool {
	t.Helper()
	obsmetrics.ResetMetricsForTest()
	return New(Params{
		Cfg: config.Config{Worker: config.WorkerConfig{
			BatchSize:   10,
			JobTimeout:  time.Second,
			MaxAttempts: 3,
			BackoffBase: time.Minute,
		}},
		DB:      conn,
		Log:     zap.NewNop(),
		Clock:   clk,
		Repo:    jobrepository.Provide(),
		Handler: handler,
	})
}

func enqueueTestJob(t *testing.T, conn *gorm.DB, clk clock.Clock) *jobdomain.SyncJob {
	t.Helper()
	now := clk.Now()
	job := &jobdomain.SyncJob{
		ID:         uuid.NewString(),
		AccountID:  42,
		EventGroup: "entity",
		Envelope:   []byte(`{"event_type":"it.fattureincloud.webhooks.entities.clients.create","resource_ids":[123]}`),
		Status:     jobdomain.StatusPending,
		RunAt:      now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, jobrepository.Provide().Enqueue(context.Background(), conn, job))
	return job
}

func TestRunOnceSuccess(t *testing.T) {
	conn := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	handler := &countingHandler{}
	pool := newTestPool(t, conn, clk, handler)
	job := enqueueTestJob(t, conn, clk)

	n, err := pool.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, handler.calls)

	stored, err := jobrepository.Provide().FindByID(context.Background(), conn, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusSucceeded, stored.Status)
	assert.NotNil(t, stored.FinishedAt)
	assert.Nil(t, stored.LastError)
}

func TestRetryBackoffThenDeadLetter(t *testing.T) {
	conn := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	handler := &countingHandler{err: errors.New("remote fetch failed")}
	pool := newTestPool(t, conn, clk, handler)
	job := enqueueTestJob(t, conn, clk)
	repo := jobrepository.Provide()
	ctx := context.Background()

	// First attempt fails and reschedules 60s out.
	n, err := pool.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := repo.FindByID(ctx, conn, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusPending, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	firstRunAt := stored.RunAt
	assert.Equal(t, clk.Now().Add(time.Minute).Unix(), firstRunAt.Unix())

	// Not yet due.
	clk.Advance(30 * time.Second)
	n, err = pool.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Second attempt fails and reschedules 120s out.
	clk.Advance(30 * time.Second)
	n, err = pool.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err = repo.FindByID(ctx, conn, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusPending, stored.Status)
	assert.Equal(t, 2, stored.Attempts)
	assert.Equal(t, clk.Now().Add(2*time.Minute).Unix(), stored.RunAt.Unix())
	assert.True(t, stored.RunAt.Sub(firstRunAt) > time.Minute)

	// Third attempt exhausts the retries and dead-letters.
	clk.Advance(2 * time.Minute)
	n, err = pool.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err = repo.FindByID(ctx, conn, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusDead, stored.Status)
	assert.Equal(t, 3, stored.Attempts)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "remote fetch failed", *stored.LastError)

	// Dead jobs are never claimed again.
	clk.Advance(time.Hour)
	n, err = pool.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 3, handler.calls)
}

func TestClaimSkipsFutureJobs(t *testing.T) {
	conn := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	repo := jobrepository.Provide()
	ctx := context.Background()

	now := clk.Now()
	future := &jobdomain.SyncJob{
		ID:         uuid.NewString(),
		AccountID:  42,
		EventGroup: "entity",
		Envelope:   []byte(`{}`),
		Status:     jobdomain.StatusPending,
		RunAt:      now.Add(time.Minute),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, repo.Enqueue(ctx, conn, future))

	claimed, err := repo.Claim(ctx, conn, now, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	claimed, err = repo.Claim(ctx, conn, now.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, jobdomain.StatusRunning, claimed[0].Status)

	// Running jobs are not claimable a second time.
	claimed, err = repo.Claim(ctx, conn, now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestCountByStatus(t *testing.T) {
	conn := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	repo := jobrepository.Provide()
	ctx := context.Background()

	enqueueTestJob(t, conn, clk)
	enqueueTestJob(t, conn, clk)

	pending, err := repo.CountByStatus(ctx, conn, jobdomain.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)

	dead, err := repo.CountByStatus(ctx, conn, jobdomain.StatusDead)
	require.NoError(t, err)
	assert.Equal(t, int64(0), dead)
}
