// Package worker runs the sync job pool: claim due jobs, execute them with
// a bounded timeout, retry with escalating backoff, dead-letter on
// exhaustion.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/invosync/internal/clock"
	"github.com/smallbiznis/invosync/internal/config"
	jobdomain "github.com/smallbiznis/invosync/internal/jobqueue/domain"
	obsmetrics "github.com/smallbiznis/invosync/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg     config.Config
	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    jobdomain.Repository
	Handler jobdomain.Handler
}

type Pool struct {
	cfg     config.WorkerConfig
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	repo    jobdomain.Repository
	handler jobdomain.Handler

	cancel context.CancelFunc
	done   chan struct{}
}

func New(p Params) *Pool {
	return &Pool{
		cfg:     p.Cfg.Worker,
		db:      p.DB,
		log:     p.Log.Named("worker"),
		clock:   p.Clock,
		repo:    p.Repo,
		handler: p.Handler,
	}
}

// Start launches the poll loop plus the worker goroutines and returns.
func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	jobs := make(chan jobdomain.SyncJob)
	var wg sync.WaitGroup
	for i := 0; i < p.poolSize(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				p.execute(ctx, &job)
			}
		}()
	}

	go func() {
		defer close(p.done)
		defer func() {
			close(jobs)
			wg.Wait()
		}()

		ticker := time.NewTicker(p.pollInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				claimed, err := p.repo.Claim(ctx, p.db, p.clock.Now(), p.cfg.BatchSize)
				if err != nil {
					p.log.Error("claim jobs", zap.Error(err))
					continue
				}
				for _, job := range claimed {
					select {
					case jobs <- job:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	p.log.Info("worker pool started",
		zap.Int("pool_size", p.poolSize()),
		zap.Duration("poll_interval", p.pollInterval()),
	)
}

// Stop halts polling and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.log.Info("worker pool stopped")
}

// RunOnce claims and executes one batch synchronously. Used by tests and
// one-shot maintenance runs.
func (p *Pool) RunOnce(ctx context.Context) (int, error) {
	claimed, err := p.repo.Claim(ctx, p.db, p.clock.Now(), p.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for i := range claimed {
		p.execute(ctx, &claimed[i])
	}
	return len(claimed), nil
}

func (p *Pool) execute(ctx context.Context, job *jobdomain.SyncJob) {
	workerMetrics := obsmetrics.Worker()
	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout())
	defer cancel()

	start := time.Now()
	err := p.handler.Handle(jobCtx, job)
	workerMetrics.ObserveJobDuration(time.Since(start))

	now := p.clock.Now()
	if err == nil {
		workerMetrics.IncJobRun("succeeded")
		if merr := p.repo.MarkSucceeded(ctx, p.db, job.ID, now); merr != nil {
			p.log.Error("mark job succeeded", zap.String("job_id", job.ID), zap.Error(merr))
		}
		return
	}

	attempts := job.Attempts + 1
	if attempts >= p.maxAttempts() {
		workerMetrics.IncJobRun("dead")
		workerMetrics.IncJobDead()
		p.log.Error("job dead-lettered",
			zap.String("job_id", job.ID),
			zap.Int64("account_id", int64(job.AccountID)),
			zap.String("event_group", job.EventGroup),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		if merr := p.repo.MarkDead(ctx, p.db, job.ID, err.Error(), now); merr != nil {
			p.log.Error("mark job dead", zap.String("job_id", job.ID), zap.Error(merr))
		}
		return
	}

	delay := p.backoff(attempts)
	workerMetrics.IncJobRun("retried")
	workerMetrics.IncJobRetry()
	p.log.Warn("job failed, rescheduling",
		zap.String("job_id", job.ID),
		zap.Int("attempts", attempts),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
	if merr := p.repo.Reschedule(ctx, p.db, job.ID, now.Add(delay), err.Error(), now); merr != nil {
		p.log.Error("reschedule job", zap.String("job_id", job.ID), zap.Error(merr))
	}
}

// backoff doubles per completed attempt: base, 2*base, 4*base...
func (p *Pool) backoff(attempts int) time.Duration {
	base := p.cfg.BackoffBase
	if base <= 0 {
		base = time.Minute
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
	}
	return delay
}

func (p *Pool) poolSize() int {
	if p.cfg.PoolSize <= 0 {
		return 4
	}
	return p.cfg.PoolSize
}

func (p *Pool) pollInterval() time.Duration {
	if p.cfg.PollInterval <= 0 {
		return 2 * time.Second
	}
	return p.cfg.PollInterval
}

func (p *Pool) jobTimeout() time.Duration {
	if p.cfg.JobTimeout <= 0 {
		return 120 * time.Second
	}
	return p.cfg.JobTimeout
}

func (p *Pool) maxAttempts() int {
	if p.cfg.MaxAttempts <= 0 {
		return 3
	}
	return p.cfg.MaxAttempts
}
