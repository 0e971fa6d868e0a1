package service

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/invosync/internal/clock"
	jobdomain "github.com/smallbiznis/invosync/internal/jobqueue/domain"
	webhookdomain "github.com/smallbiznis/invosync/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Enqueuer is the write side of the queue, the only part the HTTP layer
// sees. The 202 response contract depends on Enqueue being a single fast
// insert.
type Enqueuer interface {
	Enqueue(ctx context.Context, accountID snowflake.ID, eventGroup string, envelope *webhookdomain.Envelope) (*jobdomain.SyncJob, error)
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  jobdomain.Repository
}

type queueService struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  jobdomain.Repository
}

func New(p Params) Enqueuer {
	return &queueService{
		db:    p.DB,
		log:   p.Log.Named("jobqueue"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *queueService) Enqueue(ctx context.Context, accountID snowflake.ID, eventGroup string, envelope *webhookdomain.Envelope) (*jobdomain.SyncJob, error) {
	raw, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	job := &jobdomain.SyncJob{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		EventGroup: eventGroup,
		Envelope:   datatypes.JSON(raw),
		Status:     jobdomain.StatusPending,
		RunAt:      now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Enqueue(ctx, s.db, job); err != nil {
		return nil, err
	}

	s.log.Debug("job enqueued",
		zap.String("job_id", job.ID),
		zap.Int64("account_id", int64(accountID)),
		zap.String("event_type", envelope.EventType),
	)
	return job, nil
}
