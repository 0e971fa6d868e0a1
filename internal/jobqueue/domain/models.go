// Package domain defines the durable sync job queue. Jobs survive process
// restarts; delivery is at-least-once and downstream handlers must be
// idempotent.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusDead      Status = "dead"
)

var ErrJobNotFound = errors.New("sync job not found")

// SyncJob is one enqueued notification envelope awaiting processing.
// Attempts counts executions so far; RunAt is when the job next becomes
// claimable.
type SyncJob struct {
	ID         string         `gorm:"primaryKey"`
	AccountID  snowflake.ID   `gorm:"not null"`
	EventGroup string         `gorm:"not null"`
	Envelope   datatypes.JSON `gorm:"not null"`
	Attempts   int            `gorm:"not null;default:0"`
	Status     Status         `gorm:"type:text;not null;default:'pending';index:idx_sync_jobs_claim,priority:1"`
	RunAt      time.Time      `gorm:"not null;index:idx_sync_jobs_claim,priority:2"`
	StartedAt  *time.Time     `gorm:""`
	FinishedAt *time.Time     `gorm:""`
	LastError  *string        `gorm:"type:text"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (SyncJob) TableName() string { return "sync_jobs" }

type Repository interface {
	Enqueue(ctx context.Context, db *gorm.DB, job *SyncJob) error
	// Claim atomically moves up to limit due pending jobs to running and
	// returns them. Concurrent claimers never receive the same job.
	Claim(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]SyncJob, error)
	MarkSucceeded(ctx context.Context, db *gorm.DB, id string, now time.Time) error
	// Reschedule returns a failed job to pending with a future run_at.
	Reschedule(ctx context.Context, db *gorm.DB, id string, runAt time.Time, lastError string, now time.Time) error
	MarkDead(ctx context.Context, db *gorm.DB, id string, lastError string, now time.Time) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*SyncJob, error)
	CountByStatus(ctx context.Context, db *gorm.DB, status Status) (int64, error)
}

// Handler executes one claimed job. Implemented by the sync engine;
// defined here so the worker pool does not depend on it.
type Handler interface {
	Handle(ctx context.Context, job *SyncJob) error
}
