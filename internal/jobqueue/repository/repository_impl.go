package repository

import (
	"context"
	"errors"
	"time"

	jobdomain "github.com/smallbiznis/invosync/internal/jobqueue/domain"
	"github.com/smallbiznis/invosync/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() jobdomain.Repository {
	return &repo{}
}

func (r *repo) Enqueue(ctx context.Context, conn *gorm.DB, job *jobdomain.SyncJob) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO sync_jobs (
			id, account_id, event_group, envelope, attempts, status, run_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.AccountID,
		job.EventGroup,
		job.Envelope,
		job.Attempts,
		job.Status,
		job.RunAt,
		job.CreatedAt,
		job.UpdatedAt,
	).Error
}

func (r *repo) Claim(ctx context.Context, conn *gorm.DB, now time.Time, limit int) ([]jobdomain.SyncJob, error) {
	if limit <= 0 {
		limit = 10
	}

	var claimed []jobdomain.SyncJob
	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := `SELECT id, account_id, event_group, envelope, attempts, status, run_at,
		                 started_at, finished_at, last_error, created_at, updated_at
		          FROM sync_jobs
		          WHERE status = ? AND run_at <= ?
		          ORDER BY run_at, id
		          LIMIT ?`
		// SQLite has no row locks; the surrounding transaction is enough
		// for a single-process test database.
		if db.SupportsSkipLocked(conn) {
			query += `
		          FOR UPDATE SKIP LOCKED`
		}

		var jobs []jobdomain.SyncJob
		if err := tx.Raw(query, jobdomain.StatusPending, now, limit).Scan(&jobs).Error; err != nil {
			return err
		}
		for i := range jobs {
			result := tx.Exec(
				`UPDATE sync_jobs
				 SET status = ?, started_at = ?, updated_at = ?
				 WHERE id = ? AND status = ?`,
				jobdomain.StatusRunning,
				now,
				now,
				jobs[i].ID,
				jobdomain.StatusPending,
			)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				continue
			}
			jobs[i].Status = jobdomain.StatusRunning
			started := now
			jobs[i].StartedAt = &started
			claimed = append(claimed, jobs[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *repo) MarkSucceeded(ctx context.Context, conn *gorm.DB, id string, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE sync_jobs
		 SET status = ?, finished_at = ?, last_error = NULL, updated_at = ?
		 WHERE id = ?`,
		jobdomain.StatusSucceeded,
		now,
		now,
		id,
	).Error
}

func (r *repo) Reschedule(ctx context.Context, conn *gorm.DB, id string, runAt time.Time, lastError string, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE sync_jobs
		 SET status = ?, attempts = attempts + 1, run_at = ?, last_error = ?,
		     started_at = NULL, updated_at = ?
		 WHERE id = ?`,
		jobdomain.StatusPending,
		runAt,
		lastError,
		now,
		id,
	).Error
}

func (r *repo) MarkDead(ctx context.Context, conn *gorm.DB, id string, lastError string, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE sync_jobs
		 SET status = ?, attempts = attempts + 1, finished_at = ?, last_error = ?, updated_at = ?
		 WHERE id = ?`,
		jobdomain.StatusDead,
		now,
		lastError,
		now,
		id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id string) (*jobdomain.SyncJob, error) {
	var job jobdomain.SyncJob
	err := conn.WithContext(ctx).Where(`id = ?`, id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, jobdomain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *repo) CountByStatus(ctx context.Context, conn *gorm.DB, status jobdomain.Status) (int64, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM sync_jobs WHERE status = ?`, status,
	).Scan(&count).Error
	return count, err
}
