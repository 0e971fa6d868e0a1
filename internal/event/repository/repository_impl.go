package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/smallbiznis/invosync/internal/event/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() eventdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *eventdomain.Event) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO events (
			id, account_id, event_type, resource_type, external_resource_id,
			occurred_at, payload, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.AccountID,
		event.EventType,
		event.ResourceType,
		event.ExternalResourceID,
		event.OccurredAt,
		event.Payload,
		event.Status,
		event.CreatedAt,
	).Error
}

func (r *repo) MarkStatus(ctx context.Context, db *gorm.DB, accountID snowflake.ID, eventType string, externalID int64, from, to eventdomain.Status) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE events
		 SET status = ?
		 WHERE account_id = ? AND event_type = ? AND external_resource_id = ? AND status = ?`,
		to, accountID, eventType, externalID, from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]eventdomain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []eventdomain.Event
	err := db.WithContext(ctx).
		Where(`account_id = ?`, accountID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
