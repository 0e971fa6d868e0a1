// Package domain is the append-only audit log of received notifications.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Event records one resource id from one notification. A row is inserted
// as pending at ingest and flipped to processed or failed by the worker;
// beyond that flip rows are never updated or deleted except by cascading
// account deletion.
type Event struct {
	ID                 snowflake.ID   `gorm:"primaryKey"`
	AccountID          snowflake.ID   `gorm:"not null;index:idx_events_account"`
	EventType          string         `gorm:"not null"`
	ResourceType       string         `gorm:"not null"`
	ExternalResourceID int64          `gorm:"not null"`
	OccurredAt         time.Time      `gorm:"not null"`
	Payload            datatypes.JSON `gorm:""`
	Status             Status         `gorm:"type:text;not null;default:'pending'"`
	CreatedAt          time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Event) TableName() string { return "events" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *Event) error

	// MarkStatus flips rows matching (account, event type, external id)
	// from one status to another and reports whether any row changed.
	MarkStatus(ctx context.Context, db *gorm.DB, accountID snowflake.ID, eventType string, externalID int64, from, to Status) (bool, error)

	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]Event, error)
}
