// Package domain contains persistence models for resources synchronized from
// the invoicing platform.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Type identifies a synchronized resource kind.
type Type string

const (
	TypeClient   Type = "client"
	TypeSupplier Type = "supplier"
	TypeInvoice  Type = "invoice"
	TypeQuote    Type = "quote"
)

// ParseType maps the plural wire segment ("clients", "quotes", ...) onto a
// resource type.
func ParseType(segment string) (Type, bool) {
	switch segment {
	case "clients":
		return TypeClient, true
	case "suppliers":
		return TypeSupplier, true
	case "invoices":
		return TypeInvoice, true
	case "quotes":
		return TypeQuote, true
	default:
		return "", false
	}
}

// Client mirrors an entity customer record from the remote platform.
type Client struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	AccountID  snowflake.ID   `gorm:"not null;uniqueIndex:uq_clients_account_external"`
	ExternalID int64          `gorm:"not null;uniqueIndex:uq_clients_account_external"`
	Name       string         `gorm:"type:text;not null"`
	Code       string         `gorm:"type:text;not null"`
	VatNumber  string         `gorm:"type:text;not null"`
	Raw        datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Client) TableName() string { return "clients" }

// Supplier mirrors an entity supplier record from the remote platform.
type Supplier struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	AccountID  snowflake.ID   `gorm:"not null;uniqueIndex:uq_suppliers_account_external"`
	ExternalID int64          `gorm:"not null;uniqueIndex:uq_suppliers_account_external"`
	Name       string         `gorm:"type:text;not null"`
	Code       string         `gorm:"type:text;not null"`
	VatNumber  string         `gorm:"type:text;not null"`
	Raw        datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Supplier) TableName() string { return "suppliers" }

// Invoice mirrors an issued document of type invoice.
type Invoice struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	AccountID  snowflake.ID   `gorm:"not null;uniqueIndex:uq_invoices_account_external"`
	ExternalID int64          `gorm:"not null;uniqueIndex:uq_invoices_account_external"`
	Number     string         `gorm:"type:text;not null"`
	Status     string         `gorm:"type:text;not null"`
	Total      float64        `gorm:"not null"`
	IssuedOn   *time.Time     `gorm:""`
	Raw        datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Invoice) TableName() string { return "invoices" }

// Quote mirrors an issued document of type quote.
type Quote struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	AccountID  snowflake.ID   `gorm:"not null;uniqueIndex:uq_quotes_account_external"`
	ExternalID int64          `gorm:"not null;uniqueIndex:uq_quotes_account_external"`
	Number     string         `gorm:"type:text;not null"`
	Status     string         `gorm:"type:text;not null"`
	Total      float64        `gorm:"not null"`
	IssuedOn   *time.Time     `gorm:""`
	Raw        datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Quote) TableName() string { return "quotes" }

// Repository persists synced resources. Upserts are keyed by
// (account_id, external_id), which makes replays idempotent.
type Repository interface {
	UpsertClient(ctx context.Context, db *gorm.DB, row *Client) error
	UpsertSupplier(ctx context.Context, db *gorm.DB, row *Supplier) error
	UpsertInvoice(ctx context.Context, db *gorm.DB, row *Invoice) error
	UpsertQuote(ctx context.Context, db *gorm.DB, row *Quote) error
	Delete(ctx context.Context, db *gorm.DB, typ Type, accountID snowflake.ID, externalID int64) (bool, error)
}
