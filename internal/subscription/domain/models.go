// Package domain models webhook subscriptions: a registered interest in a
// category of remote events, with a shared secret for authenticating
// deliveries.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Event groups known to the platform. The group is part of the webhook URL
// and scopes which event types a subscription covers.
const (
	GroupEntity          = "entity"
	GroupIssuedDocuments = "issued_documents"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found or inactive")
	ErrUnknownEventGroup    = errors.New("unknown event group")
	ErrEncryptionKeyMissing = errors.New("secret encryption key not configured")
	ErrSecretCorrupted      = errors.New("stored webhook secret is corrupted")
)

// Subscription mirrors one webhook subscription registered with the
// external platform. WebhookSecret holds the shared secret encrypted at
// rest; use the service to read it in clear.
type Subscription struct {
	ID                     snowflake.ID `gorm:"primaryKey"`
	AccountID              snowflake.ID `gorm:"not null;index:idx_subscriptions_account_group,priority:1"`
	ExternalSubscriptionID string       `gorm:"not null;uniqueIndex:uq_subscriptions_external"`
	EventGroup             string       `gorm:"not null;index:idx_subscriptions_account_group,priority:2"`
	WebhookSecret          string       `gorm:"type:text;not null"`
	ExpiresAt              *time.Time   `gorm:""`
	IsActive               bool         `gorm:"not null;default:true"`
	CreatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Subscription) TableName() string { return "subscriptions" }

// EventTypesForGroup lists the canonical event types a group subscribes to.
func EventTypesForGroup(group string) ([]string, error) {
	switch group {
	case GroupEntity:
		return []string{
			"it.fattureincloud.webhooks.entities.clients.create",
			"it.fattureincloud.webhooks.entities.clients.update",
			"it.fattureincloud.webhooks.entities.clients.delete",
			"it.fattureincloud.webhooks.entities.suppliers.create",
			"it.fattureincloud.webhooks.entities.suppliers.update",
			"it.fattureincloud.webhooks.entities.suppliers.delete",
		}, nil
	case GroupIssuedDocuments:
		return []string{
			"it.fattureincloud.webhooks.issued_documents.invoices.create",
			"it.fattureincloud.webhooks.issued_documents.invoices.update",
			"it.fattureincloud.webhooks.issued_documents.invoices.delete",
			"it.fattureincloud.webhooks.issued_documents.quotes.create",
			"it.fattureincloud.webhooks.issued_documents.quotes.update",
			"it.fattureincloud.webhooks.issued_documents.quotes.delete",
		}, nil
	default:
		return nil, ErrUnknownEventGroup
	}
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	Update(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	// FindActive returns the active subscription for (account, group) or
	// ErrSubscriptionNotFound.
	FindActive(ctx context.Context, db *gorm.DB, accountID snowflake.ID, eventGroup string) (*Subscription, error)
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]Subscription, error)
}

// Service manages the subscription lifecycle against the remote platform
// and is the only component that sees webhook secrets in clear.
type Service interface {
	Register(ctx context.Context, accountID snowflake.ID, eventGroup, sink string) (*Subscription, error)
	Deactivate(ctx context.Context, id snowflake.ID) error
	List(ctx context.Context, accountID snowflake.ID) ([]Subscription, error)

	// ActiveWithSecret resolves the active subscription for a delivery and
	// returns its decrypted shared secret.
	ActiveWithSecret(ctx context.Context, accountID snowflake.ID, eventGroup string) (*Subscription, string, error)

	// TouchDelivery extends expires_at after a verified delivery.
	TouchDelivery(ctx context.Context, sub *Subscription) error
}
