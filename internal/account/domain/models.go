// Package domain contains the per-tenant binding between a team and one
// external company, including its OAuth credentials.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Status represents lifecycle states for an account connection.
type Status string

const (
	StatusActive       Status = "active"
	StatusNeedsRefresh Status = "needs_refresh"
	StatusRevoked      Status = "revoked"
	StatusSuspended    Status = "suspended"
	StatusDisconnected Status = "disconnected"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrNoCompanyAvailable = errors.New("no company available for this account")
	ErrInvalidTransition  = errors.New("invalid account status transition")
)

// Account binds a team to one external company's OAuth credentials.
// external_company_id is unique: at most one account per remote company.
type Account struct {
	ID                snowflake.ID `gorm:"primaryKey"`
	TeamID            *int64       `gorm:"index"`
	ExternalCompanyID int64        `gorm:"not null;uniqueIndex:uq_accounts_external_company"`
	AccessToken       string       `gorm:"type:text;not null"`
	RefreshToken      string       `gorm:"type:text;not null"`
	TokenExpiresAt    *time.Time   `gorm:""`
	Status            Status       `gorm:"type:text;not null"`
	WebhookEnabled    bool         `gorm:"not null;default:false"`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Account) TableName() string { return "accounts" }

// TokenValid reports whether the stored access token is still usable.
// Accounts without a recorded expiry are assumed valid.
func (a *Account) TokenValid(now time.Time) bool {
	if a.Status != StatusActive {
		return false
	}
	if a.TokenExpiresAt == nil {
		return true
	}
	return now.Before(*a.TokenExpiresAt)
}

// CanTransition enforces the monotonic status ladder. The only way back to
// active is a token refresh from needs_refresh, or an explicit OAuth
// reconnect (viaOAuth) from revoked/disconnected.
func (a *Account) CanTransition(to Status, viaOAuth bool) bool {
	if a.Status == to {
		return true
	}
	switch to {
	case StatusActive:
		if a.Status == StatusNeedsRefresh {
			return true
		}
		return viaOAuth && (a.Status == StatusRevoked || a.Status == StatusDisconnected)
	case StatusNeedsRefresh:
		return a.Status == StatusActive
	case StatusRevoked, StatusSuspended, StatusDisconnected:
		return a.Status == StatusActive || a.Status == StatusNeedsRefresh
	default:
		return false
	}
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	Update(ctx context.Context, db *gorm.DB, account *Account) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)
	FindByExternalCompanyID(ctx context.Context, db *gorm.DB, companyID int64) (*Account, error)
	FindByTeamID(ctx context.Context, db *gorm.DB, teamID int64) (*Account, error)
	List(ctx context.Context, db *gorm.DB) ([]Account, error)
}
