package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/invosync/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, account_id, external_subscription_id, event_group, webhook_secret,
			expires_at, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.AccountID,
		sub.ExternalSubscriptionID,
		sub.EventGroup,
		sub.WebhookSecret,
		sub.ExpiresAt,
		sub.IsActive,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET webhook_secret = ?, expires_at = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		sub.WebhookSecret,
		sub.ExpiresAt,
		sub.IsActive,
		sub.UpdatedAt,
		sub.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).Where(`id = ?`, id).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscriptiondomain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, accountID snowflake.ID, eventGroup string) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where(`account_id = ? AND event_group = ? AND is_active = ?`, accountID, eventGroup, true).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscriptiondomain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]subscriptiondomain.Subscription, error) {
	var subs []subscriptiondomain.Subscription
	if err := db.WithContext(ctx).Where(`account_id = ?`, accountID).Order("id").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}
