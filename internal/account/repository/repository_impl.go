package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/invosync/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() accountdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *accountdomain.Account) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO accounts (
			id, team_id, external_company_id, access_token, refresh_token,
			token_expires_at, status, webhook_enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.TeamID,
		account.ExternalCompanyID,
		account.AccessToken,
		account.RefreshToken,
		account.TokenExpiresAt,
		account.Status,
		account.WebhookEnabled,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, account *accountdomain.Account) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET team_id = ?, access_token = ?, refresh_token = ?, token_expires_at = ?,
		     status = ?, webhook_enabled = ?, updated_at = ?
		 WHERE id = ?`,
		account.TeamID,
		account.AccessToken,
		account.RefreshToken,
		account.TokenExpiresAt,
		account.Status,
		account.WebhookEnabled,
		account.UpdatedAt,
		account.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*accountdomain.Account, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByExternalCompanyID(ctx context.Context, db *gorm.DB, companyID int64) (*accountdomain.Account, error) {
	return r.findOne(ctx, db, `external_company_id = ?`, companyID)
}

func (r *repo) FindByTeamID(ctx context.Context, db *gorm.DB, teamID int64) (*accountdomain.Account, error) {
	return r.findOne(ctx, db, `team_id = ?`, teamID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*accountdomain.Account, error) {
	var account accountdomain.Account
	err := db.WithContext(ctx).Where(where, arg).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accountdomain.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]accountdomain.Account, error) {
	var accounts []accountdomain.Account
	if err := db.WithContext(ctx).Order("id").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}
