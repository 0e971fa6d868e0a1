package repository

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	resourcedomain "github.com/smallbiznis/invosync/internal/resource/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() resourcedomain.Repository {
	return &repo{}
}

var upsertKey = []clause.Column{{Name: "account_id"}, {Name: "external_id"}}

func (r *repo) UpsertClient(ctx context.Context, db *gorm.DB, row *resourcedomain.Client) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   upsertKey,
		DoUpdates: clause.AssignmentColumns([]string{"name", "code", "vat_number", "raw", "updated_at"}),
	}).Create(row).Error
}

func (r *repo) UpsertSupplier(ctx context.Context, db *gorm.DB, row *resourcedomain.Supplier) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   upsertKey,
		DoUpdates: clause.AssignmentColumns([]string{"name", "code", "vat_number", "raw", "updated_at"}),
	}).Create(row).Error
}

func (r *repo) UpsertInvoice(ctx context.Context, db *gorm.DB, row *resourcedomain.Invoice) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   upsertKey,
		DoUpdates: clause.AssignmentColumns([]string{"number", "status", "total", "issued_on", "raw", "updated_at"}),
	}).Create(row).Error
}

func (r *repo) UpsertQuote(ctx context.Context, db *gorm.DB, row *resourcedomain.Quote) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   upsertKey,
		DoUpdates: clause.AssignmentColumns([]string{"number", "status", "total", "issued_on", "raw", "updated_at"}),
	}).Create(row).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, typ resourcedomain.Type, accountID snowflake.ID, externalID int64) (bool, error) {
	table, err := tableFor(typ)
	if err != nil {
		return false, err
	}
	result := db.WithContext(ctx).Exec(
		fmt.Sprintf(`DELETE FROM %s WHERE account_id = ? AND external_id = ?`, table),
		accountID,
		externalID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func tableFor(typ resourcedomain.Type) (string, error) {
	switch typ {
	case resourcedomain.TypeClient:
		return "clients", nil
	case resourcedomain.TypeSupplier:
		return "suppliers", nil
	case resourcedomain.TypeInvoice:
		return "invoices", nil
	case resourcedomain.TypeQuote:
		return "quotes", nil
	default:
		return "", fmt.Errorf("unknown resource type %q", typ)
	}
}
