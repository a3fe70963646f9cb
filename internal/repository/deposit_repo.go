package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"deposit-reconciliation-backend/internal/models"
)

type DepositRepository struct {
	db *gorm.DB
}

func NewDepositRepository(db *gorm.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

// WithTx returns a copy bound to tx.
func (r *DepositRepository) WithTx(tx *gorm.DB) *DepositRepository {
	return &DepositRepository{db: tx}
}

// Insert stores d unless a deposit with the same (provider, external id)
// exists. It reports false, with nothing written, for a re-delivery.
func (r *DepositRepository) Insert(ctx context.Context, d *models.Deposit) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "external_id"}},
			DoNothing: true,
		}).
		Create(d)
	if res.Error != nil {
		return false, translate(res.Error, "deposit")
	}
	return res.RowsAffected == 1, nil
}

func (r *DepositRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Deposit, error) {
	var d models.Deposit
	if err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, translate(err, "deposit")
	}
	return &d, nil
}

func (r *DepositRepository) FindByExternal(ctx context.Context, provider, externalID string) (*models.Deposit, error) {
	var d models.Deposit
	err := r.db.WithContext(ctx).
		Where("provider = ? AND external_id = ?", provider, externalID).
		First(&d).Error
	if err != nil {
		return nil, translate(err, "deposit")
	}
	return &d, nil
}

// TransitionStatus moves the deposit to status `to` only if its current
// status is one of from. It reports whether the row changed.
func (r *DepositRepository) TransitionStatus(ctx context.Context, id uuid.UUID, to string, now time.Time, from ...string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Deposit{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, translate(res.Error, "deposit")
	}
	return res.RowsAffected == 1, nil
}

type DepositFilter struct {
	Status   string
	BankCode string
	Search   string
	Page     int
	Limit    int
}

// List returns one page of deposits, newest transaction first, and the total
// number of deposits matching the filter.
func (r *DepositRepository) List(ctx context.Context, f DepositFilter) ([]models.Deposit, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Deposit{})

	if f.Status != "" && f.Status != "all" {
		query = query.Where("status = ?", f.Status)
	}
	if f.BankCode != "" {
		query = query.Where("bank_code = ?", f.BankCode)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(depositor_name) LIKE ? OR LOWER(memo) LIKE ? OR LOWER(external_id) LIKE ? OR CAST(amount AS TEXT) LIKE ?",
			like, like, like, like,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err, "deposits")
	}

	var deposits []models.Deposit
	err := query.
		Order("transaction_date DESC").
		Order("id ASC").
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&deposits).Error
	if err != nil {
		return nil, 0, translate(err, "deposits")
	}
	return deposits, total, nil
}

type StatRow struct {
	Status string
	Count  int64
	Sum    int64
}

// Stats groups all deposits by status.
func (r *DepositRepository) Stats(ctx context.Context) ([]StatRow, error) {
	var rows []StatRow
	err := r.db.WithContext(ctx).
		Model(&models.Deposit{}).
		Select("status, COUNT(*) as count, COALESCE(SUM(amount),0) as sum").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err, "deposit stats")
	}
	return rows, nil
}
