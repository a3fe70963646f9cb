package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"deposit-reconciliation-backend/internal/models"
)

const msgAlreadyMatched = "already matched to another deposit"

type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

func (r *MatchRepository) WithTx(tx *gorm.DB) *MatchRepository {
	return &MatchRepository{db: tx}
}

// Create inserts an active match. The partial unique indexes reject a second
// active record for the same order or deposit.
func (r *MatchRepository) Create(ctx context.Context, m *models.MatchRecord) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).Create(m).Error
	if err != nil && IsUniqueViolation(err) {
		return models.Conflict(msgAlreadyMatched)
	}
	return translate(err, "match record")
}

func (r *MatchRepository) ActiveByDeposit(ctx context.Context, depositID uuid.UUID) (*models.MatchRecord, error) {
	var m models.MatchRecord
	err := r.db.WithContext(ctx).
		Where("deposit_id = ? AND unmatched_at IS NULL", depositID).
		First(&m).Error
	if err != nil {
		return nil, translate(err, "active match")
	}
	return &m, nil
}

func (r *MatchRepository) ActiveByOrder(ctx context.Context, orderID uuid.UUID) (*models.MatchRecord, error) {
	var m models.MatchRecord
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND unmatched_at IS NULL", orderID).
		First(&m).Error
	if err != nil {
		return nil, translate(err, "active match")
	}
	return &m, nil
}

// ActiveByDepositIDs returns the active match of each listed deposit that has
// one, keyed by deposit id.
func (r *MatchRepository) ActiveByDepositIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.MatchRecord, error) {
	out := make(map[uuid.UUID]models.MatchRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var records []models.MatchRecord
	err := r.db.WithContext(ctx).
		Where("deposit_id IN ? AND unmatched_at IS NULL", ids).
		Find(&records).Error
	if err != nil {
		return nil, translate(err, "active matches")
	}
	for _, m := range records {
		out[m.DepositID] = m
	}
	return out, nil
}

// Invalidate ends an active match, keeping the row as history.
func (r *MatchRepository) Invalidate(ctx context.Context, id uuid.UUID, actor string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.MatchRecord{}).
		Where("id = ? AND unmatched_at IS NULL", id).
		Updates(map[string]interface{}{
			"unmatched_at": now,
			"unmatched_by": actor,
		})
	if res.Error != nil {
		return false, translate(res.Error, "match record")
	}
	return res.RowsAffected == 1, nil
}
