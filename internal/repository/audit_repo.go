package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"deposit-reconciliation-backend/internal/models"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append writes one audit entry. Entries are never updated.
func (r *AuditRepository) Append(ctx context.Context, entry *models.MatchAuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return translate(r.db.WithContext(ctx).Create(entry).Error, "audit entry")
}

// ByDeposit returns the audit trail of one deposit, oldest first.
func (r *AuditRepository) ByDeposit(ctx context.Context, depositID uuid.UUID) ([]models.MatchAuditLog, error) {
	var entries []models.MatchAuditLog
	err := r.db.WithContext(ctx).
		Where("deposit_id = ?", depositID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, translate(err, "audit entries")
	}
	return entries, nil
}
