package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"deposit-reconciliation-backend/internal/models"
)

// candidateGrace admits orders created shortly after the deposit's booking
// time; bank timestamps are often the value date rather than the instant.
const candidateGrace = 24 * time.Hour

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) WithTx(tx *gorm.DB) *OrderRepository {
	return &OrderRepository{db: tx}
}

func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = models.PaymentStatusPending
	}
	return translate(r.db.WithContext(ctx).Create(o).Error, "order")
}

func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var o models.Order
	if err := r.db.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		return nil, translate(err, "order")
	}
	return &o, nil
}

// CandidateQuery bounds the broad pre-filter run before scoring.
type CandidateQuery struct {
	Amount          int64
	TransactionDate time.Time
	Window          time.Duration
	Tolerance       float64
	Limit           int
}

// FindCandidates returns pending orders that no active match points at, whose
// amount is within Tolerance of the deposit amount (relative to the order
// amount) and that were created inside the window before the transaction.
// Newest orders come first.
func (r *OrderRepository) FindCandidates(ctx context.Context, q CandidateQuery) ([]models.Order, error) {
	from := q.TransactionDate.Add(-q.Window)
	to := q.TransactionDate.Add(candidateGrace)

	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("payment_status = ?", models.PaymentStatusPending).
		Where("total_amount > 0 AND ABS(total_amount - ?) <= total_amount * ?", q.Amount, q.Tolerance).
		Where("created_at >= ? AND created_at <= ?", from, to).
		Where("NOT EXISTS (SELECT 1 FROM match_records m WHERE m.order_id = orders.id AND m.unmatched_at IS NULL)").
		Order("created_at DESC").
		Order("id ASC").
		Limit(q.Limit).
		Find(&orders).Error
	if err != nil {
		return nil, translate(err, "candidate orders")
	}
	return orders, nil
}

// MarkPaid flips a pending order to paid. It reports false when the order was
// not pending.
func (r *OrderRepository) MarkPaid(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"payment_status": models.PaymentStatusPaid,
			"paid_at":        now,
			"updated_at":     now,
		})
	if res.Error != nil {
		return false, translate(res.Error, "order")
	}
	return res.RowsAffected == 1, nil
}

// MarkPending reverts a paid order.
func (r *OrderRepository) MarkPending(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, models.PaymentStatusPaid).
		Updates(map[string]interface{}{
			"payment_status": models.PaymentStatusPending,
			"paid_at":        nil,
			"updated_at":     now,
		})
	if res.Error != nil {
		return false, translate(res.Error, "order")
	}
	return res.RowsAffected == 1, nil
}
