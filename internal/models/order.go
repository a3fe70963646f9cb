package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// Order is owned by the order lifecycle. Reconciliation reads it and only
// writes PaymentStatus and PaidAt.
type Order struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNumber   string     `gorm:"type:varchar(64);uniqueIndex" json:"orderNumber"`
	CustomerName  string     `gorm:"type:varchar(191);index" json:"customerName"`
	TotalAmount   int64      `gorm:"not null;index" json:"totalAmount"`
	PaymentStatus string     `gorm:"type:varchar(32);not null;index" json:"paymentStatus"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
	CreatedAt     time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}
