package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	MatchTypeAuto   = "AUTO"
	MatchTypeManual = "MANUAL"
)

// MatchRecord links one deposit to one order. A record is active while
// UnmatchedAt is nil; the partial unique indexes allow one active record per
// order and per deposit while keeping invalidated history.
type MatchRecord struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DepositID   uuid.UUID      `gorm:"type:uuid;not null;index;index:ux_match_records_active_deposit,unique,where:unmatched_at IS NULL" json:"depositId"`
	OrderID     uuid.UUID      `gorm:"type:uuid;not null;index;index:ux_match_records_active_order,unique,where:unmatched_at IS NULL" json:"orderId"`
	MatchType   string         `gorm:"type:varchar(16);not null" json:"matchType"`
	MatchScore  float64        `gorm:"not null" json:"matchScore"`
	Details     datatypes.JSON `json:"details,omitempty"`
	MatchedBy   string         `gorm:"type:varchar(64);not null" json:"matchedBy"`
	MatchedAt   time.Time      `gorm:"not null" json:"matchedAt"`
	UnmatchedAt *time.Time     `json:"unmatchedAt,omitempty"`
	UnmatchedBy string         `gorm:"type:varchar(64)" json:"unmatchedBy,omitempty"`
}

// Active reports whether the record still binds its deposit and order.
func (m *MatchRecord) Active() bool {
	return m.UnmatchedAt == nil
}
