package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	AuditActionMatch   = "match"
	AuditActionUnmatch = "unmatch"

	AuditOutcomeSuccess = "success"
	AuditOutcomeFailure = "failure"

	ActorSystem = "system"
)

// MatchAuditLog is append-only. Rows are written for every match attempt,
// including failed ones, and are never updated.
type MatchAuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	DepositID  uuid.UUID  `gorm:"type:uuid;index" json:"depositId"`
	OrderID    *uuid.UUID `gorm:"type:uuid;index" json:"orderId,omitempty"`
	Action     string     `gorm:"type:varchar(16);not null" json:"action"`
	MatchType  string     `gorm:"type:varchar(16)" json:"matchType"`
	MatchScore float64    `json:"matchScore"`
	ActorID    string     `gorm:"type:varchar(64);not null" json:"actorId"`
	Outcome    string     `gorm:"type:varchar(16);not null" json:"outcome"`
	Reason     string     `json:"reason,omitempty"`
	CreatedAt  time.Time  `gorm:"index" json:"createdAt"`
}
