package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	DepositStatusReceived      = "received"
	DepositStatusUnmatched     = "unmatched"
	DepositStatusAutoMatched   = "auto_matched"
	DepositStatusManualMatched = "manual_matched"

	// DepositStatusDuplicate is reported to callers only, never stored.
	DepositStatusDuplicate = "duplicate"
)

// Deposit is a persisted bank deposit notification.
type Deposit struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Provider        string         `gorm:"type:varchar(32);not null;index:ux_deposits_provider_external_id,unique,priority:1" json:"provider"`
	ExternalID      string         `gorm:"type:varchar(191);not null;index:ux_deposits_provider_external_id,unique,priority:2" json:"externalId"`
	BankCode        string         `gorm:"type:varchar(32);index" json:"bankCode"`
	AccountNumber   string         `gorm:"type:varchar(64)" json:"accountNumber"`
	DepositorName   string         `gorm:"type:varchar(191)" json:"depositorName"`
	Amount          int64          `gorm:"not null;index" json:"amount"`
	TransactionDate time.Time      `gorm:"column:transaction_date;not null;index" json:"transactionDate"`
	Memo            string         `json:"memo"`
	RawPayload      datatypes.JSON `json:"-"`
	Status          string         `gorm:"type:varchar(32);not null;index" json:"status"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// IsMatchable reports whether the deposit may become the source of a new match.
func (d *Deposit) IsMatchable() bool {
	return d.Status == DepositStatusReceived || d.Status == DepositStatusUnmatched
}

// DepositEvent is the canonical, provider-independent shape of one deposit
// notification. Provider adapters and the CSV importer produce it.
type DepositEvent struct {
	Provider        string
	ExternalID      string
	BankCode        string
	AccountNumber   string
	DepositorName   string
	Amount          int64
	TransactionDate time.Time
	Memo            string
	RawPayload      []byte
}

// Validate normalizes the event in place and rejects incomplete events.
func (e *DepositEvent) Validate() error {
	e.Provider = strings.ToLower(strings.TrimSpace(e.Provider))
	e.ExternalID = strings.TrimSpace(e.ExternalID)
	e.BankCode = strings.TrimSpace(e.BankCode)
	e.AccountNumber = strings.TrimSpace(e.AccountNumber)
	e.DepositorName = strings.TrimSpace(e.DepositorName)
	e.Memo = strings.TrimSpace(e.Memo)

	switch {
	case e.Provider == "":
		return Validation("provider is required")
	case e.ExternalID == "":
		return Validation("external id is required")
	case e.Amount <= 0:
		return Validation("amount must be positive")
	case e.TransactionDate.IsZero():
		return Validation("transaction date is required")
	}
	e.TransactionDate = e.TransactionDate.UTC()
	return nil
}

// NewDeposit builds the row persisted for a validated event.
func NewDeposit(e DepositEvent, now time.Time) *Deposit {
	raw := datatypes.JSON(e.RawPayload)
	if len(raw) == 0 {
		raw = datatypes.JSON("{}")
	}
	return &Deposit{
		ID:              uuid.New(),
		Provider:        e.Provider,
		ExternalID:      e.ExternalID,
		BankCode:        e.BankCode,
		AccountNumber:   e.AccountNumber,
		DepositorName:   e.DepositorName,
		Amount:          e.Amount,
		TransactionDate: e.TransactionDate,
		Memo:            e.Memo,
		RawPayload:      raw,
		Status:          DepositStatusReceived,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
