package reconciliation

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"deposit-reconciliation-backend/internal/models"
	"deposit-reconciliation-backend/internal/repository"
)

// DepositView is a deposit with its current match, if any.
type DepositView struct {
	models.Deposit
	Match *models.MatchRecord `json:"match,omitempty"`
}

// DepositDetail adds the audit trail to a DepositView.
type DepositDetail struct {
	DepositView
	AuditTrail []models.MatchAuditLog `json:"auditTrail"`
}

type ListQuery struct {
	Status   string
	BankCode string
	Search   string
	Page     int
	Limit    int
}

type DepositPage struct {
	Items   []DepositView `json:"items"`
	Page    int           `json:"page"`
	Limit   int           `json:"limit"`
	Total   int64         `json:"total"`
	HasMore bool          `json:"hasMore"`
}

var listableStatuses = map[string]bool{
	"":                                true,
	"all":                             true,
	models.DepositStatusReceived:      true,
	models.DepositStatusUnmatched:     true,
	models.DepositStatusAutoMatched:   true,
	models.DepositStatusManualMatched: true,
}

// List pages through deposits. Page starts at 1; limit defaults to 20 and is
// capped at 100.
func (s *Service) List(ctx context.Context, q ListQuery) (*DepositPage, error) {
	if !listableStatuses[q.Status] {
		return nil, models.Validation("unknown status " + q.Status)
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageLimit
	}
	if q.Limit > maxPageLimit {
		q.Limit = maxPageLimit
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	deposits, total, err := s.deposits.List(ctx, repository.DepositFilter{
		Status:   q.Status,
		BankCode: q.BankCode,
		Search:   q.Search,
		Page:     q.Page,
		Limit:    q.Limit,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(deposits))
	for i := range deposits {
		ids[i] = deposits[i].ID
	}
	active, err := s.matches.ActiveByDepositIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]DepositView, len(deposits))
	for i := range deposits {
		items[i] = DepositView{Deposit: deposits[i]}
		if m, ok := active[deposits[i].ID]; ok {
			items[i].Match = &m
		}
	}
	return &DepositPage{
		Items:   items,
		Page:    q.Page,
		Limit:   q.Limit,
		Total:   total,
		HasMore: int64(q.Page*q.Limit) < total,
	}, nil
}

func (s *Service) Get(ctx context.Context, depositID uuid.UUID) (*DepositDetail, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	deposit, err := s.deposits.GetByID(ctx, depositID)
	if err != nil {
		return nil, err
	}
	detail := &DepositDetail{DepositView: DepositView{Deposit: *deposit}}

	match, err := s.matches.ActiveByDeposit(ctx, depositID)
	switch {
	case err == nil:
		detail.Match = match
	case !errors.Is(err, models.ErrNotFound):
		return nil, err
	}

	trail, err := s.auditTrail.ByDeposit(ctx, depositID)
	if err != nil {
		return nil, err
	}
	detail.AuditTrail = trail
	return detail, nil
}

type StatusStat struct {
	Count  int64 `json:"count"`
	Amount int64 `json:"amount"`
}

type Stats struct {
	Total       int64 `json:"total"`
	TotalAmount int64 `json:"totalAmount"`

	Received      StatusStat `json:"received"`
	Unmatched     StatusStat `json:"unmatched"`
	AutoMatched   StatusStat `json:"autoMatched"`
	ManualMatched StatusStat `json:"manualMatched"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var stats Stats
	rows, err := s.deposits.Stats(ctx)
	if err != nil {
		return stats, err
	}

	for _, r := range rows {
		stats.Total += r.Count
		stats.TotalAmount += r.Sum

		bucket := StatusStat{Count: r.Count, Amount: r.Sum}
		switch r.Status {
		case models.DepositStatusReceived:
			stats.Received = bucket
		case models.DepositStatusUnmatched:
			stats.Unmatched = bucket
		case models.DepositStatusAutoMatched:
			stats.AutoMatched = bucket
		case models.DepositStatusManualMatched:
			stats.ManualMatched = bucket
		}
	}
	return stats, nil
}
