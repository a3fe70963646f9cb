// Package reconciliation turns deposit notifications into order payments.
//
// A deposit is persisted once per (provider, external id), scored against
// pending orders and, when the best candidate is strong enough, committed as
// an automatic match. Operators can commit or undo matches by hand. Every
// commit is a single database transaction guarded by compare-and-swap updates
// on the order and deposit states.
package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"deposit-reconciliation-backend/internal/events"
	"deposit-reconciliation-backend/internal/metrics"
	"deposit-reconciliation-backend/internal/models"
	"deposit-reconciliation-backend/internal/repository"
	"deposit-reconciliation-backend/internal/services/matching"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultPageLimit = 20
	maxPageLimit     = 100

	msgAlreadyMatched   = "already matched to another deposit"
	msgDepositMatched   = "deposit already matched"
	msgOrderNotPending  = "order is not awaiting payment"
	msgBelowThreshold   = "score below auto-match threshold"
	msgNoActiveMatch    = "deposit has no active match"
	msgInvalidMatchType = "match type must be AUTO or MANUAL"
)

// AuditWriter appends audit entries. Failures are logged, never returned.
type AuditWriter interface {
	Append(ctx context.Context, entry *models.MatchAuditLog) error
}

// AuditReader lists the audit trail of one deposit.
type AuditReader interface {
	ByDeposit(ctx context.Context, depositID uuid.UUID) ([]models.MatchAuditLog, error)
}

// RulesSource yields the matching rules in force. config.RulesHolder
// implements it.
type RulesSource interface {
	Get() matching.Rules
}

type Params struct {
	DB         *gorm.DB
	Deposits   *repository.DepositRepository
	Orders     *repository.OrderRepository
	Matches    *repository.MatchRepository
	Audit      AuditWriter
	AuditTrail AuditReader
	Publisher  events.Publisher
	Rules      RulesSource
	Metrics    *metrics.Metrics
	Log        *zap.Logger
	Timeout    time.Duration
	Clock      func() time.Time
}

type Service struct {
	db         *gorm.DB
	deposits   *repository.DepositRepository
	orders     *repository.OrderRepository
	matches    *repository.MatchRepository
	audit      AuditWriter
	auditTrail AuditReader
	publisher  events.Publisher
	rules      RulesSource
	metrics    *metrics.Metrics
	log        *zap.Logger
	timeout    time.Duration
	now        func() time.Time
}

func NewService(p Params) *Service {
	s := &Service{
		db:         p.DB,
		deposits:   p.Deposits,
		orders:     p.Orders,
		matches:    p.Matches,
		audit:      p.Audit,
		auditTrail: p.AuditTrail,
		publisher:  p.Publisher,
		rules:      p.Rules,
		metrics:    p.Metrics,
		log:        p.Log,
		timeout:    p.Timeout,
		now:        p.Clock,
	}
	if s.deposits == nil {
		s.deposits = repository.NewDepositRepository(p.DB)
	}
	if s.orders == nil {
		s.orders = repository.NewOrderRepository(p.DB)
	}
	if s.matches == nil {
		s.matches = repository.NewMatchRepository(p.DB)
	}
	if s.audit == nil || s.auditTrail == nil {
		repo := repository.NewAuditRepository(p.DB)
		if s.audit == nil {
			s.audit = repo
		}
		if s.auditTrail == nil {
			s.auditTrail = repo
		}
	}
	if s.publisher == nil {
		s.publisher = events.NoopPublisher{}
	}
	if s.rules == nil {
		s.rules = staticRules(matching.DefaultRules())
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("reconciliation.service")
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

type staticRules matching.Rules

func (r staticRules) Get() matching.Rules { return matching.Rules(r) }

// IngestResult reports what happened to one delivered deposit.
type IngestResult struct {
	DepositID       uuid.UUID                 `json:"depositId"`
	Status          string                    `json:"status"`
	Duplicate       bool                      `json:"duplicate"`
	Match           *models.MatchRecord       `json:"match,omitempty"`
	Recommendations []matching.Recommendation `json:"recommendations,omitempty"`
}

// MatchResult is the outcome of a committed match.
type MatchResult struct {
	Deposit   models.Deposit     `json:"deposit"`
	Order     models.Order       `json:"order"`
	Match     models.MatchRecord `json:"match"`
	Breakdown matching.Breakdown `json:"breakdown"`
}

// Ingest persists a deposit exactly once and tries to auto-match it. A
// re-delivery reports the stored deposit with Duplicate set and writes
// nothing.
func (s *Service) Ingest(ctx context.Context, ev models.DepositEvent) (*IngestResult, error) {
	if err := ev.Validate(); err != nil {
		s.metrics.RecordIngest(ev.Provider, "rejected")
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	deposit := models.NewDeposit(ev, s.now())
	inserted, err := s.deposits.Insert(ctx, deposit)
	if err != nil {
		s.metrics.RecordIngest(ev.Provider, "error")
		return nil, err
	}
	if !inserted {
		existing, err := s.deposits.FindByExternal(ctx, ev.Provider, ev.ExternalID)
		if err != nil {
			return nil, err
		}
		s.metrics.RecordIngest(ev.Provider, models.DepositStatusDuplicate)
		s.log.Info("duplicate deposit ignored",
			zap.String("provider", ev.Provider),
			zap.String("external_id", ev.ExternalID),
			zap.String("deposit_id", existing.ID.String()),
		)
		return &IngestResult{
			DepositID: existing.ID,
			Status:    models.DepositStatusDuplicate,
			Duplicate: true,
		}, nil
	}

	rules := s.rules.Get()
	recs, err := s.evaluate(ctx, deposit, rules)
	if err != nil {
		s.metrics.RecordIngest(ev.Provider, "error")
		return nil, err
	}

	if len(recs) > 0 && recs[0].Score >= rules.AutoMatchThreshold {
		res, err := s.commit(ctx, deposit.ID, recs[0].OrderID, models.MatchTypeAuto, models.ActorSystem, rules)
		switch {
		case err == nil:
			s.metrics.RecordIngest(ev.Provider, models.DepositStatusAutoMatched)
			return &IngestResult{
				DepositID: deposit.ID,
				Status:    models.DepositStatusAutoMatched,
				Match:     &res.Match,
			}, nil
		case errors.Is(err, models.ErrConflict):
			s.log.Warn("auto match lost a race, leaving deposit unmatched",
				zap.String("deposit_id", deposit.ID.String()),
				zap.String("order_id", recs[0].OrderID.String()),
				zap.Error(err),
			)
		default:
			s.metrics.RecordIngest(ev.Provider, "error")
			return nil, err
		}
	}

	if _, err := s.deposits.TransitionStatus(ctx, deposit.ID, models.DepositStatusUnmatched, s.now(), models.DepositStatusReceived); err != nil {
		s.metrics.RecordIngest(ev.Provider, "error")
		return nil, err
	}
	s.metrics.RecordIngest(ev.Provider, models.DepositStatusUnmatched)
	return &IngestResult{
		DepositID:       deposit.ID,
		Status:          models.DepositStatusUnmatched,
		Recommendations: recs,
	}, nil
}

// CommitMatch binds a deposit to an order. MANUAL records the fixed manual
// confidence; AUTO records the computed score and refuses scores below the
// auto-match threshold.
func (s *Service) CommitMatch(ctx context.Context, depositID, orderID uuid.UUID, matchType, actorID string) (*MatchResult, error) {
	if matchType != models.MatchTypeAuto && matchType != models.MatchTypeManual {
		return nil, models.Validation(msgInvalidMatchType)
	}
	if actorID == "" {
		actorID = models.ActorSystem
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.commit(ctx, depositID, orderID, matchType, actorID, s.rules.Get())
}

func (s *Service) commit(ctx context.Context, depositID, orderID uuid.UUID, matchType, actorID string, rules matching.Rules) (*MatchResult, error) {
	var res MatchResult
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deposits := s.deposits.WithTx(tx)
		orders := s.orders.WithTx(tx)
		matches := s.matches.WithTx(tx)

		deposit, err := deposits.GetByID(ctx, depositID)
		if err != nil {
			return err
		}
		if !deposit.IsMatchable() {
			return models.Conflict(msgDepositMatched)
		}
		order, err := orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}

		breakdown := matching.Score(deposit, order)
		score := breakdown.Total
		if matchType == models.MatchTypeManual {
			score = rules.ManualMatchScore
		} else if score < rules.AutoMatchThreshold {
			return models.Validation(msgBelowThreshold)
		}

		if _, err := matches.ActiveByOrder(ctx, order.ID); err == nil {
			return models.Conflict(msgAlreadyMatched)
		} else if !errors.Is(err, models.ErrNotFound) {
			return err
		}

		paid, err := orders.MarkPaid(ctx, order.ID, now)
		if err != nil {
			return err
		}
		if !paid {
			return models.Conflict(msgOrderNotPending)
		}

		terminal := models.DepositStatusAutoMatched
		if matchType == models.MatchTypeManual {
			terminal = models.DepositStatusManualMatched
		}
		moved, err := deposits.TransitionStatus(ctx, deposit.ID, terminal, now,
			models.DepositStatusReceived, models.DepositStatusUnmatched)
		if err != nil {
			return err
		}
		if !moved {
			return models.Conflict(msgDepositMatched)
		}

		details, err := json.Marshal(breakdown)
		if err != nil {
			return err
		}
		record := &models.MatchRecord{
			DepositID:  deposit.ID,
			OrderID:    order.ID,
			MatchType:  matchType,
			MatchScore: score,
			Details:    datatypes.JSON(details),
			MatchedBy:  actorID,
			MatchedAt:  now,
		}
		if err := matches.Create(ctx, record); err != nil {
			return err
		}

		deposit.Status = terminal
		deposit.UpdatedAt = now
		order.PaymentStatus = models.PaymentStatusPaid
		order.PaidAt = &now
		order.UpdatedAt = now
		res = MatchResult{Deposit: *deposit, Order: *order, Match: *record, Breakdown: breakdown}
		return nil
	})
	err = repository.Translate(err)

	entry := &models.MatchAuditLog{
		DepositID: depositID,
		OrderID:   &orderID,
		Action:    models.AuditActionMatch,
		MatchType: matchType,
		ActorID:   actorID,
		CreatedAt: now,
	}
	if err != nil {
		entry.Outcome = models.AuditOutcomeFailure
		entry.Reason = models.Message(err)
		s.writeAudit(ctx, entry)
		return nil, err
	}

	entry.Outcome = models.AuditOutcomeSuccess
	entry.MatchScore = res.Match.MatchScore
	s.writeAudit(ctx, entry)
	s.metrics.RecordMatch(matchType, res.Match.MatchScore)
	s.log.Info("deposit matched",
		zap.String("deposit_id", depositID.String()),
		zap.String("order_id", orderID.String()),
		zap.String("match_type", matchType),
		zap.Float64("score", res.Match.MatchScore),
		zap.String("actor", actorID),
	)
	s.publish(ctx, events.MatchEvent{
		Event:      events.RoutingDepositMatched,
		OccurredAt: now,
		DepositID:  depositID,
		OrderID:    orderID,
		MatchType:  matchType,
		MatchScore: res.Match.MatchScore,
		Amount:     res.Deposit.Amount,
		ActorID:    actorID,
	})
	return &res, nil
}

// Unmatch invalidates the deposit's active match, returns the order to
// pending and the deposit to unmatched, all in one transaction.
func (s *Service) Unmatch(ctx context.Context, depositID uuid.UUID, actorID, reason string) (*DepositView, error) {
	if actorID == "" {
		actorID = models.ActorSystem
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		view  DepositView
		match models.MatchRecord
	)
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deposits := s.deposits.WithTx(tx)
		matches := s.matches.WithTx(tx)

		deposit, err := deposits.GetByID(ctx, depositID)
		if err != nil {
			return err
		}
		active, err := matches.ActiveByDeposit(ctx, deposit.ID)
		if errors.Is(err, models.ErrNotFound) {
			return models.Conflict(msgNoActiveMatch)
		}
		if err != nil {
			return err
		}

		ok, err := matches.Invalidate(ctx, active.ID, actorID, now)
		if err != nil {
			return err
		}
		if !ok {
			return models.Conflict(msgNoActiveMatch)
		}
		// The order owner may already have moved the order on; only a paid
		// order is reverted.
		if _, err := s.orders.WithTx(tx).MarkPending(ctx, active.OrderID, now); err != nil {
			return err
		}
		moved, err := deposits.TransitionStatus(ctx, deposit.ID, models.DepositStatusUnmatched, now,
			models.DepositStatusAutoMatched, models.DepositStatusManualMatched)
		if err != nil {
			return err
		}
		if !moved {
			return models.Conflict(msgNoActiveMatch)
		}

		deposit.Status = models.DepositStatusUnmatched
		deposit.UpdatedAt = now
		view = DepositView{Deposit: *deposit}
		match = *active
		return nil
	})
	err = repository.Translate(err)

	entry := &models.MatchAuditLog{
		DepositID: depositID,
		Action:    models.AuditActionUnmatch,
		ActorID:   actorID,
		Reason:    reason,
		CreatedAt: now,
	}
	if err != nil {
		entry.Outcome = models.AuditOutcomeFailure
		entry.Reason = models.Message(err)
		s.writeAudit(ctx, entry)
		return nil, err
	}

	entry.OrderID = &match.OrderID
	entry.MatchType = match.MatchType
	entry.MatchScore = match.MatchScore
	entry.Outcome = models.AuditOutcomeSuccess
	s.writeAudit(ctx, entry)
	s.metrics.RecordUnmatch()
	s.log.Info("deposit unmatched",
		zap.String("deposit_id", depositID.String()),
		zap.String("order_id", match.OrderID.String()),
		zap.String("actor", actorID),
	)
	s.publish(ctx, events.MatchEvent{
		Event:      events.RoutingDepositUnmatched,
		OccurredAt: now,
		DepositID:  depositID,
		OrderID:    match.OrderID,
		MatchType:  match.MatchType,
		MatchScore: match.MatchScore,
		Amount:     view.Amount,
		ActorID:    actorID,
	})
	return &view, nil
}

// Candidates returns the ranked recommendations for a stored deposit.
func (s *Service) Candidates(ctx context.Context, depositID uuid.UUID) ([]matching.Recommendation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	deposit, err := s.deposits.GetByID(ctx, depositID)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, deposit, s.rules.Get())
}

func (s *Service) evaluate(ctx context.Context, deposit *models.Deposit, rules matching.Rules) ([]matching.Recommendation, error) {
	candidates, err := s.orders.FindCandidates(ctx, repository.CandidateQuery{
		Amount:          deposit.Amount,
		TransactionDate: deposit.TransactionDate,
		Window:          rules.CandidateWindow,
		Tolerance:       rules.AmountTolerance,
		Limit:           rules.CandidateLimit,
	})
	if err != nil {
		return nil, err
	}
	return matching.NewEvaluator(rules).Evaluate(deposit, candidates), nil
}

// writeAudit and publish run after the transaction and outlive a cancelled
// request; their failures never undo a committed match.
func (s *Service) writeAudit(ctx context.Context, entry *models.MatchAuditLog) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.audit.Append(ctx, entry); err != nil {
		s.metrics.RecordAuditFailure()
		s.log.Warn("audit write failed",
			zap.String("deposit_id", entry.DepositID.String()),
			zap.String("action", entry.Action),
			zap.String("outcome", entry.Outcome),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, ev events.MatchEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.publisher.PublishMatch(ctx, ev); err != nil {
		s.metrics.RecordPublishFailure()
		s.log.Warn("match event publish failed",
			zap.String("event", ev.Event),
			zap.String("deposit_id", ev.DepositID.String()),
			zap.Error(err),
		)
	}
}
