package webhook

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"deposit-reconciliation-backend/internal/metrics"
	"deposit-reconciliation-backend/internal/models"
	"deposit-reconciliation-backend/internal/services/reconciliation"
)

const HeaderProvider = "X-Payment-Provider"

// DepositIngester is the reconciliation entry point used by the ingestor.
type DepositIngester interface {
	Ingest(ctx context.Context, ev models.DepositEvent) (*reconciliation.IngestResult, error)
}

type Params struct {
	Registry *Registry
	Secrets  map[string]string
	Service  DepositIngester
	Metrics  *metrics.Metrics
	Log      *zap.Logger
	Clock    func() time.Time
}

type Ingestor struct {
	registry *Registry
	secrets  map[string]string
	service  DepositIngester
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewIngestor(p Params) *Ingestor {
	secrets := make(map[string]string, len(p.Secrets))
	for name, secret := range p.Secrets {
		name = strings.ToLower(strings.TrimSpace(name))
		if secret = strings.TrimSpace(secret); name != "" && secret != "" {
			secrets[name] = secret
		}
	}
	i := &Ingestor{
		registry: p.Registry,
		secrets:  secrets,
		service:  p.Service,
		metrics:  p.Metrics,
		log:      p.Log,
		now:      p.Clock,
	}
	if i.registry == nil {
		i.registry = DefaultRegistry()
	}
	if i.log == nil {
		i.log = zap.NewNop()
	}
	i.log = i.log.Named("payment.webhook")
	if i.now == nil {
		i.now = time.Now
	}
	return i
}

// Result is the outcome of one delivery. Ignored deliveries were
// authenticated but carry no deposit.
type Result struct {
	Provider string                       `json:"provider"`
	Ignored  bool                         `json:"ignored,omitempty"`
	Ingest   *reconciliation.IngestResult `json:"result,omitempty"`
}

// Handle authenticates the delivery before decoding it, then ingests the
// deposit it carries exactly once.
func (i *Ingestor) Handle(ctx context.Context, provider string, headers http.Header, payload []byte) (*Result, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	p, ok := i.registry.Get(provider)
	if !ok {
		i.reject(provider, "unknown_provider")
		return nil, models.Authentication("unknown payment provider")
	}
	secret, ok := i.secrets[provider]
	if !ok {
		i.reject(provider, "no_secret")
		return nil, models.Authentication("payment provider is not configured")
	}
	if err := p.Verify(payload, headers, secret, i.now()); err != nil {
		i.reject(provider, "signature")
		return nil, models.Authentication(errInvalidSignature.Error())
	}

	parsed, err := p.Parse(payload)
	if err != nil {
		i.reject(provider, "payload")
		return nil, err
	}
	ev, err := toEvent(provider, parsed, payload)
	if errors.Is(err, errEventIgnored) {
		i.log.Debug("webhook event ignored", zap.String("provider", provider))
		return &Result{Provider: provider, Ignored: true}, nil
	}
	if err != nil {
		i.reject(provider, "payload")
		return nil, err
	}

	res, err := i.service.Ingest(ctx, ev)
	if err != nil {
		return nil, err
	}
	return &Result{Provider: provider, Ingest: res}, nil
}

func (i *Ingestor) reject(provider, reason string) {
	i.metrics.RecordWebhookRejection(provider, reason)
	i.log.Warn("webhook rejected", zap.String("provider", provider), zap.String("reason", reason))
}

// toEvent maps a provider variant onto the canonical deposit event.
func toEvent(provider string, p Payload, raw []byte) (models.DepositEvent, error) {
	var ev models.DepositEvent
	switch v := p.(type) {
	case *GenericDeposit:
		ev = models.DepositEvent{
			ExternalID:      v.ExternalID,
			BankCode:        v.BankCode,
			AccountNumber:   v.AccountNumber,
			DepositorName:   v.DepositorName,
			Amount:          v.Amount,
			TransactionDate: v.TransactionDate,
			Memo:            v.Memo,
		}
	case *BankPushDeposit:
		ev = models.DepositEvent{
			ExternalID:      v.TID,
			BankCode:        v.BankCode,
			AccountNumber:   v.AccountNo,
			DepositorName:   v.SenderName,
			Amount:          int64(v.Amount),
			TransactionDate: v.tradeTime,
			Memo:            v.Remark,
		}
	case *PGEvent:
		if v.Type != PGEventDepositCompleted || v.Deposit == nil {
			return ev, errEventIgnored
		}
		d := v.Deposit
		externalID := d.ID
		if externalID == "" {
			externalID = v.ID
		}
		occurred := d.DepositedAt
		if occurred == 0 {
			occurred = v.Created
		}
		var at time.Time
		if occurred > 0 {
			at = time.Unix(occurred, 0).UTC()
		}
		ev = models.DepositEvent{
			ExternalID:      externalID,
			BankCode:        d.BankCode,
			AccountNumber:   d.AccountNumber,
			DepositorName:   d.DepositorName,
			Amount:          d.Amount,
			TransactionDate: at,
			Memo:            d.Memo,
		}
	default:
		return ev, models.Validation("unsupported payload")
	}

	ev.Provider = provider
	ev.RawPayload = raw
	if err := ev.Validate(); err != nil {
		return models.DepositEvent{}, err
	}
	return ev, nil
}
