package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	RoutingDepositMatched   = "deposit.matched"
	RoutingDepositUnmatched = "deposit.unmatched"
)

// MatchEvent tells the order lifecycle owner that an order's payment state
// changed because of reconciliation.
type MatchEvent struct {
	Event      string    `json:"event"`
	Version    int       `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
	DepositID  uuid.UUID `json:"deposit_id"`
	OrderID    uuid.UUID `json:"order_id"`
	MatchType  string    `json:"match_type"`
	MatchScore float64   `json:"match_score"`
	Amount     int64     `json:"amount"`
	ActorID    string    `json:"actor_id"`
}

type Publisher interface {
	PublishMatch(ctx context.Context, ev MatchEvent) error
}

// NoopPublisher drops every event. It is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishMatch(context.Context, MatchEvent) error { return nil }
