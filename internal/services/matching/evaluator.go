package matching

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"deposit-reconciliation-backend/internal/models"
)

// Rules holds the tunable matching thresholds. The surfacing floor and the
// auto-match bar are separate so product can tighten auto-matching without
// hiding candidates from operators.
type Rules struct {
	MinSurfaceScore    float64       `mapstructure:"minSurfaceScore" json:"minSurfaceScore"`
	AutoMatchThreshold float64       `mapstructure:"autoMatchThreshold" json:"autoMatchThreshold"`
	ManualMatchScore   float64       `mapstructure:"manualMatchScore" json:"manualMatchScore"`
	MaxRecommendations int           `mapstructure:"maxRecommendations" json:"maxRecommendations"`
	CandidateLimit     int           `mapstructure:"candidateLimit" json:"candidateLimit"`
	CandidateWindow    time.Duration `mapstructure:"candidateWindow" json:"candidateWindow"`
	AmountTolerance    float64       `mapstructure:"amountTolerance" json:"amountTolerance"`
}

func DefaultRules() Rules {
	return Rules{
		MinSurfaceScore:    0.3,
		AutoMatchThreshold: 0.3,
		ManualMatchScore:   0.5,
		MaxRecommendations: 5,
		CandidateLimit:     20,
		CandidateWindow:    30 * 24 * time.Hour,
		AmountTolerance:    0.2,
	}
}

// Recommendation is one ranked, explained candidate.
type Recommendation struct {
	OrderID        uuid.UUID `json:"orderId"`
	OrderNumber    string    `json:"orderNumber,omitempty"`
	CustomerName   string    `json:"customerName"`
	TotalAmount    int64     `json:"totalAmount"`
	OrderCreatedAt time.Time `json:"orderCreatedAt"`
	Score          float64   `json:"score"`
	Reasons        []string  `json:"reasons"`
	Breakdown      Breakdown `json:"-"`
}

type Evaluator struct {
	rules Rules
}

func NewEvaluator(rules Rules) *Evaluator {
	return &Evaluator{rules: rules}
}

// Evaluate deduplicates candidates by order id, scores them, drops those
// below the surfacing floor and returns the best few, highest score first.
// Equal scores rank the newer order first, then the smaller order id.
func (e *Evaluator) Evaluate(d *models.Deposit, candidates []models.Order) []Recommendation {
	seen := make(map[uuid.UUID]struct{}, len(candidates))
	recs := make([]Recommendation, 0, len(candidates))

	for i := range candidates {
		o := &candidates[i]
		if _, dup := seen[o.ID]; dup {
			continue
		}
		seen[o.ID] = struct{}{}

		b := Score(d, o)
		if b.Total < e.rules.MinSurfaceScore {
			continue
		}
		recs = append(recs, Recommendation{
			OrderID:        o.ID,
			OrderNumber:    o.OrderNumber,
			CustomerName:   o.CustomerName,
			TotalAmount:    o.TotalAmount,
			OrderCreatedAt: o.CreatedAt,
			Score:          b.Total,
			Reasons:        b.Reasons,
			Breakdown:      b,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		if !recs[i].OrderCreatedAt.Equal(recs[j].OrderCreatedAt) {
			return recs[i].OrderCreatedAt.After(recs[j].OrderCreatedAt)
		}
		return recs[i].OrderID.String() < recs[j].OrderID.String()
	})

	if limit := e.rules.MaxRecommendations; limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}
