// Package matching scores deposits against orders and ranks candidates.
// Everything here is pure: no I/O, no clocks, no shared state.
package matching

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"deposit-reconciliation-backend/internal/models"
)

const (
	amountWeight = 0.5
	nameWeight   = 0.3
	timeWeight   = 0.2

	containmentSimilarity = 0.8
	maxScore              = 1.0
)

// Breakdown is the explainable result of scoring one deposit/order pair.
type Breakdown struct {
	AmountScore float64  `json:"amountScore"`
	NameScore   float64  `json:"nameScore"`
	TimeScore   float64  `json:"timeScore"`
	Total       float64  `json:"total"`
	Reasons     []string `json:"reasons"`
}

// Score computes every sub-score, the clamped total and the reasons.
func Score(d *models.Deposit, o *models.Order) Breakdown {
	b := Breakdown{
		AmountScore: ScoreAmount(d.Amount, o.TotalAmount),
		NameScore:   ScoreName(d.DepositorName, o.CustomerName),
		TimeScore:   ScoreTime(d.TransactionDate, o.CreatedAt),
	}
	b.Total = combine(b.AmountScore, b.NameScore, b.TimeScore)
	b.Reasons = MatchReasons(b)
	return b
}

// TotalScore is the weighted sum of the three sub-scores, never above 1.
func TotalScore(d *models.Deposit, o *models.Order) float64 {
	return combine(
		ScoreAmount(d.Amount, o.TotalAmount),
		ScoreName(d.DepositorName, o.CustomerName),
		ScoreTime(d.TransactionDate, o.CreatedAt),
	)
}

func combine(amount, name, timeScore float64) float64 {
	total := amount + name + timeScore
	// The weights sum to 1; the clamp keeps [0,1] true if they are retuned.
	if total > maxScore {
		total = maxScore
	}
	if total < 0 {
		total = 0
	}
	return round4(total)
}

// ScoreAmount grades closeness relative to the order amount, which is the
// reference value everywhere in this package and in candidate search.
func ScoreAmount(depositAmount, orderAmount int64) float64 {
	if depositAmount == orderAmount {
		return amountWeight
	}
	if orderAmount <= 0 {
		return 0
	}
	diff := math.Abs(float64(depositAmount-orderAmount)) / float64(orderAmount)
	switch {
	case diff <= 0.05:
		return 0.4
	case diff <= 0.10:
		return 0.3
	case diff <= 0.20:
		return 0.2
	default:
		return 0
	}
}

// ScoreName compares names after removing all whitespace and lowercasing.
func ScoreName(depositorName, customerName string) float64 {
	return round4(NameSimilarity(depositorName, customerName) * nameWeight)
}

// NameSimilarity returns the unweighted similarity in [0,1].
func NameSimilarity(a, b string) float64 {
	a, b = normalizeName(a), normalizeName(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return containmentSimilarity
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	sim := 1 - float64(Levenshtein(a, b))/float64(longest)
	return math.Max(0, sim)
}

func normalizeName(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

// ScoreTime grades the absolute distance between the deposit and the order
// creation, in days.
func ScoreTime(depositAt, orderCreatedAt time.Time) float64 {
	days := math.Abs(depositAt.Sub(orderCreatedAt).Hours() / 24)
	switch {
	case days <= 1:
		return 0.2
	case days <= 3:
		return 0.15
	case days <= 7:
		return 0.1
	case days <= 30:
		return 0.05
	default:
		return 0
	}
}

// Levenshtein is the unit-cost edit distance between a and b, counted in
// runes so multi-byte characters are never split.
func Levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,
				curr[j-1]+1,
				prev[j-1]+cost,
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

const ReasonBasicMatch = "basic match"

type reason struct {
	text  string
	score float64
	rank  int
}

// MatchReasons explains a breakdown, strongest criterion first. Criteria tie
// in amount, name, time order.
func MatchReasons(b Breakdown) []string {
	var rs []reason
	if text := amountReason(b.AmountScore); text != "" {
		rs = append(rs, reason{text: text, score: b.AmountScore, rank: 0})
	}
	if text := nameReason(b.NameScore); text != "" {
		rs = append(rs, reason{text: text, score: b.NameScore, rank: 1})
	}
	if text := timeReason(b.TimeScore); text != "" {
		rs = append(rs, reason{text: text, score: b.TimeScore, rank: 2})
	}
	if len(rs) == 0 {
		return []string{ReasonBasicMatch}
	}

	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].score != rs[j].score {
			return rs[i].score > rs[j].score
		}
		return rs[i].rank < rs[j].rank
	})
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.text)
	}
	return out
}

func amountReason(score float64) string {
	switch score {
	case 0.5:
		return "amount matches exactly"
	case 0.4:
		return "amount within 5%"
	case 0.3:
		return "amount within 10%"
	case 0.2:
		return "amount within 20%"
	}
	return ""
}

func nameReason(score float64) string {
	sim := score / nameWeight
	switch {
	case sim >= 0.8-1e-9:
		return "name very similar"
	case sim >= 0.5:
		return "name similar"
	}
	return ""
}

func timeReason(score float64) string {
	switch score {
	case 0.2:
		return "order within 1 day"
	case 0.15:
		return "order within 3 days"
	case 0.1:
		return "order within 7 days"
	case 0.05:
		return "order within 30 days"
	}
	return ""
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
