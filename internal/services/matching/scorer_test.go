package matching

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"deposit-reconciliation-backend/internal/models"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"kim", "kim", 0},
		{"kim", "kimm", 1},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"김민수", "김민수", 0},
		{"김민수", "김민서", 1},
		{"김민수", "민수", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Levenshtein(tt.a, tt.b), "levenshtein(%q, %q)", tt.a, tt.b)
		assert.Equal(t, tt.want, Levenshtein(tt.b, tt.a), "levenshtein(%q, %q)", tt.b, tt.a)
	}
}

func TestScoreAmountBands(t *testing.T) {
	tests := []struct {
		name    string
		deposit int64
		order   int64
		want    float64
	}{
		{"exact", 50000, 50000, 0.5},
		{"within 5%", 51000, 50000, 0.4},
		{"5% boundary", 52500, 50000, 0.4},
		{"within 10%", 45500, 50000, 0.3},
		{"within 20%", 59000, 50000, 0.2},
		{"20% boundary", 40000, 50000, 0.2},
		{"too far", 61000, 50000, 0},
		{"zero order amount", 100, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreAmount(tt.deposit, tt.order))
		})
	}
}

func TestScoreNameNormalizesWhitespaceAndCase(t *testing.T) {
	assert.Equal(t, 0.3, ScoreName("Kim Minsu", "kimminsu"))
	assert.Equal(t, 0.3, ScoreName("  KIM  MIN SU ", "Kim Minsu"))
	assert.Equal(t, 0.3, ScoreName("김 민수", "김민수"))
}

func TestScoreNameContainmentAndDistance(t *testing.T) {
	assert.Equal(t, 0.24, ScoreName("Kim Minsu Shop", "kim minsu"))
	assert.Equal(t, 0.24, ScoreName("minsu", "Kim Minsu"))

	// "kimminsu" vs "kimminso": one substitution over eight runes.
	assert.InDelta(t, 0.3*(1-1.0/8), ScoreName("kimminsu", "kimminso"), 1e-4)
	assert.Equal(t, 0.0, ScoreName("abc", "xyz"))
}

func TestScoreNameEmpty(t *testing.T) {
	assert.Equal(t, 0.0, ScoreName("", "Kim"))
	assert.Equal(t, 0.0, ScoreName("Kim", "   "))
	assert.Equal(t, 0.0, ScoreName("", ""))
}

func TestScoreTimeBands(t *testing.T) {
	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		offset time.Duration
		want   float64
	}{
		{0, 0.2},
		{-24 * time.Hour, 0.2},
		{48 * time.Hour, 0.15},
		{-72 * time.Hour, 0.15},
		{5 * 24 * time.Hour, 0.1},
		{20 * 24 * time.Hour, 0.05},
		{-30 * 24 * time.Hour, 0.05},
		{31 * 24 * time.Hour, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ScoreTime(base, base.Add(tt.offset)), "offset %s", tt.offset)
	}
}

func TestExactMatchScoresOne(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	d := &models.Deposit{Amount: 50000, DepositorName: "Kim Minsu", TransactionDate: day}
	o := &models.Order{TotalAmount: 50000, CustomerName: "Kim Minsu", CreatedAt: day}

	b := Score(d, o)
	assert.Equal(t, 0.5, b.AmountScore)
	assert.Equal(t, 0.3, b.NameScore)
	assert.Equal(t, 0.2, b.TimeScore)
	assert.Equal(t, 1.0, b.Total)
	assert.Equal(t, 1.0, TotalScore(d, o))
	assert.Equal(t, []string{"amount matches exactly", "name very similar", "order within 1 day"}, b.Reasons)
}

func TestMatchReasonsOrderAndFallback(t *testing.T) {
	reasons := MatchReasons(Breakdown{AmountScore: 0.2, NameScore: 0.3, TimeScore: 0.2})
	assert.Equal(t, []string{"name very similar", "amount within 20%", "order within 1 day"}, reasons)

	assert.Equal(t, []string{ReasonBasicMatch}, MatchReasons(Breakdown{NameScore: 0.05}))
	assert.Equal(t, MatchReasons(Breakdown{AmountScore: 0.4, TimeScore: 0.1}), MatchReasons(Breakdown{AmountScore: 0.4, TimeScore: 0.1}))
}

func TestTotalScoreBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	names := []string{"", "Kim", "Kim Minsu", "김민수", "Lee Jieun", "PARK", "kimm insu", "주식회사 민수"}
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2000; i++ {
		d := &models.Deposit{
			Amount:          rng.Int63n(200000) + 1,
			DepositorName:   names[rng.Intn(len(names))],
			TransactionDate: base.Add(time.Duration(rng.Intn(90*24)) * time.Hour),
		}
		o := &models.Order{
			TotalAmount:  rng.Int63n(200000),
			CustomerName: names[rng.Intn(len(names))],
			CreatedAt:    base.Add(time.Duration(rng.Intn(90*24)) * time.Hour),
		}
		total := TotalScore(d, o)
		if total < 0 || total > 1 {
			t.Fatalf("score out of bounds: %v for %+v / %+v", total, d, o)
		}
	}
}
