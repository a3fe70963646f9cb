package matching

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deposit-reconciliation-backend/internal/models"
)

var evalDay = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

func testDeposit() *models.Deposit {
	return &models.Deposit{
		ID:              uuid.New(),
		Amount:          50000,
		DepositorName:   "Kim Minsu",
		TransactionDate: evalDay,
	}
}

func order(name string, amount int64, age time.Duration) models.Order {
	return models.Order{
		ID:           uuid.New(),
		CustomerName: name,
		TotalAmount:  amount,
		CreatedAt:    evalDay.Add(-age),
	}
}

func TestEvaluateRanksByScore(t *testing.T) {
	exact := order("Kim Minsu", 50000, time.Hour)
	nearName := order("Kim Minso", 50000, 2*24*time.Hour)
	amountOnly := order("Park Jisung", 50000, 10*24*time.Hour)

	recs := NewEvaluator(DefaultRules()).Evaluate(testDeposit(), []models.Order{amountOnly, nearName, exact})

	require.Len(t, recs, 3)
	assert.Equal(t, exact.ID, recs[0].OrderID)
	assert.Equal(t, 1.0, recs[0].Score)
	assert.Equal(t, nearName.ID, recs[1].OrderID)
	assert.Equal(t, amountOnly.ID, recs[2].OrderID)
	for i := 1; i < len(recs); i++ {
		assert.GreaterOrEqual(t, recs[i-1].Score, recs[i].Score)
	}
}

func TestEvaluateCollapsesDuplicates(t *testing.T) {
	o := order("Kim Minsu", 50000, time.Hour)
	recs := NewEvaluator(DefaultRules()).Evaluate(testDeposit(), []models.Order{o, o, o})
	require.Len(t, recs, 1)
	assert.Equal(t, o.ID, recs[0].OrderID)
}

func TestEvaluateDropsBelowThreshold(t *testing.T) {
	// 0.2 amount band plus nothing else stays under the 0.3 floor.
	weak := order("Someone Else", 60000, 40*24*time.Hour)
	strong := order("Kim Minsu", 50000, time.Hour)

	recs := NewEvaluator(DefaultRules()).Evaluate(testDeposit(), []models.Order{weak, strong})
	require.Len(t, recs, 1)
	assert.Equal(t, strong.ID, recs[0].OrderID)
	for _, r := range recs {
		assert.GreaterOrEqual(t, r.Score, 0.3)
	}
}

func TestEvaluateTieBreaksNewestFirst(t *testing.T) {
	older := order("Lee", 50000, 20*time.Hour)
	newer := order("Lee", 50000, 2*time.Hour)

	recs := NewEvaluator(DefaultRules()).Evaluate(testDeposit(), []models.Order{older, newer})
	require.Len(t, recs, 2)
	assert.Equal(t, recs[0].Score, recs[1].Score)
	assert.Equal(t, newer.ID, recs[0].OrderID)
	assert.Equal(t, older.ID, recs[1].OrderID)

	again := NewEvaluator(DefaultRules()).Evaluate(testDeposit(), []models.Order{newer, older})
	assert.Equal(t, recs[0].OrderID, again[0].OrderID)
}

func TestEvaluateTruncatesToTopFive(t *testing.T) {
	var candidates []models.Order
	for i := 0; i < 9; i++ {
		candidates = append(candidates, order("Kim Minsu", 50000, time.Duration(i)*time.Hour))
	}
	recs := NewEvaluator(DefaultRules()).Evaluate(testDeposit(), candidates)
	require.Len(t, recs, 5)
	assert.Equal(t, candidates[0].ID, recs[0].OrderID)
}

func TestEvaluateEmpty(t *testing.T) {
	recs := NewEvaluator(DefaultRules()).Evaluate(testDeposit(), nil)
	assert.Empty(t, recs)
}
