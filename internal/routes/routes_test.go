package routes

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deposit-reconciliation-backend/internal/config"
	"deposit-reconciliation-backend/internal/metrics"
	"deposit-reconciliation-backend/internal/models"
	"deposit-reconciliation-backend/internal/repository"
	"deposit-reconciliation-backend/internal/services/matching"
	"deposit-reconciliation-backend/internal/testutil"
)

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookToUnmatchFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	r := gin.New()
	RegisterRoutes(r, Dependencies{
		DB:       db,
		Config:   config.Config{WebhookSecrets: map[string]string{"generic": "s3cr3t"}, StorageTimeout: 5 * time.Second},
		Rules:    config.StaticRules(matching.DefaultRules()),
		Metrics:  m,
		Gatherer: reg,
	})

	// Orders are created relative to the wall clock so the webhook's
	// transaction date falls inside the candidate window.
	now := time.Now().UTC().Truncate(time.Second)
	order := &models.Order{
		OrderNumber:  "ORD-1",
		CustomerName: "Kim Minsu",
		TotalAmount:  50000,
		CreatedAt:    now.Add(-time.Hour),
		UpdatedAt:    now.Add(-time.Hour),
	}
	require.NoError(t, repository.NewOrderRepository(db).Create(context.Background(), order))

	body := `{"externalId":"tx-900","bankCode":"004","depositorName":"KIM MINSU","amount":50000,"transactionDate":"` + now.Format(time.RFC3339) + `"}`
	deliver := func() map[string]any {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", strings.NewReader(body))
		req.Header.Set("X-Payment-Provider", "generic")
		req.Header.Set("X-Signature", sign("s3cr3t", body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var out map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		return out
	}

	first := deliver()
	assert.Equal(t, models.DepositStatusAutoMatched, first["status"])
	second := deliver()
	assert.Equal(t, true, second["duplicate"])
	assert.Equal(t, first["depositId"], second["depositId"])

	depositID := first["depositId"].(string)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/payments?status=auto_matched", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Data struct {
			Total int `json:"total"`
			Items []struct {
				ID    string `json:"id"`
				Match *struct {
					OrderID string `json:"orderId"`
				} `json:"match"`
			} `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Equal(t, 1, page.Data.Total)
	require.NotNil(t, page.Data.Items[0].Match)
	assert.Equal(t, order.ID.String(), page.Data.Items[0].Match.OrderID)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/"+depositID+"/unmatch", bytes.NewBufferString(`{"reason":"wrong order"}`))
	req.Header.Set("X-Operator-ID", "op-9")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/payments/"+depositID+"/candidates", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), order.ID.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/payments/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "reconciliation_matches_committed_total")
}

func TestWebhookBadSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, Dependencies{
		DB:     testutil.NewDB(t),
		Config: config.Config{WebhookSecrets: map[string]string{"generic": "s3cr3t"}},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", strings.NewReader(`{}`))
	req.Header.Set("X-Payment-Provider", "generic")
	req.Header.Set("X-Signature", sign("wrong", `{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"invalid signature"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
