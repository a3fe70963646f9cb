package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"deposit-reconciliation-backend/internal/models"
	"deposit-reconciliation-backend/internal/services/matching"
	service "deposit-reconciliation-backend/internal/services/reconciliation"
	"deposit-reconciliation-backend/internal/services/webhook"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) CommitMatch(ctx context.Context, depositID, orderID uuid.UUID, matchType, actorID string) (*service.MatchResult, error) {
	args := m.Called(ctx, depositID, orderID, matchType, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.MatchResult), args.Error(1)
}

func (m *mockService) Unmatch(ctx context.Context, depositID uuid.UUID, actorID, reason string) (*service.DepositView, error) {
	args := m.Called(ctx, depositID, actorID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DepositView), args.Error(1)
}

func (m *mockService) Candidates(ctx context.Context, depositID uuid.UUID) ([]matching.Recommendation, error) {
	args := m.Called(ctx, depositID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]matching.Recommendation), args.Error(1)
}

func (m *mockService) List(ctx context.Context, q service.ListQuery) (*service.DepositPage, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DepositPage), args.Error(1)
}

func (m *mockService) Get(ctx context.Context, depositID uuid.UUID) (*service.DepositDetail, error) {
	args := m.Called(ctx, depositID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DepositDetail), args.Error(1)
}

func (m *mockService) Stats(ctx context.Context) (service.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(service.Stats), args.Error(1)
}

func (m *mockService) ImportCSV(ctx context.Context, provider, filename string, r io.Reader) (*service.ImportSummary, error) {
	args := m.Called(ctx, provider, filename, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ImportSummary), args.Error(1)
}

type mockIngestor struct {
	mock.Mock
}

func (m *mockIngestor) Handle(ctx context.Context, provider string, headers http.Header, payload []byte) (*webhook.Result, error) {
	args := m.Called(ctx, provider, headers, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhook.Result), args.Error(1)
}

func newRouter(svc ReconciliationService, ing WebhookIngestor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rh := NewReconciliationHandler(svc, nil)
	wh := NewWebhookHandler(ing, nil)
	p := r.Group("/api/payments")
	p.POST("/webhook", wh.Receive)
	p.POST("/import", rh.Import)
	p.GET("/stats", rh.Stats)
	p.GET("", rh.List)
	p.GET("/:id", rh.Get)
	p.GET("/:id/candidates", rh.Candidates)
	p.POST("/:id/match", rh.Match)
	p.POST("/:id/unmatch", rh.Unmatch)
	return r
}

func do(r http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{models.NotFound("order not found"), http.StatusNotFound},
		{models.Conflict("already matched to another deposit"), http.StatusBadRequest},
		{models.Validation("bad"), http.StatusBadRequest},
		{models.Authentication("invalid signature"), http.StatusUnauthorized},
		{models.StorageUnavailable(errors.New("timeout")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestMatchManual(t *testing.T) {
	svc := &mockService{}
	depositID, orderID := uuid.New(), uuid.New()
	svc.On("CommitMatch", mock.Anything, depositID, orderID, models.MatchTypeManual, "op-42").
		Return(&service.MatchResult{Match: models.MatchRecord{MatchType: models.MatchTypeManual, MatchScore: 0.5}}, nil)

	body := `{"orderId":"` + orderID.String() + `","isManual":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/payments/"+depositID.String()+"/match", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderOperatorID, "op-42")

	w, resp := do(newRouter(svc, nil), req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	data := resp["data"].(map[string]any)
	assert.Equal(t, 0.5, data["match"].(map[string]any)["matchScore"])
	svc.AssertExpectations(t)
}

func TestMatchScoredDefaultsOperator(t *testing.T) {
	svc := &mockService{}
	depositID, orderID := uuid.New(), uuid.New()
	svc.On("CommitMatch", mock.Anything, depositID, orderID, models.MatchTypeAuto, "operator").
		Return(nil, models.Conflict("already matched to another deposit"))

	body := `{"orderId":"` + orderID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/payments/"+depositID.String()+"/match", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w, resp := do(newRouter(svc, nil), req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "already matched to another deposit", resp["error"])
}

func TestMatchRejectsBadIDs(t *testing.T) {
	svc := &mockService{}
	r := newRouter(svc, nil)

	w, resp := do(r, httptest.NewRequest(http.MethodPost, "/api/payments/not-a-uuid/match", bytes.NewBufferString(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid deposit ID", resp["error"])

	w, resp = do(r, httptest.NewRequest(http.MethodPost, "/api/payments/"+uuid.NewString()+"/match", bytes.NewBufferString(`{"orderId":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid order ID", resp["error"])
	svc.AssertNotCalled(t, "CommitMatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMatchNotFound(t *testing.T) {
	svc := &mockService{}
	svc.On("CommitMatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, models.NotFound("order not found"))
	body := `{"orderId":"` + uuid.NewString() + `","isManual":true}`
	w, resp := do(newRouter(svc, nil), httptest.NewRequest(http.MethodPost, "/api/payments/"+uuid.NewString()+"/match", bytes.NewBufferString(body)))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "order not found", resp["error"])
}

func TestUnmatchWithoutBody(t *testing.T) {
	svc := &mockService{}
	id := uuid.New()
	svc.On("Unmatch", mock.Anything, id, "operator", "").
		Return(&service.DepositView{Deposit: models.Deposit{ID: id, Status: models.DepositStatusUnmatched}}, nil)

	w, resp := do(newRouter(svc, nil), httptest.NewRequest(http.MethodPost, "/api/payments/"+id.String()+"/unmatch", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unmatched", resp["data"].(map[string]any)["status"])
}

func TestCandidates(t *testing.T) {
	svc := &mockService{}
	id, orderID := uuid.New(), uuid.New()
	svc.On("Candidates", mock.Anything, id).Return([]matching.Recommendation{{
		OrderID: orderID, Score: 1, Reasons: []string{"amount matches exactly"},
	}}, nil)

	w, resp := do(newRouter(svc, nil), httptest.NewRequest(http.MethodGet, "/api/payments/"+id.String()+"/candidates", nil))
	require.Equal(t, http.StatusOK, w.Code)
	items := resp["data"].([]any)
	require.Len(t, items, 1)
	first := items[0].(map[string]any)
	assert.Equal(t, orderID.String(), first["orderId"])
	assert.Equal(t, 1.0, first["score"])
	assert.Equal(t, []any{"amount matches exactly"}, first["reasons"])
}

func TestListParsesQuery(t *testing.T) {
	svc := &mockService{}
	svc.On("List", mock.Anything, service.ListQuery{
		Status: "unmatched", BankCode: "004", Search: "kim", Page: 2, Limit: 10,
	}).Return(&service.DepositPage{Page: 2, Limit: 10, Total: 11}, nil)

	w, resp := do(newRouter(svc, nil), httptest.NewRequest(http.MethodGet, "/api/payments?status=unmatched&bankCode=004&search=kim&page=2&limit=10", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 11.0, resp["data"].(map[string]any)["total"])

	w, _ = do(newRouter(svc, nil), httptest.NewRequest(http.MethodGet, "/api/payments?page=two", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsStorageUnavailableHidesCause(t *testing.T) {
	svc := &mockService{}
	svc.On("Stats", mock.Anything).Return(service.Stats{}, models.StorageUnavailable(errors.New("dial tcp 10.0.0.5:5432")))

	w, resp := do(newRouter(svc, nil), httptest.NewRequest(http.MethodGet, "/api/payments/stats", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "storage unavailable", resp["error"])
}

func TestGetDetail(t *testing.T) {
	svc := &mockService{}
	id := uuid.New()
	svc.On("Get", mock.Anything, id).Return(&service.DepositDetail{
		DepositView: service.DepositView{Deposit: models.Deposit{ID: id, Amount: 50000}},
	}, nil)

	w, resp := do(newRouter(svc, nil), httptest.NewRequest(http.MethodGet, "/api/payments/"+id.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 50000.0, resp["data"].(map[string]any)["amount"])
}

func TestImport(t *testing.T) {
	svc := &mockService{}
	svc.On("ImportCSV", mock.Anything, "bank-a", "jan.csv", mock.Anything).
		Return(&service.ImportSummary{File: "jan.csv", Received: 3}, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("provider", "bank-a"))
	fw, err := mw.CreateFormFile("file", "jan.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("transaction_id,transaction_date,amount\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/payments/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w, resp := do(newRouter(svc, nil), req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3.0, resp["data"].(map[string]any)["received"])

	w, resp = do(newRouter(svc, nil), httptest.NewRequest(http.MethodPost, "/api/payments/import", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "file required", resp["error"])
}

func TestWebhookResponses(t *testing.T) {
	ing := &mockIngestor{}
	depositID := uuid.New()
	ing.On("Handle", mock.Anything, "generic", mock.Anything, []byte(`{"ok":1}`)).
		Return(&webhook.Result{Provider: "generic", Ingest: &service.IngestResult{
			DepositID: depositID, Status: models.DepositStatusDuplicate, Duplicate: true,
		}}, nil)
	ing.On("Handle", mock.Anything, "generic", mock.Anything, []byte(`{"bad":1}`)).
		Return(nil, models.Authentication("invalid signature"))
	ing.On("Handle", mock.Anything, "generic", mock.Anything, []byte(`{"boom":1}`)).
		Return(nil, errors.New("pq: relation does not exist"))

	r := newRouter(nil, ing)
	send := func(body string) (*httptest.ResponseRecorder, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewBufferString(body))
		req.Header.Set(webhook.HeaderProvider, "generic")
		return do(r, req)
	}

	w, resp := send(`{"ok":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, true, resp["duplicate"])
	assert.Equal(t, depositID.String(), resp["depositId"])

	w, resp = send(`{"bad":1}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, map[string]any{"success": false, "error": "invalid signature"}, resp)

	w, resp = send(`{"boom":1}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", resp["error"])
}
