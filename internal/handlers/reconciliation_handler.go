package handler

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"deposit-reconciliation-backend/internal/models"
	"deposit-reconciliation-backend/internal/services/matching"
	service "deposit-reconciliation-backend/internal/services/reconciliation"
)

const (
	HeaderOperatorID = "X-Operator-ID"
	defaultOperator  = "operator"
)

// ReconciliationService is the part of the reconciliation service the HTTP
// layer drives.
type ReconciliationService interface {
	CommitMatch(ctx context.Context, depositID, orderID uuid.UUID, matchType, actorID string) (*service.MatchResult, error)
	Unmatch(ctx context.Context, depositID uuid.UUID, actorID, reason string) (*service.DepositView, error)
	Candidates(ctx context.Context, depositID uuid.UUID) ([]matching.Recommendation, error)
	List(ctx context.Context, q service.ListQuery) (*service.DepositPage, error)
	Get(ctx context.Context, depositID uuid.UUID) (*service.DepositDetail, error)
	Stats(ctx context.Context) (service.Stats, error)
	ImportCSV(ctx context.Context, provider, filename string, r io.Reader) (*service.ImportSummary, error)
}

type ReconciliationHandler struct {
	service ReconciliationService
	log     *zap.Logger
}

func NewReconciliationHandler(s ReconciliationService, log *zap.Logger) *ReconciliationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReconciliationHandler{service: s, log: log.Named("http.reconciliation")}
}

func operatorID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(HeaderOperatorID)); id != "" {
		return id
	}
	return defaultOperator
}

func depositID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "invalid deposit ID")
		return uuid.Nil, false
	}
	return id, true
}

// Match binds the deposit to the chosen order. isManual=true records the
// fixed manual confidence; otherwise the computed score must reach the
// auto-match threshold.
func (h *ReconciliationHandler) Match(c *gin.Context) {
	id, ok := depositID(c)
	if !ok {
		return
	}

	var payload struct {
		OrderID  string `json:"orderId"`
		IsManual bool   `json:"isManual"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondBadRequest(c, "invalid payload")
		return
	}
	orderID, err := uuid.Parse(strings.TrimSpace(payload.OrderID))
	if err != nil {
		respondBadRequest(c, "invalid order ID")
		return
	}

	matchType := models.MatchTypeAuto
	if payload.IsManual {
		matchType = models.MatchTypeManual
	}
	res, err := h.service.CommitMatch(c.Request.Context(), id, orderID, matchType, operatorID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respondOK(c, res)
}

func (h *ReconciliationHandler) Unmatch(c *gin.Context) {
	id, ok := depositID(c)
	if !ok {
		return
	}

	var payload struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(c, "invalid payload")
		return
	}

	view, err := h.service.Unmatch(c.Request.Context(), id, operatorID(c), strings.TrimSpace(payload.Reason))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respondOK(c, view)
}

func (h *ReconciliationHandler) Candidates(c *gin.Context) {
	id, ok := depositID(c)
	if !ok {
		return
	}
	recs, err := h.service.Candidates(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respondOK(c, recs)
}

func (h *ReconciliationHandler) Get(c *gin.Context) {
	id, ok := depositID(c)
	if !ok {
		return
	}
	detail, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respondOK(c, detail)
}

// List handles GET /payments?status=&bankCode=&search=&page=&limit=.
func (h *ReconciliationHandler) List(c *gin.Context) {
	page, err := queryInt(c, "page")
	if err != nil {
		respondBadRequest(c, "invalid page")
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondBadRequest(c, "invalid limit")
		return
	}

	res, err := h.service.List(c.Request.Context(), service.ListQuery{
		Status:   strings.TrimSpace(c.Query("status")),
		BankCode: strings.TrimSpace(c.Query("bankCode")),
		Search:   strings.TrimSpace(c.Query("search")),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respondOK(c, res)
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (h *ReconciliationHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respondOK(c, stats)
}

// Import ingests an uploaded bank statement CSV synchronously.
func (h *ReconciliationHandler) Import(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondBadRequest(c, "file required")
		return
	}
	defer file.Close()

	h.log.Info("statement received", zap.String("file", header.Filename), zap.Int64("size", header.Size))

	summary, err := h.service.ImportCSV(c.Request.Context(), c.PostForm("provider"), header.Filename, file)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respondOK(c, summary)
}
