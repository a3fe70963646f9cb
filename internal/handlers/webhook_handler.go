package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"deposit-reconciliation-backend/internal/models"
	"deposit-reconciliation-backend/internal/services/webhook"
)

const maxWebhookBody = 1 << 20

type WebhookIngestor interface {
	Handle(ctx context.Context, provider string, headers http.Header, payload []byte) (*webhook.Result, error)
}

type WebhookHandler struct {
	ingestor WebhookIngestor
	log      *zap.Logger
}

func NewWebhookHandler(i WebhookIngestor, log *zap.Logger) *WebhookHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{ingestor: i, log: log.Named("http.webhook")}
}

// Receive answers 200 for an ingested, duplicate or ignored delivery.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, h.log, models.Validation("payload too large"))
			return
		}
		respondError(c, h.log, models.Validation("cannot read payload"))
		return
	}

	res, err := h.ingestor.Handle(c.Request.Context(), c.GetHeader(webhook.HeaderProvider), c.Request.Header, body)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	out := gin.H{"success": true}
	if res.Ignored {
		out["ignored"] = true
	}
	if res.Ingest != nil {
		out["depositId"] = res.Ingest.DepositID
		out["status"] = res.Ingest.Status
		out["duplicate"] = res.Ingest.Duplicate
	}
	c.JSON(http.StatusOK, out)
}
