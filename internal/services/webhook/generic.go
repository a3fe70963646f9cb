package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"deposit-reconciliation-backend/internal/models"
)

const (
	ProviderGeneric        = "generic"
	HeaderGenericSignature = "X-Signature"
)

// GenericDeposit is the canonical deposit body.
type GenericDeposit struct {
	ExternalID      string    `json:"externalId"`
	BankCode        string    `json:"bankCode"`
	AccountNumber   string    `json:"accountNumber"`
	DepositorName   string    `json:"depositorName"`
	Amount          int64     `json:"amount"`
	TransactionDate time.Time `json:"transactionDate"`
	Memo            string    `json:"memo"`
}

func (*GenericDeposit) payload() {}

// GenericProvider signs the raw body: X-Signature: sha256=<hex hmac>.
type GenericProvider struct{}

func (GenericProvider) Name() string { return ProviderGeneric }

func (GenericProvider) Verify(payload []byte, headers http.Header, secret string, _ time.Time) error {
	sig := strings.TrimSpace(headers.Get(HeaderGenericSignature))
	sig, ok := strings.CutPrefix(sig, "sha256=")
	if !ok || sig == "" {
		return errInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected)) {
		return errInvalidSignature
	}
	return nil
}

func (GenericProvider) Parse(payload []byte) (Payload, error) {
	var d GenericDeposit
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, models.Validation("malformed generic payload")
	}
	return &d, nil
}
