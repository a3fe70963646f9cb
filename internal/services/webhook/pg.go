package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"deposit-reconciliation-backend/internal/models"
)

const (
	ProviderPG        = "pg"
	HeaderPGSignature = "PG-Signature"

	PGEventDepositCompleted = "deposit.completed"
)

// PGEvent is a payment gateway event envelope. Only deposit.completed
// carries a deposit; other types are acknowledged and dropped.
type PGEvent struct {
	ID      string      `json:"id"`
	Type    string      `json:"type"`
	Created int64       `json:"created"`
	Data    pgEventData `json:"data"`

	Deposit *PGDeposit `json:"-"`
}

func (*PGEvent) payload() {}

type pgEventData struct {
	Object json.RawMessage `json:"object"`
}

type PGDeposit struct {
	ID            string `json:"id"`
	Amount        int64  `json:"amount"`
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	DepositorName string `json:"depositor_name"`
	DepositedAt   int64  `json:"deposited_at"`
	Memo          string `json:"memo"`
}

// PGProvider verifies PG-Signature: t=<unix>,v1=<hex hmac(t + "." + body)>.
type PGProvider struct{}

func (PGProvider) Name() string { return ProviderPG }

func (PGProvider) Verify(payload []byte, headers http.Header, secret string, now time.Time) error {
	header := strings.TrimSpace(headers.Get(HeaderPGSignature))
	if header == "" {
		return errInvalidSignature
	}
	timestamp, signatures, err := parsePGSignature(header)
	if err != nil {
		return errInvalidSignature
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil || !withinTolerance(time.Unix(ts, 0), now) {
		return errInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp + "."))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return errInvalidSignature
}

func parsePGSignature(header string) (string, []string, error) {
	var (
		timestamp  string
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errInvalidSignature
	}
	return timestamp, signatures, nil
}

func (PGProvider) Parse(payload []byte) (Payload, error) {
	var ev PGEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, models.Validation("malformed pg payload")
	}
	if strings.TrimSpace(ev.ID) == "" || strings.TrimSpace(ev.Type) == "" {
		return nil, models.Validation("pg event id and type are required")
	}
	if ev.Type != PGEventDepositCompleted {
		return &ev, nil
	}

	var d PGDeposit
	if len(ev.Data.Object) == 0 {
		return nil, models.Validation("pg event has no data object")
	}
	if err := json.Unmarshal(ev.Data.Object, &d); err != nil {
		return nil, models.Validation("malformed pg deposit object")
	}
	ev.Deposit = &d
	return &ev, nil
}
