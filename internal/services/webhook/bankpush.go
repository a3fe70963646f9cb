package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"deposit-reconciliation-backend/internal/models"
)

const (
	ProviderBankPush        = "bankpush"
	HeaderBankPushTimestamp = "X-Bankpush-Timestamp"
	HeaderBankPushSignature = "X-Bankpush-Signature"

	bankPushTimeLayout = "2006-01-02 15:04:05"
)

// BankPushDeposit is a bank push notification. Amounts may arrive as strings
// with thousands separators and times are local to the bank.
type BankPushDeposit struct {
	TID        string         `json:"tid"`
	BankCode   string         `json:"bank_code"`
	AccountNo  string         `json:"account_no"`
	SenderName string         `json:"sender_name"`
	Amount     bankPushAmount `json:"amount"`
	TradeAt    string         `json:"trade_at"`
	Remark     string         `json:"remark"`

	tradeTime time.Time
}

func (*BankPushDeposit) payload() {}

type bankPushAmount int64

func (a *bankPushAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*a = bankPushAmount(n)
	return nil
}

// BankPushProvider signs base64(hmac(timestamp + "." + body)).
type BankPushProvider struct {
	location *time.Location
}

func NewBankPushProvider() BankPushProvider {
	// Asia/Seoul has no daylight saving time.
	return BankPushProvider{location: time.FixedZone("KST", 9*60*60)}
}

func (BankPushProvider) Name() string { return ProviderBankPush }

func (BankPushProvider) Verify(payload []byte, headers http.Header, secret string, now time.Time) error {
	tsHeader := strings.TrimSpace(headers.Get(HeaderBankPushTimestamp))
	sig := strings.TrimSpace(headers.Get(HeaderBankPushSignature))
	if tsHeader == "" || sig == "" {
		return errInvalidSignature
	}
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil || !withinTolerance(time.Unix(ts, 0), now) {
		return errInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(tsHeader + "."))
	_, _ = mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return errInvalidSignature
	}
	return nil
}

func (p BankPushProvider) Parse(payload []byte) (Payload, error) {
	var d BankPushDeposit
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, models.Validation("malformed bankpush payload")
	}
	if strings.TrimSpace(d.TradeAt) == "" {
		return nil, models.Validation("trade_at is required")
	}
	loc := p.location
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(bankPushTimeLayout, strings.TrimSpace(d.TradeAt), loc)
	if err != nil {
		return nil, models.Validation("trade_at must be " + bankPushTimeLayout)
	}
	d.tradeTime = t
	return &d, nil
}
