// Package webhook authenticates provider deposit notifications and hands the
// normalized deposit to reconciliation.
package webhook

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

const signatureTolerance = 5 * time.Minute

var (
	errInvalidSignature = errors.New("invalid signature")
	errEventIgnored     = errors.New("event ignored")
)

// Provider verifies and decodes one provider's wire format.
type Provider interface {
	Name() string
	Verify(payload []byte, headers http.Header, secret string, now time.Time) error
	Parse(payload []byte) (Payload, error)
}

// Payload is one of the typed provider variants: *GenericDeposit,
// *BankPushDeposit or *PGEvent.
type Payload interface {
	payload()
}

type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: map[string]Provider{}}
	for _, p := range providers {
		if p == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(p.Name()))
		if name == "" {
			continue
		}
		r.providers[name] = p
	}
	return r
}

// DefaultRegistry knows every built-in provider.
func DefaultRegistry() *Registry {
	return NewRegistry(GenericProvider{}, NewBankPushProvider(), PGProvider{})
}

func (r *Registry) Get(name string) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

func withinTolerance(ts, now time.Time) bool {
	d := now.Sub(ts)
	if d < 0 {
		d = -d
	}
	return d <= signatureTolerance
}
