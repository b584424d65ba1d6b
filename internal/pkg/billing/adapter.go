package billing

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Adapter turns one provider's webhook deliveries into PaymentEvents.
// Normalize is pure; Verify may call out to the provider.
type Adapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Normalize(payload []byte, receivedAt time.Time) (PaymentEvent, error)
}

// Adapters indexes adapters by provider name.
type Adapters map[string]Adapter

func NewAdapters(list ...Adapter) Adapters {
	out := make(Adapters, len(list))
	for _, a := range list {
		out[a.Provider()] = a
	}
	return out
}

func (a Adapters) Get(provider string) (Adapter, bool) {
	ad, ok := a[strings.ToLower(strings.TrimSpace(provider))]
	return ad, ok
}

func malformed(provider, eventType string, err error) error {
	return &NormalizationError{Provider: provider, EventType: eventType, Reason: ReasonMalformed, Err: err}
}

func missingCorrelation(provider, eventType string) error {
	return &NormalizationError{Provider: provider, EventType: eventType, Reason: ReasonMissingCorrelation}
}
