package payment

import (
	"errors"

	"github.com/hoaworks/metergate/domain/billing"
	"github.com/hoaworks/metergate/ports"
)

// NoopProvider is a provider stand-in for installs without billing.
type NoopProvider struct{}

// NewNoopProvider creates a new noop payment provider.
func NewNoopProvider() *NoopProvider {
	return &NoopProvider{}
}

// Name returns the provider name.
func (n *NoopProvider) Name() string {
	return "none"
}

// ParseWebhook always fails: no provider is configured.
func (n *NoopProvider) ParseWebhook(payload []byte) (billing.SubscriptionEvent, error) {
	return billing.SubscriptionEvent{}, errors.New("no payment provider configured")
}

// Ensure interface compliance.
var _ ports.PaymentProvider = (*NoopProvider)(nil)
