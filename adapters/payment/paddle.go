// Package payment provides payment provider adapters.
package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hoaworks/metergate/domain/billing"
	"github.com/hoaworks/metergate/ports"
)

// paddleWebhook mirrors the Paddle Billing webhook envelope, reduced
// to the fields the upgrade applier needs.
type paddleWebhook struct {
	EventType string `json:"event_type"`
	Data      struct {
		ID         string `json:"id"`
		CustomerID string `json:"customer_id"`
		Status     string `json:"status"`
		CustomData struct {
			Email string `json:"email"`
		} `json:"custom_data"`
		Items []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"items"`
	} `json:"data"`
}

// PaddleProvider implements ports.PaymentProvider for Paddle.
type PaddleProvider struct{}

// NewPaddleProvider creates a new Paddle payment provider.
func NewPaddleProvider() *PaddleProvider {
	return &PaddleProvider{}
}

// Name returns the provider name.
func (p *PaddleProvider) Name() string {
	return "paddle"
}

// ParseWebhook parses a Paddle Billing webhook payload into a
// subscription event. The checkout email travels in custom_data, set
// by the front end when opening the checkout.
func (p *PaddleProvider) ParseWebhook(payload []byte) (billing.SubscriptionEvent, error) {
	var wh paddleWebhook
	if err := json.Unmarshal(payload, &wh); err != nil {
		return billing.SubscriptionEvent{}, fmt.Errorf("parse paddle webhook: %w", err)
	}

	eventType, err := mapPaddleEventType(wh.EventType)
	if err != nil {
		return billing.SubscriptionEvent{}, err
	}

	ev := billing.SubscriptionEvent{
		Type:           eventType,
		CustomerID:     wh.Data.CustomerID,
		SubscriptionID: wh.Data.ID,
		Status:         wh.Data.Status,
		Email:          wh.Data.CustomData.Email,
	}
	if len(wh.Data.Items) > 0 {
		ev.PriceID = wh.Data.Items[0].Price.ID
	}
	return ev, nil
}

func mapPaddleEventType(t string) (billing.EventType, error) {
	switch t {
	case "subscription.created":
		return billing.EventSubscriptionCreated, nil
	case "subscription.updated":
		return billing.EventSubscriptionUpdated, nil
	case "subscription.canceled":
		return billing.EventSubscriptionCanceled, nil
	case "transaction.completed":
		return billing.EventPaymentSucceeded, nil
	case "":
		return "", errors.New("paddle webhook missing event_type")
	}
	return "", fmt.Errorf("unsupported paddle event type %q", t)
}

// Ensure interface compliance.
var _ ports.PaymentProvider = (*PaddleProvider)(nil)
