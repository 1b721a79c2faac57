package payment

import (
	"testing"

	"github.com/hoaworks/metergate/domain/billing"
	"github.com/hoaworks/metergate/domain/tier"
)

func TestPaddleParseWebhook(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantType billing.EventType
		wantErr  bool
	}{
		{
			name: "subscription created",
			payload: `{
				"event_type": "subscription.created",
				"data": {
					"id": "sub_01h",
					"customer_id": "ctm_01h",
					"status": "active",
					"custom_data": {"email": "board@example.com"},
					"items": [{"price": {"id": "pri_pro_monthly"}}]
				}
			}`,
			wantType: billing.EventSubscriptionCreated,
		},
		{
			name:     "subscription updated",
			payload:  `{"event_type": "subscription.updated", "data": {"id": "sub_01h"}}`,
			wantType: billing.EventSubscriptionUpdated,
		},
		{
			name:     "subscription canceled",
			payload:  `{"event_type": "subscription.canceled", "data": {"id": "sub_01h", "status": "canceled"}}`,
			wantType: billing.EventSubscriptionCanceled,
		},
		{
			name:     "transaction completed",
			payload:  `{"event_type": "transaction.completed", "data": {"id": "txn_01h"}}`,
			wantType: billing.EventPaymentSucceeded,
		},
		{
			name:    "missing event type",
			payload: `{"data": {"id": "sub_01h"}}`,
			wantErr: true,
		},
		{
			name:    "unsupported event type",
			payload: `{"event_type": "address.created", "data": {}}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			payload: `{"event_type": `,
			wantErr: true,
		},
	}

	provider := NewPaddleProvider()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := provider.ParseWebhook([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWebhook: %v", err)
			}
			if ev.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", ev.Type, tt.wantType)
			}
		})
	}
}

func TestPaddleParseWebhookFields(t *testing.T) {
	payload := `{
		"event_type": "subscription.created",
		"data": {
			"id": "sub_01h",
			"customer_id": "ctm_01h",
			"status": "active",
			"custom_data": {"email": "board@example.com"},
			"items": [{"price": {"id": "pri_agency_monthly"}}]
		}
	}`

	ev, err := NewPaddleProvider().ParseWebhook([]byte(payload))
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if ev.Email != "board@example.com" {
		t.Errorf("Email = %q, want board@example.com", ev.Email)
	}
	if ev.SubscriptionID != "sub_01h" {
		t.Errorf("SubscriptionID = %q, want sub_01h", ev.SubscriptionID)
	}
	if ev.CustomerID != "ctm_01h" {
		t.Errorf("CustomerID = %q, want ctm_01h", ev.CustomerID)
	}
	if ev.PriceID != "pri_agency_monthly" {
		t.Errorf("PriceID = %q, want pri_agency_monthly", ev.PriceID)
	}
	if got := ev.ResolveTier(); got != tier.Agency {
		t.Errorf("ResolveTier = %q, want agency", got)
	}
}

func TestNoopProviderRejectsWebhooks(t *testing.T) {
	provider := NewNoopProvider()
	if provider.Name() != "noop" {
		t.Errorf("Name = %q, want noop", provider.Name())
	}
	if _, err := provider.ParseWebhook([]byte(`{}`)); err == nil {
		t.Error("noop provider must reject webhooks")
	}
}
