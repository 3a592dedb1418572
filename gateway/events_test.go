package gateway_test

import (
	"testing"

	"github.com/haven/lease-engine/gateway"
)

// =============================================================================
// EVENT PARSING TESTS
// =============================================================================

func TestParseEvent_Confirmation(t *testing.T) {
	// GIVEN: A well-formed confirmation envelope
	// WHEN: Parsing
	// THEN: Shape fields are extracted

	body := []byte(`{
		"event": "confirmation",
		"data": {
			"transaction_id": "TX-001",
			"checkout_id": "CHK-1",
			"account_reference": "lease-1",
			"amount": "45000",
			"transaction_date": "2025-06-03",
			"payment_type": "RENT",
			"msisdn": "+254700000001"
		}
	}`)

	e := gateway.ParseEvent(body)
	if e.Kind != gateway.KindConfirmation {
		t.Fatalf("kind = %s, want confirmation", e.Kind)
	}
	c := e.Confirmation
	if c.TransactionID != "TX-001" || c.LeaseRef != "lease-1" || c.Amount != "45000" {
		t.Errorf("confirmation fields = %+v", c)
	}
	if c.PaidAt != "2025-06-03" {
		t.Errorf("paid_at = %q", c.PaidAt)
	}
}

func TestParseEvent_FlattenedPayload(t *testing.T) {
	// Some gateway versions put the fields beside the discriminator instead
	// of under "data".
	body := []byte(`{
		"event": "validation",
		"transaction_id": "TX-002",
		"account_reference": "lease-1",
		"amount": "45000"
	}`)

	e := gateway.ParseEvent(body)
	if e.Kind != gateway.KindValidation {
		t.Fatalf("kind = %s, want validation", e.Kind)
	}
	if e.Validation.TransactionID != "TX-002" {
		t.Errorf("transaction_id = %q", e.Validation.TransactionID)
	}
}

func TestParseEvent_InitiateAck(t *testing.T) {
	body := []byte(`{"event": "initiate_ack", "data": {"checkout_id": "CHK-1", "account_reference": "lease-1"}}`)

	e := gateway.ParseEvent(body)
	if e.Kind != gateway.KindInitiateAck {
		t.Fatalf("kind = %s, want initiate_ack", e.Kind)
	}
	if e.InitiateAck.CheckoutID != "CHK-1" {
		t.Errorf("checkout_id = %q", e.InitiateAck.CheckoutID)
	}
}

func TestParseEvent_MalformedNeverErrors(t *testing.T) {
	// GIVEN: Garbage, truncations and near-misses
	// WHEN: Parsing
	// THEN: Every one yields an Unparsed event carrying the raw payload

	cases := []struct {
		name string
		body string
	}{
		{"not json", `this is not json`},
		{"empty object", `{}`},
		{"unknown event", `{"event": "mystery", "data": {}}`},
		{"missing discriminator field", `{"event": "confirmation", "data": {"amount": "100"}}`},
		{"validation without transaction id", `{"event": "validation", "data": {"amount": "100"}}`},
		{"truncated", `{"event": "confirmation", "data": {"transaction_id`},
		{"empty body", ``},
		{"null", `null`},
	}
	for _, c := range cases {
		e := gateway.ParseEvent([]byte(c.body))
		if e.Kind != gateway.KindUnparsed {
			t.Errorf("%s: kind = %s, want unparsed", c.name, e.Kind)
		}
		if string(e.Raw) != c.body {
			t.Errorf("%s: raw payload not preserved", c.name)
		}
	}
}
