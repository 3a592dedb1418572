/*
events.go - Inbound payment-gateway event shapes

PURPOSE:
  The gateway posts loosely-typed JSON callbacks. Rather than passing "any"
  payloads around, the boundary parses them defensively into a tagged union
  of known shapes; anything unrecognized becomes an Unparsed event that is
  logged and acknowledged, never a crash. Malformed payloads can never
  become well-formed, so returning an error to the gateway would only
  trigger useless retries.

EVENT SHAPES:
  initiate_ack  Gateway acknowledged a checkout we initiated
  validation    Gateway asks "should this transaction proceed?" (synchronous)
  confirmation  Asynchronous settlement notice; may arrive multiple times,
                arbitrarily delayed, out of order across transactions
  unparsed      Unknown or malformed payload (kept raw for logging)
*/
package gateway

import (
	"encoding/json"
)

// =============================================================================
// EVENT UNION
// =============================================================================

type EventKind string

const (
	KindInitiateAck  EventKind = "initiate_ack"
	KindValidation   EventKind = "validation"
	KindConfirmation EventKind = "confirmation"
	KindUnparsed     EventKind = "unparsed"
)

// Event is the tagged union of inbound gateway callbacks. Exactly one of the
// shape pointers is set for parsed events; Unparsed events keep the raw
// payload for logging.
type Event struct {
	Kind         EventKind
	InitiateAck  *InitiateAck
	Validation   *ValidationRequest
	Confirmation *Confirmation
	Raw          json.RawMessage
}

// InitiateAck acknowledges a checkout session we asked the gateway to open.
// No ledger entry results from it - it is a request, not a confirmation.
type InitiateAck struct {
	CheckoutID string `json:"checkout_id"`
	LeaseRef   string `json:"account_reference"`
	Amount     string `json:"amount"`
}

// ValidationRequest is the gateway's synchronous pre-completion check.
type ValidationRequest struct {
	TransactionID string `json:"transaction_id"`
	LeaseRef      string `json:"account_reference"`
	Amount        string `json:"amount"`
	Phone         string `json:"msisdn"`
}

// Confirmation is the asynchronous settlement notice. TransactionID is the
// dedup key that collapses repeated deliveries to one ledger append.
type Confirmation struct {
	TransactionID string `json:"transaction_id"`
	CheckoutID    string `json:"checkout_id"`
	LeaseRef      string `json:"account_reference"`
	Amount        string `json:"amount"`
	PaidAt        string `json:"transaction_date"`
	TypeCode      string `json:"payment_type"`
	Phone         string `json:"msisdn"`
}

// =============================================================================
// DEFENSIVE PARSING
// =============================================================================

// envelope is the discriminator wrapper every well-formed callback carries.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ParseEvent decodes a gateway callback body. It never returns an error:
// unknown event names, missing discriminators and undecodable bodies all
// yield an Unparsed event carrying the raw payload.
func ParseEvent(body []byte) Event {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Event == "" {
		return Event{Kind: KindUnparsed, Raw: body}
	}

	data := env.Data
	if len(data) == 0 {
		// Some gateway versions flatten the payload beside the discriminator.
		data = body
	}

	switch EventKind(env.Event) {
	case KindInitiateAck:
		var e InitiateAck
		if json.Unmarshal(data, &e) != nil || e.CheckoutID == "" {
			return Event{Kind: KindUnparsed, Raw: body}
		}
		return Event{Kind: KindInitiateAck, InitiateAck: &e, Raw: body}

	case KindValidation:
		var e ValidationRequest
		if json.Unmarshal(data, &e) != nil || e.TransactionID == "" {
			return Event{Kind: KindUnparsed, Raw: body}
		}
		return Event{Kind: KindValidation, Validation: &e, Raw: body}

	case KindConfirmation:
		var e Confirmation
		if json.Unmarshal(data, &e) != nil || e.TransactionID == "" {
			return Event{Kind: KindUnparsed, Raw: body}
		}
		return Event{Kind: KindConfirmation, Confirmation: &e, Raw: body}

	default:
		return Event{Kind: KindUnparsed, Raw: body}
	}
}
