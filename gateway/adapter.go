/*
adapter.go - Reconciliation gateway adapter

PURPOSE:
  Normalizes inbound payment-gateway traffic into ledger operations:

  Initiate   Start a gateway checkout. Returns a session reference; no
             ledger entry - a request is not a confirmation.
  Validate   Synchronous accept/reject decision before the gateway
             completes a transaction. Fast and side-effect-free.
  Confirm    Asynchronous settlement notice. The gateway transaction ID is
             the dedup key; delivery is at-least-once, so the idempotent
             ledger append is mandatory here, not optional.

LOST-STATE TOLERANCE:
  Confirm must handle transactions whose Initiate this process never saw
  (restarts, another instance handled it). It therefore appends based
  solely on the confirmation payload and keeps no required session state.

ERROR POLICY:
  Handlers respond immediately and never surface business failures back as
  gateway-visible errors: the gateway retries indefinitely and a malformed
  or unknown payload can never become well-formed. Such payloads are logged
  and acknowledged (Ignored outcome). Only infrastructure failures (store
  unavailable) propagate, since a retry CAN fix those.
*/
package gateway

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/haven/lease-engine/lease"
)

// =============================================================================
// ADAPTER
// =============================================================================

// Adapter bridges gateway callbacks and the payment ledger.
type Adapter struct {
	Ledger *lease.Ledger
	Leases lease.LeaseStore
	Logger *slog.Logger
}

func NewAdapter(ledger *lease.Ledger, leases lease.LeaseStore, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{Ledger: ledger, Leases: leases, Logger: logger}
}

// =============================================================================
// INITIATE
// =============================================================================

// InitiateRequest asks the gateway to open a checkout for a lease payment.
type InitiateRequest struct {
	LeaseID  lease.LeaseID
	Amount   lease.Money
	TypeCode string
	Phone    string
}

// CheckoutSession is the gateway-issued session reference returned to the
// caller. The tenant completes payment against it out of band.
type CheckoutSession struct {
	CheckoutID string
	LeaseID    lease.LeaseID
	Amount     lease.Money
}

// Initiate validates the request and issues a checkout reference. No ledger
// entry is written until a confirmation arrives.
func (a *Adapter) Initiate(ctx context.Context, req InitiateRequest) (*CheckoutSession, error) {
	if !req.Amount.IsPositive() {
		return nil, lease.ErrInvalidAmount
	}
	agreement, err := a.Leases.GetLease(ctx, req.LeaseID)
	if err != nil {
		return nil, err
	}
	if agreement.Deleted() {
		return nil, lease.ErrLeaseNotFound
	}
	if agreement.Status != lease.StatusActive {
		return nil, lease.ErrLeaseNotActive
	}

	session := &CheckoutSession{
		CheckoutID: uuid.NewString(),
		LeaseID:    agreement.ID,
		Amount:     req.Amount,
	}
	a.Logger.Info("checkout initiated",
		"checkout_id", session.CheckoutID, "lease_id", agreement.ID, "amount", req.Amount)
	return session, nil
}

// =============================================================================
// VALIDATE
// =============================================================================

// Decision is the synchronous answer to a gateway validation request.
type Decision struct {
	Accepted bool
	Reason   string
}

func accept() Decision                { return Decision{Accepted: true} }
func reject(reason string) Decision   { return Decision{Accepted: false, Reason: reason} }

// Validate applies business rules to a pre-completion check. Rejection is
// fast and side-effect-free: nothing is written on either path.
func (a *Adapter) Validate(ctx context.Context, req ValidationRequest) Decision {
	amount, err := lease.ParseMoney(req.Amount)
	if err != nil || !amount.IsPositive() {
		return reject("invalid amount")
	}

	agreement, err := a.Leases.GetLease(ctx, lease.LeaseID(req.LeaseRef))
	if err != nil {
		return reject("unknown account reference")
	}
	if agreement.Deleted() {
		return reject("unknown account reference")
	}
	switch agreement.Status {
	case lease.StatusActive, lease.StatusSuspended:
		return accept()
	default:
		return reject("lease not accepting payments")
	}
}

// =============================================================================
// CONFIRM
// =============================================================================

type ConfirmStatus string

const (
	// ConfirmApplied means this delivery created the ledger entry.
	ConfirmApplied ConfirmStatus = "applied"
	// ConfirmDuplicate means an earlier delivery already created it.
	ConfirmDuplicate ConfirmStatus = "duplicate"
	// ConfirmIgnored means the payload was recognized but business-invalid
	// (or unparseable); it was logged and must still be acknowledged.
	ConfirmIgnored ConfirmStatus = "ignored"
)

// ConfirmOutcome reports what a confirmation delivery did. The HTTP layer
// acknowledges every outcome - Ignored included.
type ConfirmOutcome struct {
	Status  ConfirmStatus
	Payment *lease.LeasePayment
}

// Confirm reconciles a settlement notice into the ledger, using the gateway
// transaction ID as the dedup key. Repeated deliveries of the same
// transaction return the payment the first one created.
func (a *Adapter) Confirm(ctx context.Context, c Confirmation) (ConfirmOutcome, error) {
	amount, err := lease.ParseMoney(c.Amount)
	if err != nil || !amount.IsPositive() {
		a.Logger.Warn("confirmation with invalid amount ignored",
			"transaction_id", c.TransactionID, "amount", c.Amount)
		return ConfirmOutcome{Status: ConfirmIgnored}, nil
	}

	paidAt, err := lease.ParseDate(c.PaidAt)
	if err != nil {
		// Settlement date missing or malformed: fall back to ingestion day so
		// the payment still lands rather than being dropped.
		paidAt = lease.Today()
	}

	draft := lease.PaymentDraft{
		Amount:       amount,
		PaidAt:       paidAt,
		TypeCode:     c.TypeCode,
		ProviderTxID: c.TransactionID,
		Metadata: map[string]string{
			"checkout_id": c.CheckoutID,
			"msisdn":      c.Phone,
		},
		RecordedBy: "gateway",
	}

	payment, created, err := a.Ledger.Append(ctx, lease.LeaseID(c.LeaseRef), draft, c.TransactionID)
	switch {
	case err == nil && created:
		a.Logger.Info("confirmation applied",
			"transaction_id", c.TransactionID, "lease_id", c.LeaseRef, "payment_id", payment.ID)
		return ConfirmOutcome{Status: ConfirmApplied, Payment: payment}, nil

	case err == nil:
		a.Logger.Info("duplicate confirmation absorbed",
			"transaction_id", c.TransactionID, "payment_id", payment.ID)
		return ConfirmOutcome{Status: ConfirmDuplicate, Payment: payment}, nil

	case lease.IsNotFound(err) || lease.IsValidation(err):
		// Recognized but business-invalid: the gateway cannot repair this by
		// retrying, so swallow after logging and acknowledge.
		a.Logger.Warn("confirmation ignored",
			"transaction_id", c.TransactionID, "lease_ref", c.LeaseRef, "error", err)
		return ConfirmOutcome{Status: ConfirmIgnored}, nil

	default:
		return ConfirmOutcome{}, err
	}
}

// HandleEvent dispatches a parsed event. Unparsed payloads are logged and
// acknowledged; initiate acks carry no ledger effect.
func (a *Adapter) HandleEvent(ctx context.Context, e Event) (ConfirmOutcome, error) {
	switch e.Kind {
	case KindConfirmation:
		return a.Confirm(ctx, *e.Confirmation)
	case KindInitiateAck:
		a.Logger.Info("checkout acknowledged by gateway", "checkout_id", e.InitiateAck.CheckoutID)
		return ConfirmOutcome{Status: ConfirmIgnored}, nil
	default:
		a.Logger.Warn("unparsed gateway payload ignored", "payload", string(e.Raw))
		return ConfirmOutcome{Status: ConfirmIgnored}, nil
	}
}
