/*
ledger.go - Append-only payment ledger

PURPOSE:
  The Ledger is the immutable source of truth for money received against a
  lease. Per-lease balances are always computed by replaying payments -
  there is no persisted "balance" field that can get out of sync.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: payments are never updated or deleted
  2. IMMUTABLE: corrections are new compensating entries
  3. IDEMPOTENT: a dedup key maps to at most one payment, so at-least-once
     webhook delivery collapses to a single append

DEDUP SEMANTICS:
  Append with a dedup key is atomic-and-idempotent. The store performs a
  single atomic check-and-insert (unique constraint); when the key already
  exists the ledger loads and returns the previously created payment. The
  caller observes the same result for every delivery of the same
  confirmation. A read-then-write race can never produce two payments for
  one key, and the argument does not rely on application locks - multiple
  process instances may receive the same webhook.

  Append WITHOUT a dedup key (manual/staff entry) always creates a new
  payment; no dedup is attempted.

SEE ALSO:
  - store.go: PaymentStore contract
  - gateway/adapter.go: Supplies gateway transaction IDs as dedup keys
*/
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger appends payments against leases and answers balance queries.
type Ledger struct {
	Leases   LeaseStore
	Payments PaymentStore
	Catalog  PaymentTypeCatalog
	Notifier Notifier
	Logger   *slog.Logger
}

// NewLedger wires a ledger with no-op collaborators where nil is given.
func NewLedger(leases LeaseStore, payments PaymentStore, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		Leases:   leases,
		Payments: payments,
		Catalog:  BuiltinCatalog{},
		Notifier: NopNotifier{},
		Logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type LedgerOption func(*Ledger)

func WithCatalog(c PaymentTypeCatalog) LedgerOption { return func(l *Ledger) { l.Catalog = c } }
func WithNotifier(n Notifier) LedgerOption          { return func(l *Ledger) { l.Notifier = n } }
func WithLogger(lg *slog.Logger) LedgerOption       { return func(l *Ledger) { l.Logger = lg } }

// Append records a payment against a lease.
//
// With a non-empty dedupKey the call is idempotent: the first return value is
// the payment the key maps to, and the second reports whether this call
// created it (false for a repeated delivery).
func (l *Ledger) Append(ctx context.Context, leaseID LeaseID, draft PaymentDraft, dedupKey string) (*LeasePayment, bool, error) {
	if !draft.Amount.IsPositive() {
		return nil, false, ErrInvalidAmount
	}
	if draft.PaidAt.IsZero() {
		return nil, false, &ValidationError{Field: "paid_at", Reason: "required"}
	}

	agreement, err := l.Leases.GetLease(ctx, leaseID)
	if err != nil {
		return nil, false, err
	}
	if agreement.Deleted() {
		return nil, false, ErrLeaseNotFound
	}

	typeCode := draft.TypeCode
	if typeCode == "" {
		typeCode = PaymentTypeRent
	}
	if _, err := l.Catalog.Lookup(ctx, typeCode); err != nil {
		return nil, false, fmt.Errorf("payment type %q: %w", typeCode, err)
	}

	payment := &LeasePayment{
		ID:           PaymentID(uuid.NewString()),
		LeaseID:      agreement.ID,
		TenantID:     agreement.TenantID,
		UnitID:       agreement.UnitID,
		PropertyID:   agreement.PropertyID,
		Amount:       draft.Amount,
		PaidAt:       draft.PaidAt,
		TypeCode:     typeCode,
		ProviderTxID: draft.ProviderTxID,
		Metadata:     draft.Metadata,
		RecordedBy:   draft.RecordedBy,
		RecordedAt:   time.Now().UTC(),
	}

	err = l.Payments.AppendPayment(ctx, payment, dedupKey)
	if errors.Is(err, ErrDuplicateDedupKey) {
		// At-least-once delivery collapsed to at-most-once effect: return the
		// payment the first delivery created.
		existing, lookupErr := l.Payments.GetPaymentByDedupKey(ctx, dedupKey)
		if lookupErr != nil {
			return nil, false, fmt.Errorf("dedup key %s exists but payment lookup failed: %w", dedupKey, lookupErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	l.notifyPayment(ctx, agreement, payment)
	return payment, true, nil
}

// PaymentsForLease returns the lease's ledger ordered by PaidAt.
func (l *Ledger) PaymentsForLease(ctx context.Context, leaseID LeaseID) ([]LeasePayment, error) {
	if _, err := l.Leases.GetLease(ctx, leaseID); err != nil {
		return nil, err
	}
	return l.Payments.PaymentsForLease(ctx, leaseID)
}

// TotalPaid sums the lease's payments. When asOf is non-nil only payments
// with PaidAt on or before it are counted.
func (l *Ledger) TotalPaid(ctx context.Context, leaseID LeaseID, asOf *Date) (Money, error) {
	payments, err := l.PaymentsForLease(ctx, leaseID)
	if err != nil {
		return ZeroMoney(), err
	}
	total := ZeroMoney()
	for _, p := range payments {
		if asOf != nil && p.PaidAt.After(*asOf) {
			continue
		}
		total = total.Add(p.Amount)
	}
	return total, nil
}

// notifyPayment dispatches the payment-received SMS. Fire-and-forget:
// notification failure never fails the append that triggered it.
func (l *Ledger) notifyPayment(ctx context.Context, agreement *LeaseAgreement, p *LeasePayment) {
	msg := fmt.Sprintf("Payment of %s received for unit %s on %s", p.Amount, p.UnitID, p.PaidAt)
	if err := l.Notifier.Notify(ctx, agreement.TenantID, msg); err != nil {
		l.Logger.Warn("payment notification failed",
			"lease_id", agreement.ID, "tenant_id", agreement.TenantID, "error", err)
	}
}
