/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines the interface between the engine and the database, plus the
  external collaborators the engine consumes as black boxes (identity
  lookups, SMS dispatch, payment-type catalog).

APPEND-ONLY CONTRACT:
  PaymentStore has no update or delete for payments. AppendPayment is the
  only write, and when given a dedup key it must be a single atomic
  check-and-insert: a unique constraint (or equivalent) on the dedup key,
  NOT a read-then-write, so two concurrent deliveries of the same gateway
  confirmation cannot both insert. The losing writer gets
  ErrDuplicateDedupKey and the ledger returns the winner's payment.

SNAPSHOT READS:
  Reports replay the ledger against lease terms. WithView hands the reporter
  a consistent read view (a single read transaction in SQL stores) so a
  report never mixes a half-applied payment with a half-committed lease edit.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - lease/store: In-memory for tests

SEE ALSO:
  - ledger.go: Uses PaymentStore
  - lifecycle.go: Uses LeaseStore
  - report.go: Uses ViewStore
*/
package lease

import "context"

// =============================================================================
// LEASE STORE
// =============================================================================

// LeaseStore persists lease agreements. Leases are soft-deleted only;
// implementations must keep deleted rows readable so historical payments
// stay attributable.
type LeaseStore interface {
	// InsertLease persists a new lease.
	InsertLease(ctx context.Context, l *LeaseAgreement) error

	// UpdateLease persists changed terms with a compare-and-set on Version.
	// Returns ErrStaleLease when a concurrent mutation won, ErrLeaseNotFound
	// when the row does not exist. On success the stored Version is bumped
	// and l.Version is updated to match.
	UpdateLease(ctx context.Context, l *LeaseAgreement) error

	// GetLease returns a lease by ID, including soft-deleted ones (callers
	// check Deleted()). Returns ErrLeaseNotFound when absent.
	GetLease(ctx context.Context, id LeaseID) (*LeaseAgreement, error)

	ListLeasesByTenant(ctx context.Context, id TenantID) ([]*LeaseAgreement, error)
	ListLeasesByLandlord(ctx context.Context, id LandlordID) ([]*LeaseAgreement, error)
	ListLeasesByUnit(ctx context.Context, id UnitID) ([]*LeaseAgreement, error)
	ListLeasesByProperty(ctx context.Context, id PropertyID) ([]*LeaseAgreement, error)

	// OverlappingLease returns a non-deleted pending/active/suspended lease on
	// the unit whose [start, end) intersects the given interval, or nil.
	OverlappingLease(ctx context.Context, unitID UnitID, start, end Date) (*LeaseAgreement, error)

	// ListActiveLeases returns all non-deleted active leases. Used by the
	// scan-style queries that feed external reminder/renewal schedulers.
	ListActiveLeases(ctx context.Context) ([]*LeaseAgreement, error)

	// ListPendingLeases returns all non-deleted pending leases (e-signature
	// reminder scans).
	ListPendingLeases(ctx context.Context) ([]*LeaseAgreement, error)
}

// =============================================================================
// PAYMENT STORE - Append-only
// =============================================================================

// PaymentStore persists ledger entries. Append-only: no update, no delete.
type PaymentStore interface {
	// AppendPayment persists a payment. When dedupKey is non-empty the write
	// atomically creates the payment and its idempotency record; if the key
	// already exists nothing is written and ErrDuplicateDedupKey is returned.
	AppendPayment(ctx context.Context, p *LeasePayment, dedupKey string) error

	// GetPaymentByDedupKey returns the payment a dedup key maps to.
	// Returns ErrPaymentNotFound when the key is unknown.
	GetPaymentByDedupKey(ctx context.Context, dedupKey string) (*LeasePayment, error)

	// PaymentsForLease returns all payments for a lease ordered by PaidAt.
	PaymentsForLease(ctx context.Context, id LeaseID) ([]LeasePayment, error)
}

// =============================================================================
// VIEW STORE - Consistent snapshot reads for reporting
// =============================================================================

// View is a consistent snapshot over leases and payments.
type View interface {
	LeasesForProperty(ctx context.Context, id PropertyID) ([]*LeaseAgreement, error)
	PaymentsForLease(ctx context.Context, id LeaseID) ([]LeasePayment, error)
}

// ViewStore provides snapshot-isolated reads. Everything fn reads through
// the view observes one point in time, isolated from in-flight appends.
type ViewStore interface {
	WithView(ctx context.Context, fn func(View) error) error
}

// =============================================================================
// COLLABORATORS - External systems consumed as black boxes
// =============================================================================

// Directory answers identity/existence questions about units, tenants and
// properties. Owned by the property-management CRUD outside this engine.
type Directory interface {
	UnitExists(ctx context.Context, id UnitID) (bool, error)
	TenantExists(ctx context.Context, id TenantID) (bool, error)
	PropertyForUnit(ctx context.Context, id UnitID) (PropertyID, error)
}

// OpenDirectory accepts every reference. Used when the surrounding system
// has already validated identities, and in tests.
type OpenDirectory struct{}

func (OpenDirectory) UnitExists(context.Context, UnitID) (bool, error)     { return true, nil }
func (OpenDirectory) TenantExists(context.Context, TenantID) (bool, error) { return true, nil }
func (OpenDirectory) PropertyForUnit(_ context.Context, id UnitID) (PropertyID, error) {
	return "", nil
}

// Notifier dispatches tenant notifications (SMS). Fire-and-forget: failures
// are logged by callers and never fail the ledger operation that triggered
// the notification.
type Notifier interface {
	Notify(ctx context.Context, tenantID TenantID, message string) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, TenantID, string) error { return nil }

// PaymentTypeCatalog resolves payment type codes.
type PaymentTypeCatalog interface {
	// Lookup returns the payment type for a code, or ErrPaymentTypeUnknown.
	Lookup(ctx context.Context, code string) (*PaymentType, error)
}

// BuiltinCatalog resolves the builtin codes (RENT, LATE_FEE, DEPOSIT, OTHER).
type BuiltinCatalog struct{}

func (BuiltinCatalog) Lookup(_ context.Context, code string) (*PaymentType, error) {
	switch code {
	case PaymentTypeRent:
		return &PaymentType{Code: code, Name: "Rent"}, nil
	case PaymentTypeLateFee:
		return &PaymentType{Code: code, Name: "Late fee"}, nil
	case PaymentTypeDeposit:
		return &PaymentType{Code: code, Name: "Deposit"}, nil
	case PaymentTypeOther:
		return &PaymentType{Code: code, Name: "Other"}, nil
	}
	return nil, ErrPaymentTypeUnknown
}
