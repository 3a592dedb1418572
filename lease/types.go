/*
Package lease provides the lease lifecycle and payment reconciliation engine.

PURPOSE:
  This package contains the domain types and algorithms for deriving billing
  schedules from lease terms, recording payments in an append-only ledger with
  idempotent reconciliation, governing lease state transitions, and computing
  point-in-time financial reports (rent roll, arrears aging).

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A decimal monetary quantity (single currency per lease)
  - LeaseAgreement: The terms a billing schedule is derived from
  - LeasePayment: An immutable ledger entry attributed to a lease
  - SignatureParty: Per-party e-signature state on a pending lease

DESIGN PRINCIPLES:
  1. Immutability: Payments are never modified; corrections are new entries
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Derivation: Schedules and balances are computed from lease terms and the
     ledger on every read - there is no cached "next due date" or "balance"
     field that can drift from the source of truth
  4. Soft delete: Leases carry DeletedAt and are never physically removed,
     since historical ledger entries must remain attributable

SEE ALSO:
  - schedule.go: Due-date derivation from lease terms
  - ledger.go: Payment ledger with idempotent append
  - lifecycle.go: Lease state machine
  - report.go: Rent roll and arrears aging
*/
package lease

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal monetary quantity
// =============================================================================

// Money is a currency-agnostic decimal amount. The engine assumes a single
// currency per lease; there is no unit or exchange handling.
type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money        { return Money{Value: decimal.NewFromFloat(value)} }
func NewMoneyFromInt(value int64) Money   { return Money{Value: decimal.NewFromInt(value)} }
func ZeroMoney() Money                    { return Money{Value: decimal.Zero} }

// ParseMoney parses a decimal string such as "45000" or "1250.50".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Value: d}, nil
}

// MustMoney parses a decimal string, returning zero on failure.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		return ZeroMoney()
	}
	return m
}

func (m Money) Add(b Money) Money             { return Money{Value: m.Value.Add(b.Value)} }
func (m Money) Sub(b Money) Money             { return Money{Value: m.Value.Sub(b.Value)} }
func (m Money) Mul(s decimal.Decimal) Money   { return Money{Value: m.Value.Mul(s)} }
func (m Money) MulInt(n int64) Money          { return Money{Value: m.Value.Mul(decimal.NewFromInt(n))} }
func (m Money) Neg() Money                    { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool                  { return m.Value.IsZero() }
func (m Money) IsPositive() bool              { return m.Value.IsPositive() }
func (m Money) IsNegative() bool              { return m.Value.IsNegative() }
func (m Money) GreaterThan(b Money) bool      { return m.Value.GreaterThan(b.Value) }
func (m Money) LessThan(b Money) bool         { return m.Value.LessThan(b.Value) }
func (m Money) Equal(b Money) bool            { return m.Value.Equal(b.Value) }
func (m Money) String() string                { return m.Value.String() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	LeaseID    string
	PaymentID  string
	UnitID     string
	TenantID   string
	LandlordID string
	PropertyID string
	OrgID      string
)

// =============================================================================
// ENUMS
// =============================================================================

type LeaseType string

const (
	LeaseFixedTerm LeaseType = "fixed_term"
	LeasePeriodic  LeaseType = "periodic"
)

func (t LeaseType) Valid() bool { return t == LeaseFixedTerm || t == LeasePeriodic }

type ChargeType string

const (
	ChargeRent  ChargeType = "rent"
	ChargeOther ChargeType = "other"
)

func (t ChargeType) Valid() bool { return t == ChargeRent || t == ChargeOther }

type PaymentFrequency string

const (
	FreqWeekly    PaymentFrequency = "weekly"
	FreqBiweekly  PaymentFrequency = "biweekly"
	FreqMonthly   PaymentFrequency = "monthly"
	FreqQuarterly PaymentFrequency = "quarterly"
	FreqYearly    PaymentFrequency = "yearly"
)

func (f PaymentFrequency) Valid() bool {
	switch f {
	case FreqWeekly, FreqBiweekly, FreqMonthly, FreqQuarterly, FreqYearly:
		return true
	}
	return false
}

type LeaseStatus string

const (
	StatusPending    LeaseStatus = "pending"
	StatusActive     LeaseStatus = "active"
	StatusTerminated LeaseStatus = "terminated"
	StatusExpired    LeaseStatus = "expired"
	StatusSuspended  LeaseStatus = "suspended"
)

func (s LeaseStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusTerminated, StatusExpired, StatusSuspended:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave this status.
// All transitions are monotonic except active <-> suspended.
func (s LeaseStatus) Terminal() bool {
	return s == StatusTerminated || s == StatusExpired
}

type SignatureStatus string

const (
	SignaturePending  SignatureStatus = "pending"
	SignatureSigned   SignatureStatus = "signed"
	SignatureRejected SignatureStatus = "rejected"
	SignatureCanceled SignatureStatus = "canceled"
)

// =============================================================================
// SIGNATURE PARTY - Per-party e-signature state
// =============================================================================

// SignatureParty is one required signer on a lease. Each party's status moves
// pending -> {signed, rejected, canceled} independently; the lease activates
// only once every required party has signed.
type SignatureParty struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Role     string          `json:"role"` // "tenant", "landlord", "witness"
	Required bool            `json:"required"`
	Status   SignatureStatus `json:"status"`
	SentAt   time.Time       `json:"sent_at"`
	SignedAt *time.Time      `json:"signed_at,omitempty"`
}

// =============================================================================
// LEASE AGREEMENT
// =============================================================================

// LeaseAgreement holds the terms a billing schedule is derived from.
//
// INVARIANTS:
//   - EndDate > StartDate
//   - FirstPaymentDate, if set, lies within [StartDate, EndDate]
//   - Status transitions are monotonic except active <-> suspended
//   - Never physically deleted (DeletedAt soft delete only)
type LeaseAgreement struct {
	ID         LeaseID
	OrgID      OrgID
	PropertyID PropertyID
	UnitID     UnitID
	TenantID   TenantID
	LandlordID LandlordID

	StartDate Date
	EndDate   Date
	Amount    Money

	LeaseType        LeaseType
	ChargeType       ChargeType
	Frequency        PaymentFrequency
	FirstPaymentDate *Date

	Status            LeaseStatus
	TerminationReason string

	Parties            []SignatureParty
	SignedDocumentRef  string
	SignedDocumentHash string // SHA-256 of the signed document

	Terms    string
	Metadata map[string]string

	// Version guards concurrent term mutations (compare-and-set on update).
	Version int

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Deleted reports whether the lease has been soft-deleted.
func (l *LeaseAgreement) Deleted() bool { return l.DeletedAt != nil }

// RequiresSignature reports whether any required party has not yet signed.
func (l *LeaseAgreement) RequiresSignature() bool {
	for _, p := range l.Parties {
		if p.Required && p.Status != SignatureSigned {
			return true
		}
	}
	return false
}

// AllSigned reports whether all required parties have signed. A lease with
// no parties is trivially signed.
func (l *LeaseAgreement) AllSigned() bool { return !l.RequiresSignature() }

// Overlaps reports whether [StartDate, EndDate) intersects [start, end).
func (l *LeaseAgreement) Overlaps(start, end Date) bool {
	return l.StartDate.Before(end) && start.Before(l.EndDate)
}

// ActiveDuring reports whether the lease occupies any day in [from, to)
// and has ever been (or could become) billable.
func (l *LeaseAgreement) ActiveDuring(from, to Date) bool {
	if l.Status == StatusPending || l.Deleted() {
		return false
	}
	return l.Overlaps(from, to)
}

// Validate checks the structural invariants of the lease terms.
func (l *LeaseAgreement) Validate() error {
	if l.UnitID == "" {
		return &ValidationError{Field: "unit_id", Reason: "required"}
	}
	if l.TenantID == "" {
		return &ValidationError{Field: "tenant_id", Reason: "required"}
	}
	if l.StartDate.IsZero() || l.EndDate.IsZero() {
		return &ValidationError{Field: "dates", Reason: "start and end dates are required"}
	}
	if !l.EndDate.After(l.StartDate) {
		return &ValidationError{Field: "end_date", Reason: "must be after start date"}
	}
	if !l.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if !l.Frequency.Valid() {
		return &ValidationError{Field: "payment_frequency", Reason: "unknown frequency"}
	}
	if l.FirstPaymentDate != nil {
		if l.FirstPaymentDate.Before(l.StartDate) || l.FirstPaymentDate.After(l.EndDate) {
			return &ValidationError{Field: "first_payment_date", Reason: "must lie within the lease term"}
		}
	}
	return nil
}

// =============================================================================
// LEASE PAYMENT - Immutable ledger entry
// =============================================================================

// LeasePayment is one entry in the append-only payment ledger.
//
// INVARIANTS:
//   - Amount > 0
//   - Immutable once appended; corrections are compensating entries
//
// Tenant, unit and property references are denormalized from the lease at
// append time so reports do not need joins against mutable lease rows.
type LeasePayment struct {
	ID      PaymentID
	LeaseID LeaseID

	TenantID   TenantID
	UnitID     UnitID
	PropertyID PropertyID

	Amount Money
	// PaidAt is the economic event time, which may differ from RecordedAt
	// (a gateway confirmation can arrive days after the payment was made).
	PaidAt Date

	TypeCode     string // RENT, LATE_FEE, DEPOSIT, ... (payment-type catalog)
	ProviderTxID string // Gateway transaction reference, empty for manual entries
	Metadata     map[string]string

	RecordedBy string
	RecordedAt time.Time
}

// PaymentDraft is the caller-supplied part of a payment before the ledger
// fills in identity and denormalized lease references.
type PaymentDraft struct {
	Amount       Money
	PaidAt       Date
	TypeCode     string
	ProviderTxID string
	Metadata     map[string]string
	RecordedBy   string
}

// =============================================================================
// PAYMENT TYPE CATALOG
// =============================================================================

// PaymentType is an entry in the payment-type catalog.
type PaymentType struct {
	Code string
	Name string
}

// Builtin payment type codes.
const (
	PaymentTypeRent    = "RENT"
	PaymentTypeLateFee = "LATE_FEE"
	PaymentTypeDeposit = "DEPOSIT"
	PaymentTypeOther   = "OTHER"
)
