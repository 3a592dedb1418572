/*
lifecycle.go - Lease state machine

PURPOSE:
  Governs lease creation, extension, termination, expiry, suspension and the
  e-signature sub-flow. Owns the terms the schedule calculator reads - a
  term change needs no cache invalidation because schedules are derived on
  every read.

STATES:
  pending -> active -> {terminated, expired, suspended}
  suspended -> active    (the only non-monotonic edge)

TRANSITIONS:
  Create:    pending when unsigned required parties exist, else active.
             Fails when the unit has an overlapping [start, end) lease.
  Extend:    active only; new end >= current end; optional new amount.
             Ledger history is untouched - the schedule recomputes from the
             updated terms automatically.
  Terminate: active or suspended; start <= date <= end. Sets the end date so
             later anchors simply stop being generated.
  Expire:    time-driven, invoked by an external scheduler once the end date
             has passed with no extension.
  SignParty: each party moves pending -> {signed, rejected, canceled}
             independently; the lease activates once all required parties
             have signed.

CONCURRENCY:
  Term mutations are serialized per lease via the store's compare-and-set on
  Version (single-row scope). Two concurrent extensions cannot silently
  overwrite each other's end date: the loser gets ErrStaleLease.

SEE ALSO:
  - schedule.go: Derives due dates from the terms owned here
  - store.go: LeaseStore contract (UpdateLease CAS)
*/
package lease

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LIFECYCLE SERVICE
// =============================================================================

// Lifecycle is the lease state machine over a LeaseStore.
type Lifecycle struct {
	Store     LeaseStore
	Payments  PaymentStore // for missing-payment scans; may be nil
	Directory Directory
	Notifier  Notifier
	Logger    *slog.Logger
}

func NewLifecycle(store LeaseStore, opts ...LifecycleOption) *Lifecycle {
	s := &Lifecycle{
		Store:     store,
		Directory: OpenDirectory{},
		Notifier:  NopNotifier{},
		Logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type LifecycleOption func(*Lifecycle)

func WithDirectory(d Directory) LifecycleOption      { return func(s *Lifecycle) { s.Directory = d } }
func WithPayments(p PaymentStore) LifecycleOption    { return func(s *Lifecycle) { s.Payments = p } }
func WithLifecycleNotifier(n Notifier) LifecycleOption {
	return func(s *Lifecycle) { s.Notifier = n }
}
func WithLifecycleLogger(lg *slog.Logger) LifecycleOption {
	return func(s *Lifecycle) { s.Logger = lg }
}

// =============================================================================
// CREATE
// =============================================================================

// CreateLeaseInput carries the terms for a new lease.
type CreateLeaseInput struct {
	OrgID      OrgID
	PropertyID PropertyID
	UnitID     UnitID
	TenantID   TenantID
	LandlordID LandlordID

	StartDate        Date
	EndDate          Date
	Amount           Money
	LeaseType        LeaseType
	ChargeType       ChargeType
	Frequency        PaymentFrequency
	FirstPaymentDate *Date

	Parties  []SignatureParty
	Terms    string
	Metadata map[string]string
}

// Create produces a pending lease when unsigned required parties are
// attached, an active one otherwise. Fails with ErrLeaseOverlap when the
// unit already has a lease with an intersecting [start, end) interval.
func (s *Lifecycle) Create(ctx context.Context, in CreateLeaseInput) (*LeaseAgreement, error) {
	now := time.Now().UTC()

	leaseType := in.LeaseType
	if leaseType == "" {
		leaseType = LeaseFixedTerm
	}
	chargeType := in.ChargeType
	if chargeType == "" {
		chargeType = ChargeRent
	}

	agreement := &LeaseAgreement{
		ID:               LeaseID(uuid.NewString()),
		OrgID:            in.OrgID,
		PropertyID:       in.PropertyID,
		UnitID:           in.UnitID,
		TenantID:         in.TenantID,
		LandlordID:       in.LandlordID,
		StartDate:        in.StartDate,
		EndDate:          in.EndDate,
		Amount:           in.Amount,
		LeaseType:        leaseType,
		ChargeType:       chargeType,
		Frequency:        in.Frequency,
		FirstPaymentDate: in.FirstPaymentDate,
		Parties:          normalizeParties(in.Parties, now),
		Terms:            in.Terms,
		Metadata:         in.Metadata,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := agreement.Validate(); err != nil {
		return nil, err
	}

	if ok, err := s.Directory.UnitExists(ctx, in.UnitID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrUnitNotFound
	}
	if ok, err := s.Directory.TenantExists(ctx, in.TenantID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrTenantNotFound
	}

	existing, err := s.Store.OverlappingLease(ctx, in.UnitID, in.StartDate, in.EndDate)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &OverlapError{
			UnitID:     in.UnitID,
			ExistingID: existing.ID,
			Start:      existing.StartDate,
			End:        existing.EndDate,
		}
	}

	if agreement.RequiresSignature() {
		agreement.Status = StatusPending
	} else {
		agreement.Status = StatusActive
	}

	if err := s.Store.InsertLease(ctx, agreement); err != nil {
		return nil, err
	}
	return agreement, nil
}

func normalizeParties(parties []SignatureParty, now time.Time) []SignatureParty {
	out := make([]SignatureParty, len(parties))
	for i, p := range parties {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.Status == "" {
			p.Status = SignaturePending
		}
		if p.SentAt.IsZero() {
			p.SentAt = now
		}
		out[i] = p
	}
	return out
}

// =============================================================================
// EXTEND / TERMINATE / EXPIRE / SUSPEND
// =============================================================================

// Extend moves the end date forward and optionally changes the amount.
// History already in the ledger is untouched; future anchors recompute from
// the updated terms.
func (s *Lifecycle) Extend(ctx context.Context, id LeaseID, newEnd Date, newAmount *Money) (*LeaseAgreement, error) {
	agreement, err := s.mutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if agreement.Status != StatusActive {
		return nil, fmt.Errorf("extend lease %s: %w", id, ErrLeaseNotActive)
	}
	if newEnd.Before(agreement.EndDate) {
		return nil, &ValidationError{Field: "end_date", Reason: "extension must not shorten the lease"}
	}
	if newAmount != nil {
		if !newAmount.IsPositive() {
			return nil, ErrInvalidAmount
		}
		agreement.Amount = *newAmount
	}

	agreement.EndDate = newEnd
	return s.save(ctx, agreement)
}

// Terminate ends the lease on the given date and records the reason.
// Already-elapsed ledger entries are untouched; anchors after the
// termination date stop being generated.
func (s *Lifecycle) Terminate(ctx context.Context, id LeaseID, date Date, reason string) (*LeaseAgreement, error) {
	agreement, err := s.mutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if agreement.Status != StatusActive && agreement.Status != StatusSuspended {
		return nil, &TransitionError{LeaseID: id, From: agreement.Status, To: StatusTerminated}
	}
	if date.Before(agreement.StartDate) || date.After(agreement.EndDate) {
		return nil, &ValidationError{Field: "termination_date", Reason: "must lie within the lease term"}
	}

	agreement.EndDate = date
	agreement.Status = StatusTerminated
	agreement.TerminationReason = reason
	return s.save(ctx, agreement)
}

// Expire transitions an active lease whose end date has passed to expired.
// Invoked by an external scheduler, not self-scheduled.
func (s *Lifecycle) Expire(ctx context.Context, id LeaseID, asOf Date) (*LeaseAgreement, error) {
	agreement, err := s.mutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if agreement.Status != StatusActive {
		return nil, &TransitionError{LeaseID: id, From: agreement.Status, To: StatusExpired}
	}
	if !agreement.EndDate.Before(asOf) {
		return nil, &ValidationError{Field: "as_of", Reason: "lease has not passed its end date"}
	}

	agreement.Status = StatusExpired
	return s.save(ctx, agreement)
}

// Suspend pauses an active lease. The only transition that can be undone.
func (s *Lifecycle) Suspend(ctx context.Context, id LeaseID) (*LeaseAgreement, error) {
	agreement, err := s.mutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if agreement.Status != StatusActive {
		return nil, &TransitionError{LeaseID: id, From: agreement.Status, To: StatusSuspended}
	}
	agreement.Status = StatusSuspended
	return s.save(ctx, agreement)
}

// Resume reactivates a suspended lease.
func (s *Lifecycle) Resume(ctx context.Context, id LeaseID) (*LeaseAgreement, error) {
	agreement, err := s.mutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if agreement.Status != StatusSuspended {
		return nil, &TransitionError{LeaseID: id, From: agreement.Status, To: StatusActive}
	}
	agreement.Status = StatusActive
	return s.save(ctx, agreement)
}

// =============================================================================
// E-SIGNATURE SUB-FLOW
// =============================================================================

// SignParty records a party's decision. When the last required party signs,
// the lease activates.
func (s *Lifecycle) SignParty(ctx context.Context, id LeaseID, partyID string, status SignatureStatus) (*LeaseAgreement, error) {
	switch status {
	case SignatureSigned, SignatureRejected, SignatureCanceled:
	default:
		return nil, &ValidationError{Field: "status", Reason: "must be signed, rejected or canceled"}
	}

	agreement, err := s.mutable(ctx, id)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range agreement.Parties {
		p := &agreement.Parties[i]
		if p.ID != partyID {
			continue
		}
		found = true
		if p.Status != SignaturePending {
			return nil, &ValidationError{Field: "party", Reason: fmt.Sprintf("party already %s", p.Status)}
		}
		p.Status = status
		if status == SignatureSigned {
			now := time.Now().UTC()
			p.SignedAt = &now
		}
	}
	if !found {
		return nil, &ValidationError{Field: "party_id", Reason: "unknown signature party"}
	}

	if agreement.Status == StatusPending && agreement.AllSigned() {
		agreement.Status = StatusActive
	}
	return s.save(ctx, agreement)
}

// AttachSignedDocument records the executed document reference and its
// content hash once signing completes.
func (s *Lifecycle) AttachSignedDocument(ctx context.Context, id LeaseID, ref, contentHash string) (*LeaseAgreement, error) {
	agreement, err := s.mutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if ref == "" {
		return nil, &ValidationError{Field: "document_ref", Reason: "required"}
	}
	agreement.SignedDocumentRef = ref
	agreement.SignedDocumentHash = contentHash
	return s.save(ctx, agreement)
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *Lifecycle) GetByID(ctx context.Context, id LeaseID) (*LeaseAgreement, error) {
	return s.Store.GetLease(ctx, id)
}

func (s *Lifecycle) ListByTenant(ctx context.Context, id TenantID) ([]*LeaseAgreement, error) {
	return s.Store.ListLeasesByTenant(ctx, id)
}

func (s *Lifecycle) ListByLandlord(ctx context.Context, id LandlordID) ([]*LeaseAgreement, error) {
	return s.Store.ListLeasesByLandlord(ctx, id)
}

func (s *Lifecycle) ListByUnit(ctx context.Context, id UnitID) ([]*LeaseAgreement, error) {
	return s.Store.ListLeasesByUnit(ctx, id)
}

// =============================================================================
// SCAN QUERIES - Feed external reminder/renewal schedulers
// =============================================================================

// LeasesNeedingSignatureReminders returns pending leases with at least one
// required, still-pending party whose signature request went out at least
// daysSinceSent days ago.
func (s *Lifecycle) LeasesNeedingSignatureReminders(ctx context.Context, daysSinceSent int) ([]*LeaseAgreement, error) {
	pending, err := s.Store.ListPendingLeases(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -daysSinceSent)

	var out []*LeaseAgreement
	for _, l := range pending {
		for _, p := range l.Parties {
			if p.Required && p.Status == SignaturePending && !p.SentAt.After(cutoff) {
				out = append(out, l)
				break
			}
		}
	}
	return out, nil
}

// LeasesWithMissingPayments returns active leases whose elapsed due amount
// exceeds what the ledger has collected as of the given date.
func (s *Lifecycle) LeasesWithMissingPayments(ctx context.Context, asOf Date) ([]*LeaseAgreement, error) {
	if s.Payments == nil {
		return nil, fmt.Errorf("missing-payment scan requires a payment store")
	}
	active, err := s.Store.ListActiveLeases(ctx)
	if err != nil {
		return nil, err
	}

	var out []*LeaseAgreement
	for _, l := range active {
		due := l.Amount.MulInt(int64(len(ElapsedAnchors(l, asOf))))
		if !due.IsPositive() {
			continue
		}
		payments, err := s.Payments.PaymentsForLease(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		paid := ZeroMoney()
		for _, p := range payments {
			if p.PaidAt.BeforeOrEqual(asOf) {
				paid = paid.Add(p.Amount)
			}
		}
		if due.GreaterThan(paid) {
			out = append(out, l)
		}
	}
	return out, nil
}

// UpcomingRenewals returns active leases ending within windowDays of today.
func (s *Lifecycle) UpcomingRenewals(ctx context.Context, windowDays int) ([]*LeaseAgreement, error) {
	active, err := s.Store.ListActiveLeases(ctx)
	if err != nil {
		return nil, err
	}
	today := Today()
	horizon := today.AddDays(windowDays)

	var out []*LeaseAgreement
	for _, l := range active {
		if l.EndDate.AfterOrEqual(today) && l.EndDate.BeforeOrEqual(horizon) {
			out = append(out, l)
		}
	}
	return out, nil
}

// =============================================================================
// INTERNAL
// =============================================================================

// mutable loads a lease and rejects mutation of deleted or terminal ones
// with a transition-appropriate error left to the caller.
func (s *Lifecycle) mutable(ctx context.Context, id LeaseID) (*LeaseAgreement, error) {
	agreement, err := s.Store.GetLease(ctx, id)
	if err != nil {
		return nil, err
	}
	if agreement.Deleted() {
		return nil, ErrLeaseNotFound
	}
	return agreement, nil
}

func (s *Lifecycle) save(ctx context.Context, agreement *LeaseAgreement) (*LeaseAgreement, error) {
	agreement.UpdatedAt = time.Now().UTC()
	if err := s.Store.UpdateLease(ctx, agreement); err != nil {
		return nil, err
	}
	return agreement, nil
}
