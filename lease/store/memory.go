// Package store provides in-memory implementations of the lease engine's
// storage interfaces, for tests and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/haven/lease-engine/lease"
)

// =============================================================================
// MEMORY STORE - In-memory LeaseStore + PaymentStore + ViewStore
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	leases   map[lease.LeaseID]*lease.LeaseAgreement
	payments map[lease.LeaseID][]lease.LeasePayment
	dedup    map[string]lease.PaymentID
	byID     map[lease.PaymentID]*lease.LeasePayment
}

func NewMemory() *Memory {
	return &Memory{
		leases:   make(map[lease.LeaseID]*lease.LeaseAgreement),
		payments: make(map[lease.LeaseID][]lease.LeasePayment),
		dedup:    make(map[string]lease.PaymentID),
		byID:     make(map[lease.PaymentID]*lease.LeasePayment),
	}
}

// =============================================================================
// LEASE STORE
// =============================================================================

func (m *Memory) InsertLease(_ context.Context, l *lease.LeaseAgreement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leases[l.ID] = cloneLease(l)
	return nil
}

// UpdateLease performs the compare-and-set on Version under the store lock,
// matching the single-row serialization a SQL store gets from its UPDATE.
func (m *Memory) UpdateLease(_ context.Context, l *lease.LeaseAgreement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.leases[l.ID]
	if !ok {
		return lease.ErrLeaseNotFound
	}
	if current.Version != l.Version {
		return lease.ErrStaleLease
	}
	l.Version++
	m.leases[l.ID] = cloneLease(l)
	return nil
}

func (m *Memory) GetLease(_ context.Context, id lease.LeaseID) (*lease.LeaseAgreement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLeaseLocked(id)
}

func (m *Memory) getLeaseLocked(id lease.LeaseID) (*lease.LeaseAgreement, error) {
	l, ok := m.leases[id]
	if !ok {
		return nil, lease.ErrLeaseNotFound
	}
	return cloneLease(l), nil
}

func (m *Memory) ListLeasesByTenant(_ context.Context, id lease.TenantID) ([]*lease.LeaseAgreement, error) {
	return m.filter(func(l *lease.LeaseAgreement) bool { return l.TenantID == id && !l.Deleted() })
}

func (m *Memory) ListLeasesByLandlord(_ context.Context, id lease.LandlordID) ([]*lease.LeaseAgreement, error) {
	return m.filter(func(l *lease.LeaseAgreement) bool { return l.LandlordID == id && !l.Deleted() })
}

func (m *Memory) ListLeasesByUnit(_ context.Context, id lease.UnitID) ([]*lease.LeaseAgreement, error) {
	return m.filter(func(l *lease.LeaseAgreement) bool { return l.UnitID == id && !l.Deleted() })
}

func (m *Memory) ListLeasesByProperty(_ context.Context, id lease.PropertyID) ([]*lease.LeaseAgreement, error) {
	return m.filter(func(l *lease.LeaseAgreement) bool { return l.PropertyID == id && !l.Deleted() })
}

func (m *Memory) ListActiveLeases(_ context.Context) ([]*lease.LeaseAgreement, error) {
	return m.filter(func(l *lease.LeaseAgreement) bool {
		return l.Status == lease.StatusActive && !l.Deleted()
	})
}

func (m *Memory) ListPendingLeases(_ context.Context) ([]*lease.LeaseAgreement, error) {
	return m.filter(func(l *lease.LeaseAgreement) bool {
		return l.Status == lease.StatusPending && !l.Deleted()
	})
}

func (m *Memory) OverlappingLease(_ context.Context, unitID lease.UnitID, start, end lease.Date) (*lease.LeaseAgreement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, l := range m.leases {
		if l.UnitID != unitID || l.Deleted() {
			continue
		}
		switch l.Status {
		case lease.StatusPending, lease.StatusActive, lease.StatusSuspended:
		default:
			continue
		}
		if l.Overlaps(start, end) {
			return cloneLease(l), nil
		}
	}
	return nil, nil
}

func (m *Memory) filter(keep func(*lease.LeaseAgreement) bool) ([]*lease.LeaseAgreement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*lease.LeaseAgreement
	for _, l := range m.leases {
		if keep(l) {
			out = append(out, cloneLease(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SoftDelete marks a lease deleted. Test helper; the engine itself never
// deletes leases.
func (m *Memory) SoftDelete(id lease.LeaseID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.leases[id]; ok {
		now := time.Now().UTC()
		l.DeletedAt = &now
	}
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

// AppendPayment is a single atomic check-and-insert: the dedup map check and
// the insert happen under one lock acquisition, mirroring a unique
// constraint.
func (m *Memory) AppendPayment(_ context.Context, p *lease.LeasePayment, dedupKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if dedupKey != "" {
		if _, exists := m.dedup[dedupKey]; exists {
			return lease.ErrDuplicateDedupKey
		}
	}

	stored := *p
	txs := m.payments[p.LeaseID]

	// Keep payments ordered by PaidAt; binary search for the insertion point.
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].PaidAt.After(stored.PaidAt)
	})
	txs = append(txs, lease.LeasePayment{})
	copy(txs[i+1:], txs[i:])
	txs[i] = stored
	m.payments[p.LeaseID] = txs
	m.byID[stored.ID] = &stored

	if dedupKey != "" {
		m.dedup[dedupKey] = stored.ID
	}
	return nil
}

func (m *Memory) GetPaymentByDedupKey(_ context.Context, dedupKey string) (*lease.LeasePayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.dedup[dedupKey]
	if !ok {
		return nil, lease.ErrPaymentNotFound
	}
	p := *m.byID[id]
	return &p, nil
}

func (m *Memory) PaymentsForLease(_ context.Context, id lease.LeaseID) ([]lease.LeasePayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]lease.LeasePayment, len(m.payments[id]))
	copy(out, m.payments[id])
	return out, nil
}

// =============================================================================
// VIEW STORE
// =============================================================================

// WithView holds the read lock for the duration of fn, so everything fn
// reads observes one point in time.
func (m *Memory) WithView(_ context.Context, fn func(lease.View) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memoryView{m: m})
}

type memoryView struct {
	m *Memory
}

func (v *memoryView) LeasesForProperty(_ context.Context, id lease.PropertyID) ([]*lease.LeaseAgreement, error) {
	var out []*lease.LeaseAgreement
	for _, l := range v.m.leases {
		if l.PropertyID == id {
			out = append(out, cloneLease(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *memoryView) PaymentsForLease(_ context.Context, id lease.LeaseID) ([]lease.LeasePayment, error) {
	out := make([]lease.LeasePayment, len(v.m.payments[id]))
	copy(out, v.m.payments[id])
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func cloneLease(l *lease.LeaseAgreement) *lease.LeaseAgreement {
	c := *l
	if l.Parties != nil {
		c.Parties = make([]lease.SignatureParty, len(l.Parties))
		copy(c.Parties, l.Parties)
	}
	if l.Metadata != nil {
		c.Metadata = make(map[string]string, len(l.Metadata))
		for k, v := range l.Metadata {
			c.Metadata[k] = v
		}
	}
	if l.FirstPaymentDate != nil {
		d := *l.FirstPaymentDate
		c.FirstPaymentDate = &d
	}
	if l.DeletedAt != nil {
		t := *l.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}
