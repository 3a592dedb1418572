/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements lease.LeaseStore, lease.PaymentStore and lease.ViewStore using
  SQLite. In production the same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

KEY TABLES:
  leases:          Lease agreements (soft-deleted, never dropped)
  lease_payments:  Immutable ledger of payments (append-only)
  payment_dedup:   Gateway dedup key -> payment mapping

IDEMPOTENCY:
  payment_dedup has a primary key on the dedup key, and AppendPayment writes
  the payment and its dedup record inside one database transaction. Two
  concurrent deliveries of the same gateway confirmation race on the INSERT:
  exactly one commits, the other hits the unique constraint and gets
  lease.ErrDuplicateDedupKey. Correctness comes from the constraint, not
  from application locking - multiple process instances may receive the
  same webhook.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statements exist for lease_payments or payment_dedup.
  Corrections are compensating entries.

SNAPSHOT READS:
  WithView runs the given function against a single read transaction, so a
  report never mixes a half-applied payment with a half-committed lease
  edit.

CONCURRENCY:
  Lease term mutations use a compare-and-set on the version column
  (single-row scope); WAL mode lets readers proceed alongside the writer.

SEE ALSO:
  - lease/store.go: Interface definitions
  - lease/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/haven/lease-engine/lease"
)

// Store implements the lease engine's storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second pooled connection to ":memory:" would be a second database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Lease agreements (soft-deleted only: history must stay attributable)
	CREATE TABLE IF NOT EXISTS leases (
		id TEXT PRIMARY KEY,
		org_id TEXT,
		property_id TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		landlord_id TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		lease_type TEXT NOT NULL,
		charge_type TEXT NOT NULL,
		frequency TEXT NOT NULL,
		first_payment_date TEXT,
		status TEXT NOT NULL,
		termination_reason TEXT,
		parties_json TEXT,
		signed_doc_ref TEXT,
		signed_doc_hash TEXT,
		terms TEXT,
		metadata_json TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_leases_unit ON leases(unit_id);
	CREATE INDEX IF NOT EXISTS idx_leases_tenant ON leases(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_leases_landlord ON leases(landlord_id);
	CREATE INDEX IF NOT EXISTS idx_leases_property ON leases(property_id);
	CREATE INDEX IF NOT EXISTS idx_leases_status ON leases(status);

	-- Overlap checks on a unit (hot path for lease creation)
	CREATE INDEX IF NOT EXISTS idx_leases_unit_dates
		ON leases(unit_id, start_date, end_date);

	-- Payments (append-only ledger)
	CREATE TABLE IF NOT EXISTS lease_payments (
		id TEXT PRIMARY KEY,
		lease_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		property_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		type_code TEXT NOT NULL,
		provider_tx_id TEXT,
		metadata_json TEXT,
		recorded_by TEXT,
		recorded_at TEXT NOT NULL
	);

	-- Ledger replay per lease (hot path for balances and reports)
	CREATE INDEX IF NOT EXISTS idx_payments_lease_paid_at
		ON lease_payments(lease_id, paid_at);
	CREATE INDEX IF NOT EXISTS idx_payments_property
		ON lease_payments(property_id);

	-- CRITICAL: dedup_key is the idempotency mechanism. The primary key makes
	-- the payment+dedup insert an atomic check-and-insert: at-least-once
	-- webhook delivery collapses to exactly one payment.
	CREATE TABLE IF NOT EXISTS payment_dedup (
		dedup_key TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEASE STORE (lease.LeaseStore interface)
// =============================================================================

const leaseColumns = `id, org_id, property_id, unit_id, tenant_id, landlord_id,
	start_date, end_date, amount, lease_type, charge_type, frequency,
	first_payment_date, status, termination_reason, parties_json,
	signed_doc_ref, signed_doc_hash, terms, metadata_json, version,
	created_at, updated_at, deleted_at`

// InsertLease persists a new lease.
func (s *Store) InsertLease(ctx context.Context, l *lease.LeaseAgreement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	partiesJSON, _ := json.Marshal(l.Parties)
	metadataJSON, _ := json.Marshal(l.Metadata)

	query := `
		INSERT INTO leases (` + leaseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		l.ID, l.OrgID, l.PropertyID, l.UnitID, l.TenantID, l.LandlordID,
		l.StartDate.String(), l.EndDate.String(), l.Amount.String(),
		l.LeaseType, l.ChargeType, l.Frequency,
		nullDate(l.FirstPaymentDate),
		l.Status, l.TerminationReason, string(partiesJSON),
		l.SignedDocumentRef, l.SignedDocumentHash, l.Terms, string(metadataJSON),
		l.Version,
		l.CreatedAt.UTC().Format(time.RFC3339), l.UpdatedAt.UTC().Format(time.RFC3339),
		nullTime(l.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert lease: %w", err)
	}
	return nil
}

// UpdateLease persists changed terms with a compare-and-set on version.
func (s *Store) UpdateLease(ctx context.Context, l *lease.LeaseAgreement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	partiesJSON, _ := json.Marshal(l.Parties)
	metadataJSON, _ := json.Marshal(l.Metadata)

	query := `
		UPDATE leases SET
			start_date = ?, end_date = ?, amount = ?, first_payment_date = ?,
			status = ?, termination_reason = ?, parties_json = ?,
			signed_doc_ref = ?, signed_doc_hash = ?, terms = ?, metadata_json = ?,
			version = version + 1, updated_at = ?, deleted_at = ?
		WHERE id = ? AND version = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		l.StartDate.String(), l.EndDate.String(), l.Amount.String(),
		nullDate(l.FirstPaymentDate),
		l.Status, l.TerminationReason, string(partiesJSON),
		l.SignedDocumentRef, l.SignedDocumentHash, l.Terms, string(metadataJSON),
		l.UpdatedAt.UTC().Format(time.RFC3339), nullTime(l.DeletedAt),
		l.ID, l.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update lease: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the row is gone or another writer bumped the version first.
		var exists int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM leases WHERE id = ?", l.ID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return lease.ErrLeaseNotFound
		}
		return lease.ErrStaleLease
	}

	l.Version++
	return nil
}

// GetLease returns a lease by ID, soft-deleted ones included.
func (s *Store) GetLease(ctx context.Context, id lease.LeaseID) (*lease.LeaseAgreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getLease(ctx, s.db, id)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getLease(ctx context.Context, db querier, id lease.LeaseID) (*lease.LeaseAgreement, error) {
	leases, err := queryLeases(ctx, db,
		"SELECT "+leaseColumns+" FROM leases WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(leases) == 0 {
		return nil, lease.ErrLeaseNotFound
	}
	return leases[0], nil
}

func (s *Store) ListLeasesByTenant(ctx context.Context, id lease.TenantID) ([]*lease.LeaseAgreement, error) {
	return s.listLeases(ctx, "tenant_id = ? AND deleted_at IS NULL", id)
}

func (s *Store) ListLeasesByLandlord(ctx context.Context, id lease.LandlordID) ([]*lease.LeaseAgreement, error) {
	return s.listLeases(ctx, "landlord_id = ? AND deleted_at IS NULL", id)
}

func (s *Store) ListLeasesByUnit(ctx context.Context, id lease.UnitID) ([]*lease.LeaseAgreement, error) {
	return s.listLeases(ctx, "unit_id = ? AND deleted_at IS NULL", id)
}

func (s *Store) ListLeasesByProperty(ctx context.Context, id lease.PropertyID) ([]*lease.LeaseAgreement, error) {
	return s.listLeases(ctx, "property_id = ? AND deleted_at IS NULL", id)
}

func (s *Store) ListActiveLeases(ctx context.Context) ([]*lease.LeaseAgreement, error) {
	return s.listLeases(ctx, "status = ? AND deleted_at IS NULL", lease.StatusActive)
}

func (s *Store) ListPendingLeases(ctx context.Context) ([]*lease.LeaseAgreement, error) {
	return s.listLeases(ctx, "status = ? AND deleted_at IS NULL", lease.StatusPending)
}

func (s *Store) listLeases(ctx context.Context, where string, args ...any) ([]*lease.LeaseAgreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + leaseColumns + " FROM leases WHERE " + where + " ORDER BY created_at ASC, id ASC"
	return queryLeases(ctx, s.db, query, args...)
}

// OverlappingLease returns a blocking lease on the unit for [start, end), or
// nil. Half-open interval logic: existing.start < end AND start < existing.end.
func (s *Store) OverlappingLease(ctx context.Context, unitID lease.UnitID, start, end lease.Date) (*lease.LeaseAgreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + leaseColumns + ` FROM leases
		WHERE unit_id = ? AND deleted_at IS NULL
		  AND status IN ('pending', 'active', 'suspended')
		  AND start_date < ? AND ? < end_date
		LIMIT 1
	`
	leases, err := queryLeases(ctx, s.db, query, unitID, end.String(), start.String())
	if err != nil {
		return nil, err
	}
	if len(leases) == 0 {
		return nil, nil
	}
	return leases[0], nil
}

// SoftDeleteLease marks a lease deleted without dropping the row.
func (s *Store) SoftDeleteLease(ctx context.Context, id lease.LeaseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		"UPDATE leases SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL", now, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return lease.ErrLeaseNotFound
	}
	return nil
}

func queryLeases(ctx context.Context, db querier, query string, args ...any) ([]*lease.LeaseAgreement, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leases: %w", err)
	}
	defer rows.Close()

	var leases []*lease.LeaseAgreement
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			return nil, err
		}
		leases = append(leases, l)
	}
	return leases, rows.Err()
}

func scanLease(rows *sql.Rows) (*lease.LeaseAgreement, error) {
	var (
		l                lease.LeaseAgreement
		startDate        string
		endDate          string
		amount           string
		firstPaymentDate sql.NullString
		termination      sql.NullString
		partiesJSON      sql.NullString
		signedRef        sql.NullString
		signedHash       sql.NullString
		terms            sql.NullString
		metadataJSON     sql.NullString
		orgID            sql.NullString
		landlordID       sql.NullString
		createdAt        string
		updatedAt        string
		deletedAt        sql.NullString
	)

	err := rows.Scan(
		&l.ID, &orgID, &l.PropertyID, &l.UnitID, &l.TenantID, &landlordID,
		&startDate, &endDate, &amount, &l.LeaseType, &l.ChargeType, &l.Frequency,
		&firstPaymentDate, &l.Status, &termination, &partiesJSON,
		&signedRef, &signedHash, &terms, &metadataJSON, &l.Version,
		&createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan lease: %w", err)
	}

	l.OrgID = lease.OrgID(orgID.String)
	l.LandlordID = lease.LandlordID(landlordID.String)
	l.StartDate, _ = lease.ParseDate(startDate)
	l.EndDate, _ = lease.ParseDate(endDate)
	l.Amount = lease.MustMoney(amount)
	l.TerminationReason = termination.String
	l.SignedDocumentRef = signedRef.String
	l.SignedDocumentHash = signedHash.String
	l.Terms = terms.String

	if firstPaymentDate.Valid && firstPaymentDate.String != "" {
		d, err := lease.ParseDate(firstPaymentDate.String)
		if err == nil {
			l.FirstPaymentDate = &d
		}
	}
	if partiesJSON.Valid && partiesJSON.String != "" {
		json.Unmarshal([]byte(partiesJSON.String), &l.Parties)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		json.Unmarshal([]byte(metadataJSON.String), &l.Metadata)
	}

	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	l.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if deletedAt.Valid {
		t, _ := time.Parse(time.RFC3339, deletedAt.String)
		l.DeletedAt = &t
	}

	return &l, nil
}

// =============================================================================
// PAYMENT STORE (lease.PaymentStore interface)
// =============================================================================

const paymentColumns = `id, lease_id, tenant_id, unit_id, property_id, amount,
	paid_at, type_code, provider_tx_id, metadata_json, recorded_by, recorded_at`

// AppendPayment writes a payment and, when dedupKey is non-empty, its dedup
// record in one database transaction. A racing duplicate hits the primary
// key on payment_dedup and nothing is written.
func (s *Store) AppendPayment(ctx context.Context, p *lease.LeasePayment, dedupKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if dedupKey != "" {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO payment_dedup (dedup_key, payment_id, created_at) VALUES (?, ?, ?)",
			dedupKey, p.ID, time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return lease.ErrDuplicateDedupKey
			}
			return fmt.Errorf("failed to record dedup key: %w", err)
		}
	}

	metadataJSON, _ := json.Marshal(p.Metadata)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO lease_payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.LeaseID, p.TenantID, p.UnitID, p.PropertyID, p.Amount.String(),
		p.PaidAt.String(), p.TypeCode, p.ProviderTxID, string(metadataJSON),
		p.RecordedBy, p.RecordedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append payment: %w", err)
	}

	return tx.Commit()
}

// GetPaymentByDedupKey returns the payment a dedup key maps to.
func (s *Store) GetPaymentByDedupKey(ctx context.Context, dedupKey string) (*lease.LeasePayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + paymentColumns + ` FROM lease_payments
		WHERE id = (SELECT payment_id FROM payment_dedup WHERE dedup_key = ?)
	`
	payments, err := queryPayments(ctx, s.db, query, dedupKey)
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, lease.ErrPaymentNotFound
	}
	p := payments[0]
	return &p, nil
}

// PaymentsForLease returns the lease's ledger ordered by PaidAt.
func (s *Store) PaymentsForLease(ctx context.Context, id lease.LeaseID) ([]lease.LeasePayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return paymentsForLease(ctx, s.db, id)
}

func paymentsForLease(ctx context.Context, db querier, id lease.LeaseID) ([]lease.LeasePayment, error) {
	query := `
		SELECT ` + paymentColumns + ` FROM lease_payments
		WHERE lease_id = ?
		ORDER BY paid_at ASC, recorded_at ASC
	`
	return queryPayments(ctx, db, query, id)
}

func queryPayments(ctx context.Context, db querier, query string, args ...any) ([]lease.LeasePayment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []lease.LeasePayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func scanPayment(rows *sql.Rows) (lease.LeasePayment, error) {
	var (
		p            lease.LeasePayment
		amount       string
		paidAt       string
		providerTxID sql.NullString
		metadataJSON sql.NullString
		recordedBy   sql.NullString
		recordedAt   string
	)

	err := rows.Scan(
		&p.ID, &p.LeaseID, &p.TenantID, &p.UnitID, &p.PropertyID, &amount,
		&paidAt, &p.TypeCode, &providerTxID, &metadataJSON, &recordedBy, &recordedAt,
	)
	if err != nil {
		return p, fmt.Errorf("failed to scan payment: %w", err)
	}

	p.Amount = lease.MustMoney(amount)
	p.PaidAt, _ = lease.ParseDate(paidAt)
	p.ProviderTxID = providerTxID.String
	p.RecordedBy = recordedBy.String
	p.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
	if metadataJSON.Valid && metadataJSON.String != "" {
		json.Unmarshal([]byte(metadataJSON.String), &p.Metadata)
	}

	return p, nil
}

// =============================================================================
// VIEW STORE (lease.ViewStore interface)
// =============================================================================

// WithView runs fn against a single read transaction, so everything it reads
// observes one consistent point in time.
func (s *Store) WithView(ctx context.Context, fn func(lease.View) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	return fn(&sqlView{tx: tx})
}

type sqlView struct {
	tx *sql.Tx
}

func (v *sqlView) LeasesForProperty(ctx context.Context, id lease.PropertyID) ([]*lease.LeaseAgreement, error) {
	query := "SELECT " + leaseColumns + " FROM leases WHERE property_id = ? ORDER BY created_at ASC, id ASC"
	return queryLeases(ctx, v.tx, query, id)
}

func (v *sqlView) PaymentsForLease(ctx context.Context, id lease.LeaseID) ([]lease.LeasePayment, error) {
	return paymentsForLease(ctx, v.tx, id)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (tests/demo only).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"payment_dedup", "lease_payments", "leases"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullDate(d *lease.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
