/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model from
  the external contract. Dates cross the wire as YYYY-MM-DD strings and
  monetary amounts as decimal strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Handlers validate; DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/haven/lease-engine/lease"
)

// =============================================================================
// LEASE TYPES
// =============================================================================

// LeaseDTO represents a lease in API responses.
type LeaseDTO struct {
	ID                string              `json:"id"`
	OrgID             string              `json:"org_id,omitempty"`
	PropertyID        string              `json:"property_id"`
	UnitID            string              `json:"unit_id"`
	TenantID          string              `json:"tenant_id"`
	LandlordID        string              `json:"landlord_id,omitempty"`
	StartDate         string              `json:"start_date"`
	EndDate           string              `json:"end_date"`
	Amount            string              `json:"amount"`
	LeaseType         string              `json:"lease_type"`
	ChargeType        string              `json:"charge_type"`
	PaymentFrequency  string              `json:"payment_frequency"`
	FirstPaymentDate  string              `json:"first_payment_date,omitempty"`
	Status            string              `json:"status"`
	TerminationReason string              `json:"termination_reason,omitempty"`
	Parties           []SignaturePartyDTO `json:"parties,omitempty"`
	SignedDocumentRef string              `json:"signed_document_ref,omitempty"`
	NextDueDate       string              `json:"next_due_date,omitempty"`
	CreatedAt         string              `json:"created_at,omitempty"`
	UpdatedAt         string              `json:"updated_at,omitempty"`
}

// SignaturePartyDTO represents one e-signature party.
type SignaturePartyDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Required bool   `json:"required"`
	Status   string `json:"status"`
	SentAt   string `json:"sent_at,omitempty"`
	SignedAt string `json:"signed_at,omitempty"`
}

// CreateLeaseRequest is the request to create a lease.
type CreateLeaseRequest struct {
	OrgID            string              `json:"org_id"`
	PropertyID       string              `json:"property_id"`
	UnitID           string              `json:"unit_id"`
	TenantID         string              `json:"tenant_id"`
	LandlordID       string              `json:"landlord_id"`
	StartDate        string              `json:"start_date"`
	EndDate          string              `json:"end_date"`
	Amount           string              `json:"amount"`
	LeaseType        string              `json:"lease_type"`
	ChargeType       string              `json:"charge_type"`
	PaymentFrequency string              `json:"payment_frequency"`
	FirstPaymentDate string              `json:"first_payment_date,omitempty"`
	Parties          []SignaturePartyDTO `json:"parties,omitempty"`
	Terms            string              `json:"terms,omitempty"`
	Metadata         map[string]string   `json:"metadata,omitempty"`
}

// ExtendLeaseRequest moves the lease end date forward.
type ExtendLeaseRequest struct {
	EndDate string `json:"end_date"`
	Amount  string `json:"amount,omitempty"`
}

// TerminateLeaseRequest ends the lease early.
type TerminateLeaseRequest struct {
	TerminationDate string `json:"termination_date"`
	Reason          string `json:"reason"`
}

// ExpireLeaseRequest is posted by the external scheduler.
type ExpireLeaseRequest struct {
	AsOf string `json:"as_of,omitempty"`
}

// SignPartyRequest records a party's e-signature decision.
type SignPartyRequest struct {
	Status string `json:"status"` // signed, rejected, canceled
}

// AttachDocumentRequest links the executed agreement document to a lease.
type AttachDocumentRequest struct {
	DocumentRef string `json:"document_ref"`
	ContentHash string `json:"content_hash,omitempty"`
}

// =============================================================================
// PAYMENT TYPES
// =============================================================================

// PaymentDTO represents a ledger entry in API responses.
type PaymentDTO struct {
	ID           string `json:"id"`
	LeaseID      string `json:"lease_id"`
	TenantID     string `json:"tenant_id"`
	UnitID       string `json:"unit_id"`
	PropertyID   string `json:"property_id"`
	Amount       string `json:"amount"`
	PaidAt       string `json:"paid_at"`
	TypeCode     string `json:"type_code"`
	ProviderTxID string `json:"provider_tx_id,omitempty"`
	RecordedBy   string `json:"recorded_by,omitempty"`
	RecordedAt   string `json:"recorded_at"`
}

// RecordPaymentRequest is a manual/staff ledger entry.
type RecordPaymentRequest struct {
	Amount     string            `json:"amount"`
	PaidAt     string            `json:"paid_at"`
	TypeCode   string            `json:"type_code,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	RecordedBy string            `json:"recorded_by,omitempty"`
}

// InitiatePaymentRequest starts a gateway checkout.
type InitiatePaymentRequest struct {
	LeaseID  string `json:"lease_id"`
	Amount   string `json:"amount"`
	TypeCode string `json:"type_code,omitempty"`
	Phone    string `json:"msisdn,omitempty"`
}

// InitiatePaymentResponse carries the gateway session reference.
type InitiatePaymentResponse struct {
	CheckoutID string `json:"checkout_id"`
	LeaseID    string `json:"lease_id"`
	Amount     string `json:"amount"`
}

// =============================================================================
// REPORT TYPES
// =============================================================================

// RentRollRowDTO is one lease's expected vs. collected for the month.
type RentRollRowDTO struct {
	LeaseID  string `json:"lease_id"`
	UnitID   string `json:"unit_id"`
	TenantID string `json:"tenant_id"`
	Due      string `json:"due"`
	Paid     string `json:"paid"`
	Balance  string `json:"balance"`
}

// RentRollDTO is the monthly rent roll for a property.
type RentRollDTO struct {
	PropertyID   string           `json:"property_id"`
	Month        string           `json:"month"`
	Rows         []RentRollRowDTO `json:"rows"`
	TotalDue     string           `json:"total_due"`
	TotalPaid    string           `json:"total_paid"`
	TotalBalance string           `json:"total_balance"`
}

// ArrearsRowDTO is one lease's outstanding balance.
type ArrearsRowDTO struct {
	LeaseID        string `json:"lease_id"`
	UnitID         string `json:"unit_id"`
	TenantID       string `json:"tenant_id"`
	Outstanding    string `json:"outstanding"`
	MaxDaysPastDue int    `json:"max_days_past_due"`
	Bucket         string `json:"bucket"`
}

// ArrearsDTO is the arrears aging report for a property.
type ArrearsDTO struct {
	PropertyID       string            `json:"property_id"`
	AsOf             string            `json:"as_of"`
	Rows             []ArrearsRowDTO   `json:"rows"`
	BucketTotals     map[string]string `json:"bucket_totals"`
	TotalOutstanding string            `json:"total_outstanding"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func leaseDTO(l *lease.LeaseAgreement) LeaseDTO {
	dto := LeaseDTO{
		ID:                string(l.ID),
		OrgID:             string(l.OrgID),
		PropertyID:        string(l.PropertyID),
		UnitID:            string(l.UnitID),
		TenantID:          string(l.TenantID),
		LandlordID:        string(l.LandlordID),
		StartDate:         l.StartDate.String(),
		EndDate:           l.EndDate.String(),
		Amount:            l.Amount.String(),
		LeaseType:         string(l.LeaseType),
		ChargeType:        string(l.ChargeType),
		PaymentFrequency:  string(l.Frequency),
		Status:            string(l.Status),
		TerminationReason: l.TerminationReason,
		SignedDocumentRef: l.SignedDocumentRef,
		CreatedAt:         l.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         l.UpdatedAt.Format(time.RFC3339),
	}
	if l.FirstPaymentDate != nil {
		dto.FirstPaymentDate = l.FirstPaymentDate.String()
	}
	if next, ok := lease.NextDueDate(l, lease.Today()); ok {
		dto.NextDueDate = next.String()
	}
	for _, p := range l.Parties {
		pdto := SignaturePartyDTO{
			ID:       p.ID,
			Name:     p.Name,
			Role:     p.Role,
			Required: p.Required,
			Status:   string(p.Status),
			SentAt:   p.SentAt.Format(time.RFC3339),
		}
		if p.SignedAt != nil {
			pdto.SignedAt = p.SignedAt.Format(time.RFC3339)
		}
		dto.Parties = append(dto.Parties, pdto)
	}
	return dto
}

func leaseDTOs(leases []*lease.LeaseAgreement) []LeaseDTO {
	dtos := make([]LeaseDTO, len(leases))
	for i, l := range leases {
		dtos[i] = leaseDTO(l)
	}
	return dtos
}

func paymentDTO(p *lease.LeasePayment) PaymentDTO {
	return PaymentDTO{
		ID:           string(p.ID),
		LeaseID:      string(p.LeaseID),
		TenantID:     string(p.TenantID),
		UnitID:       string(p.UnitID),
		PropertyID:   string(p.PropertyID),
		Amount:       p.Amount.String(),
		PaidAt:       p.PaidAt.String(),
		TypeCode:     p.TypeCode,
		ProviderTxID: p.ProviderTxID,
		RecordedBy:   p.RecordedBy,
		RecordedAt:   p.RecordedAt.Format(time.RFC3339),
	}
}

func rentRollDTO(r *lease.RentRoll) RentRollDTO {
	dto := RentRollDTO{
		PropertyID:   string(r.PropertyID),
		Month:        lease.NewDate(r.Year, r.Month, 1).Time.Format("2006-01"),
		Rows:         make([]RentRollRowDTO, len(r.Rows)),
		TotalDue:     r.TotalDue.String(),
		TotalPaid:    r.TotalPaid.String(),
		TotalBalance: r.TotalBalance.String(),
	}
	for i, row := range r.Rows {
		dto.Rows[i] = RentRollRowDTO{
			LeaseID:  string(row.LeaseID),
			UnitID:   string(row.UnitID),
			TenantID: string(row.TenantID),
			Due:      row.Due.String(),
			Paid:     row.Paid.String(),
			Balance:  row.Balance.String(),
		}
	}
	return dto
}

func arrearsDTO(r *lease.ArrearsReport) ArrearsDTO {
	dto := ArrearsDTO{
		PropertyID:       string(r.PropertyID),
		AsOf:             r.AsOf.String(),
		Rows:             make([]ArrearsRowDTO, len(r.Rows)),
		BucketTotals:     make(map[string]string, len(r.BucketTotals)),
		TotalOutstanding: r.TotalOutstanding.String(),
	}
	for i, row := range r.Rows {
		dto.Rows[i] = ArrearsRowDTO{
			LeaseID:        string(row.LeaseID),
			UnitID:         string(row.UnitID),
			TenantID:       string(row.TenantID),
			Outstanding:    row.Outstanding.String(),
			MaxDaysPastDue: row.MaxDaysPastDue,
			Bucket:         string(row.Bucket),
		}
	}
	for bucket, total := range r.BucketTotals {
		dto.BucketTotals[string(bucket)] = total.String()
	}
	return dto
}
