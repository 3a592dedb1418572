/*
handlers.go - HTTP API handlers for the lease engine

PURPOSE:
  Exposes the lease lifecycle, payment ledger, gateway webhooks and reports
  via REST. Handles HTTP request/response and JSON serialization, and
  delegates to domain logic.

ENDPOINTS:
  Leases:
    POST   /api/leases                       Create lease
    GET    /api/leases/{id}                  Get lease (with next due date)
    POST   /api/leases/{id}/extend           Extend end date / amount
    POST   /api/leases/{id}/terminate        Terminate with reason
    POST   /api/leases/{id}/expire           Time-driven expiry (scheduler)
    POST   /api/leases/{id}/suspend|resume   Suspension toggle
    POST   /api/leases/{id}/signatures/{partyID}  Party e-signature decision
    GET    /api/leases/{id}/ledger           Payment ledger
    POST   /api/leases/{id}/payments         Manual payment entry

  Listings:
    GET    /api/tenants/{id}/leases
    GET    /api/landlords/{id}/leases
    GET    /api/units/{id}/leases

  Gateway:
    POST   /api/payments/initiate            Open a checkout session
    POST   /api/gateway/validate             Synchronous accept/reject
    POST   /api/gateway/callback             Asynchronous confirmation

  Reports (add ?format=csv and ?tax_multiplier= for exports):
    GET    /api/properties/{id}/rentroll?month=YYYY-MM
    GET    /api/properties/{id}/arrears?as_of=YYYY-MM-DD

  Scans (feed external schedulers):
    GET    /api/scans/signature-reminders?days_since_sent=N
    GET    /api/scans/missing-payments?as_of=YYYY-MM-DD
    GET    /api/scans/upcoming-renewals?window_days=N

ERROR HANDLING:
  Domain errors map to HTTP statuses:
  - 400: Validation errors
  - 404: Unknown lease/unit/tenant
  - 409: Conflict (overlap, disallowed transition, stale mutation)
  - 500: Internal errors
  Gateway callbacks are the exception: recognized-but-invalid and
  unparseable payloads are acknowledged with 200 after logging, because the
  gateway retries errors indefinitely and a malformed payload can never
  become well-formed.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/haven/lease-engine/gateway"
	"github.com/haven/lease-engine/lease"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Lifecycle *lease.Lifecycle
	Ledger    *lease.Ledger
	Reporter  *lease.Reporter
	Gateway   *gateway.Adapter
	Logger    *slog.Logger
}

// NewHandler creates a handler over the given services.
func NewHandler(lc *lease.Lifecycle, lg *lease.Ledger, rp *lease.Reporter, gw *gateway.Adapter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Lifecycle: lc, Ledger: lg, Reporter: rp, Gateway: gw, Logger: logger}
}

// =============================================================================
// LEASE HANDLERS
// =============================================================================

// CreateLease creates a lease from posted terms.
func (h *Handler) CreateLease(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := lease.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}
	end, err := lease.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date", err)
		return
	}
	amount, err := lease.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	in := lease.CreateLeaseInput{
		OrgID:      lease.OrgID(req.OrgID),
		PropertyID: lease.PropertyID(req.PropertyID),
		UnitID:     lease.UnitID(req.UnitID),
		TenantID:   lease.TenantID(req.TenantID),
		LandlordID: lease.LandlordID(req.LandlordID),
		StartDate:  start,
		EndDate:    end,
		Amount:     amount,
		LeaseType:  lease.LeaseType(req.LeaseType),
		ChargeType: lease.ChargeType(req.ChargeType),
		Frequency:  lease.PaymentFrequency(req.PaymentFrequency),
		Terms:      req.Terms,
		Metadata:   req.Metadata,
	}
	if req.FirstPaymentDate != "" {
		first, err := lease.ParseDate(req.FirstPaymentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid first_payment_date", err)
			return
		}
		in.FirstPaymentDate = &first
	}
	for _, p := range req.Parties {
		in.Parties = append(in.Parties, lease.SignatureParty{
			ID:       p.ID,
			Name:     p.Name,
			Role:     p.Role,
			Required: p.Required,
		})
	}

	created, err := h.Lifecycle.Create(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to create lease", err)
		return
	}
	writeJSON(w, http.StatusCreated, leaseDTO(created))
}

// GetLease returns a single lease with its derived next due date.
func (h *Handler) GetLease(w http.ResponseWriter, r *http.Request) {
	id := lease.LeaseID(chi.URLParam(r, "id"))

	agreement, err := h.Lifecycle.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get lease", err)
		return
	}
	writeJSON(w, http.StatusOK, leaseDTO(agreement))
}

// ExtendLease moves the end date forward.
func (h *Handler) ExtendLease(w http.ResponseWriter, r *http.Request) {
	id := lease.LeaseID(chi.URLParam(r, "id"))

	var req ExtendLeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	newEnd, err := lease.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date", err)
		return
	}
	var newAmount *lease.Money
	if req.Amount != "" {
		m, err := lease.ParseMoney(req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		newAmount = &m
	}

	extended, err := h.Lifecycle.Extend(r.Context(), id, newEnd, newAmount)
	if err != nil {
		writeDomainError(w, "Failed to extend lease", err)
		return
	}
	writeJSON(w, http.StatusOK, leaseDTO(extended))
}

// TerminateLease ends a lease on a date with a reason.
func (h *Handler) TerminateLease(w http.ResponseWriter, r *http.Request) {
	id := lease.LeaseID(chi.URLParam(r, "id"))

	var req TerminateLeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := lease.ParseDate(req.TerminationDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid termination_date", err)
		return
	}

	terminated, err := h.Lifecycle.Terminate(r.Context(), id, date, req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to terminate lease", err)
		return
	}
	writeJSON(w, http.StatusOK, leaseDTO(terminated))
}

// ExpireLease is invoked by the external scheduler once the end date passed.
func (h *Handler) ExpireLease(w http.ResponseWriter, r *http.Request) {
	id := lease.LeaseID(chi.URLParam(r, "id"))

	var req ExpireLeaseRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // optional body
	}
	asOf := lease.Today()
	if req.AsOf != "" {
		parsed, err := lease.ParseDate(req.AsOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of", err)
			return
		}
		asOf = parsed
	}

	expired, err := h.Lifecycle.Expire(r.Context(), id, asOf)
	if err != nil {
		writeDomainError(w, "Failed to expire lease", err)
		return
	}
	writeJSON(w, http.StatusOK, leaseDTO(expired))
}

// SuspendLease pauses an active lease.
func (h *Handler) SuspendLease(w http.ResponseWriter, r *http.Request) {
	id := lease.LeaseID(chi.URLParam(r, "id"))
	suspended, err := h.Lifecycle.Suspend(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to suspend lease", err)
		return
	}
	writeJSON(w, http.StatusOK, leaseDTO(suspended))
}

// ResumeLease reactivates a suspended lease.
func (h *Handler) ResumeLease(w http.ResponseWriter, r *http.Request) {
	id := lease.LeaseID(chi.URLParam(r, "id"))
	resumed, err := h.Lifecycle.Resume(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to resume lease", err)
		return
	}
	writeJSON(w, http.StatusOK, leaseDTO(resumed))
}

// SignParty records a party's e-signature decision.
func (h *Handler) SignParty(w http.ResponseWriter, r *http.Request) {
	id := lease.LeaseID(chi.URLParam(r, "id"))
	partyID := chi.URLParam(r, "partyID")

	var req SignPartyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	signed, err := h.Lifecycle.SignParty(r.Context(), id, partyID, lease.SignatureStatus(req.Status))
	if err != nil {
		writeDomainError(w, "Failed to record signature", err)
		return
	}
	writeJSON(w, http.StatusOK, leaseDTO(signed))
}

// AttachDocument links the executed agreement document to the lease record.
func (h *Handler) AttachDocument(w http.ResponseWriter, r *http.Request) {
	id := lease.LeaseID(chi.URLParam(r, "id"))

	var req AttachDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.DocumentRef == "" {
		writeError(w, http.StatusBadRequest, "document_ref is required", nil)
		return
	}

	updated, err := h.Lifecycle.AttachSignedDocument(r.Context(), id, req.DocumentRef, req.ContentHash)
	if err != nil {
		writeDomainError(w, "Failed to attach document", err)
		return
	}
	writeJSON(w, http.StatusOK, leaseDTO(updated))
}

// =============================================================================
// LISTING HANDLERS
// =============================================================================

func (h *Handler) ListLeasesByTenant(w http.ResponseWriter, r *http.Request) {
	id := lease.TenantID(chi.URLParam(r, "id"))
	leases, err := h.Lifecycle.ListByTenant(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list leases", err)
		return
	}
	writeJSON(w, http.StatusOK, leaseDTOs(leases))
}

func (h *Handler) ListLeasesByLandlord(w http.ResponseWriter, r *http.Request) {
	id := lease.LandlordID(chi.URLParam(r, "id"))
	leases, err := h.Lifecycle.ListByLandlord(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list leases", err)
		return
	}
	writeJSON(w, http.StatusOK, leaseDTOs(leases))
}

func (h *Handler) ListLeasesByUnit(w http.ResponseWriter, r *http.Request) {
	id := lease.UnitID(chi.URLParam(r, "id"))
	leases, err := h.Lifecycle.ListByUnit(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list leases", err)
		return
	}
	writeJSON(w, http.StatusOK, leaseDTOs(leases))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// GetLeaseLedger returns the lease's payment ledger.
func (h *Handler) GetLeaseLedger(w http.ResponseWriter, r *http.Request) {
	id := lease.LeaseID(chi.URLParam(r, "id"))

	payments, err := h.Ledger.PaymentsForLease(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load ledger", err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	total := lease.ZeroMoney()
	for i := range payments {
		dtos[i] = paymentDTO(&payments[i])
		total = total.Add(payments[i].Amount)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lease_id":   string(id),
		"payments":   dtos,
		"total_paid": total.String(),
	})
}

// RecordPayment appends a manual/staff ledger entry. No dedup is attempted.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id := lease.LeaseID(chi.URLParam(r, "id"))

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := lease.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	paidAt, err := lease.ParseDate(req.PaidAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid paid_at", err)
		return
	}

	draft := lease.PaymentDraft{
		Amount:     amount,
		PaidAt:     paidAt,
		TypeCode:   req.TypeCode,
		Metadata:   req.Metadata,
		RecordedBy: req.RecordedBy,
	}
	payment, _, err := h.Ledger.Append(r.Context(), id, draft, "")
	if err != nil {
		writeDomainError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentDTO(payment))
}

// =============================================================================
// GATEWAY HANDLERS
// =============================================================================

// InitiatePayment opens a gateway checkout session.
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := lease.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	session, err := h.Gateway.Initiate(r.Context(), gateway.InitiateRequest{
		LeaseID:  lease.LeaseID(req.LeaseID),
		Amount:   amount,
		TypeCode: req.TypeCode,
		Phone:    req.Phone,
	})
	if err != nil {
		writeDomainError(w, "Failed to initiate payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, InitiatePaymentResponse{
		CheckoutID: session.CheckoutID,
		LeaseID:    string(session.LeaseID),
		Amount:     session.Amount.String(),
	})
}

// ValidateCallback answers the gateway's synchronous pre-completion check.
func (h *Handler) ValidateCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"accepted": false, "reason": "unreadable body"})
		return
	}

	event := gateway.ParseEvent(body)
	if event.Kind != gateway.KindValidation {
		h.Logger.Warn("non-validation payload on validate endpoint", "payload", string(body))
		writeJSON(w, http.StatusOK, map[string]any{"accepted": false, "reason": "unrecognized payload"})
		return
	}

	decision := h.Gateway.Validate(r.Context(), *event.Validation)
	writeJSON(w, http.StatusOK, map[string]any{
		"accepted": decision.Accepted,
		"reason":   decision.Reason,
	})
}

// ConfirmCallback ingests asynchronous confirmations. Always acknowledges:
// the gateway retries non-2xx responses indefinitely, and malformed payloads
// can never become well-formed.
func (h *Handler) ConfirmCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	outcome, err := h.Gateway.HandleEvent(r.Context(), gateway.ParseEvent(body))
	if err != nil {
		// Infrastructure failure: a retry CAN fix this one, so let the
		// gateway see it.
		writeError(w, http.StatusInternalServerError, "Failed to process confirmation", err)
		return
	}

	resp := map[string]any{"status": string(outcome.Status)}
	if outcome.Payment != nil {
		resp["payment_id"] = string(outcome.Payment.ID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetRentRoll computes the monthly rent roll. ?format=csv exports it, with
// an optional ?tax_multiplier= presentation scale.
func (h *Handler) GetRentRoll(w http.ResponseWriter, r *http.Request) {
	propertyID := lease.PropertyID(chi.URLParam(r, "id"))

	monthParam := r.URL.Query().Get("month")
	monthStart, err := time.Parse("2006-01", monthParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return
	}

	report, err := h.Reporter.RentRoll(r.Context(), propertyID, monthStart.Year(), monthStart.Month())
	if err != nil {
		writeDomainError(w, "Failed to compute rent roll", err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		multiplier, err := taxMultiplier(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid tax_multiplier", err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="rentroll-%s-%s.csv"`, propertyID, monthParam))
		if err := lease.ExportRentRollTaxCSV(w, report, multiplier); err != nil {
			h.Logger.Error("rent roll export failed", "property_id", propertyID, "error", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, rentRollDTO(report))
}

// GetArrearsAging computes arrears aging as of a date. ?format=csv exports.
func (h *Handler) GetArrearsAging(w http.ResponseWriter, r *http.Request) {
	propertyID := lease.PropertyID(chi.URLParam(r, "id"))

	asOf := lease.Today()
	if param := r.URL.Query().Get("as_of"); param != "" {
		parsed, err := lease.ParseDate(param)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of (use YYYY-MM-DD)", err)
			return
		}
		asOf = parsed
	}

	report, err := h.Reporter.ArrearsAging(r.Context(), propertyID, asOf)
	if err != nil {
		writeDomainError(w, "Failed to compute arrears aging", err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		multiplier, err := taxMultiplier(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid tax_multiplier", err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="arrears-%s-%s.csv"`, propertyID, asOf))
		if err := lease.ExportArrearsTaxCSV(w, report, multiplier); err != nil {
			h.Logger.Error("arrears export failed", "property_id", propertyID, "error", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, arrearsDTO(report))
}

func taxMultiplier(r *http.Request) (decimal.Decimal, error) {
	param := r.URL.Query().Get("tax_multiplier")
	if param == "" {
		return decimal.NewFromInt(1), nil
	}
	return decimal.NewFromString(param)
}

// =============================================================================
// SCAN HANDLERS - Feed external reminder/renewal schedulers
// =============================================================================

func (h *Handler) ScanSignatureReminders(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days_since_sent", 3)
	leases, err := h.Lifecycle.LeasesNeedingSignatureReminders(r.Context(), days)
	if err != nil {
		writeDomainError(w, "Failed to scan signature reminders", err)
		return
	}
	writeJSON(w, http.StatusOK, leaseDTOs(leases))
}

func (h *Handler) ScanMissingPayments(w http.ResponseWriter, r *http.Request) {
	asOf := lease.Today()
	if param := r.URL.Query().Get("as_of"); param != "" {
		parsed, err := lease.ParseDate(param)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of (use YYYY-MM-DD)", err)
			return
		}
		asOf = parsed
	}
	leases, err := h.Lifecycle.LeasesWithMissingPayments(r.Context(), asOf)
	if err != nil {
		writeDomainError(w, "Failed to scan missing payments", err)
		return
	}
	writeJSON(w, http.StatusOK, leaseDTOs(leases))
}

func (h *Handler) ScanUpcomingRenewals(w http.ResponseWriter, r *http.Request) {
	window := queryInt(r, "window_days", 30)
	leases, err := h.Lifecycle.UpcomingRenewals(r.Context(), window)
	if err != nil {
		writeDomainError(w, "Failed to scan upcoming renewals", err)
		return
	}
	writeJSON(w, http.StatusOK, leaseDTOs(leases))
}

func queryInt(r *http.Request, name string, fallback int) int {
	param := r.URL.Query().Get(name)
	if param == "" {
		return fallback
	}
	n, err := strconv.Atoi(param)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]any{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}

// writeDomainError maps the error taxonomy to HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case lease.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	case lease.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case lease.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
