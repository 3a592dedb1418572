package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven/lease-engine/api"
	"github.com/haven/lease-engine/gateway"
	"github.com/haven/lease-engine/lease"
	"github.com/haven/lease-engine/lease/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()

	lifecycle := lease.NewLifecycle(mem, lease.WithPayments(mem))
	ledger := lease.NewLedger(mem, mem)
	reporter := lease.NewReporter(mem)
	adapter := gateway.NewAdapter(ledger, mem, nil)

	handler := api.NewHandler(lifecycle, ledger, reporter, adapter, nil)
	server := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(server.Close)
	return server, mem
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func createLeaseViaAPI(t *testing.T, server *httptest.Server) map[string]any {
	t.Helper()
	resp := postJSON(t, server.URL+"/api/leases", map[string]any{
		"property_id":       "prop-1",
		"unit_id":           "unit-1",
		"tenant_id":         "tenant-1",
		"landlord_id":       "landlord-1",
		"start_date":        "2025-03-01",
		"end_date":          "2035-02-28",
		"amount":            "45000",
		"payment_frequency": "monthly",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created map[string]any
	decodeJSON(t, resp, &created)
	return created
}

// =============================================================================
// LEASE ENDPOINT TESTS
// =============================================================================

func TestAPI_CreateAndGetLease(t *testing.T) {
	server, _ := newTestServer(t)

	created := createLeaseViaAPI(t, server)
	assert.Equal(t, "active", created["status"])
	assert.NotEmpty(t, created["next_due_date"], "derived next due date rides along")

	resp, err := http.Get(fmt.Sprintf("%s/api/leases/%s", server.URL, created["id"]))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	decodeJSON(t, resp, &got)
	assert.Equal(t, created["id"], got["id"])
}

func TestAPI_GetLease_NotFound(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/leases/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_CreateLease_OverlapConflict(t *testing.T) {
	// GIVEN: The unit is already leased
	// WHEN: Posting an overlapping lease
	// THEN: 409

	server, _ := newTestServer(t)
	createLeaseViaAPI(t, server)

	resp := postJSON(t, server.URL+"/api/leases", map[string]any{
		"property_id":       "prop-1",
		"unit_id":           "unit-1",
		"tenant_id":         "tenant-2",
		"start_date":        "2025-06-01",
		"end_date":          "2026-05-31",
		"amount":            "45000",
		"payment_frequency": "monthly",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_CreateLease_ValidationErrors(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/leases", map[string]any{
		"property_id":       "prop-1",
		"unit_id":           "unit-1",
		"tenant_id":         "tenant-1",
		"start_date":        "2026-02-28",
		"end_date":          "2025-03-01", // inverted
		"amount":            "45000",
		"payment_frequency": "monthly",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_TerminateLease(t *testing.T) {
	server, _ := newTestServer(t)
	created := createLeaseViaAPI(t, server)

	resp := postJSON(t, fmt.Sprintf("%s/api/leases/%s/terminate", server.URL, created["id"]), map[string]any{
		"termination_date": "2025-06-15",
		"reason":           "tenant relocated",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	decodeJSON(t, resp, &got)
	assert.Equal(t, "terminated", got["status"])
	assert.Equal(t, "2025-06-15", got["end_date"])

	// A second terminate conflicts.
	resp = postJSON(t, fmt.Sprintf("%s/api/leases/%s/terminate", server.URL, created["id"]), map[string]any{
		"termination_date": "2025-07-15",
		"reason":           "again",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

// =============================================================================
// PAYMENT ENDPOINT TESTS
// =============================================================================

func TestAPI_RecordPaymentAndLedger(t *testing.T) {
	server, _ := newTestServer(t)
	created := createLeaseViaAPI(t, server)
	leaseID := created["id"].(string)

	resp := postJSON(t, fmt.Sprintf("%s/api/leases/%s/payments", server.URL, leaseID), map[string]any{
		"amount":      "45000",
		"paid_at":     "2025-03-02",
		"recorded_by": "staff-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var payment map[string]any
	decodeJSON(t, resp, &payment)
	assert.Equal(t, "RENT", payment["type_code"])

	resp2, err := http.Get(fmt.Sprintf("%s/api/leases/%s/ledger", server.URL, leaseID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var ledgerBody struct {
		Payments  []map[string]any `json:"payments"`
		TotalPaid string           `json:"total_paid"`
	}
	decodeJSON(t, resp2, &ledgerBody)
	require.Len(t, ledgerBody.Payments, 1)
	assert.Equal(t, "45000", ledgerBody.TotalPaid)
}

// =============================================================================
// GATEWAY ENDPOINT TESTS
// =============================================================================

func TestAPI_GatewayCallback_AppliesOnce(t *testing.T) {
	// GIVEN: The gateway delivers a confirmation twice
	// WHEN: Both hit the callback endpoint
	// THEN: Both are ACKed with 200; one ledger entry exists

	server, mem := newTestServer(t)
	created := createLeaseViaAPI(t, server)
	leaseID := created["id"].(string)

	body := fmt.Sprintf(`{
		"event": "confirmation",
		"data": {
			"transaction_id": "TX-1",
			"account_reference": %q,
			"amount": "45000",
			"transaction_date": "2025-03-02"
		}
	}`, leaseID)

	for i, wantStatus := range []string{"applied", "duplicate"} {
		resp, err := http.Post(server.URL+"/api/gateway/callback", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, "delivery %d", i)

		var got map[string]any
		decodeJSON(t, resp, &got)
		assert.Equal(t, wantStatus, got["status"], "delivery %d", i)
	}

	payments, err := mem.PaymentsForLease(context.Background(), lease.LeaseID(leaseID))
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestAPI_GatewayCallback_AlwaysAcks(t *testing.T) {
	// Malformed and business-invalid payloads get 200, never an error the
	// gateway would retry forever.
	server, _ := newTestServer(t)

	cases := []string{
		`not json at all`,
		`{"event": "confirmation", "data": {"transaction_id": "TX-2", "account_reference": "ghost", "amount": "100"}}`,
		`{"event": "confirmation", "data": {"transaction_id": "TX-3", "account_reference": "x", "amount": "-1"}}`,
		`{"event": "mystery"}`,
	}
	for i, body := range cases {
		resp, err := http.Post(server.URL+"/api/gateway/callback", "application/json", strings.NewReader(body))
		require.NoError(t, err, "case %d", i)
		require.Equal(t, http.StatusOK, resp.StatusCode, "case %d", i)

		var got map[string]any
		decodeJSON(t, resp, &got)
		assert.Equal(t, "ignored", got["status"], "case %d", i)
	}
}

func TestAPI_GatewayValidate(t *testing.T) {
	server, _ := newTestServer(t)
	created := createLeaseViaAPI(t, server)

	body := fmt.Sprintf(`{
		"event": "validation",
		"data": {"transaction_id": "TX-1", "account_reference": %q, "amount": "45000"}
	}`, created["id"])
	resp, err := http.Post(server.URL+"/api/gateway/validate", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	decodeJSON(t, resp, &got)
	assert.Equal(t, true, got["accepted"])

	// Unknown lease: still 200, accepted=false.
	body = `{"event": "validation", "data": {"transaction_id": "TX-2", "account_reference": "ghost", "amount": "45000"}}`
	resp, err = http.Post(server.URL+"/api/gateway/validate", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &got)
	assert.Equal(t, false, got["accepted"])
}

func TestAPI_InitiatePayment(t *testing.T) {
	server, _ := newTestServer(t)
	created := createLeaseViaAPI(t, server)

	resp := postJSON(t, server.URL+"/api/payments/initiate", map[string]any{
		"lease_id": created["id"],
		"amount":   "45000",
		"msisdn":   "+254700000001",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var got map[string]any
	decodeJSON(t, resp, &got)
	assert.NotEmpty(t, got["checkout_id"])
	assert.Equal(t, created["id"], got["lease_id"])
}

// =============================================================================
// REPORT ENDPOINT TESTS
// =============================================================================

func TestAPI_RentRoll_JSONAndCSV(t *testing.T) {
	server, _ := newTestServer(t)
	created := createLeaseViaAPI(t, server)
	leaseID := created["id"].(string)

	resp := postJSON(t, fmt.Sprintf("%s/api/leases/%s/payments", server.URL, leaseID), map[string]any{
		"amount":  "45000",
		"paid_at": "2025-06-03",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// JSON
	resp2, err := http.Get(server.URL + "/api/properties/prop-1/rentroll?month=2025-06")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var roll map[string]any
	decodeJSON(t, resp2, &roll)
	assert.Equal(t, "45000", roll["total_due"])
	assert.Equal(t, "45000", roll["total_paid"])
	assert.Equal(t, "0", roll["total_balance"])

	// CSV
	resp3, err := http.Get(server.URL + "/api/properties/prop-1/rentroll?month=2025-06&format=csv")
	require.NoError(t, err)
	defer resp3.Body.Close()
	require.Equal(t, http.StatusOK, resp3.StatusCode)
	assert.Equal(t, "text/csv", resp3.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp3.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "lease_id,unit_id,tenant_id,month,due,paid,balance", lines[0])
	assert.Contains(t, lines[1], leaseID)
}

func TestAPI_RentRoll_BadMonth(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/properties/prop-1/rentroll?month=June2025")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_Arrears_CSVWithTaxMultiplier(t *testing.T) {
	server, _ := newTestServer(t)
	createLeaseViaAPI(t, server)

	url := server.URL + "/api/properties/prop-1/arrears?as_of=2025-04-15&format=csv&tax_multiplier=2"
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	// 2 elapsed anchors x 45000, doubled by the presentation multiplier.
	assert.Contains(t, lines[1], "180000")
}

// =============================================================================
// SCAN ENDPOINT TESTS
// =============================================================================

func TestAPI_ScanMissingPayments(t *testing.T) {
	server, _ := newTestServer(t)
	created := createLeaseViaAPI(t, server)

	resp, err := http.Get(server.URL + "/api/scans/missing-payments?as_of=2025-04-15")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []map[string]any
	decodeJSON(t, resp, &got)
	require.Len(t, got, 1)
	assert.Equal(t, created["id"], got[0]["id"])
}
