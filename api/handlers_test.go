/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Validation endpoint outcome/status mapping
- Issuance, cancellation, and query endpoints
- Scenario loading
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/warp/voucher-engine/voucher"
	"github.com/warp/voucher-engine/voucher/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func newTestServer() (*Handler, *chiServer) {
	h := NewHandler(store.NewMemory(), store.NewMemoryLog())
	h.Engine.Clock = func() time.Time { return testNow }
	return h, &chiServer{router: NewRouter(h)}
}

type chiServer struct {
	router http.Handler
}

func (s *chiServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func issueRequest(code string) IssueVoucherRequest {
	return IssueVoucherRequest{
		Code:       code,
		ValidFrom:  "2025-06-01",
		ValidUntil: "2025-06-30",
		MaxUses:    1,
		IssuedFor:  "booking-7",
		Amount:     "99.50",
	}
}

// =============================================================================
// VALIDATION ENDPOINT
// =============================================================================

func TestAPI_Validate_SuccessAndRepeat(t *testing.T) {
	// GIVEN: An issued single-use voucher
	// WHEN: It is validated twice over HTTP
	// THEN: Both calls are 200; outcomes are success then already_used

	_, srv := newTestServer()
	rec := srv.do(t, "POST", "/api/vouchers", issueRequest("API-1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("issue: expected 201, got %d: %s", rec.Code, rec.Body)
	}

	rec = srv.do(t, "POST", "/api/validate", ValidateRequest{Code: "API-1", Validator: "desk-01"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	resp := decode[ValidateResponse](t, rec)
	if resp.Outcome != string(voucher.OutcomeSuccess) {
		t.Errorf("expected success, got %s", resp.Outcome)
	}
	if resp.Voucher == nil || resp.Voucher.RemainingUses != 0 {
		t.Errorf("expected redeemed voucher in payload, got %+v", resp.Voucher)
	}
	if resp.LogEntryID == 0 {
		t.Error("expected a log entry id")
	}

	rec = srv.do(t, "POST", "/api/validate", ValidateRequest{Code: "API-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rejections are outcomes, not HTTP errors: got %d", rec.Code)
	}
	resp = decode[ValidateResponse](t, rec)
	if resp.Outcome != string(voucher.OutcomeAlreadyUsed) {
		t.Errorf("expected already_used, got %s", resp.Outcome)
	}
	if resp.Message == "" {
		t.Error("expected a display message")
	}
}

func TestAPI_Validate_UnknownCode_Is200NotFound(t *testing.T) {
	// GIVEN: No vouchers at all
	// WHEN: A code is validated
	// THEN: 200 with not_found - the scanner UI shows the outcome

	_, srv := newTestServer()

	rec := srv.do(t, "POST", "/api/validate", ValidateRequest{Code: "GHOST"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode[ValidateResponse](t, rec)
	if resp.Outcome != string(voucher.OutcomeNotFound) {
		t.Errorf("expected not_found, got %s", resp.Outcome)
	}
}

func TestAPI_Validate_EmptyCode_Rejected(t *testing.T) {
	_, srv := newTestServer()

	rec := srv.do(t, "POST", "/api/validate", ValidateRequest{Code: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

// =============================================================================
// ISSUANCE
// =============================================================================

func TestAPI_IssueVoucher_DuplicateAndBadInput(t *testing.T) {
	_, srv := newTestServer()

	rec := srv.do(t, "POST", "/api/vouchers", issueRequest("DUP-1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	dto := decode[VoucherDTO](t, rec)
	if dto.State != string(voucher.StateActive) || dto.RemainingUses != 1 {
		t.Errorf("expected fresh active voucher, got %+v", dto)
	}

	rec = srv.do(t, "POST", "/api/vouchers", issueRequest("DUP-1"))
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate code, got %d", rec.Code)
	}

	bad := issueRequest("BAD-1")
	bad.ValidUntil = "2025-05-01" // before ValidFrom
	rec = srv.do(t, "POST", "/api/vouchers", bad)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for inverted window, got %d", rec.Code)
	}

	bad = issueRequest("BAD-2")
	bad.MaxUses = 0
	rec = srv.do(t, "POST", "/api/vouchers", bad)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero max_uses, got %d", rec.Code)
	}
}

// =============================================================================
// QUERIES
// =============================================================================

func TestAPI_GetVoucher_FoundAndMissing(t *testing.T) {
	_, srv := newTestServer()
	srv.do(t, "POST", "/api/vouchers", issueRequest("Q-1"))

	rec := srv.do(t, "GET", "/api/vouchers/Q-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	dto := decode[VoucherDTO](t, rec)
	if dto.Code != "Q-1" || dto.Amount != "99.5" {
		t.Errorf("unexpected voucher: %+v", dto)
	}

	rec = srv.do(t, "GET", "/api/vouchers/GHOST", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestAPI_ListVouchers_StateFilter(t *testing.T) {
	_, srv := newTestServer()
	srv.do(t, "POST", "/api/vouchers", issueRequest("L-1"))
	srv.do(t, "POST", "/api/vouchers", issueRequest("L-2"))
	srv.do(t, "POST", "/api/validate", ValidateRequest{Code: "L-1"})

	rec := srv.do(t, "GET", "/api/vouchers/?state=used", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	used := decode[[]VoucherDTO](t, rec)
	if len(used) != 1 || used[0].Code != "L-1" {
		t.Errorf("expected only L-1 used, got %+v", used)
	}

	rec = srv.do(t, "GET", "/api/vouchers/?state=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown state, got %d", rec.Code)
	}
}

func TestAPI_HistoryAndRecent(t *testing.T) {
	_, srv := newTestServer()
	srv.do(t, "POST", "/api/vouchers", issueRequest("H-1"))
	srv.do(t, "POST", "/api/validate", ValidateRequest{Code: "H-1", Device: "scanner-2"})
	srv.do(t, "POST", "/api/validate", ValidateRequest{Code: "H-1"})

	rec := srv.do(t, "GET", "/api/vouchers/H-1/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	history := decode[[]LogEntryDTO](t, rec)
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].Outcome != string(voucher.OutcomeSuccess) ||
		history[1].Outcome != string(voucher.OutcomeAlreadyUsed) {
		t.Errorf("unexpected history order: %+v", history)
	}
	if history[0].Device != "scanner-2" {
		t.Errorf("audit context lost: %+v", history[0])
	}

	rec = srv.do(t, "GET", "/api/validations/recent?limit=1", nil)
	recent := decode[[]LogEntryDTO](t, rec)
	if len(recent) != 1 || recent[0].Outcome != string(voucher.OutcomeAlreadyUsed) {
		t.Errorf("expected newest entry only, got %+v", recent)
	}
}

func TestAPI_Stats(t *testing.T) {
	_, srv := newTestServer()
	srv.do(t, "POST", "/api/vouchers", issueRequest("S-1"))
	srv.do(t, "POST", "/api/vouchers", issueRequest("S-2"))
	srv.do(t, "POST", "/api/validate", ValidateRequest{Code: "S-1"})
	srv.do(t, "POST", "/api/validate", ValidateRequest{Code: "GHOST"})

	rec := srv.do(t, "GET", "/api/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	stats := decode[StatsDTO](t, rec)
	if stats.Active != 1 || stats.Used != 1 {
		t.Errorf("unexpected state counts: %+v", stats)
	}
	if stats.TotalValidations != 2 || stats.SuccessCount != 1 {
		t.Errorf("unexpected attempt counts: %+v", stats)
	}
	if stats.TotalValue != "199" {
		t.Errorf("expected total value 199, got %s", stats.TotalValue)
	}
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestAPI_CancelVoucher_StatusMapping(t *testing.T) {
	_, srv := newTestServer()
	srv.do(t, "POST", "/api/vouchers", issueRequest("C-1"))

	rec := srv.do(t, "POST", "/api/vouchers/C-1/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	dto := decode[VoucherDTO](t, rec)
	if dto.State != string(voucher.StateCancelled) {
		t.Errorf("expected cancelled, got %s", dto.State)
	}

	rec = srv.do(t, "POST", "/api/vouchers/C-1/cancel", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for double cancel, got %d", rec.Code)
	}

	rec = srv.do(t, "POST", "/api/vouchers/GHOST/cancel", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	// Cancelled vouchers still answer validations with the outcome.
	rec = srv.do(t, "POST", "/api/validate", ValidateRequest{Code: "C-1"})
	resp := decode[ValidateResponse](t, rec)
	if resp.Outcome != string(voucher.OutcomeCancelled) {
		t.Errorf("expected cancelled outcome, got %s", resp.Outcome)
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestAPI_Scenarios_ListAndLoad(t *testing.T) {
	h, srv := newTestServer()
	// Scenario loaders validate against the real clock.
	h.Engine.Clock = nil

	rec := srv.do(t, "GET", "/api/scenarios/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	list := decode[[]ScenarioDTO](t, rec)
	if len(list) != 3 {
		t.Errorf("expected 3 scenarios, got %d", len(list))
	}

	rec = srv.do(t, "POST", "/api/scenarios/load", LoadScenarioRequest{ID: "multi-use"})
	if rec.Code != http.StatusOK {
		t.Fatalf("load: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = srv.do(t, "GET", "/api/vouchers/VOU-TRANSIT-001", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected seeded voucher, got %d", rec.Code)
	}
	dto := decode[VoucherDTO](t, rec)
	if dto.RemainingUses != 2 {
		t.Errorf("expected one use consumed by the loader, got %d remaining", dto.RemainingUses)
	}

	rec = srv.do(t, "GET", "/api/scenarios/current", nil)
	current := decode[ScenarioDTO](t, rec)
	if current.ID != "multi-use" {
		t.Errorf("expected multi-use current, got %+v", current)
	}

	rec = srv.do(t, "POST", "/api/scenarios/load", LoadScenarioRequest{ID: "bogus"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown scenario, got %d", rec.Code)
	}
}
