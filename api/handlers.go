/*
handlers.go - HTTP API handlers for the voucher redemption engine

PURPOSE:
  Exposes the redemption engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Validation:
    POST   /api/validate                   Validate a scanned code
    GET    /api/validations/recent         Recent activity feed

  Vouchers:
    GET    /api/vouchers                   List (filterable by state)
    POST   /api/vouchers                   Issue a voucher
    GET    /api/vouchers/{code}            Voucher detail
    GET    /api/vouchers/{code}/history    Validation history
    POST   /api/vouchers/{code}/cancel     External cancellation

  Stats:
    GET    /api/stats                      Dashboard aggregates

  Scenarios:
    GET    /api/scenarios                  List demo scenarios
    POST   /api/scenarios/load             Seed a demo scenario

ERROR HANDLING:
  Business outcomes (not_found, already_used, expired, cancelled,
  invalid_window) are 200 responses with the outcome in the payload - the
  staff UI renders a distinct message per outcome. HTTP errors are reserved
  for infrastructure:
  - 400: Validation errors, invalid input
  - 404: Missing voucher on voucher-addressed endpoints
  - 409: Contention (CAS retries exhausted), duplicate issuance
  - 503: Store failures ("try again"; storage detail never leaks)

SECURITY NOTE:
  Validator identity is an opaque string supplied by the caller.
  Authentication of the staff member happens upstream.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario seeding
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/voucher-engine/voucher"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Vouchers voucher.Store
	Logs     voucher.Log
	Engine   *voucher.Engine
	Query    *voucher.QueryService

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler over the given stores.
func NewHandler(vouchers voucher.Store, logs voucher.Log) *Handler {
	return &Handler{
		Vouchers: vouchers,
		Logs:     logs,
		Engine:   voucher.NewEngine(vouchers, logs),
		Query:    voucher.NewQueryService(vouchers, logs),
	}
}

// =============================================================================
// VALIDATION HANDLERS
// =============================================================================

// Validate runs the redemption state machine for a scanned code.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "Voucher code is required", nil)
		return
	}

	result, err := h.Engine.Validate(r.Context(), req.Code, voucher.Context{
		Validator: req.Validator,
		Location:  req.Location,
		Device:    req.Device,
	})
	if err != nil {
		if voucher.IsRetryable(err) {
			writeError(w, http.StatusConflict, "Voucher is being validated elsewhere, try again", nil)
			return
		}
		writeError(w, http.StatusServiceUnavailable, "Validation could not be completed, try again", err)
		return
	}

	writeJSON(w, http.StatusOK, ValidateResponse{
		Outcome:    string(result.Outcome),
		Message:    result.Outcome.Message(),
		Voucher:    toVoucherDTO(result.Voucher),
		LogEntryID: result.LogEntryID,
	})
}

// RecentValidations returns the recent-activity feed.
func (h *Handler) RecentValidations(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	entries, err := h.Query.RecentActivity(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to list validations", err)
		return
	}
	writeJSON(w, http.StatusOK, toLogEntryDTOs(entries))
}

// =============================================================================
// VOUCHER HANDLERS
// =============================================================================

// ListVouchers returns all vouchers, optionally filtered by state.
func (h *Handler) ListVouchers(w http.ResponseWriter, r *http.Request) {
	state := voucher.LifecycleState(r.URL.Query().Get("state"))
	if state != "" && !state.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown lifecycle state", nil)
		return
	}

	vouchers, err := h.Query.ListVouchers(r.Context(), state)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to list vouchers", err)
		return
	}

	dtos := make([]VoucherDTO, len(vouchers))
	for i := range vouchers {
		dtos[i] = *toVoucherDTO(&vouchers[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetVoucher returns a single voucher.
func (h *Handler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	v, err := h.Query.GetVoucher(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to get voucher", err)
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "Voucher not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toVoucherDTO(v))
}

// IssueVoucher creates a new voucher record. Issuance is an external event
// to the engine; the record enters the store Active with full uses.
func (h *Handler) IssueVoucher(w http.ResponseWriter, r *http.Request) {
	var req IssueVoucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "Voucher code is required", nil)
		return
	}
	if req.MaxUses <= 0 {
		writeError(w, http.StatusBadRequest, "max_uses must be positive", nil)
		return
	}

	validFrom, err := time.Parse("2006-01-02", req.ValidFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid valid_from date (want YYYY-MM-DD)", err)
		return
	}
	validUntil, err := time.Parse("2006-01-02", req.ValidUntil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid valid_until date (want YYYY-MM-DD)", err)
		return
	}
	if validUntil.Before(validFrom) {
		writeError(w, http.StatusBadRequest, "valid_until is before valid_from", nil)
		return
	}

	amount := decimal.Zero
	if req.Amount != "" {
		amount, err = decimal.NewFromString(req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
	}

	v := voucher.Voucher{
		Code:          req.Code,
		State:         voucher.StateActive,
		ValidFrom:     validFrom,
		ValidUntil:    validUntil,
		MaxUses:       req.MaxUses,
		RemainingUses: req.MaxUses,
		IssuedFor:     req.IssuedFor,
		Amount:        amount,
		ServiceType:   req.ServiceType,
		Destination:   req.Destination,
		IssuedAt:      time.Now().UTC(),
	}

	if err := h.Vouchers.Issue(r.Context(), v); err != nil {
		if errors.Is(err, voucher.ErrVoucherExists) {
			writeError(w, http.StatusConflict, "Voucher code already exists", nil)
			return
		}
		writeError(w, http.StatusServiceUnavailable, "Failed to issue voucher", err)
		return
	}

	v.Version = 1
	writeJSON(w, http.StatusCreated, toVoucherDTO(&v))
}

// CancelVoucher applies an external cancellation. Sticky: the engine never
// redeems a cancelled voucher again.
func (h *Handler) CancelVoucher(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	v, err := h.Engine.Cancel(r.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, voucher.ErrVoucherNotFound):
			writeError(w, http.StatusNotFound, "Voucher not found", nil)
		case errors.Is(err, voucher.ErrTerminalState):
			writeError(w, http.StatusConflict, "Voucher is already in a terminal state", nil)
		case voucher.IsRetryable(err):
			writeError(w, http.StatusConflict, "Voucher is being validated elsewhere, try again", nil)
		default:
			writeError(w, http.StatusServiceUnavailable, "Failed to cancel voucher", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, toVoucherDTO(v))
}

// GetHistory returns the full validation history for a voucher.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	entries, err := h.Query.GetHistory(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to get history", err)
		return
	}
	writeJSON(w, http.StatusOK, toLogEntryDTOs(entries))
}

// =============================================================================
// STATS HANDLER
// =============================================================================

// GetStats returns dashboard aggregates. Optional from/to query params
// (YYYY-MM-DD) bound the validation window; default is all time.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	from := time.Time{}
	to := time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date (want YYYY-MM-DD)", err)
			return
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date (want YYYY-MM-DD)", err)
			return
		}
		// Inclusive day: extend to end of day.
		to = t.Add(24*time.Hour - time.Nanosecond)
	}

	stats, err := h.Query.GetStats(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to compute stats", err)
		return
	}

	writeJSON(w, http.StatusOK, StatsDTO{
		Active:           stats.Active,
		Used:             stats.Used,
		Expired:          stats.Expired,
		Cancelled:        stats.Cancelled,
		TotalValidations: stats.TotalValidations,
		SuccessCount:     stats.SuccessCount,
		SuccessRate:      stats.SuccessRate,
		TotalValue:       stats.TotalValue.String(),
	})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil && status == http.StatusBadRequest {
		// Client errors may carry detail; infrastructure detail never leaks.
		resp.Details = err.Error()
	}
	if err != nil && status >= 500 {
		log.Printf("%s: %v", message, err)
	}
	writeJSON(w, status, resp)
}
