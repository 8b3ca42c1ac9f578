/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that seed the store with realistic vouchers
	for testing and demos. Each scenario issues a small set of vouchers that
	demonstrate specific lifecycle behavior.

AVAILABLE SCENARIOS:

	single-use:    One active single-use voucher, the happy path
	multi-use:     A 3-ride transit pass, partially consumed
	edge-cases:    Expired, not-yet-valid, and cancelled vouchers

HOW SCENARIOS WORK:
 1. Issue fresh vouchers with scenario-specific codes
 2. Optionally run validations to move them into later states
 3. Codes are date-free so the same scenario reloads cleanly

USAGE VIA API:

	POST /api/scenarios/load
	{"id": "multi-use"}

NOTE:

	Scenario codes collide on reload against a persistent store. Only use
	in development/demo environments with a fresh database.

SEE ALSO:
  - handlers.go: Response helpers
  - server.go: Route registration
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/voucher-engine/voucher"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "single-use",
		Name:        "Single-Use Voucher",
		Description: "One active hotel-night voucher, ready to redeem once",
	},
	{
		ID:          "multi-use",
		Name:        "Multi-Use Pass",
		Description: "A 3-use transit pass with one use already consumed",
	},
	{
		ID:          "edge-cases",
		Name:        "Edge Cases",
		Description: "Expired, not-yet-valid, and cancelled vouchers for rejection demos",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario seeds the selected demo scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var err error
	switch req.ID {
	case "single-use":
		err = h.loadSingleUseScenario(r.Context())
	case "multi-use":
		err = h.loadMultiUseScenario(r.Context())
	case "edge-cases":
		err = h.loadEdgeCasesScenario(r.Context())
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ID
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSingleUseScenario(ctx context.Context) error {
	now := time.Now().UTC()
	return h.Vouchers.Issue(ctx, voucher.Voucher{
		Code:          "VOU-HOTEL-001",
		State:         voucher.StateActive,
		ValidFrom:     now.AddDate(0, 0, -1),
		ValidUntil:    now.AddDate(0, 0, 30),
		MaxUses:       1,
		RemainingUses: 1,
		IssuedFor:     "Maria Gonzalez",
		Amount:        decimal.NewFromInt(120),
		ServiceType:   "hotel",
		Destination:   "Grand Plaza Hotel",
		IssuedAt:      now,
	})
}

func (h *Handler) loadMultiUseScenario(ctx context.Context) error {
	now := time.Now().UTC()
	if err := h.Vouchers.Issue(ctx, voucher.Voucher{
		Code:          "VOU-TRANSIT-001",
		State:         voucher.StateActive,
		ValidFrom:     now.AddDate(0, 0, -7),
		ValidUntil:    now.AddDate(0, 1, 0),
		MaxUses:       3,
		RemainingUses: 3,
		IssuedFor:     "James Chen",
		Amount:        decimal.NewFromInt(45),
		ServiceType:   "transit",
		Destination:   "Airport Express",
		IssuedAt:      now,
	}); err != nil {
		return err
	}

	// Consume one use so the pass shows partial redemption.
	_, err := h.Engine.Validate(ctx, "VOU-TRANSIT-001", voucher.Context{
		Validator: "demo-loader",
		Location:  "Terminal 1",
		Device:    "scanner-01",
	})
	return err
}

func (h *Handler) loadEdgeCasesScenario(ctx context.Context) error {
	now := time.Now().UTC()

	if err := h.Vouchers.Issue(ctx, voucher.Voucher{
		Code:          "VOU-MEAL-EXPIRED",
		State:         voucher.StateActive,
		ValidFrom:     now.AddDate(0, -2, 0),
		ValidUntil:    now.AddDate(0, -1, 0),
		MaxUses:       1,
		RemainingUses: 1,
		IssuedFor:     "Aisha Okafor",
		Amount:        decimal.NewFromInt(25),
		ServiceType:   "meal",
		Destination:   "Skyline Bistro",
		IssuedAt:      now.AddDate(0, -2, 0),
	}); err != nil {
		return err
	}

	if err := h.Vouchers.Issue(ctx, voucher.Voucher{
		Code:          "VOU-SPA-FUTURE",
		State:         voucher.StateActive,
		ValidFrom:     now.AddDate(0, 0, 14),
		ValidUntil:    now.AddDate(0, 2, 0),
		MaxUses:       1,
		RemainingUses: 1,
		IssuedFor:     "Lena Bergman",
		Amount:        decimal.NewFromInt(80),
		ServiceType:   "spa",
		Destination:   "Wellness Center",
		IssuedAt:      now,
	}); err != nil {
		return err
	}

	if err := h.Vouchers.Issue(ctx, voucher.Voucher{
		Code:          "VOU-TOUR-CANCELLED",
		State:         voucher.StateActive,
		ValidFrom:     now.AddDate(0, 0, -3),
		ValidUntil:    now.AddDate(0, 1, 0),
		MaxUses:       1,
		RemainingUses: 1,
		IssuedFor:     "Diego Ramirez",
		Amount:        decimal.NewFromInt(60),
		ServiceType:   "tour",
		Destination:   "Old Town Walking Tour",
		IssuedAt:      now.AddDate(0, 0, -3),
	}); err != nil {
		return err
	}
	_, err := h.Engine.Cancel(ctx, "VOU-TOUR-CANCELLED")
	return err
}
