/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - voucher/types.go: Domain types these project
*/
package api

import (
	"time"

	"github.com/warp/voucher-engine/voucher"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// VoucherDTO represents a voucher in API responses.
type VoucherDTO struct {
	Code           string `json:"code"`
	State          string `json:"state"`
	ValidFrom      string `json:"valid_from"`
	ValidUntil     string `json:"valid_until"`
	MaxUses        int    `json:"max_uses"`
	RemainingUses  int    `json:"remaining_uses"`
	IssuedFor      string `json:"issued_for,omitempty"`
	Amount         string `json:"amount"`
	ServiceType    string `json:"service_type,omitempty"`
	Destination    string `json:"destination,omitempty"`
	LastValidation int64  `json:"last_validation,omitempty"`
	IssuedAt       string `json:"issued_at,omitempty"`
}

func toVoucherDTO(v *voucher.Voucher) *VoucherDTO {
	if v == nil {
		return nil
	}
	return &VoucherDTO{
		Code:           v.Code,
		State:          string(v.State),
		ValidFrom:      v.ValidFrom.Format("2006-01-02"),
		ValidUntil:     v.ValidUntil.Format("2006-01-02"),
		MaxUses:        v.MaxUses,
		RemainingUses:  v.RemainingUses,
		IssuedFor:      v.IssuedFor,
		Amount:         v.Amount.String(),
		ServiceType:    v.ServiceType,
		Destination:    v.Destination,
		LastValidation: v.LastValidation,
		IssuedAt:       v.IssuedAt.Format(time.RFC3339),
	}
}

// ValidateRequest is the request to validate a scanned code.
// Validator, location and device are opaque audit metadata.
type ValidateRequest struct {
	Code      string `json:"code"`
	Validator string `json:"validator,omitempty"`
	Location  string `json:"location,omitempty"`
	Device    string `json:"device,omitempty"`
}

// ValidateResponse is the answer to a validation attempt.
type ValidateResponse struct {
	Outcome    string      `json:"outcome"`
	Message    string      `json:"message"`
	Voucher    *VoucherDTO `json:"voucher,omitempty"`
	LogEntryID int64       `json:"log_entry_id"`
}

// IssueVoucherRequest is the request to issue a new voucher.
type IssueVoucherRequest struct {
	Code        string `json:"code"`
	ValidFrom   string `json:"valid_from"`  // YYYY-MM-DD
	ValidUntil  string `json:"valid_until"` // YYYY-MM-DD
	MaxUses     int    `json:"max_uses"`
	IssuedFor   string `json:"issued_for,omitempty"`
	Amount      string `json:"amount,omitempty"`
	ServiceType string `json:"service_type,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// LogEntryDTO represents a validation log entry in API responses.
type LogEntryDTO struct {
	ID          int64  `json:"id"`
	VoucherCode string `json:"voucher_code"`
	Outcome     string `json:"outcome"`
	AttemptedAt string `json:"attempted_at"`
	Validator   string `json:"validator,omitempty"`
	Location    string `json:"location,omitempty"`
	Device      string `json:"device,omitempty"`
}

func toLogEntryDTOs(entries []voucher.LogEntry) []LogEntryDTO {
	dtos := make([]LogEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = LogEntryDTO{
			ID:          e.ID,
			VoucherCode: e.VoucherCode,
			Outcome:     string(e.Outcome),
			AttemptedAt: e.AttemptedAt.Format(time.RFC3339Nano),
			Validator:   e.Validator,
			Location:    e.Location,
			Device:      e.Device,
		}
	}
	return dtos
}

// StatsDTO is the dashboard aggregate response.
type StatsDTO struct {
	Active           int     `json:"active"`
	Used             int     `json:"used"`
	Expired          int     `json:"expired"`
	Cancelled        int     `json:"cancelled"`
	TotalValidations int     `json:"total_validations"`
	SuccessCount     int     `json:"success_count"`
	SuccessRate      float64 `json:"success_rate"`
	TotalValue       string  `json:"total_value"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a demo scenario to seed.
type LoadScenarioRequest struct {
	ID string `json:"id"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
