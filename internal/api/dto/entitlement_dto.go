package dto

import "time"

// RenewEntitlementRequest payload.
type RenewEntitlementRequest struct {
	Days int `json:"days"`
}

// EntitlementResponse describes a user's premium period.
type EntitlementResponse struct {
	UserID        string     `json:"user_id"`
	Active        bool       `json:"active"`
	Start         *time.Time `json:"start,omitempty"`
	End           *time.Time `json:"end,omitempty"`
	RemainingDays int        `json:"remaining_days"`
}
