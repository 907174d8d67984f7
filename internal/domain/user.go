package domain

import "time"

// User is a chat-platform account known to the system. Users are created
// lazily on their first ticket request and never deleted.
type User struct {
	ID               string
	ExternalID       string
	Entitled         bool
	EntitlementStart *time.Time
	EntitlementEnd   *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EntitlementStatus summarizes a user's premium period at a point in time.
type EntitlementStatus struct {
	UserExternalID string
	Active         bool
	Start          *time.Time
	End            *time.Time
	// RemainingDays counts whole days left; zero once lapsed. Unbounded
	// entitlements report zero with a nil End.
	RemainingDays int
}

// StatusAt derives the entitlement status at now.
func (u *User) StatusAt(now time.Time) EntitlementStatus {
	status := EntitlementStatus{
		UserExternalID: u.ExternalID,
		Start:          u.EntitlementStart,
		End:            u.EntitlementEnd,
	}
	if !u.Entitled {
		return status
	}
	if u.EntitlementEnd == nil {
		status.Active = true
		return status
	}
	if left := u.EntitlementEnd.Sub(now); left > 0 {
		status.Active = true
		status.RemainingDays = int(left / (24 * time.Hour))
	}
	return status
}
