package models

import "time"

// Coin economy constants. The daily grant and the per-kind generation costs
// are fixed; they are not configurable at runtime.
const (
	DailyGrant      = 100
	RefreshInterval = 24 * time.Hour
)

// QR kinds a user can spend coins on.
const (
	KindPhoto = "photo"
	KindText  = "text"
	KindURL   = "url"
)

// User is the per-identity ledger record. ID is the identity provider's
// stable subject key, never generated locally. Coins is kept >= 0 by the
// store (CHECK constraint plus conditional updates); NextRefreshAt only
// moves forward.
type User struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Coins          int        `json:"coins"`
	NextRefreshAt  *time.Time `json:"next_refresh_at,omitempty"`
	IsAdmin        bool       `json:"is_admin"`
	TotalGenerated int        `json:"total_generated"`
	TotalSpent     int        `json:"total_spent"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
