package model

import "time"

// Mode controls whether feed results are hidden until the viewer votes.
type Mode string

const (
	ModeLocal   Mode = "LOCAL"   // results hidden in the feed until voted
	ModeExplore Mode = "EXPLORE" // results always shown
)

// Toggle returns the other mode.
func (m Mode) Toggle() Mode {
	if m == ModeExplore {
		return ModeLocal
	}
	return ModeExplore
}

const RoleUser = "USER"

// User is a registered account. City is free text chosen at registration and
// copied onto every poll the user creates.
//
// PasswordHash is a bcrypt hash and is never serialised.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	City         string    `json:"city"`
	Mode         Mode      `json:"mode"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PublicProfile is what other users see about an account.
type PublicProfile struct {
	ID                     string         `json:"id"`
	Username               string         `json:"username"`
	City                   string         `json:"city"`
	TotalPollsCreatedCount int            `json:"totalPollsCreatedCount"`
	TotalPollsVotedCount   int            `json:"totalPollsVotedCount"`
	ActiveCities           []CityActivity `json:"activeCities"`
}

// CityActivity breaks a user's activity down by the city of the polls.
// Percentage is this city's share of created+voted polls across all cities.
type CityActivity struct {
	City              string  `json:"city"`
	PollsCreatedCount int     `json:"pollsCreatedCount"`
	PollsVotedCount   int     `json:"pollsVotedCount"`
	Percentage        float64 `json:"percentage"`
}
