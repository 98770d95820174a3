// Package ratelimit implements a request budget shared through Redis.
// Every screener process pointed at the same Redis draws page requests from
// one fixed window, so concurrent retrievals stay within the service's
// tolerated request rate.
package ratelimit

import (
	"time"
)

// NearLimitRatio is the share of the window budget above which the tracker
// logs warnings.
const NearLimitRatio = 0.8

// BudgetState is a snapshot of the current request window.
type BudgetState struct {
	// Used is the number of requests counted in the current window.
	Used int `json:"used"`

	// Limit is the number of requests allowed per window.
	Limit int `json:"limit"`

	// ResetAt is when the current window expires.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this snapshot was read from Redis.
	LastUpdate time.Time `json:"last_update"`
}

// Remaining returns the number of requests left in the window, never negative.
func (s *BudgetState) Remaining() int {
	if s.Used >= s.Limit {
		return 0
	}
	return s.Limit - s.Used
}

// Exhausted reports whether the next request has to wait for the window reset.
func (s *BudgetState) Exhausted() bool {
	return s.Used >= s.Limit
}

// NearLimit reports whether usage crossed NearLimitRatio without exhausting
// the window.
func (s *BudgetState) NearLimit() bool {
	return !s.Exhausted() && float64(s.Used) >= float64(s.Limit)*NearLimitRatio
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *BudgetState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// IsStale returns true if the snapshot is older than maxAge.
func (s *BudgetState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}
