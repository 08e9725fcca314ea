// Package store provides persistence backends for rate-limiter state so
// quota tracking survives process restarts.
package store

import "context"

// State is the persisted rate-limiter record. Reset fields are unix epoch
// seconds.
type State struct {
	DailyLimit      int   `json:"daily_limit"`
	DailyRemaining  int   `json:"daily_remaining"`
	HourlyLimit     int   `json:"hourly_limit"`
	HourlyRemaining int   `json:"hourly_remaining"`
	DailyReset      int64 `json:"daily_reset"`
	HourlyReset     int64 `json:"hourly_reset"`
}

// Store persists a single rate-limiter state record.
type Store interface {
	// Save writes the state, replacing any previous record.
	Save(ctx context.Context, s State) error

	// Load reads the state. found is false when nothing was persisted yet;
	// that is not an error.
	Load(ctx context.Context) (s State, found bool, err error)

	// Close releases any resources held by the store.
	Close() error
}
