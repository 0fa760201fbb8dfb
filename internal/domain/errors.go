package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrLevelParse       = errors.New("malformed level")
	ErrInvalidTarget    = errors.New("target notional must be positive")
	ErrInvalidOrderbook = errors.New("invalid orderbook")
	ErrInvalidMarket    = errors.New("invalid market id")
	ErrRateLimited      = errors.New("rate limited")
	ErrNoCredentials    = errors.New("no credentials configured")
	ErrLockHeld         = errors.New("lock already held")
)
