package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrEmergencyDisabled  = errors.New("emergency access disabled")
	ErrCooldownActive     = errors.New("emergency cooldown active")
	ErrDailyLimitReached  = errors.New("emergency daily limit reached")
	ErrSessionConflict    = errors.New("session already active for destination")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionChanged     = errors.New("session changed by another writer")
	ErrRateNotConfigured  = errors.New("market rate not configured")
	ErrPackNotFound       = errors.New("pack not offered for destination")
	ErrDuplicateSyncID    = errors.New("transaction sync id already recorded")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrUnknownPolicy      = errors.New("unknown emergency policy")
	ErrInvalidDestination = errors.New("destination is required")
	ErrInvalidMarketRate  = errors.New("invalid market rate")
)

// CooldownError reports when the emergency cooldown lifts.
type CooldownError struct {
	Until time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s until %s", ErrCooldownActive, e.Until.Format(time.RFC3339))
}

func (e *CooldownError) Unwrap() error {
	return ErrCooldownActive
}
