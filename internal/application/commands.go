package application

import (
	"time"

	"github.com/bnema/focuscoin/internal/domain"
)

type StartMeteredCommand struct {
	Destination       string
	EffectiveRate     float64
	MeteredMultiplier float64
	ColorFilter       domain.ColorFilter
}

type BuyPackCommand struct {
	Destination            string
	Minutes                int
	Price                  int64
	ColorFilter            domain.ColorFilter
	EffectiveRatePerMinute float64
}

type StartEmergencyCommand struct {
	Destination     string
	Justification   string
	DurationSeconds float64
	AllowedURL      string
}

type StartStoreCommand struct {
	Destination string
	Price       int64
	URL         string
}

type EndSessionOptions struct {
	RefundUnused bool
}

type EndSessionResult struct {
	Session domain.Session   `json:"session"`
	Reason  domain.EndReason `json:"reason"`
	Refund  int64            `json:"refund"`
}

type TickInput struct {
	IntervalSeconds   float64
	ActiveDestination string
	ActiveURL         string
	ReminderInterval  time.Duration
}

type TickSummary struct {
	Charged  int64
	Ended    []EndSessionResult
	Failures int
}

type EmergencyStartCommand struct {
	Destination   string
	Justification string
	URL           string
}
