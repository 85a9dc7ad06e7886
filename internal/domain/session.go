package domain

import (
	"math"
	"time"
)

type SessionMode string

const (
	SessionMetered   SessionMode = "metered"
	SessionPack      SessionMode = "pack"
	SessionEmergency SessionMode = "emergency"
	SessionStore     SessionMode = "store"
)

func (m SessionMode) Valid() bool {
	switch m {
	case SessionMetered, SessionPack, SessionEmergency, SessionStore:
		return true
	default:
		return false
	}
}

type EndReason string

const (
	EndReasonCompleted         EndReason = "completed"
	EndReasonCancelled         EndReason = "cancelled"
	EndReasonInsufficientFunds EndReason = "insufficient-funds"
	EndReasonEnded             EndReason = "ended"
)

// Session is an access grant for one destination. Untimed sessions
// (metered, store, open-ended emergency) have Timed=false and ignore
// RemainingSeconds.
type Session struct {
	Destination       string      `json:"destination"`
	Mode              SessionMode `json:"mode"`
	RatePerMinute     float64     `json:"ratePerMinute"`
	BaseRatePerMinute float64     `json:"baseRatePerMinute,omitempty"`
	Timed             bool        `json:"timed"`
	RemainingSeconds  float64     `json:"remainingSeconds"`
	Paused            bool        `json:"paused"`
	Held              bool        `json:"held"`
	SpendRemainder    float64     `json:"spendRemainder"`
	ColorFilter       ColorFilter `json:"colorFilter"`
	MeteredMultiplier float64     `json:"meteredMultiplier"`
	PackChainCount    int         `json:"packChainCount"`
	PurchasePrice     int64       `json:"purchasePrice,omitempty"`
	PurchasedSeconds  float64     `json:"purchasedSeconds,omitempty"`
	Justification     string      `json:"justification,omitempty"`
	AllowedURL        string      `json:"allowedUrl,omitempty"`
	TotalCharged      int64       `json:"totalCharged"`
	StartedAt         time.Time   `json:"startedAt"`
	LastReminderAt    time.Time   `json:"lastReminderAt,omitempty"`
	Revision          int64       `json:"-"`
}

func (s Session) URLLocked() bool {
	return s.AllowedURL != ""
}

func (s Session) MatchesURL(rawURL string) bool {
	if !s.URLLocked() {
		return true
	}
	return NormalizeURL(rawURL) == s.AllowedURL
}

// IsActiveFor reports whether ticks should consume time for this session.
func (s Session) IsActiveFor(activeDestination, activeURL string) bool {
	if activeDestination == "" || s.Destination != NormalizeDestination(activeDestination) {
		return false
	}
	return s.MatchesURL(activeURL)
}

func (s Session) HasTimeLeft() bool {
	if s.Mode == SessionMetered || !s.Timed {
		return true
	}
	return s.RemainingSeconds > 0
}

// RemainingDisplay returns the remaining seconds or +Inf for untimed sessions.
func (s Session) RemainingDisplay() float64 {
	if !s.Timed {
		return math.Inf(1)
	}
	return s.RemainingSeconds
}

// PackRefund pro-rates the purchase price over the unused share of the pack.
func (s Session) PackRefund() int64 {
	if s.Mode != SessionPack || s.PurchasedSeconds <= 0 || s.PurchasePrice <= 0 {
		return 0
	}

	unused := math.Min(math.Max(s.RemainingSeconds, 0), s.PurchasedSeconds)
	return int64(math.Round(float64(s.PurchasePrice) * unused / s.PurchasedSeconds))
}
