package domain

import "time"

type EventType string

const (
	EventWalletUpdated   EventType = "wallet-updated"
	EventSessionStarted  EventType = "session-started"
	EventSessionPaused   EventType = "session-paused"
	EventSessionResumed  EventType = "session-resumed"
	EventSessionEnded    EventType = "session-ended"
	EventSessionReminder EventType = "session-reminder"
	EventPaywallRequired EventType = "paywall-required"
)

// Event is the only shape published to UI and transport subscribers. Fields
// not relevant to Type are left zero.
type Event struct {
	Type          EventType       `json:"type"`
	At            time.Time       `json:"at"`
	Destination   string          `json:"destination,omitempty"`
	Wallet        *WalletSnapshot `json:"wallet,omitempty"`
	Transaction   *Transaction    `json:"transaction,omitempty"`
	Session       *Session        `json:"session,omitempty"`
	Reason        EndReason       `json:"reason,omitempty"`
	Refund        int64           `json:"refund,omitempty"`
	Justification string          `json:"justification,omitempty"`
	URL           string          `json:"url,omitempty"`
}
