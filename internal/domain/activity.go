package domain

import (
	"fmt"
	"strings"
	"time"
)

type ActivityCategory string

const (
	CategoryProductive ActivityCategory = "productive"
	CategoryNeutral    ActivityCategory = "neutral"
	CategoryFrivolity  ActivityCategory = "frivolity"
	CategoryDraining   ActivityCategory = "draining"
	CategoryIdle       ActivityCategory = "idle"
)

func ParseActivityCategory(raw string) (ActivityCategory, error) {
	category := ActivityCategory(strings.ToLower(strings.TrimSpace(raw)))
	switch category {
	case CategoryProductive, CategoryNeutral, CategoryFrivolity, CategoryDraining, CategoryIdle:
		return category, nil
	default:
		return "", fmt.Errorf("unknown activity category %q", raw)
	}
}

// ActivityReport is one classifier observation; each report fully replaces the previous one.
type ActivityReport struct {
	Timestamp   time.Time
	Category    ActivityCategory
	Destination string
	App         string
	URL         string
}

type EconomyState struct {
	ActiveCategory    ActivityCategory `json:"activeCategory"`
	ActiveDestination string           `json:"activeDestination"`
	ActiveApp         string           `json:"activeApp"`
	ActiveURL         string           `json:"activeUrl"`
	LastUpdatedAt     time.Time        `json:"lastUpdatedAt"`
	NeutralClockedIn  bool             `json:"neutralClockedIn"`
}

func (s EconomyState) IsStale(now time.Time, maxAge time.Duration) bool {
	if s.LastUpdatedAt.IsZero() {
		return true
	}
	if maxAge <= 0 {
		return false
	}
	return now.Sub(s.LastUpdatedAt) > maxAge
}

// Target returns the destination and URL that sessions may consume time on,
// or empty strings when the report is stale or idle.
func (s EconomyState) Target(now time.Time, maxAge time.Duration) (string, string) {
	if s.IsStale(now, maxAge) || s.ActiveCategory == CategoryIdle {
		return "", ""
	}
	return s.ActiveDestination, s.ActiveURL
}

func (s EconomyState) Earns() bool {
	switch s.ActiveCategory {
	case CategoryProductive:
		return true
	case CategoryNeutral:
		return s.NeutralClockedIn
	default:
		return false
	}
}
