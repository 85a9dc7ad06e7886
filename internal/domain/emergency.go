package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type EmergencyPolicyID string

const (
	EmergencyPolicyOff      EmergencyPolicyID = "off"
	EmergencyPolicyGentle   EmergencyPolicyID = "gentle"
	EmergencyPolicyBalanced EmergencyPolicyID = "balanced"
	EmergencyPolicyStrict   EmergencyPolicyID = "strict"
)

// UnlimitedTokens marks a policy without a daily cap.
const UnlimitedTokens = -1

type EmergencyPolicy struct {
	ID          EmergencyPolicyID
	Allowed     bool
	DailyTokens int
	Cooldown    time.Duration
	DebtCoins   int64
	Duration    time.Duration
	LockURL     bool
}

var emergencyPolicies = map[EmergencyPolicyID]EmergencyPolicy{
	EmergencyPolicyOff: {
		ID: EmergencyPolicyOff,
	},
	EmergencyPolicyGentle: {
		ID:          EmergencyPolicyGentle,
		Allowed:     true,
		DailyTokens: UnlimitedTokens,
		Cooldown:    10 * time.Minute,
		Duration:    15 * time.Minute,
	},
	EmergencyPolicyBalanced: {
		ID:          EmergencyPolicyBalanced,
		Allowed:     true,
		DailyTokens: 3,
		Cooldown:    30 * time.Minute,
		DebtCoins:   5,
		Duration:    10 * time.Minute,
	},
	EmergencyPolicyStrict: {
		ID:          EmergencyPolicyStrict,
		Allowed:     true,
		DailyTokens: 1,
		Cooldown:    60 * time.Minute,
		DebtCoins:   15,
		Duration:    5 * time.Minute,
		LockURL:     true,
	},
}

func LookupEmergencyPolicy(id string) (EmergencyPolicy, error) {
	policy, ok := emergencyPolicies[EmergencyPolicyID(strings.ToLower(strings.TrimSpace(id)))]
	if !ok {
		return EmergencyPolicy{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, id)
	}
	return policy, nil
}

func EmergencyPolicyIDs() []EmergencyPolicyID {
	ids := make([]EmergencyPolicyID, 0, len(emergencyPolicies))
	for id := range emergencyPolicies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (p EmergencyPolicy) TokensExhausted(used int) bool {
	return p.DailyTokens != UnlimitedTokens && used >= p.DailyTokens
}

const usageDayLayout = "2006-01-02"

type EmergencyUsage struct {
	Day           string
	TokensUsed    int
	CooldownUntil time.Time
}

// Roll resets the token count when the local calendar day of now differs.
func (u EmergencyUsage) Roll(now time.Time) EmergencyUsage {
	today := now.Format(usageDayLayout)
	if u.Day == today {
		return u
	}
	return EmergencyUsage{Day: today, CooldownUntil: u.CooldownUntil}
}

func (u EmergencyUsage) CoolingDown(now time.Time) bool {
	return now.Before(u.CooldownUntil)
}

// ConsumptionEntry is a write-only audit record of an emergency grant.
type ConsumptionEntry struct {
	ID            string
	Timestamp     time.Time
	Destination   string
	PolicyID      EmergencyPolicyID
	Duration      time.Duration
	DebtCoins     int64
	Justification string
	AllowedURL    string
}
