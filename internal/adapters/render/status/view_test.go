package status

import (
	"testing"
	"time"

	"github.com/bnema/focuscoin/internal/application"
	"github.com/bnema/focuscoin/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func balancedEmergency(tokensLeft int) application.EmergencyStatus {
	policy, _ := domain.LookupEmergencyPolicy("balanced")
	return application.EmergencyStatus{Policy: policy, TokensLeft: tokensLeft}
}

func TestRenderEmptyWallet(t *testing.T) {
	output, err := Render(application.Status{
		DeviceID:  "laptop",
		Wallet:    domain.WalletSnapshot{Balance: 1},
		Emergency: balancedEmergency(3),
	}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "Focus Wallet")
	assert.Contains(t, output, "device: laptop")
	assert.Contains(t, output, "1 coin")
	assert.Contains(t, output, "No active sessions.")
	assert.Contains(t, output, "emergency: balanced")
	assert.Contains(t, output, "tokens left: 3/3")
	assert.NotContains(t, output, "recent transactions")
}

func TestRenderSessions(t *testing.T) {
	output, err := Render(application.Status{
		Wallet: domain.WalletSnapshot{Balance: 85},
		Sessions: []domain.Session{
			{
				Destination:      "video.example",
				Mode:             domain.SessionPack,
				Timed:            true,
				RemainingSeconds: 300,
				PurchasedSeconds: 600,
				PackChainCount:   1,
				Paused:           true,
			},
			{
				Destination:   "x.com",
				Mode:          domain.SessionMetered,
				RatePerMinute: 7,
				TotalCharged:  12,
			},
			{
				Destination:      "bank.example",
				Mode:             domain.SessionEmergency,
				Justification:    "pay rent",
				AllowedURL:       "https://bank.example/transfer",
				Timed:            true,
				RemainingSeconds: 3725,
				Held:             true,
				Paused:           true,
			},
		},
		Emergency: balancedEmergency(2),
	}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "85 coins")
	assert.Contains(t, output, "sessions: 3")
	assert.Contains(t, output, "(pack, chain 1)")
	assert.Contains(t, output, "[==========----------]")
	assert.Contains(t, output, "5:00 left")
	assert.Contains(t, output, "[paused]")
	assert.Contains(t, output, "7.00 coins/min, charged 12")
	assert.Contains(t, output, `"pay rent"`)
	assert.Contains(t, output, "locked to https://bank.example/transfer")
	assert.Contains(t, output, "1:02:05 left")
	assert.Contains(t, output, "[held]")
}

func TestRenderEmergencyCooldownAndDisabled(t *testing.T) {
	strict, _ := domain.LookupEmergencyPolicy("strict")
	output, err := Render(application.Status{
		Emergency: application.EmergencyStatus{
			Policy:         strict,
			CoolingDown:    true,
			CooldownLeftMs: (90 * time.Second).Milliseconds(),
		},
	}, RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, output, "tokens left: 0/1")
	assert.Contains(t, output, "cooldown: 1:30")

	off, _ := domain.LookupEmergencyPolicy("off")
	output, err = Render(application.Status{
		Emergency: application.EmergencyStatus{Policy: off},
	}, RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, output, "Emergency access is disabled.")
}

func TestRenderRecentTransactions(t *testing.T) {
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.Local)

	output, err := Render(application.Status{
		Transactions: []domain.Transaction{
			{Timestamp: now.Add(-3 * time.Hour), Kind: domain.TransactionEarn, Amount: 1, Meta: map[string]string{domain.MetaReason: "productive"}},
			{Timestamp: now.Add(-2 * time.Hour), Kind: domain.TransactionSpend, Amount: 40, Meta: map[string]string{
				domain.MetaReason:      "pack",
				domain.MetaDestination: "video.example",
			}},
			{Timestamp: now.Add(-time.Hour), Kind: domain.TransactionAdjust, Amount: -5, Origin: "desktop"},
		},
		Emergency: balancedEmergency(3),
	}, RenderOptions{Now: now, Transactions: 2})

	require.NoError(t, err)
	assert.Contains(t, output, "recent transactions")
	assert.NotContains(t, output, "productive")
	assert.Contains(t, output, "09:00")
	assert.Contains(t, output, "-40")
	assert.Contains(t, output, "video.example")
	assert.Contains(t, output, "@desktop")
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "0:00", formatRemaining(-1))
	assert.Equal(t, "0:01", formatRemaining(0.2))
	assert.Equal(t, "10:00", formatRemaining(600))
	assert.Equal(t, "1:00:00", formatRemaining(3600))
}
