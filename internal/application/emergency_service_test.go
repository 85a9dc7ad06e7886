package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmergencyStrictPolicyDebitsAndCoolsDown(t *testing.T) {
	t.Parallel()

	e := newTestEngine(100)
	ctx := context.Background()

	_, err := e.emergency.SetPolicy(ctx, "strict")
	require.NoError(t, err)

	session, err := e.emergency.Start(ctx, EmergencyStartCommand{
		Destination:   "bank.example",
		Justification: " pay rent ",
		URL:           "https://bank.example/transfer#top",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(85), e.balance())
	assert.Equal(t, domain.SessionEmergency, session.Mode)
	assert.Equal(t, "pay rent", session.Justification)
	assert.Equal(t, "https://bank.example/transfer", session.AllowedURL)
	assert.True(t, session.Timed)
	assert.InDelta(t, 300, session.RemainingSeconds, 1e-9)

	require.Len(t, e.consumption.entries, 1)
	entry := e.consumption.entries[0]
	assert.Equal(t, domain.EmergencyPolicyStrict, entry.PolicyID)
	assert.Equal(t, int64(15), entry.DebtCoins)
	assert.Equal(t, 5*time.Minute, entry.Duration)
	assert.NotEmpty(t, entry.ID)

	_, err = e.emergency.Start(ctx, EmergencyStartCommand{Destination: "other.example"})
	require.ErrorIs(t, err, domain.ErrCooldownActive)
	var cooldown *domain.CooldownError
	require.True(t, errors.As(err, &cooldown))
	assert.Equal(t, e.clock.Now().Add(time.Hour), cooldown.Until)
	assert.Equal(t, int64(85), e.balance())
	assert.True(t, IsPolicyRejection(err))
}

func TestEmergencyOffPolicyRejects(t *testing.T) {
	t.Parallel()

	e := newTestEngine(100)
	ctx := context.Background()

	_, err := e.emergency.SetPolicy(ctx, "off")
	require.NoError(t, err)

	_, err = e.emergency.Start(ctx, EmergencyStartCommand{Destination: "bank.example"})
	require.ErrorIs(t, err, domain.ErrEmergencyDisabled)
	assert.Empty(t, e.paywall.ListSessions())
	assert.Equal(t, 0, e.emergencyDB.usage.TokensUsed)
}

func TestEmergencyDailyLimitResetsNextDay(t *testing.T) {
	t.Parallel()

	e := newTestEngine(100)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := e.emergency.Start(ctx, EmergencyStartCommand{Destination: "bank.example"})
		require.NoError(t, err, "start %d", i)
		_, err = e.paywall.EndSession(ctx, "bank.example", domain.EndReasonEnded, EndSessionOptions{})
		require.NoError(t, err)
		e.clock.Advance(31 * time.Minute)
	}
	assert.Equal(t, int64(85), e.balance())

	_, err := e.emergency.Start(ctx, EmergencyStartCommand{Destination: "bank.example"})
	require.ErrorIs(t, err, domain.ErrDailyLimitReached)

	status, err := e.emergency.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.TokensLeft)

	e.clock.Advance(14 * time.Hour)
	_, err = e.emergency.Start(ctx, EmergencyStartCommand{Destination: "bank.example"})
	require.NoError(t, err)
	assert.Equal(t, 1, e.emergencyDB.usage.TokensUsed)
}

func TestEmergencyDebtFloorsBalanceAtZero(t *testing.T) {
	t.Parallel()

	e := newTestEngine(2)

	_, err := e.emergency.Start(context.Background(), EmergencyStartCommand{Destination: "bank.example"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), e.balance())
}

func TestEmergencyConflictDoesNotConsumeToken(t *testing.T) {
	t.Parallel()

	e := newTestEngine(100)
	ctx := context.Background()

	_, err := e.paywall.StartMetered(ctx, StartMeteredCommand{Destination: "bank.example", EffectiveRate: 2})
	require.NoError(t, err)

	_, err = e.emergency.Start(ctx, EmergencyStartCommand{Destination: "bank.example"})
	require.ErrorIs(t, err, domain.ErrSessionConflict)
	assert.Equal(t, 0, e.emergencyDB.usage.TokensUsed)
	assert.Equal(t, int64(100), e.balance())
}

func TestEmergencyStatusUsesConfiguredDefault(t *testing.T) {
	t.Parallel()

	e := newTestEngine(100)

	status, err := e.emergency.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.EmergencyPolicyBalanced, status.Policy.ID)
	assert.Equal(t, 3, status.TokensLeft)
	assert.False(t, status.CoolingDown)

	_, err = e.emergency.SetPolicy(context.Background(), "lenient")
	require.ErrorIs(t, err, domain.ErrUnknownPolicy)
}
