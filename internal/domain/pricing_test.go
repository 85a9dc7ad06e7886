package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackChainMultiplier(t *testing.T) {
	tests := []struct {
		chain int
		want  float64
	}{
		{chain: 0, want: 1.0},
		{chain: 1, want: 1.35},
		{chain: 2, want: 1.75},
		{chain: 3, want: 2.35},
		{chain: 9, want: 2.35},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, PackChainMultiplier(tt.chain), 1e-9, "chain %d", tt.chain)
	}
}

func TestPackPrice(t *testing.T) {
	assert.Equal(t, int64(40), PackPrice(40, 0, ColorFull))
	assert.Equal(t, int64(54), PackPrice(40, 1, ColorFull))
	assert.Equal(t, int64(22), PackPrice(40, 0, ColorGreyscale))
	assert.Equal(t, int64(38), PackPrice(40, 1, ColorRedscale))
	assert.Equal(t, int64(1), PackPrice(1, 0, ColorGreyscale))
}

func TestMeteredRate(t *testing.T) {
	assert.InDelta(t, 7.0, MeteredRate(2, ColorFull), 1e-9)
	assert.InDelta(t, 3.85, MeteredRate(2, ColorGreyscale), 1e-9)
}

func TestParseColorFilter(t *testing.T) {
	filter, err := ParseColorFilter("")
	require.NoError(t, err)
	assert.Equal(t, ColorFull, filter)

	filter, err = ParseColorFilter("Grayscale")
	require.NoError(t, err)
	assert.Equal(t, ColorGreyscale, filter)

	_, err = ParseColorFilter("sepia")
	require.Error(t, err)
}

func TestEmergencyPolicyPresets(t *testing.T) {
	strict, err := LookupEmergencyPolicy("strict")
	require.NoError(t, err)
	assert.Equal(t, 1, strict.DailyTokens)
	assert.Equal(t, 60*time.Minute, strict.Cooldown)
	assert.Equal(t, int64(15), strict.DebtCoins)
	assert.True(t, strict.TokensExhausted(1))

	gentle, err := LookupEmergencyPolicy("gentle")
	require.NoError(t, err)
	assert.False(t, gentle.TokensExhausted(1000))

	off, err := LookupEmergencyPolicy("off")
	require.NoError(t, err)
	assert.False(t, off.Allowed)

	_, err = LookupEmergencyPolicy("lenient")
	require.ErrorIs(t, err, ErrUnknownPolicy)

	assert.Len(t, EmergencyPolicyIDs(), 4)
}

func TestEmergencyUsageRoll(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 23, 0, 0, 0, time.Local)
	usage := EmergencyUsage{Day: day1.Format("2006-01-02"), TokensUsed: 2, CooldownUntil: day1.Add(90 * time.Minute)}

	same := usage.Roll(day1.Add(30 * time.Minute))
	assert.Equal(t, 2, same.TokensUsed)

	next := usage.Roll(day1.Add(2 * time.Hour))
	assert.Equal(t, 0, next.TokensUsed)
	assert.Equal(t, usage.CooldownUntil, next.CooldownUntil)
	assert.False(t, next.CoolingDown(day1.Add(2*time.Hour)))
	assert.True(t, usage.CoolingDown(day1.Add(time.Hour)))
}
