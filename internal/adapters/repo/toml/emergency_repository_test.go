package toml

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmergencyRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "emergency.toml")
	config := viper.New()
	config.Set("emergency.path", path)
	repo, err := NewEmergencyRepository(config)
	require.NoError(t, err)
	ctx := context.Background()

	policy, err := repo.Policy(ctx)
	require.NoError(t, err)
	assert.Empty(t, policy)

	usage := domain.EmergencyUsage{
		Day:           "2026-03-02",
		TokensUsed:    1,
		CooldownUntil: time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.SaveUsage(ctx, usage))
	require.NoError(t, repo.SavePolicy(ctx, domain.EmergencyPolicyStrict))

	got, err := repo.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, usage.Day, got.Day)
	assert.Equal(t, 1, got.TokensUsed)
	assert.True(t, usage.CooldownUntil.Equal(got.CooldownUntil))

	policy, err = repo.Policy(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.EmergencyPolicyStrict, policy)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "version = 1")
	assert.Contains(t, string(data), "strict")
}

func TestEmergencyRepositoryFutureSchemaVersionReturnsError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "emergency.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = 2\n"), 0o600))

	config := viper.New()
	config.Set("emergency.path", path)
	repo, err := NewEmergencyRepository(config)
	require.NoError(t, err)

	_, err = repo.Usage(context.Background())
	require.ErrorContains(t, err, "unsupported emergency schema version")
}
