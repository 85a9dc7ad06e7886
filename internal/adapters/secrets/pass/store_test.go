package pass

import (
	"context"
	"errors"
	"testing"

	"github.com/bnema/focuscoin/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutUsesPassInsert(t *testing.T) {
	t.Parallel()

	called := false
	store := &Store{
		prefix: "focuscoin",
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			called = true
			assert.Equal(t, context.Background(), ctx)
			assert.Equal(t, []string{"insert", "-m", "-f", "focuscoin/sync/server-token"}, args)
			assert.Equal(t, "top-secret\n", input)
			return "", "", nil
		},
	}

	err := store.Put(context.Background(), "sync/server-token", "top-secret")
	require.NoError(t, err)
	assert.True(t, called)
}

func TestStoreGetUsesPassShowAndTrimsTrailingNewline(t *testing.T) {
	t.Parallel()

	store := &Store{
		prefix: "focuscoin",
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			assert.Equal(t, []string{"show", "focuscoin/sync/server-token"}, args)
			assert.Empty(t, input)
			return "top-secret\n", "", nil
		},
	}

	value, err := store.Get(context.Background(), "sync/server-token")
	require.NoError(t, err)
	assert.Equal(t, "top-secret", value)
}

func TestStoreDeleteUsesPassRemove(t *testing.T) {
	t.Parallel()

	store := &Store{
		prefix: "focuscoin",
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			assert.Equal(t, []string{"rm", "-f", "focuscoin/sync/server-token"}, args)
			assert.Empty(t, input)
			return "", "", nil
		},
	}

	err := store.Delete(context.Background(), "sync/server-token")
	require.NoError(t, err)
}

func TestStoreGetReturnsClearError(t *testing.T) {
	t.Parallel()

	store := &Store{
		prefix: "focuscoin",
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			return "", "entry not found", errors.New("exit status 1")
		},
	}

	_, err := store.Get(context.Background(), "sync/server-token")
	require.Error(t, err)
	assert.ErrorContains(t, err, "pass get")
	assert.ErrorContains(t, err, "sync/server-token")
	assert.ErrorContains(t, err, "entry not found")
}

func TestStoreGetMissingEntryWrapsNotFound(t *testing.T) {
	t.Parallel()

	store := &Store{
		prefix: "focuscoin",
		run: func(ctx context.Context, input string, args ...string) (string, string, error) {
			return "", "Error: focuscoin/sync/server-token is not in the password store.", errors.New("exit status 1")
		},
	}

	_, err := store.Get(context.Background(), "sync/server-token")
	require.ErrorIs(t, err, ports.ErrSecretNotFound)
}

func TestNewStoreTrimsPrefixSlashes(t *testing.T) {
	t.Parallel()

	store := NewStore("/focuscoin/")
	assert.Equal(t, "focuscoin/sync/server-token", store.entry("sync/server-token"))
	assert.Equal(t, "sync/server-token", NewStore("").entry("sync/server-token"))
}
