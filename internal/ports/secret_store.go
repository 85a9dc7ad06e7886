package ports

import (
	"context"
	"errors"
)

// ErrSecretNotFound is wrapped by every SecretStore when a key has no value.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore holds sync pairing tokens.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
