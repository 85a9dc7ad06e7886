// Package chain layers the pass store over the file store. Tokens live in
// pass when it works. The file copy is only read while pass cannot serve a key,
// and is retired once pass holds it.
package chain

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/bnema/focuscoin/internal/adapters/secrets/file"
	passstore "github.com/bnema/focuscoin/internal/adapters/secrets/pass"
	"github.com/bnema/focuscoin/internal/ports"
)

type Store struct {
	primary  ports.SecretStore
	fallback ports.SecretStore
}

var _ ports.SecretStore = (*Store)(nil)

var errNilBackend = errors.New("secret store backend is nil")

func New(primary, fallback ports.SecretStore) (*Store, error) {
	if primary == nil || fallback == nil {
		return nil, errNilBackend
	}
	return &Store{primary: primary, fallback: fallback}, nil
}

func NewPassWithFileFallback(passPrefix, fileRoot string) (*Store, error) {
	return New(passstore.NewStore(passPrefix), filestore.NewStore(fileRoot))
}

// Get reads pass first. A token found only in the file store is moved into
// pass when pass is reachable but lacks it.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.primary.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if isContextErr(err) {
		return "", err
	}

	value, fallbackErr := s.fallback.Get(ctx, key)
	if fallbackErr != nil {
		if errors.Is(err, ports.ErrSecretNotFound) && errors.Is(fallbackErr, ports.ErrSecretNotFound) {
			return "", fmt.Errorf("get %s: %w", key, ports.ErrSecretNotFound)
		}
		return "", fmt.Errorf("pass get failed: %w; file get failed: %w", err, fallbackErr)
	}

	if errors.Is(err, ports.ErrSecretNotFound) {
		if promoteErr := s.primary.Put(ctx, key, value); promoteErr == nil {
			_ = s.dropFallback(ctx, key)
		}
	}
	return value, nil
}

// Put writes to pass and removes any file copy so an older token cannot be
// served after a rotation. The file store takes the write when pass fails.
func (s *Store) Put(ctx context.Context, key string, value string) error {
	err := s.primary.Put(ctx, key, value)
	if err == nil {
		if dropErr := s.dropFallback(ctx, key); dropErr != nil {
			return fmt.Errorf("remove stale file copy of %s: %w", key, dropErr)
		}
		return nil
	}
	if isContextErr(err) {
		return err
	}

	if fallbackErr := s.fallback.Put(ctx, key, value); fallbackErr != nil {
		return fmt.Errorf("pass put failed: %w; file put failed: %w", err, fallbackErr)
	}
	return nil
}

// Delete removes key from both backends. A key missing from either is not an
// error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.primary.Delete(ctx, key)
	if isContextErr(err) {
		return err
	}
	if errors.Is(err, ports.ErrSecretNotFound) {
		err = nil
	}
	return errors.Join(err, s.dropFallback(ctx, key))
}

func (s *Store) dropFallback(ctx context.Context, key string) error {
	if err := s.fallback.Delete(ctx, key); err != nil && !errors.Is(err, ports.ErrSecretNotFound) {
		return err
	}
	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
