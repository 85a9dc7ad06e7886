package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/focuscoin/internal/ports"
	"github.com/google/uuid"
)

const (
	serverTokenKey = "sync/server-token"
	peerTokenDir   = "sync/peers"
)

// PairingService manages the bearer tokens used by the sync bridge: one token
// this device accepts, and one token per peer it connects to.
type PairingService struct {
	store ports.SecretStore
}

func NewPairingService(store ports.SecretStore) *PairingService {
	return &PairingService{store: store}
}

// ServerToken returns the token this device accepts, creating it on first use.
func (s *PairingService) ServerToken(ctx context.Context) (string, error) {
	token, err := s.store.Get(ctx, serverTokenKey)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, ports.ErrSecretNotFound) {
		return "", fmt.Errorf("load server token: %w", err)
	}

	return s.RotateServerToken(ctx)
}

func (s *PairingService) RotateServerToken(ctx context.Context) (string, error) {
	token := uuid.NewString()
	if err := s.store.Put(ctx, serverTokenKey, token); err != nil {
		return "", fmt.Errorf("store server token: %w", err)
	}
	return token, nil
}

func (s *PairingService) PeerToken(ctx context.Context, peer string) (string, error) {
	key, err := peerTokenKey(peer)
	if err != nil {
		return "", err
	}

	token, err := s.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("load token for peer %s: %w", peer, err)
	}
	return token, nil
}

func (s *PairingService) SetPeerToken(ctx context.Context, peer, token string) error {
	key, err := peerTokenKey(peer)
	if err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("peer token is empty")
	}

	if err := s.store.Put(ctx, key, token); err != nil {
		return fmt.Errorf("store token for peer %s: %w", peer, err)
	}
	return nil
}

// ForgetPeer drops the token for peer. The peer's sync cursor is kept so a
// re-paired peer resumes where it left off.
func (s *PairingService) ForgetPeer(ctx context.Context, peer string) error {
	key, err := peerTokenKey(peer)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete token for peer %s: %w", peer, err)
	}
	return nil
}

func peerTokenKey(peer string) (string, error) {
	name := strings.TrimSpace(peer)
	if name == "" || strings.ContainsAny(name, "/\\") || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid peer name %q", peer)
	}
	return peerTokenDir + "/" + name, nil
}
