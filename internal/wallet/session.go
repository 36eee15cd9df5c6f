package wallet

import (
	"context"
	"fmt"
	"sync"
)

// Session tracks the connected account for the lifetime of the client.
// Connect is the only update point; there is no programmatic disconnect.
// Components that need the active account receive the session explicitly
// rather than reading ambient global state.
type Session struct {
	signer Signer

	mu      sync.RWMutex
	address string
}

// NewSession creates a session with no connected account.
func NewSession(signer Signer) *Session {
	return &Session{signer: signer}
}

// Connect asks the signer for account access and records the first account
// it grants. Calling Connect again re-reads the signer's active account.
func (s *Session) Connect(ctx context.Context) (string, error) {
	accounts, err := s.signer.RequestAccounts(ctx)
	if err != nil {
		return "", fmt.Errorf("wallet access request failed: %w", err)
	}
	if len(accounts) == 0 {
		return "", ErrNoWalletConnected
	}

	s.mu.Lock()
	s.address = accounts[0]
	s.mu.Unlock()

	return accounts[0], nil
}

// Address returns the connected account, or empty if none is connected.
func (s *Session) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// Connected reports whether an account is available for signing.
func (s *Session) Connected() bool {
	return s.Address() != ""
}

// Signer returns the signer backing this session.
func (s *Session) Signer() Signer {
	return s.signer
}
