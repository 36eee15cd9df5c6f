package wallet

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRejectedByUser is returned when the signer declines a transaction.
	ErrRejectedByUser = errors.New("transaction rejected by user")
	// ErrNoWalletConnected is returned when an operation requires an active
	// account and none is connected.
	ErrNoWalletConnected = errors.New("no wallet connected")
)

// TxEnvelope is the unsigned form of a contract call submitted to the ledger.
type TxEnvelope struct {
	From     string `json:"from"`
	Contract string `json:"contract"`
	Method   string `json:"method"`
	Params   []any  `json:"params"`
	Nonce    string `json:"nonce"`
}

// SignedTx is a transaction envelope plus the signature the ledger node
// verifies before execution.
type SignedTx struct {
	TxEnvelope
	Signature string `json:"signature"`
}

// Signer is the wallet boundary: it exposes zero or one active account and
// signs transaction envelopes on behalf of that account.
type Signer interface {
	RequestAccounts(ctx context.Context) ([]string, error)
	SignTransaction(ctx context.Context, tx TxEnvelope) (*SignedTx, error)
}

// LocalSigner signs with an HMAC key held in process. It stands in for an
// external wallet in development and tests.
type LocalSigner struct {
	address string
	key     []byte
}

// NewLocalSigner creates a signer holding a single account.
func NewLocalSigner(address string, key []byte) *LocalSigner {
	return &LocalSigner{address: address, key: key}
}

// RequestAccounts returns the signer's account, if configured.
func (s *LocalSigner) RequestAccounts(ctx context.Context) ([]string, error) {
	if s.address == "" {
		return nil, nil
	}
	return []string{s.address}, nil
}

// SignTransaction signs the canonical JSON encoding of the envelope. The
// signer refuses envelopes for accounts it does not hold.
func (s *LocalSigner) SignTransaction(ctx context.Context, tx TxEnvelope) (*SignedTx, error) {
	if !strings.EqualFold(tx.From, s.address) {
		return nil, fmt.Errorf("account %s not held by signer: %w", tx.From, ErrRejectedByUser)
	}

	payload, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)

	return &SignedTx{
		TxEnvelope: tx,
		Signature:  hex.EncodeToString(mac.Sum(nil)),
	}, nil
}
