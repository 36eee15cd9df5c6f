package workflow

import (
	"errors"
	"fmt"

	"github.com/example/pofinance/internal/backend"
	"github.com/example/pofinance/internal/ledger"
	"github.com/example/pofinance/internal/store"
	"github.com/example/pofinance/internal/wallet"
)

// ValidationError describes input rejected locally, before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// FailureKind classifies an operation outcome so callers can report a
// specific, distinguishable reason. Every user-initiated action resolves to
// success or exactly one of these; nothing fails silently.
type FailureKind int

const (
	KindNone FailureKind = iota
	// KindUserInputInvalid: local validation failed; no network call was made.
	KindUserInputInvalid
	// KindNoWallet: the operation needs a connected account and none exists.
	KindNoWallet
	// KindUserDeclined: the signer rejected the transaction.
	KindUserDeclined
	// KindNetworkUnavailable: ledger RPC or backend unreachable; retryable.
	KindNetworkUnavailable
	// KindLedgerRejected: the contract reverted; terminal for this attempt.
	KindLedgerRejected
	// KindBackendConflict: benign conflict such as an already-pending loan.
	KindBackendConflict
	// KindNotFound: the referenced entity does not exist.
	KindNotFound
	// KindPartialSync: one refresh source failed; data is stale, not lost.
	KindPartialSync
	// KindInternal: anything the taxonomy does not cover.
	KindInternal
)

// Classify maps an error from any workflow operation to its failure kind.
func Classify(err error) FailureKind {
	if err == nil {
		return KindNone
	}

	var validationErr *ValidationError
	var revertErr *ledger.RevertError
	var partialErr *store.PartialSyncError
	switch {
	case errors.As(err, &validationErr):
		return KindUserInputInvalid
	case errors.Is(err, wallet.ErrNoWalletConnected):
		return KindNoWallet
	case errors.Is(err, wallet.ErrRejectedByUser):
		return KindUserDeclined
	case errors.As(err, &revertErr), errors.Is(err, ledger.ErrConfirmTimeout):
		return KindLedgerRejected
	case errors.Is(err, ledger.ErrRPCUnavailable), errors.Is(err, backend.ErrUnreachable):
		return KindNetworkUnavailable
	case backend.IsConflict(err):
		return KindBackendConflict
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, backend.ErrNotFound):
		return KindNotFound
	case errors.As(err, &partialErr):
		return KindPartialSync
	default:
		return KindInternal
	}
}

// Retryable reports whether the failure may succeed on a plain retry. No
// operation retries automatically; this informs what to tell the user.
func (k FailureKind) Retryable() bool {
	return k == KindNetworkUnavailable || k == KindPartialSync
}
