package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/pofinance/internal/backend"
)

// LoanRequester is the slice of the backend client the vendor flow uses.
type LoanRequester interface {
	RequestLoan(ctx context.Context, poID uint64) error
	RepayLoan(ctx context.Context, loanID int64) error
}

// VendorController orchestrates the vendor's funding actions. The PO id comes
// from the vendor-filtered view, so it belongs to the connected account by
// construction; the backend may still reject if that invariant is somehow
// violated, and the rejection is passed through.
type VendorController struct {
	backend LoanRequester
	store   Refresher
	logger  *slog.Logger
}

// NewVendorController creates the vendor workflow controller.
func NewVendorController(b LoanRequester, store Refresher, logger *slog.Logger) *VendorController {
	return &VendorController{backend: b, store: store, logger: logger}
}

// RequestFunding opens a loan request for a PO. The risk score is not known
// synchronously: the loan appears with a populated score on a later refresh.
// An already-pending request comes back as backend.ErrAlreadyRequested, which
// classification treats as benign rather than a hard failure; an unreachable
// backend is retryable but never retried automatically.
func (c *VendorController) RequestFunding(ctx context.Context, poID uint64) error {
	if err := c.backend.RequestLoan(ctx, poID); err != nil {
		if errors.Is(err, backend.ErrAlreadyRequested) {
			c.logger.Info("funding already pending", "po_id", poID)
		}
		return fmt.Errorf("request funding: %w", err)
	}

	if err := c.store.Refresh(ctx); err != nil {
		c.logger.Warn("refresh after funding request failed", "po_id", poID, "error", err)
	}

	c.logger.Info("funding requested", "po_id", poID)
	return nil
}

// RepayLoan settles a loan. Repaying an already-settled loan is a benign
// conflict, not a hard failure.
func (c *VendorController) RepayLoan(ctx context.Context, loanID int64) error {
	if err := c.backend.RepayLoan(ctx, loanID); err != nil {
		if errors.Is(err, backend.ErrAlreadyRepaid) {
			c.logger.Info("loan already repaid", "loan_id", loanID)
		}
		return fmt.Errorf("repay loan: %w", err)
	}

	if err := c.store.Refresh(ctx); err != nil {
		c.logger.Warn("refresh after repayment failed", "loan_id", loanID, "error", err)
	}

	c.logger.Info("loan repaid", "loan_id", loanID)
	return nil
}
