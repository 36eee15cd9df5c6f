package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/pofinance/internal/ledger"
	"github.com/example/pofinance/internal/wallet"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// RecognizedCategories are the goods categories accepted by default.
// Deployments may allow free-form labels instead.
func RecognizedCategories() []string {
	return []string{"Electronics", "Textiles", "Construction", "Food"}
}

// LedgerSubmitter is the slice of the ledger gateway the buyer flow uses.
type LedgerSubmitter interface {
	CreatePurchaseOrder(ctx context.Context, from, vendor string, amount decimal.Decimal, deliveryDate time.Time, goodsCategory string) (ledger.TxHandle, error)
	WaitForConfirmation(ctx context.Context, handle ledger.TxHandle) (*ledger.Receipt, error)
}

// Refresher triggers a reconciliation cycle after a confirmed mutation.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// SubmitOrderInput is the buyer's purchase order submission.
type SubmitOrderInput struct {
	Vendor        string
	Amount        decimal.Decimal
	DeliveryDate  time.Time
	GoodsCategory string
}

// BuyerController orchestrates the buyer's submit-PO action: validate, sign
// and submit, await confirmation, then refresh the reconciled view. The
// operation is all-or-nothing from the client's side; no local state is
// created before confirmation.
type BuyerController struct {
	ledger           LedgerSubmitter
	store            Refresher
	session          *wallet.Session
	freeFormCategory bool
	logger           *slog.Logger
	now              func() time.Time
}

// NewBuyerController creates the buyer workflow controller.
func NewBuyerController(l LedgerSubmitter, store Refresher, session *wallet.Session, freeFormCategory bool, logger *slog.Logger) *BuyerController {
	return &BuyerController{
		ledger:           l,
		store:            store,
		session:          session,
		freeFormCategory: freeFormCategory,
		logger:           logger,
		now:              time.Now,
	}
}

// SubmitOrder runs the full submit flow and returns the confirmation receipt.
// Validation happens before any network call; a missing wallet fails with
// wallet.ErrNoWalletConnected without touching the ledger.
func (c *BuyerController) SubmitOrder(ctx context.Context, in SubmitOrderInput) (*ledger.Receipt, error) {
	if err := c.validate(in); err != nil {
		return nil, err
	}

	from := c.session.Address()
	if from == "" {
		return nil, wallet.ErrNoWalletConnected
	}

	handle, err := c.ledger.CreatePurchaseOrder(ctx, from, in.Vendor, in.Amount, in.DeliveryDate, in.GoodsCategory)
	if err != nil {
		return nil, fmt.Errorf("submit purchase order: %w", err)
	}

	receipt, err := c.ledger.WaitForConfirmation(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("confirm purchase order: %w", err)
	}

	// The PO now exists on ledger regardless of what the refresh does; a
	// refresh failure surfaces as staleness, not as a failed submission.
	if err := c.store.Refresh(ctx); err != nil {
		c.logger.Warn("refresh after po submission failed", "tx", receipt.TxHash, "error", err)
	}

	c.logger.Info("purchase order submitted", "vendor", in.Vendor, "amount", in.Amount.String(), "tx", receipt.TxHash)
	return receipt, nil
}

func (c *BuyerController) validate(in SubmitOrderInput) error {
	if !addressPattern.MatchString(in.Vendor) {
		return &ValidationError{Field: "vendor", Reason: "not a well-formed account address"}
	}
	if !in.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be a positive, non-zero value"}
	}
	if in.Amount.Exponent() < -ledger.AmountScale {
		return &ValidationError{Field: "amount", Reason: fmt.Sprintf("more than %d fractional digits", ledger.AmountScale)}
	}
	if in.DeliveryDate.Before(startOfDay(c.now())) {
		return &ValidationError{Field: "delivery date", Reason: "must not be in the past"}
	}
	if in.GoodsCategory == "" {
		return &ValidationError{Field: "goods category", Reason: "is required"}
	}
	if !c.freeFormCategory && !recognizedCategory(in.GoodsCategory) {
		return &ValidationError{Field: "goods category", Reason: fmt.Sprintf("%q is not a recognized category", in.GoodsCategory)}
	}
	return nil
}

func recognizedCategory(category string) bool {
	for _, c := range RecognizedCategories() {
		if c == category {
			return true
		}
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
