package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// POStatus is the ledger-owned purchase order state. The client never assigns
// a status; it only observes the value recorded on chain.
type POStatus uint8

const (
	StatusCreated POStatus = iota
	StatusFinanced
	StatusDelivered
	StatusClosed
)

// String returns the display name of the status.
func (s POStatus) String() string {
	switch s {
	case StatusCreated:
		return "Created"
	case StatusFinanced:
		return "Financed"
	case StatusDelivered:
		return "Delivered"
	case StatusClosed:
		return "Closed"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// Valid reports whether the status is one the contract can record.
func (s POStatus) Valid() bool {
	return s <= StatusClosed
}

// AllowedTransitions defines the status transitions the contract performs.
// The client uses this table only to flag observations that should be
// impossible; the contract remains the authority.
func AllowedTransitions() map[POStatus][]POStatus {
	return map[POStatus][]POStatus{
		StatusCreated:   {StatusFinanced, StatusDelivered, StatusClosed},
		StatusFinanced:  {StatusDelivered, StatusClosed},
		StatusDelivered: {StatusClosed},
		StatusClosed:    {}, // Terminal state
	}
}

// IsValidTransition checks if a status transition is allowed by the contract.
func IsValidTransition(from, to POStatus) bool {
	for _, allowed := range AllowedTransitions()[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// PurchaseOrder is the application view of an on-chain PO record. Amount and
// DeliveryDate are already decoded from their ledger-native encodings; only
// Status changes after creation.
type PurchaseOrder struct {
	ID            uint64          `json:"id"`
	Buyer         string          `json:"buyer"`
	Vendor        string          `json:"vendor"`
	Amount        decimal.Decimal `json:"amount"`
	DeliveryDate  time.Time       `json:"delivery_date"`
	GoodsCategory string          `json:"goods_category"`
	Status        POStatus        `json:"status"`
}
