package backend

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus is the backend-owned loan state, distinct from the ledger's PO
// status machine.
type LoanStatus string

const (
	LoanPending         LoanStatus = "Pending"
	LoanApproved        LoanStatus = "Approved"
	LoanPartialApproval LoanStatus = "Partial Approval"
	LoanRejected        LoanStatus = "Rejected"
	LoanRepaid          LoanStatus = "Repaid"
)

// Terminal reports whether the loan can no longer change state.
func (s LoanStatus) Terminal() bool {
	return s == LoanRejected || s == LoanRepaid
}

// Funded reports whether capital was extended for the loan.
func (s LoanStatus) Funded() bool {
	return s == LoanApproved || s == LoanPartialApproval
}

// Loan is a funding request tracked off chain against a PO. RiskScore is set
// once by the risk model and immutable afterwards from this client's view.
type Loan struct {
	ID            int64           `json:"id"`
	POID          uint64          `json:"po_id"`
	VendorAddress string          `json:"vendor_address"`
	Amount        decimal.Decimal `json:"amount"`
	RiskScore     float64         `json:"risk_score"`
	Status        LoanStatus      `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
}

// AggregateStats is the backend's derived dashboard snapshot. The client
// never recomputes or interpolates these values locally.
type AggregateStats struct {
	TotalCapital decimal.Decimal `json:"total_capital"`
	FinancedPOs  int             `json:"financed_pos"`
	AverageRisk  float64         `json:"average_risk"`
}

// PurchaseOrderRecord is the backend's relay of a raw contract record. The
// amount stays in the ledger's scaled-integer encoding; only the ledger
// gateway may interpret it.
type PurchaseOrderRecord struct {
	ID            uint64      `json:"id"`
	Buyer         string      `json:"buyer"`
	Vendor        string      `json:"vendor"`
	Amount        json.Number `json:"amount"`
	DeliveryDate  int64       `json:"deliveryDate"`
	GoodsCategory string      `json:"goodsCategory"`
	Status        uint8       `json:"status"`
}
