package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrUnreachable is returned when the backend cannot be reached. The
	// client performs no automatic retry; callers decide.
	ErrUnreachable = errors.New("backend unreachable")
	// ErrNotFound is returned when the referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyRequested is returned when a PO already has an active loan.
	ErrAlreadyRequested = errors.New("loan already requested for purchase order")
	// ErrAlreadyRepaid is returned when a loan was already settled.
	ErrAlreadyRepaid = errors.New("loan already repaid")
)

// IsConflict reports whether err is a benign backend conflict rather than a
// hard failure.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyRequested) || errors.Is(err, ErrAlreadyRepaid)
}

// Client is a stateless wrapper over the off-chain financing REST API.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &Client{http: client}
}

// ListLoans fetches all loan records. The server defines the order and does
// not guarantee it is stable across calls.
func (c *Client) ListLoans(ctx context.Context) ([]Loan, error) {
	var loans []Loan
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&loans).
		Get("/loans")
	if err != nil {
		return nil, fmt.Errorf("list loans: %v: %w", err, ErrUnreachable)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list loans: backend returned %d", resp.StatusCode())
	}
	return loans, nil
}

// GetStats fetches the backend's aggregate dashboard snapshot.
func (c *Client) GetStats(ctx context.Context) (*AggregateStats, error) {
	var stats AggregateStats
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&stats).
		Get("/stats")
	if err != nil {
		return nil, fmt.Errorf("get stats: %v: %w", err, ErrUnreachable)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get stats: backend returned %d", resp.StatusCode())
	}
	return &stats, nil
}

// GetPurchaseOrder fetches the backend's relay of one raw contract record.
func (c *Client) GetPurchaseOrder(ctx context.Context, poID uint64) (*PurchaseOrderRecord, error) {
	var rec PurchaseOrderRecord
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&rec).
		Get(fmt.Sprintf("/purchase-orders/%d", poID))
	if err != nil {
		return nil, fmt.Errorf("get purchase order %d: %v: %w", poID, err, ErrUnreachable)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("purchase order %d: %w", poID, ErrNotFound)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get purchase order %d: backend returned %d", poID, resp.StatusCode())
	}
	return &rec, nil
}

// RequestLoan asks the backend to open a funding request against a PO. The
// risk score is not known synchronously; it appears on a later refresh once
// the risk model has run.
func (c *Client) RequestLoan(ctx context.Context, poID uint64) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/request-loan/%d", poID))
	if err != nil {
		return fmt.Errorf("request loan for po %d: %v: %w", poID, err, ErrUnreachable)
	}
	switch {
	case resp.StatusCode() == http.StatusConflict:
		return fmt.Errorf("po %d: %w", poID, ErrAlreadyRequested)
	case resp.StatusCode() == http.StatusNotFound:
		return fmt.Errorf("po %d: %w", poID, ErrNotFound)
	case resp.IsError():
		return fmt.Errorf("request loan for po %d: backend returned %d", poID, resp.StatusCode())
	}
	return nil
}

// RepayLoan marks a loan as repaid.
func (c *Client) RepayLoan(ctx context.Context, loanID int64) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/repay-loan/%d", loanID))
	if err != nil {
		return fmt.Errorf("repay loan %d: %v: %w", loanID, err, ErrUnreachable)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return fmt.Errorf("loan %d: %w", loanID, ErrNotFound)
	case resp.StatusCode() == http.StatusConflict:
		return fmt.Errorf("loan %d: %w", loanID, ErrAlreadyRepaid)
	case resp.IsError():
		return fmt.Errorf("repay loan %d: backend returned %d", loanID, resp.StatusCode())
	}
	return nil
}
