package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/pofinance/internal/wallet"
)

var (
	// ErrRPCUnavailable is returned when no ledger node is reachable.
	ErrRPCUnavailable = errors.New("ledger rpc unavailable")
	// ErrNotFound is returned when the contract has no record for the id.
	ErrNotFound = errors.New("record not found on ledger")
	// ErrConfirmTimeout is returned when a submitted transaction is not
	// confirmed within the configured window.
	ErrConfirmTimeout = errors.New("confirmation timed out")
)

// RevertError is returned when the ledger executed a transaction and the
// contract reverted it. The attempt is terminal; no state was changed.
type RevertError struct {
	TxHash string
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transaction %s reverted", e.TxHash)
	}
	return fmt.Sprintf("transaction %s reverted: %s", e.TxHash, e.Reason)
}

// TxHandle identifies a submitted, not yet confirmed transaction.
type TxHandle string

// Receipt is the ledger's record of a finalized transaction.
type Receipt struct {
	TxHash      string `json:"transactionHash"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
}

const (
	receiptPending   = "pending"
	receiptConfirmed = "confirmed"
	receiptReverted  = "reverted"
)

// Config holds the externally supplied ledger connection settings.
type Config struct {
	RPCEndpoint     string
	ContractAddress string
	RequestTimeout  time.Duration
	ConfirmInterval time.Duration
	ConfirmTimeout  time.Duration
}

// Gateway is a typed wrapper over the PO contract's call/read interface.
// It owns the scaled-integer and unix-seconds wire encodings and holds no
// state between calls.
type Gateway struct {
	client          *resty.Client
	contract        string
	signer          wallet.Signer
	confirmInterval time.Duration
	confirmTimeout  time.Duration
	logger          *slog.Logger
}

// NewGateway creates a gateway for the contract at cfg.ContractAddress.
func NewGateway(cfg Config, signer wallet.Signer, logger *slog.Logger) *Gateway {
	client := resty.New()
	client.SetBaseURL(cfg.RPCEndpoint)
	if cfg.RequestTimeout > 0 {
		client.SetTimeout(cfg.RequestTimeout)
	}

	confirmInterval := cfg.ConfirmInterval
	if confirmInterval <= 0 {
		confirmInterval = 2 * time.Second
	}
	confirmTimeout := cfg.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = 2 * time.Minute
	}

	return &Gateway{
		client:          client,
		contract:        cfg.ContractAddress,
		signer:          signer,
		confirmInterval: confirmInterval,
		confirmTimeout:  confirmTimeout,
		logger:          logger,
	}
}

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

// codeNotFound is the node's error code for reads of absent records.
const codeNotFound = -32001

func (g *Gateway) call(ctx context.Context, method string, params []any, out any) error {
	if params == nil {
		params = []any{}
	}

	var envelope rpcResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(rpcRequest{
			JSONRPC: "2.0",
			ID:      uuid.NewString(),
			Method:  method,
			Params:  params,
		}).
		SetResult(&envelope).
		Post("")
	if err != nil {
		return fmt.Errorf("%s: %v: %w", method, err, ErrRPCUnavailable)
	}
	if resp.IsError() {
		return fmt.Errorf("%s: node returned status %d: %w", method, resp.StatusCode(), ErrRPCUnavailable)
	}
	if envelope.Error != nil {
		if envelope.Error.Code == codeNotFound {
			return fmt.Errorf("%s: %s: %w", method, envelope.Error.Message, ErrNotFound)
		}
		return fmt.Errorf("%s: rpc error %d: %s", method, envelope.Error.Code, envelope.Error.Message)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("%s: failed to decode result: %w", method, err)
		}
	}
	return nil
}

// submit signs a contract call for the given account and sends it to the
// node. The returned handle must be passed to WaitForConfirmation; the
// gateway does not update any local view itself.
func (g *Gateway) submit(ctx context.Context, from, method string, params []any) (TxHandle, error) {
	signed, err := g.signer.SignTransaction(ctx, wallet.TxEnvelope{
		From:     from,
		Contract: g.contract,
		Method:   method,
		Params:   params,
		Nonce:    uuid.NewString(),
	})
	if err != nil {
		if errors.Is(err, wallet.ErrRejectedByUser) {
			return "", err
		}
		return "", fmt.Errorf("failed to sign %s: %w", method, err)
	}

	var hash string
	if err := g.call(ctx, "po_sendTransaction", []any{signed}, &hash); err != nil {
		return "", err
	}

	g.logger.Info("transaction submitted", "method", method, "from", from, "tx", hash)
	return TxHandle(hash), nil
}

// CreatePurchaseOrder submits a createPurchaseOrder call. The amount is
// scaled up and the delivery date converted to unix seconds here, at the
// wire boundary.
func (g *Gateway) CreatePurchaseOrder(ctx context.Context, from, vendor string, amount decimal.Decimal, deliveryDate time.Time, goodsCategory string) (TxHandle, error) {
	scaled, err := encodeAmount(amount)
	if err != nil {
		return "", err
	}
	return g.submit(ctx, from, "createPurchaseOrder", []any{
		vendor, scaled, encodeTimestamp(deliveryDate), goodsCategory,
	})
}

// RequestLoan submits the contract's on-chain loan request for a PO.
func (g *Gateway) RequestLoan(ctx context.Context, from string, poID uint64) (TxHandle, error) {
	return g.submit(ctx, from, "requestLoan", []any{poID})
}

// MarkDelivered submits the delivery status transition for a PO.
func (g *Gateway) MarkDelivered(ctx context.Context, from string, poID uint64) (TxHandle, error) {
	return g.submit(ctx, from, "markDelivered", []any{poID})
}

// MarkFinanced submits the financed status transition for a PO.
func (g *Gateway) MarkFinanced(ctx context.Context, from string, poID uint64) (TxHandle, error) {
	return g.submit(ctx, from, "markFinanced", []any{poID})
}

// ClosePO submits the terminal status transition for a PO.
func (g *Gateway) ClosePO(ctx context.Context, from string, poID uint64) (TxHandle, error) {
	return g.submit(ctx, from, "closePO", []any{poID})
}

// WaitForConfirmation polls the node until the transaction is finalized,
// reverted, or the configured confirmation window elapses.
func (g *Gateway) WaitForConfirmation(ctx context.Context, handle TxHandle) (*Receipt, error) {
	deadline := time.NewTimer(g.confirmTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(g.confirmInterval)
	defer ticker.Stop()

	for {
		var receipt Receipt
		err := g.call(ctx, "po_getReceipt", []any{string(handle)}, &receipt)
		switch {
		case err == nil && receipt.Status == receiptConfirmed:
			g.logger.Info("transaction confirmed", "tx", receipt.TxHash, "block", receipt.BlockNumber)
			return &receipt, nil
		case err == nil && receipt.Status == receiptReverted:
			return nil, &RevertError{TxHash: receipt.TxHash, Reason: receipt.Reason}
		case err != nil && !errors.Is(err, ErrNotFound):
			// A receipt the node has not indexed yet is not a failure;
			// anything else is.
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("transaction %s: %w", handle, ErrConfirmTimeout)
		case <-ticker.C:
		}
	}
}

// poRecord is the wire form of the contract's purchaseOrders(id) tuple.
type poRecord struct {
	ID            uint64 `json:"id"`
	Buyer         string `json:"buyer"`
	Vendor        string `json:"vendor"`
	Amount        string `json:"amount"`
	DeliveryDate  int64  `json:"deliveryDate"`
	GoodsCategory string `json:"goodsCategory"`
	Status        uint8  `json:"status"`
}

// ReadPurchaseOrder reads one PO record by id.
func (g *Gateway) ReadPurchaseOrder(ctx context.Context, id uint64) (*PurchaseOrder, error) {
	var rec poRecord
	if err := g.call(ctx, "po_purchaseOrders", []any{id}, &rec); err != nil {
		return nil, err
	}

	amount, err := decodeAmount(rec.Amount)
	if err != nil {
		return nil, fmt.Errorf("purchase order %d: %w", id, err)
	}
	status := POStatus(rec.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("purchase order %d: unknown status %d", id, rec.Status)
	}

	return &PurchaseOrder{
		ID:            rec.ID,
		Buyer:         rec.Buyer,
		Vendor:        rec.Vendor,
		Amount:        amount,
		DeliveryDate:  decodeTimestamp(rec.DeliveryDate),
		GoodsCategory: rec.GoodsCategory,
		Status:        status,
	}, nil
}

// ReadPurchaseOrderCount reads the contract's PO counter. Record ids run
// from 1 to the returned count; the contract offers no range read.
func (g *Gateway) ReadPurchaseOrderCount(ctx context.Context) (uint64, error) {
	var count uint64
	if err := g.call(ctx, "po_poCount", nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}
