package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/pofinance/internal/wallet"
)

const (
	testBuyer    = "0x1111111111111111111111111111111111111111"
	testVendor   = "0x2222222222222222222222222222222222222222"
	testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
)

type rpcTestHandler func(method string, params []json.RawMessage) (any, *rpcError)

func newRPCServer(t *testing.T, handle rpcTestHandler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JSONRPC string            `json:"jsonrpc"`
			ID      string            `json:"id"`
			Method  string            `json:"method"`
			Params  []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "2.0", req.JSONRPC)
		require.NotEmpty(t, req.ID)

		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
		result, rpcErr := handle(req.Method, req.Params)
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			raw, err := json.Marshal(result)
			require.NoError(t, err)
			resp.Result = raw
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGateway(endpoint string) *Gateway {
	signer := wallet.NewLocalSigner(testBuyer, []byte("test-signing-key"))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGateway(Config{
		RPCEndpoint:     endpoint,
		ContractAddress: testContract,
		ConfirmInterval: 10 * time.Millisecond,
		ConfirmTimeout:  500 * time.Millisecond,
	}, signer, logger)
}

func TestCreatePurchaseOrder(t *testing.T) {
	deliveryDate := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	var submitted wallet.SignedTx

	srv := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		require.Equal(t, "po_sendTransaction", method)
		require.Len(t, params, 1)
		require.NoError(t, json.Unmarshal(params[0], &submitted))
		return "0xabc123", nil
	})

	gw := newTestGateway(srv.URL)
	handle, err := gw.CreatePurchaseOrder(context.Background(), testBuyer, testVendor,
		decimal.NewFromInt(50000), deliveryDate, "Electronics")
	require.NoError(t, err)
	assert.Equal(t, TxHandle("0xabc123"), handle)

	assert.Equal(t, testBuyer, submitted.From)
	assert.Equal(t, testContract, submitted.Contract)
	assert.Equal(t, "createPurchaseOrder", submitted.Method)
	assert.NotEmpty(t, submitted.Signature)
	assert.NotEmpty(t, submitted.Nonce)

	require.Len(t, submitted.Params, 4)
	assert.Equal(t, testVendor, submitted.Params[0])
	// the amount crosses the wire scaled by 10^18
	assert.Equal(t, "50000000000000000000000", submitted.Params[1])
	assert.Equal(t, float64(deliveryDate.Unix()), submitted.Params[2]) // json numbers decode to float64
	assert.Equal(t, "Electronics", submitted.Params[3])
}

func TestCreatePurchaseOrderSignerDeclines(t *testing.T) {
	var calls atomic.Int64
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		calls.Add(1)
		return "0xabc123", nil
	})

	gw := newTestGateway(srv.URL)
	// the signer only holds testBuyer
	_, err := gw.CreatePurchaseOrder(context.Background(), testVendor, testVendor,
		decimal.NewFromInt(10), time.Now(), "Food")
	assert.ErrorIs(t, err, wallet.ErrRejectedByUser)
	assert.Equal(t, int64(0), calls.Load(), "declined transaction must not reach the node")
}

func TestCreatePurchaseOrderRPCUnavailable(t *testing.T) {
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		return nil, nil
	})
	srv.Close()

	gw := newTestGateway(srv.URL)
	_, err := gw.CreatePurchaseOrder(context.Background(), testBuyer, testVendor,
		decimal.NewFromInt(10), time.Now(), "Food")
	assert.ErrorIs(t, err, ErrRPCUnavailable)
}

func TestCreatePurchaseOrderRejectsExcessPrecision(t *testing.T) {
	var calls atomic.Int64
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		calls.Add(1)
		return "0xabc123", nil
	})

	gw := newTestGateway(srv.URL)
	tooPrecise, err := decimal.NewFromString("0.1234567890123456789")
	require.NoError(t, err)

	_, err = gw.CreatePurchaseOrder(context.Background(), testBuyer, testVendor, tooPrecise, time.Now(), "Food")
	assert.Error(t, err)
	assert.Equal(t, int64(0), calls.Load())
}

func TestReadPurchaseOrder(t *testing.T) {
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		require.Equal(t, "po_purchaseOrders", method)
		var id uint64
		require.NoError(t, json.Unmarshal(params[0], &id))
		require.Equal(t, uint64(7), id)
		return poRecord{
			ID:            7,
			Buyer:         testBuyer,
			Vendor:        testVendor,
			Amount:        "1500000000000000000000",
			DeliveryDate:  1735689600, // 2025-01-01T00:00:00Z
			GoodsCategory: "Textiles",
			Status:        1,
		}, nil
	})

	gw := newTestGateway(srv.URL)
	po, err := gw.ReadPurchaseOrder(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), po.ID)
	assert.Equal(t, testBuyer, po.Buyer)
	assert.Equal(t, testVendor, po.Vendor)
	assert.True(t, decimal.NewFromInt(1500).Equal(po.Amount), "got %s", po.Amount)
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), po.DeliveryDate)
	assert.Equal(t, "Textiles", po.GoodsCategory)
	assert.Equal(t, StatusFinanced, po.Status)
}

func TestReadPurchaseOrderNotFound(t *testing.T) {
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		return nil, &rpcError{Code: codeNotFound, Message: "no such purchase order"}
	})

	gw := newTestGateway(srv.URL)
	_, err := gw.ReadPurchaseOrder(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadPurchaseOrderCount(t *testing.T) {
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		require.Equal(t, "po_poCount", method)
		return 42, nil
	})

	gw := newTestGateway(srv.URL)
	count, err := gw.ReadPurchaseOrderCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), count)
}

func TestWaitForConfirmation(t *testing.T) {
	var polls atomic.Int64
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		require.Equal(t, "po_getReceipt", method)
		switch polls.Add(1) {
		case 1:
			// not yet indexed
			return nil, &rpcError{Code: codeNotFound, Message: "unknown transaction"}
		case 2:
			return Receipt{TxHash: "0xabc123", Status: receiptPending}, nil
		default:
			return Receipt{TxHash: "0xabc123", Status: receiptConfirmed, BlockNumber: 12}, nil
		}
	})

	gw := newTestGateway(srv.URL)
	receipt, err := gw.WaitForConfirmation(context.Background(), "0xabc123")
	require.NoError(t, err)
	assert.Equal(t, "0xabc123", receipt.TxHash)
	assert.Equal(t, uint64(12), receipt.BlockNumber)
	assert.GreaterOrEqual(t, polls.Load(), int64(3))
}

func TestWaitForConfirmationReverted(t *testing.T) {
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		return Receipt{TxHash: "0xdead", Status: receiptReverted, Reason: "delivery date in the past"}, nil
	})

	gw := newTestGateway(srv.URL)
	_, err := gw.WaitForConfirmation(context.Background(), "0xdead")

	var revertErr *RevertError
	require.True(t, errors.As(err, &revertErr))
	assert.Equal(t, "delivery date in the past", revertErr.Reason)
	assert.Equal(t, "0xdead", revertErr.TxHash)
}

func TestWaitForConfirmationTimeout(t *testing.T) {
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		return Receipt{TxHash: "0xslow", Status: receiptPending}, nil
	})

	gw := newTestGateway(srv.URL)
	_, err := gw.WaitForConfirmation(context.Background(), "0xslow")
	assert.ErrorIs(t, err, ErrConfirmTimeout)
}

func TestStatusTransitionCalls(t *testing.T) {
	var methods []string
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		var tx wallet.SignedTx
		require.NoError(t, json.Unmarshal(params[0], &tx))
		methods = append(methods, tx.Method)
		return "0x1", nil
	})

	gw := newTestGateway(srv.URL)
	ctx := context.Background()

	_, err := gw.RequestLoan(ctx, testBuyer, 1)
	require.NoError(t, err)
	_, err = gw.MarkFinanced(ctx, testBuyer, 1)
	require.NoError(t, err)
	_, err = gw.MarkDelivered(ctx, testBuyer, 1)
	require.NoError(t, err)
	_, err = gw.ClosePO(ctx, testBuyer, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"requestLoan", "markFinanced", "markDelivered", "closePO"}, methods)
}
