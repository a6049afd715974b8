package rpcclient

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Klingon-tech/klingnet-wallet/internal/chainsync"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// ChainClient implements chain access over JSON-RPC. Transport failures are
// reported as outages; errors returned by the node itself pass through so the
// caller can treat them as rejections.
type ChainClient struct {
	rpc *Client
}

// NewChainClient creates a chain client over the given RPC client.
func NewChainClient(rpc *Client) *ChainClient {
	return &ChainClient{rpc: rpc}
}

// balanceResult is the wallet_getBalance response payload.
type balanceResult struct {
	Balance decimal.Decimal `json:"balance"`
}

// receiptResult is the tx_getReceipt response payload. A null result means
// the node has not seen the transaction yet.
type receiptResult struct {
	Status      string     `json:"status"`
	BlockHash   types.Hash `json:"blockHash"`
	BlockHeight uint64     `json:"blockHeight"`
	Reason      string     `json:"reason,omitempty"`
}

// submitResult is the tx_submitRaw response payload.
type submitResult struct {
	Hash types.Hash `json:"hash"`
}

// GetBalance fetches the balance of an address for the given asset symbol.
func (c *ChainClient) GetBalance(ctx context.Context, addr types.Address, symbol string) (decimal.Decimal, error) {
	params := map[string]interface{}{
		"address": addr.String(),
		"symbol":  symbol,
	}
	var res balanceResult
	if err := c.rpc.Call(ctx, "wallet_getBalance", params, &res); err != nil {
		return decimal.Zero, mapCallErr(err)
	}
	return res.Balance, nil
}

// GetTransactionReceipt fetches the receipt for a broadcast transaction.
// Returns ErrReceiptNotFound if the node has not included it yet.
func (c *ChainClient) GetTransactionReceipt(ctx context.Context, hash types.Hash) (chainsync.Receipt, error) {
	params := map[string]interface{}{
		"hash": hash.String(),
	}
	var res *receiptResult
	if err := c.rpc.Call(ctx, "tx_getReceipt", params, &res); err != nil {
		return chainsync.Receipt{}, mapCallErr(err)
	}
	if res == nil {
		return chainsync.Receipt{}, chainsync.ErrReceiptNotFound
	}

	var status chainsync.ReceiptStatus
	switch res.Status {
	case "success":
		status = chainsync.ReceiptSuccess
	case "rejected":
		status = chainsync.ReceiptRejected
	default:
		return chainsync.Receipt{}, fmt.Errorf("unknown receipt status %q", res.Status)
	}

	return chainsync.Receipt{
		Status:      status,
		BlockHash:   res.BlockHash,
		BlockHeight: res.BlockHeight,
		Reason:      res.Reason,
	}, nil
}

// SendRawTransaction submits a signed transfer payload to the node and
// returns the chain-assigned transaction hash.
func (c *ChainClient) SendRawTransaction(ctx context.Context, payload []byte) (types.Hash, error) {
	params := map[string]interface{}{
		"payload": hex.EncodeToString(payload),
	}
	var res submitResult
	if err := c.rpc.Call(ctx, "tx_submitRaw", params, &res); err != nil {
		return types.Hash{}, mapCallErr(err)
	}
	return res.Hash, nil
}

// mapCallErr folds transport failures into the outage sentinel while letting
// node-side RPC errors through unchanged.
func mapCallErr(err error) error {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return err
	}
	return fmt.Errorf("%w: %v", chainsync.ErrUnavailable, err)
}
