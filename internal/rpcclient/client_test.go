package rpcclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Klingon-tech/klingnet-wallet/internal/chainsync"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// newTestServer returns an httptest server that dispatches on JSON-RPC
// method name using the provided handler map.
func newTestServer(t *testing.T, handlers map[string]func(params json.RawMessage) (interface{}, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
			ID     int             `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		handler, ok := handlers[req.Method]
		if !ok {
			t.Errorf("unexpected method %q", req.Method)
			return
		}
		result, rpcErr := handler(req.Params)
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
		}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func TestCall(t *testing.T) {
	srv := newTestServer(t, map[string]func(json.RawMessage) (interface{}, *rpcError){
		"test_echo": func(params json.RawMessage) (interface{}, *rpcError) {
			var in map[string]string
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, &rpcError{Code: -32602, Message: "invalid params"}
			}
			return in, nil
		},
	})
	defer srv.Close()

	client := New(srv.URL)

	var out map[string]string
	err := client.Call(context.Background(), "test_echo", map[string]string{"hello": "world"}, &out)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out["hello"] != "world" {
		t.Errorf("result = %v, want hello=world", out)
	}
}

func TestCall_RPCError(t *testing.T) {
	srv := newTestServer(t, map[string]func(json.RawMessage) (interface{}, *rpcError){
		"test_fail": func(json.RawMessage) (interface{}, *rpcError) {
			return nil, &rpcError{Code: -32000, Message: "insufficient funds"}
		},
	})
	defer srv.Close()

	client := New(srv.URL)

	err := client.Call(context.Background(), "test_fail", nil, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("error = %v, want *RPCError", err)
	}
	if rpcErr.Code != -32000 {
		t.Errorf("code = %d, want -32000", rpcErr.Code)
	}
	if rpcErr.Message != "insufficient funds" {
		t.Errorf("message = %q, want %q", rpcErr.Message, "insufficient funds")
	}
}

func TestCall_ContextCancelled(t *testing.T) {
	srv := newTestServer(t, map[string]func(json.RawMessage) (interface{}, *rpcError){})
	defer srv.Close()

	client := New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.Call(ctx, "test_echo", nil, nil); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestChainClient_GetBalance(t *testing.T) {
	addr, err := types.ParseAddress("0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}

	srv := newTestServer(t, map[string]func(json.RawMessage) (interface{}, *rpcError){
		"wallet_getBalance": func(params json.RawMessage) (interface{}, *rpcError) {
			var in map[string]string
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, &rpcError{Code: -32602, Message: "invalid params"}
			}
			if in["address"] != addr.String() {
				return nil, &rpcError{Code: -32602, Message: "wrong address"}
			}
			if in["symbol"] != "ETH" {
				return nil, &rpcError{Code: -32602, Message: "wrong symbol"}
			}
			return map[string]string{"balance": "42.5"}, nil
		},
	})
	defer srv.Close()

	chain := NewChainClient(New(srv.URL))

	bal, err := chain.GetBalance(context.Background(), addr, "ETH")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if !bal.Equal(decimal.RequireFromString("42.5")) {
		t.Errorf("balance = %s, want 42.5", bal)
	}
}

func TestChainClient_GetTransactionReceipt(t *testing.T) {
	hash, err := types.ParseHash("0xabababababababababababababababababababababababababababababababab")
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}
	blockHash, err := types.ParseHash("0xcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcd")
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}

	srv := newTestServer(t, map[string]func(json.RawMessage) (interface{}, *rpcError){
		"tx_getReceipt": func(params json.RawMessage) (interface{}, *rpcError) {
			var in map[string]string
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, &rpcError{Code: -32602, Message: "invalid params"}
			}
			if in["hash"] != hash.String() {
				return nil, nil // unknown tx: null result
			}
			return map[string]interface{}{
				"status":      "success",
				"blockHash":   blockHash.String(),
				"blockHeight": 128,
			}, nil
		},
	})
	defer srv.Close()

	chain := NewChainClient(New(srv.URL))

	receipt, err := chain.GetTransactionReceipt(context.Background(), hash)
	if err != nil {
		t.Fatalf("GetTransactionReceipt: %v", err)
	}
	if receipt.Status != chainsync.ReceiptSuccess {
		t.Errorf("status = %q, want success", receipt.Status)
	}
	if receipt.BlockHash != blockHash {
		t.Errorf("blockHash = %s, want %s", receipt.BlockHash, blockHash)
	}
	if receipt.BlockHeight != 128 {
		t.Errorf("blockHeight = %d, want 128", receipt.BlockHeight)
	}

	// A hash the node has never seen yields a null result.
	_, err = chain.GetTransactionReceipt(context.Background(), blockHash)
	if !errors.Is(err, chainsync.ErrReceiptNotFound) {
		t.Errorf("error = %v, want ErrReceiptNotFound", err)
	}
}

func TestChainClient_SendRawTransaction(t *testing.T) {
	hash, err := types.ParseHash("0xefefefefefefefefefefefefefefefefefefefefefefefefefefefefefefefef")
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}

	srv := newTestServer(t, map[string]func(json.RawMessage) (interface{}, *rpcError){
		"tx_submitRaw": func(params json.RawMessage) (interface{}, *rpcError) {
			var in map[string]string
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, &rpcError{Code: -32602, Message: "invalid params"}
			}
			if in["payload"] == "" {
				return nil, &rpcError{Code: -32602, Message: "empty payload"}
			}
			return map[string]string{"hash": hash.String()}, nil
		},
	})
	defer srv.Close()

	chain := NewChainClient(New(srv.URL))

	got, err := chain.SendRawTransaction(context.Background(), []byte("signed payload"))
	if err != nil {
		t.Fatalf("SendRawTransaction: %v", err)
	}
	if got != hash {
		t.Errorf("hash = %s, want %s", got, hash)
	}
}

func TestChainClient_NodeRejectionPassesThrough(t *testing.T) {
	srv := newTestServer(t, map[string]func(json.RawMessage) (interface{}, *rpcError){
		"tx_submitRaw": func(json.RawMessage) (interface{}, *rpcError) {
			return nil, &rpcError{Code: -32000, Message: "nonce too low"}
		},
	})
	defer srv.Close()

	chain := NewChainClient(New(srv.URL))

	_, err := chain.SendRawTransaction(context.Background(), []byte("payload"))
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("error = %v, want *RPCError", err)
	}
	if errors.Is(err, chainsync.ErrUnavailable) {
		t.Error("node rejection must not be reported as an outage")
	}
}

func TestChainClient_TransportFailureIsOutage(t *testing.T) {
	srv := newTestServer(t, map[string]func(json.RawMessage) (interface{}, *rpcError){})
	srv.Close() // connection refused from here on

	chain := NewChainClient(New(srv.URL))

	_, err := chain.GetBalance(context.Background(), types.Address{}, "ETH")
	if !errors.Is(err, chainsync.ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}
