package netclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/emberwallet/ember-core/pkg/types"
)

// EthereumClient speaks Ethereum JSON-RPC to a node endpoint.
type EthereumClient struct {
	endpoint string
	core     *httpCore
}

// NewEthereumClient creates a client for the given JSON-RPC endpoint.
func NewEthereumClient(endpoint string, cfg Config) *EthereumClient {
	return &EthereumClient{
		endpoint: endpoint,
		core:     newHTTPCore(cfg),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *EthereumClient) call(ctx context.Context, method string, params []any, result any) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	body, err := c.core.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%s: %w: %v", method, ErrInvalidResponse, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: %w: %s (code %d)", method, ErrServerError, resp.Error.Message, resp.Error.Code)
	}
	if result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("%s: %w: %v", method, ErrInvalidResponse, err)
		}
	}
	return nil
}

// callQuantity runs a method whose result is a 0x-prefixed hex quantity.
func (c *EthereumClient) callQuantity(ctx context.Context, method string, params []any) (*big.Int, error) {
	var hexStr string
	if err := c.call(ctx, method, params, &hexStr); err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(strings.TrimPrefix(hexStr, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("%s: %w: bad quantity %q", method, ErrInvalidResponse, hexStr)
	}
	return v, nil
}

// FetchBalance returns the address balance in wei at the latest block.
func (c *EthereumClient) FetchBalance(ctx context.Context, address string) (*big.Int, error) {
	return c.callQuantity(ctx, "eth_getBalance", []any{address, "latest"})
}

// PendingNonce returns the next usable nonce, counting mempool entries.
func (c *EthereumClient) PendingNonce(ctx context.Context, address string) (uint64, error) {
	v, err := c.callQuantity(ctx, "eth_getTransactionCount", []any{address, "pending"})
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// GasPrice returns the node's legacy gas price suggestion in wei.
func (c *EthereumClient) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.callQuantity(ctx, "eth_gasPrice", nil)
}

// MaxPriorityFee returns the suggested priority tip in wei. Nodes without
// eth_maxPriorityFeePerGas fall back to a flat 1 gwei tip.
func (c *EthereumClient) MaxPriorityFee(ctx context.Context) (*big.Int, error) {
	tip, err := c.callQuantity(ctx, "eth_maxPriorityFeePerGas", nil)
	if err == nil {
		return tip, nil
	}
	return big.NewInt(1_000_000_000), nil
}

// FetchFeeRates derives slow/normal/fast gas price tiers in wei from the
// node's suggestions.
func (c *EthereumClient) FetchFeeRates(ctx context.Context) (types.FeeRates, error) {
	gasPrice, err := c.GasPrice(ctx)
	if err != nil {
		return types.FeeRates{}, err
	}
	tip, err := c.MaxPriorityFee(ctx)
	if err != nil {
		return types.FeeRates{}, err
	}
	normal := new(big.Int).Add(gasPrice, tip)
	fast := new(big.Int).Add(gasPrice, new(big.Int).Mul(tip, big.NewInt(2)))
	return types.FeeRates{
		Slow:   gasPrice.Uint64(),
		Normal: normal.Uint64(),
		Fast:   fast.Uint64(),
	}, nil
}

// BroadcastTransaction submits RLP-encoded signed bytes and returns the
// transaction hash.
func (c *EthereumClient) BroadcastTransaction(ctx context.Context, raw []byte) (string, error) {
	var txHash string
	if err := c.call(ctx, "eth_sendRawTransaction", []any{"0x" + hex.EncodeToString(raw)}, &txHash); err != nil {
		return "", err
	}
	return txHash, nil
}

// FetchUTXOs is not meaningful on an account-model chain.
func (c *EthereumClient) FetchUTXOs(context.Context, string) ([]types.UTXO, error) {
	return nil, fmt.Errorf("ethereum: utxo query: %w", ErrUnsupported)
}

// FetchTransactionHistory requires an indexing service; a plain JSON-RPC
// node cannot answer address-scoped history queries.
func (c *EthereumClient) FetchTransactionHistory(context.Context, string) ([]types.HistoryEntry, error) {
	return nil, fmt.Errorf("ethereum: history query: %w", ErrUnsupported)
}
