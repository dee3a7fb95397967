package netclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/emberwallet/ember-core/pkg/types"
)

// BitcoinClient speaks the Esplora REST API (blockstream.info and
// compatible indexers).
type BitcoinClient struct {
	baseURL string
	core    *httpCore
}

// NewBitcoinClient creates a client for an Esplora-style API base URL.
func NewBitcoinClient(baseURL string, cfg Config) *BitcoinClient {
	return &BitcoinClient{
		baseURL: baseURL,
		core:    newHTTPCore(cfg),
	}
}

func (c *BitcoinClient) get(ctx context.Context, path string, result any) error {
	body, err := c.core.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	})
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("GET %s: %w: %v", path, ErrInvalidResponse, err)
	}
	return nil
}

type esploraAddressStats struct {
	ChainStats struct {
		FundedSum uint64 `json:"funded_txo_sum"`
		SpentSum  uint64 `json:"spent_txo_sum"`
	} `json:"chain_stats"`
	MempoolStats struct {
		FundedSum uint64 `json:"funded_txo_sum"`
		SpentSum  uint64 `json:"spent_txo_sum"`
	} `json:"mempool_stats"`
}

// FetchBalance returns the confirmed spendable balance in satoshis,
// net of unconfirmed spends so a pending send is not double-counted.
func (c *BitcoinClient) FetchBalance(ctx context.Context, address string) (*big.Int, error) {
	var stats esploraAddressStats
	if err := c.get(ctx, "/address/"+url.PathEscape(address), &stats); err != nil {
		return nil, err
	}
	confirmed := stats.ChainStats.FundedSum - stats.ChainStats.SpentSum
	balance := confirmed + stats.MempoolStats.FundedSum - stats.MempoolStats.SpentSum
	return new(big.Int).SetUint64(balance), nil
}

type esploraUTXO struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  uint64 `json:"value"`
	Status struct {
		Confirmed bool `json:"confirmed"`
	} `json:"status"`
}

// FetchUTXOs returns the confirmed unspent outputs of an address. Esplora
// does not include output scripts here; the builder reconstructs them from
// the address.
func (c *BitcoinClient) FetchUTXOs(ctx context.Context, address string) ([]types.UTXO, error) {
	var raw []esploraUTXO
	if err := c.get(ctx, "/address/"+url.PathEscape(address)+"/utxo", &raw); err != nil {
		return nil, err
	}
	utxos := make([]types.UTXO, 0, len(raw))
	for _, u := range raw {
		if !u.Status.Confirmed {
			continue
		}
		utxos = append(utxos, types.UTXO{
			Outpoint: types.Outpoint{TxID: u.TxID, Index: u.Vout},
			Value:    u.Value,
			Address:  address,
		})
	}
	return utxos, nil
}

type esploraTx struct {
	TxID   string `json:"txid"`
	Status struct {
		Confirmed bool  `json:"confirmed"`
		BlockTime int64 `json:"block_time"`
	} `json:"status"`
	Vin []struct {
		Prevout struct {
			Address string `json:"scriptpubkey_address"`
			Value   uint64 `json:"value"`
		} `json:"prevout"`
	} `json:"vin"`
	Vout []struct {
		Address string `json:"scriptpubkey_address"`
		Value   uint64 `json:"value"`
	} `json:"vout"`
}

// FetchTransactionHistory returns confirmed transactions touching the
// address, newest first, reduced to the address's net perspective.
func (c *BitcoinClient) FetchTransactionHistory(ctx context.Context, address string) ([]types.HistoryEntry, error) {
	var txs []esploraTx
	if err := c.get(ctx, "/address/"+url.PathEscape(address)+"/txs", &txs); err != nil {
		return nil, err
	}

	entries := make([]types.HistoryEntry, 0, len(txs))
	for _, tx := range txs {
		if !tx.Status.Confirmed {
			continue
		}
		var spent, received uint64
		counterparty := ""
		for _, in := range tx.Vin {
			if in.Prevout.Address == address {
				spent += in.Prevout.Value
			} else if counterparty == "" {
				counterparty = in.Prevout.Address
			}
		}
		for _, out := range tx.Vout {
			if out.Address == address {
				received += out.Value
			} else if spent > 0 && counterparty == "" {
				counterparty = out.Address
			}
		}

		entry := types.HistoryEntry{
			TxID:      tx.TxID,
			Timestamp: time.Unix(tx.Status.BlockTime, 0).UTC(),
			Incoming:  spent == 0,
		}
		if entry.Incoming {
			entry.From = counterparty
			entry.To = address
			entry.Amount = new(big.Int).SetUint64(received)
		} else {
			entry.From = address
			entry.To = counterparty
			entry.Amount = new(big.Int).SetUint64(spent - received)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// FetchFeeRates maps Esplora's confirmation-target estimates to tiers:
// next block, ~3 blocks, ~6 blocks, in sat/vB rounded up.
func (c *BitcoinClient) FetchFeeRates(ctx context.Context) (types.FeeRates, error) {
	var estimates map[string]float64
	if err := c.get(ctx, "/fee-estimates", &estimates); err != nil {
		return types.FeeRates{}, err
	}
	pick := func(target int) uint64 {
		if rate, ok := estimates[strconv.Itoa(target)]; ok && rate >= 1 {
			return uint64(math.Ceil(rate))
		}
		return 1 // floor at the relay minimum
	}
	return types.FeeRates{
		Fast:   pick(1),
		Normal: pick(3),
		Slow:   pick(6),
	}, nil
}

// BroadcastTransaction submits a serialized transaction and returns its txid.
func (c *BitcoinClient) BroadcastTransaction(ctx context.Context, raw []byte) (string, error) {
	payload := []byte(hex.EncodeToString(raw))
	body, err := c.core.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tx", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "text/plain")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("POST /tx: %w", err)
	}
	return string(bytes.TrimSpace(body)), nil
}
