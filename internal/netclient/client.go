// Package netclient talks to blockchain backends over HTTP. Chain-specific
// protocols (Ethereum JSON-RPC, Esplora REST, Solana JSON-RPC) share one
// retry/backoff/timeout core and surface results through a uniform Backend
// contract.
package netclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/emberwallet/ember-core/internal/log"
	"github.com/emberwallet/ember-core/pkg/types"
)

// Client errors.
var (
	ErrTimeout         = errors.New("request timed out")
	ErrServerError     = errors.New("server error")
	ErrInvalidResponse = errors.New("invalid response")
	ErrUnsupported     = errors.New("operation not supported on this backend")
)

// Backend is the uniform query/broadcast contract each chain backend
// implements. Methods a chain has no concept of (UTXOs on Ethereum)
// return ErrUnsupported.
type Backend interface {
	FetchBalance(ctx context.Context, address string) (*big.Int, error)
	FetchUTXOs(ctx context.Context, address string) ([]types.UTXO, error)
	FetchTransactionHistory(ctx context.Context, address string) ([]types.HistoryEntry, error)
	FetchFeeRates(ctx context.Context) (types.FeeRates, error)
	BroadcastTransaction(ctx context.Context, raw []byte) (string, error)
}

// Config tunes the shared HTTP core.
type Config struct {
	Timeout    time.Duration // per-attempt timeout
	MaxRetries int           // retries after the first attempt
	Backoff    time.Duration // base backoff, doubled per retry
}

// DefaultConfig returns conservative production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:    10 * time.Second,
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.Backoff <= 0 {
		c.Backoff = d.Backoff
	}
	return c
}

// httpCore executes requests with per-attempt timeouts and exponential
// backoff. Transport failures and 5xx/429 responses are retried; other
// HTTP errors are not, since repeating a malformed request cannot help.
type httpCore struct {
	client *http.Client
	cfg    Config
}

func newHTTPCore(cfg Config) *httpCore {
	cfg = cfg.withDefaults()
	return &httpCore{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

// do runs build+execute up to 1+MaxRetries times. The request is rebuilt
// per attempt because request bodies are single-use readers.
func (h *httpCore) do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= h.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := h.cfg.Backoff << (attempt - 1)
			log.Net.Debug().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying request")
			select {
			case <-ctx.Done():
				return nil, wrapCtxErr(ctx.Err())
			case <-time.After(backoff):
			}
		}

		req, err := build(ctx)
		if err != nil {
			return nil, err
		}

		body, retryable, err := h.attempt(req)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, wrapCtxErr(ctx.Err())
		}
	}
	return nil, fmt.Errorf("retries exhausted: %w", lastErr)
}

func (h *httpCore) attempt(req *http.Request) (body []byte, retryable bool, err error) {
	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, false, err
		}
		// Transport errors, including per-attempt timeouts, are retryable.
		return nil, true, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: read body: %v", ErrInvalidResponse, err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("%w: status %d: %s", ErrServerError, resp.StatusCode, truncate(body, 200))
	case resp.StatusCode >= 400:
		return nil, false, fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, resp.StatusCode, truncate(body, 200))
	}
	return body, false, nil
}

func wrapCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
