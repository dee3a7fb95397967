package types

import (
	"math/big"
	"time"
)

// EthereumFee holds EIP-1559 fee parameters.
type EthereumFee struct {
	GasLimit             uint64   `json:"gas_limit"`
	MaxFeePerGas         *big.Int `json:"max_fee_per_gas"`
	MaxPriorityFeePerGas *big.Int `json:"max_priority_fee_per_gas"`
}

// BitcoinFee holds fee-rate based sizing parameters.
type BitcoinFee struct {
	FeeRate uint64 `json:"fee_rate"` // satoshis per virtual byte
	Fee     uint64 `json:"fee"`      // absolute fee in satoshis
}

// SolanaFee holds the flat per-signature fee and the liveness anchor.
type SolanaFee struct {
	Lamports        uint64 `json:"lamports"`
	RecentBlockhash string `json:"recent_blockhash"`
}

// UnsignedTx is a chain-agnostic transfer awaiting signature.
// Exactly one of the fee fields is set, matching Chain.
type UnsignedTx struct {
	Chain     Chain     `json:"chain"`
	Network   Network   `json:"network"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    *big.Int  `json:"amount"` // wei / satoshis / lamports (token base units for token transfers)
	Token     string    `json:"token,omitempty"`
	Payload   []byte    `json:"payload,omitempty"`
	Nonce     uint64    `json:"nonce"`
	Timestamp time.Time `json:"timestamp"`

	EthereumFee *EthereumFee `json:"ethereum_fee,omitempty"`
	BitcoinFee  *BitcoinFee  `json:"bitcoin_fee,omitempty"`
	SolanaFee   *SolanaFee   `json:"solana_fee,omitempty"`

	// Inputs is the UTXO selection backing a Bitcoin-family transfer.
	Inputs []UTXO `json:"inputs,omitempty"`
}

// SignedTx is an UnsignedTx plus its signature and serialized wire form.
// Immutable once produced.
type SignedTx struct {
	UnsignedTx
	Signature []byte `json:"signature"`
	Raw       []byte `json:"raw"`
	TxID      string `json:"txid"`
}

// FeeEstimate is a structured fee-market snapshot for a prospective transfer.
type FeeEstimate struct {
	Chain Chain `json:"chain"`

	// Total is the estimated cost in the chain's base unit.
	Total *big.Int `json:"total"`

	Ethereum *EthereumFee `json:"ethereum,omitempty"`
	Bitcoin  *BitcoinFee  `json:"bitcoin,omitempty"`
	Solana   *SolanaFee   `json:"solana,omitempty"`
}

// FeeRates holds tiered fee-market data returned by a chain backend.
type FeeRates struct {
	Slow   uint64 `json:"slow"`
	Normal uint64 `json:"normal"`
	Fast   uint64 `json:"fast"`
}

// HistoryEntry is one confirmed transaction touching a wallet address.
type HistoryEntry struct {
	TxID      string    `json:"txid"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    *big.Int  `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	Incoming  bool      `json:"incoming"`
}
