package types

import "fmt"

// Chain identifies a supported blockchain family.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainBitcoin  Chain = "bitcoin"
	ChainSolana   Chain = "solana"
)

// Valid reports whether the chain is one of the supported families.
func (c Chain) Valid() bool {
	switch c {
	case ChainEthereum, ChainBitcoin, ChainSolana:
		return true
	}
	return false
}

// CoinType returns the BIP-44 registered coin type for the chain.
func (c Chain) CoinType() uint32 {
	switch c {
	case ChainEthereum:
		return 60
	case ChainBitcoin:
		return 0
	case ChainSolana:
		return 501
	default:
		return 0
	}
}

// UsesNonces reports whether the chain orders transactions with a
// per-account sequence number. Bitcoin orders by UTXO consumption and
// Solana by recent-blockhash liveness, so only account-model chains
// are subject to nonce monotonicity checks.
func (c Chain) UsesNonces() bool {
	return c == ChainEthereum
}

// ParseChain converts a string to a Chain.
func ParseChain(s string) (Chain, error) {
	c := Chain(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown chain %q", s)
	}
	return c, nil
}

// Network identifies mainnet or testnet.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// Valid reports whether the network is known.
func (n Network) Valid() bool {
	return n == Mainnet || n == Testnet
}
