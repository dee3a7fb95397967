package types

import "fmt"

// Outpoint references a specific output in a transaction.
type Outpoint struct {
	TxID  string `json:"txid"`
	Index uint32 `json:"index"`
}

// String returns "txid:index".
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Index)
}

// UTXO is an unspent output owned by a wallet address.
type UTXO struct {
	Outpoint Outpoint `json:"outpoint"`
	Value    uint64   `json:"value"` // satoshis
	Script   []byte   `json:"script"`
	Address  string   `json:"address"`
}
