package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"

	"github.com/emberwallet/ember-core/internal/address"
	"github.com/emberwallet/ember-core/internal/netclient"
	"github.com/emberwallet/ember-core/pkg/types"
)

// btcTestServer serves the Esplora endpoints BuildTransfer touches.
func btcTestServer(t *testing.T, utxoJSON string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/fee-estimates":
			w.Write([]byte(`{"1": 20.0, "3": 10.0, "6": 5.0}`))
		case strings.HasSuffix(r.URL.Path, "/utxo"):
			w.Write([]byte(utxoJSON))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
}

func newBtcProvider(url string) *BitcoinProvider {
	return NewBitcoinProvider(netclient.NewBitcoinClient(url, netclient.Config{
		Timeout:    2 * time.Second,
		MaxRetries: 0,
		Backoff:    time.Millisecond,
	}), types.Mainnet)
}

// btcTestAddrs derives a real P2WPKH pair so scripts resolve during
// signing.
func btcTestAddrs(t *testing.T) (from, to string) {
	t.Helper()
	fromKey := testKey(t, types.ChainBitcoin)
	from, err := address.Derive(fromKey.PublicKeyBytes(), types.Mainnet, address.FormatP2WPKH)
	if err != nil {
		t.Fatalf("Derive from: %v", err)
	}
	toMaster := testKey(t, types.ChainBitcoin)
	toChild, err := toMaster.Child(1, false)
	if err != nil {
		t.Fatalf("Child: %v", err)
	}
	to, err = address.Derive(toChild.PublicKeyBytes(), types.Mainnet, address.FormatP2WPKH)
	if err != nil {
		t.Fatalf("Derive to: %v", err)
	}
	return from, to
}

func TestBitcoinBuildTransfer(t *testing.T) {
	from, to := btcTestAddrs(t)
	srv := btcTestServer(t, `[
		{"txid": "`+strings.Repeat("ab", 32)+`", "vout": 0, "value": 100000, "status": {"confirmed": true}},
		{"txid": "`+strings.Repeat("cd", 32)+`", "vout": 1, "value": 40000,  "status": {"confirmed": true}}
	]`)
	defer srv.Close()

	p := newBtcProvider(srv.URL)
	tx, err := p.BuildTransfer(context.Background(), from, to, big.NewInt(60_000))
	if err != nil {
		t.Fatalf("BuildTransfer() error: %v", err)
	}
	if tx.BitcoinFee == nil {
		t.Fatal("BitcoinFee not set")
	}
	if tx.BitcoinFee.FeeRate != 10 {
		t.Errorf("FeeRate = %d, want normal tier 10", tx.BitcoinFee.FeeRate)
	}
	// One input, two outputs: 10 * (68 + 62 + 11) = 1410 sats.
	if tx.BitcoinFee.Fee != 1410 {
		t.Errorf("Fee = %d, want 1410", tx.BitcoinFee.Fee)
	}
	if len(tx.Inputs) != 1 || tx.Inputs[0].Value != 100000 {
		t.Errorf("Inputs = %+v, want the single 100k UTXO", tx.Inputs)
	}
}

func TestBitcoinBuildTransfer_Insufficient(t *testing.T) {
	from, to := btcTestAddrs(t)
	srv := btcTestServer(t, `[
		{"txid": "`+strings.Repeat("ab", 32)+`", "vout": 0, "value": 5000, "status": {"confirmed": true}}
	]`)
	defer srv.Close()

	p := newBtcProvider(srv.URL)
	_, err := p.BuildTransfer(context.Background(), from, to, big.NewInt(60_000))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("BuildTransfer() error = %v, want ErrInsufficientBalance", err)
	}
}

func TestBitcoinBuildTransfer_InvalidAddress(t *testing.T) {
	from, _ := btcTestAddrs(t)
	p := newBtcProvider("http://unused")
	_, err := p.BuildTransfer(context.Background(), from, "not-an-address", big.NewInt(1000))
	if !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("BuildTransfer() error = %v, want ErrInvalidAddress", err)
	}
	// Testnet address on a mainnet provider is also invalid.
	_, err = p.BuildTransfer(context.Background(), from, "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx", big.NewInt(1000))
	if !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("BuildTransfer() error = %v, want ErrInvalidAddress for testnet address", err)
	}
}

func TestBitcoinTokenTransferUnsupported(t *testing.T) {
	p := newBtcProvider("http://unused")
	_, err := p.BuildTokenTransfer(context.Background(), "a", "b", "c", big.NewInt(1))
	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("BuildTokenTransfer() error = %v, want ErrUnsupportedOperation", err)
	}
}

func TestBitcoinSign(t *testing.T) {
	from, to := btcTestAddrs(t)
	key := testKey(t, types.ChainBitcoin)
	p := newBtcProvider("http://unused")

	utx := &types.UnsignedTx{
		Chain:     types.ChainBitcoin,
		Network:   types.Mainnet,
		From:      from,
		To:        to,
		Amount:    big.NewInt(60_000),
		Timestamp: time.Now().UTC(),
		BitcoinFee: &types.BitcoinFee{
			FeeRate: 10,
			Fee:     1410,
		},
		Inputs: []types.UTXO{{
			Outpoint: types.Outpoint{TxID: strings.Repeat("ab", 32), Index: 0},
			Value:    100_000,
			Address:  from,
		}},
	}

	signed, err := p.Sign(context.Background(), utx, key)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if len(signed.TxID) != 64 {
		t.Errorf("TxID = %q, want 32-byte hex", signed.TxID)
	}

	var decoded wire.MsgTx
	if err := decoded.Deserialize(bytes.NewReader(signed.Raw)); err != nil {
		t.Fatalf("Deserialize() error: %v", err)
	}
	if len(decoded.TxIn) != 1 {
		t.Fatalf("inputs = %d, want 1", len(decoded.TxIn))
	}
	if len(decoded.TxIn[0].Witness) != 2 {
		t.Errorf("witness items = %d, want sig+pubkey", len(decoded.TxIn[0].Witness))
	}
	if len(decoded.TxOut) != 2 {
		t.Fatalf("outputs = %d, want payment+change", len(decoded.TxOut))
	}
	if decoded.TxOut[0].Value != 60_000 {
		t.Errorf("payment output = %d, want 60000", decoded.TxOut[0].Value)
	}
	if decoded.TxOut[1].Value != 38_590 { // 100000 - 60000 - 1410
		t.Errorf("change output = %d, want 38590", decoded.TxOut[1].Value)
	}
}

func TestBitcoinSign_SubDustChangeDropped(t *testing.T) {
	from, to := btcTestAddrs(t)
	key := testKey(t, types.ChainBitcoin)
	p := newBtcProvider("http://unused")

	utx := &types.UnsignedTx{
		Chain:   types.ChainBitcoin,
		Network: types.Mainnet,
		From:    from,
		To:      to,
		Amount:  big.NewInt(98_500),
		BitcoinFee: &types.BitcoinFee{
			FeeRate: 10,
			Fee:     1200,
		},
		Inputs: []types.UTXO{{
			Outpoint: types.Outpoint{TxID: strings.Repeat("ab", 32), Index: 0},
			Value:    100_000,
			Address:  from,
		}},
	}

	signed, err := p.Sign(context.Background(), utx, key)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	var decoded wire.MsgTx
	if err := decoded.Deserialize(bytes.NewReader(signed.Raw)); err != nil {
		t.Fatalf("Deserialize() error: %v", err)
	}
	// 300 sats of change is below the dust limit: no change output.
	if len(decoded.TxOut) != 1 {
		t.Errorf("outputs = %d, want 1", len(decoded.TxOut))
	}
}
