package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/emberwallet/ember-core/internal/address"
	"github.com/emberwallet/ember-core/internal/hdkey"
	"github.com/emberwallet/ember-core/internal/log"
	"github.com/emberwallet/ember-core/internal/netclient"
	"github.com/emberwallet/ember-core/pkg/types"
)

// Gas limits for the two transfer shapes this engine produces.
const (
	ethTransferGas = 21_000
	erc20TransferGas = 65_000
)

// erc20TransferSelector is the 4-byte selector of transfer(address,uint256).
var erc20TransferSelector = []byte{0xa9, 0x05, 0x9c, 0xbb}

// EthereumProvider builds EIP-1559 transfers against a JSON-RPC node.
type EthereumProvider struct {
	client  *netclient.EthereumClient
	chainID *big.Int
	network types.Network
}

// NewEthereumProvider creates a provider for the given chain id and network.
func NewEthereumProvider(client *netclient.EthereumClient, chainID uint64, network types.Network) *EthereumProvider {
	return &EthereumProvider{
		client:  client,
		chainID: new(big.Int).SetUint64(chainID),
		network: network,
	}
}

func (p *EthereumProvider) Chain() types.Chain { return types.ChainEthereum }

// ValidateAddress checks hex grammar and the EIP-55 checksum for
// mixed-case addresses.
func (p *EthereumProvider) ValidateAddress(addr string) bool {
	return address.Validate(addr, types.ChainEthereum, p.network)
}

// suggestFee assembles EIP-1559 fee defaults from node suggestions. The
// fee cap leaves headroom of one full base-fee doubling.
func (p *EthereumProvider) suggestFee(ctx context.Context, gasLimit uint64) (*types.EthereumFee, error) {
	gasPrice, err := p.client.GasPrice(ctx)
	if err != nil {
		return nil, err
	}
	tip, err := p.client.MaxPriorityFee(ctx)
	if err != nil {
		return nil, err
	}
	maxFee := new(big.Int).Mul(gasPrice, big.NewInt(2))
	maxFee.Add(maxFee, tip)
	return &types.EthereumFee{
		GasLimit:             gasLimit,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: tip,
	}, nil
}

func maxCost(fee *types.EthereumFee) *big.Int {
	return new(big.Int).Mul(fee.MaxFeePerGas, new(big.Int).SetUint64(fee.GasLimit))
}

// BuildTransfer builds a native ETH transfer with current fee defaults
// and the sender's next pending nonce.
func (p *EthereumProvider) BuildTransfer(ctx context.Context, from, to string, amount *big.Int) (*types.UnsignedTx, error) {
	balance, err := p.fetchBalanceChecked(ctx, from, to, amount)
	if err != nil {
		return nil, err
	}
	fee, err := p.suggestFee(ctx, ethTransferGas)
	if err != nil {
		return nil, err
	}

	// The worst-case fee must fit next to the amount itself.
	need := new(big.Int).Add(amount, maxCost(fee))
	if need.Cmp(balance) > 0 {
		return nil, fmt.Errorf("%w: amount plus max fee %s exceeds balance %s", ErrInsufficientBalance, need, balance)
	}

	nonce, err := p.client.PendingNonce(ctx, from)
	if err != nil {
		return nil, err
	}

	return &types.UnsignedTx{
		Chain:       types.ChainEthereum,
		Network:     p.network,
		From:        from,
		To:          to,
		Amount:      new(big.Int).Set(amount),
		Nonce:       nonce,
		Timestamp:   time.Now().UTC(),
		EthereumFee: fee,
	}, nil
}

// BuildTokenTransfer builds an ERC-20 transfer(to, amount) call. The
// token amount is expressed in the token's base units.
func (p *EthereumProvider) BuildTokenTransfer(ctx context.Context, from, to, token string, amount *big.Int) (*types.UnsignedTx, error) {
	if !p.ValidateAddress(token) {
		return nil, fmt.Errorf("%w: token contract %q", ErrInvalidAddress, token)
	}
	if err := checkTransfer(types.ChainEthereum, p.network, from, to, amount, nil); err != nil {
		return nil, err
	}

	fee, err := p.suggestFee(ctx, erc20TransferGas)
	if err != nil {
		return nil, err
	}

	// Gas is paid in ETH even for token moves.
	balance, err := p.client.FetchBalance(ctx, from)
	if err != nil {
		return nil, err
	}
	if maxCost(fee).Cmp(balance) > 0 {
		return nil, fmt.Errorf("%w: max fee %s exceeds balance %s", ErrInsufficientBalance, maxCost(fee), balance)
	}

	nonce, err := p.client.PendingNonce(ctx, from)
	if err != nil {
		return nil, err
	}

	return &types.UnsignedTx{
		Chain:       types.ChainEthereum,
		Network:     p.network,
		From:        from,
		To:          to,
		Amount:      new(big.Int).Set(amount),
		Token:       token,
		Payload:     erc20TransferCalldata(to, amount),
		Nonce:       nonce,
		Timestamp:   time.Now().UTC(),
		EthereumFee: fee,
	}, nil
}

// erc20TransferCalldata encodes transfer(address,uint256) per the ABI:
// selector plus two left-padded 32-byte words.
func erc20TransferCalldata(to string, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, erc20TransferSelector...)
	var word [32]byte
	copy(word[12:], gethcommon.HexToAddress(to).Bytes())
	data = append(data, word[:]...)
	word = [32]byte{}
	amount.FillBytes(word[:])
	return append(data, word[:]...)
}

// EstimateCost returns the worst-case fee for a native transfer at
// current fee-market rates. It performs no state mutation.
func (p *EthereumProvider) EstimateCost(ctx context.Context, from, to string, amount *big.Int) (*types.FeeEstimate, error) {
	if err := checkTransfer(types.ChainEthereum, p.network, from, to, amount, nil); err != nil {
		return nil, err
	}
	fee, err := p.suggestFee(ctx, ethTransferGas)
	if err != nil {
		return nil, err
	}
	return &types.FeeEstimate{
		Chain:    types.ChainEthereum,
		Total:    maxCost(fee),
		Ethereum: fee,
	}, nil
}

// Sign produces an EIP-1559 (type 2) signed transaction. Signing is
// offline; everything needed is already in the unsigned transaction.
func (p *EthereumProvider) Sign(_ context.Context, utx *types.UnsignedTx, key *hdkey.HDKey) (*types.SignedTx, error) {
	if utx.EthereumFee == nil {
		return nil, fmt.Errorf("%w: missing ethereum fee parameters", ErrInvalidTransaction)
	}

	priv, err := gethcrypto.ToECDSA(key.PrivateKeyBytes())
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}

	// Token transfers move value inside calldata; the outer tx carries 0.
	to := gethcommon.HexToAddress(utx.To)
	value := utx.Amount
	data := []byte(nil)
	if utx.Token != "" {
		to = gethcommon.HexToAddress(utx.Token)
		value = new(big.Int)
		data = utx.Payload
	}

	signer := gethtypes.LatestSignerForChainID(p.chainID)
	signed, err := gethtypes.SignNewTx(priv, signer, &gethtypes.DynamicFeeTx{
		ChainID:   p.chainID,
		Nonce:     utx.Nonce,
		GasTipCap: utx.EthereumFee.MaxPriorityFeePerGas,
		GasFeeCap: utx.EthereumFee.MaxFeePerGas,
		Gas:       utx.EthereumFee.GasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}

	_, r, s := signed.RawSignatureValues()
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])

	log.Chain.Debug().
		Str("txid", signed.Hash().Hex()).
		Uint64("nonce", utx.Nonce).
		Msg("ethereum transaction signed")

	return &types.SignedTx{
		UnsignedTx: *utx,
		Signature:  sig,
		Raw:        raw,
		TxID:       signed.Hash().Hex(),
	}, nil
}

func (p *EthereumProvider) fetchBalanceChecked(ctx context.Context, from, to string, amount *big.Int) (*big.Int, error) {
	if err := checkTransfer(types.ChainEthereum, p.network, from, to, amount, nil); err != nil {
		return nil, err
	}
	balance, err := p.client.FetchBalance(ctx, from)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(balance) > 0 {
		return nil, fmt.Errorf("%w: amount %s exceeds balance %s", ErrInsufficientBalance, amount, balance)
	}
	return balance, nil
}
