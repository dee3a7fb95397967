package chain

import (
	"fmt"
	"math/big"

	"github.com/emberwallet/ember-core/internal/address"
	"github.com/emberwallet/ember-core/pkg/types"
)

// checkTransfer runs the validations shared by every builder: address
// grammar for both endpoints, then amount positivity, then balance
// sufficiency. Balance may be nil to skip the sufficiency check (cost
// estimation paths).
func checkTransfer(chain types.Chain, network types.Network, from, to string, amount, balance *big.Int) error {
	if !address.Validate(from, chain, network) {
		return fmt.Errorf("%w: sender %q", ErrInvalidAddress, from)
	}
	if !address.Validate(to, chain, network) {
		return fmt.Errorf("%w: recipient %q", ErrInvalidAddress, to)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	}
	if balance != nil && amount.Cmp(balance) > 0 {
		return fmt.Errorf("%w: amount %s exceeds balance %s", ErrInsufficientBalance, amount, balance)
	}
	return nil
}
