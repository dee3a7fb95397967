package chain

import (
	"errors"
	"fmt"
	"sort"

	"github.com/emberwallet/ember-core/pkg/types"
)

// Coin selection errors.
var (
	ErrNoUTXOs = errors.New("no UTXOs available")
)

// Selection holds the result of coin selection.
type Selection struct {
	Inputs []types.UTXO // Selected UTXOs to spend.
	Total  uint64       // Sum of selected input values.
	Change uint64       // Change = Total - target.
}

// SelectCoins chooses UTXOs to fund a transaction of the given target
// amount (payment plus fee). It tries two strategies:
//  1. Single UTXO: the smallest single UTXO covering the target
//     (minimizes inputs).
//  2. Largest-first accumulation: greedily adds the largest UTXOs until
//     the target is met.
//
// Returns the strategy producing the least change. Deterministic for a
// given UTXO set: ties in value are broken by outpoint.
func SelectCoins(utxos []types.UTXO, target uint64) (*Selection, error) {
	if len(utxos) == 0 {
		return nil, ErrNoUTXOs
	}
	if target == 0 {
		return nil, fmt.Errorf("%w: target must be positive", ErrInvalidTransaction)
	}

	// Filter out zero-value UTXOs and sort by value ascending.
	candidates := make([]types.UTXO, 0, len(utxos))
	for _, u := range utxos {
		if u.Value > 0 {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoUTXOs
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Value != candidates[j].Value {
			return candidates[i].Value < candidates[j].Value
		}
		return candidates[i].Outpoint.String() < candidates[j].Outpoint.String()
	})

	// Strategy 1: Single UTXO, smallest one that covers the target.
	var single *Selection
	for _, u := range candidates {
		if u.Value >= target {
			single = &Selection{
				Inputs: []types.UTXO{u},
				Total:  u.Value,
				Change: u.Value - target,
			}
			break // Already sorted ascending, first match is smallest.
		}
	}

	// Strategy 2: Largest-first accumulation.
	var accum *Selection
	var selected []types.UTXO
	var total uint64
	for i := len(candidates) - 1; i >= 0; i-- {
		selected = append(selected, candidates[i])
		total += candidates[i].Value
		if total >= target {
			accum = &Selection{
				Inputs: selected,
				Total:  total,
				Change: total - target,
			}
			break
		}
	}

	switch {
	case single != nil && accum != nil:
		// Prefer whichever produces less change (less waste).
		if single.Change <= accum.Change {
			return single, nil
		}
		return accum, nil
	case single != nil:
		return single, nil
	case accum != nil:
		return accum, nil
	default:
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, totalValue(candidates), target)
	}
}

func totalValue(utxos []types.UTXO) uint64 {
	var total uint64
	for _, u := range utxos {
		total += u.Value
	}
	return total
}
