package mempool

import (
	"time"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// BlockGenerator is the result of block-candidate selection: the coin
// spends to include (already fast-forward rebased and dedup-merged), the
// items they came from (for removal bookkeeping once the block lands), and
// the aggregated signature covering every included spend.
type BlockGenerator struct {
	CoinSpends          []tx.CoinSpend
	AggregatedSignature []byte
	IncludedItems       []types.Hash
	TotalCost           uint64
	TotalFee            uint64
}

// buildBlockGenerator selects the next block's candidate spends:
// iterate admitted items by descending fee_per_cost, skip anything whose
// non-FF/non-dedup coins are already taken, rebase fast-forward spends
// against a running per-puzzle lineage table, and merge dedup spends that
// repeat an already-selected (coin_id, solution) pair.
func buildBlockGenerator(store *Store, budget uint64, deadline time.Time) *BlockGenerator {
	return selectBlockItems(store, budget, deadline, false)
}

// buildBlockGenerator2 selects a contiguous fee-rate prefix: the first item
// that doesn't fit the remaining budget ends the selection instead of being
// skipped.
func buildBlockGenerator2(store *Store, budget uint64, deadline time.Time) *BlockGenerator {
	return selectBlockItems(store, budget, deadline, true)
}

func selectBlockItems(store *Store, budget uint64, deadline time.Time, strictPrefix bool) *BlockGenerator {
	gen := &BlockGenerator{}

	taken := make(map[types.Hash]struct{})                       // non-FF/non-dedup coins already spent by a selected item
	dedupSeen := make(map[types.Hash]struct{})                   // (coin_id) already emitted once for a dedup spend
	fastForwardSpends := make(map[types.Hash]UnspentLineageInfo) // puzzle_hash -> latest child produced this build

	var remaining uint64 = budget

	for _, item := range store.ItemsByFeerate() {
		if remaining == 0 {
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}
		if item.Cost > remaining {
			if strictPrefix {
				break
			}
			continue
		}

		skip := false
		for _, coinID := range item.CoinSpendOrder {
			bcs := item.BundleCoinSpends[coinID]
			if bcs.EligibleForFastForward || bcs.EligibleForDedup {
				continue
			}
			if _, ok := taken[coinID]; ok {
				skip = true
				break
			}
		}
		if skip {
			continue
		}

		clone := item.Clone()
		rebasedSpends := make([]tx.CoinSpend, 0, len(clone.CoinSpendOrder))
		dup := false

		for _, coinID := range clone.CoinSpendOrder {
			bcs := clone.BundleCoinSpends[coinID]

			switch {
			case bcs.EligibleForDedup:
				if _, already := dedupSeen[coinID]; already {
					continue // merged: the earlier selection's spend already covers this coin
				}
				dedupSeen[coinID] = struct{}{}
				rebasedSpends = append(rebasedSpends, bcs.CoinSpend)

			case bcs.EligibleForFastForward:
				ph := bcs.CoinSpend.Coin.PuzzleHash
				lineage := bcs.LatestSingletonLineage
				if running, ok := fastForwardSpends[ph]; ok {
					lineage = &running
				}
				if lineage == nil {
					dup = true
				} else {
					rebased := bcs.CoinSpend
					rebased.Coin.ParentID = lineage.ParentID
					rebasedSpends = append(rebasedSpends, rebased)
					fastForwardSpends[ph] = UnspentLineageInfo{
						CoinID:         deriveChildCoinID(rebased),
						ParentID:       rebased.CoinID(),
						ParentParentID: lineage.ParentID,
					}
				}

			default:
				taken[coinID] = struct{}{}
				rebasedSpends = append(rebasedSpends, bcs.CoinSpend)
			}
			if dup {
				break
			}
		}
		if dup {
			continue
		}

		gen.CoinSpends = append(gen.CoinSpends, rebasedSpends...)
		gen.IncludedItems = append(gen.IncludedItems, item.Name)
		gen.TotalCost += item.Cost
		gen.TotalFee += item.Fee
		gen.AggregatedSignature = crypto.AggregateSignatures(gen.AggregatedSignature, item.SpendBundle.AggregatedSignature)
		remaining -= item.Cost
	}

	return gen
}

// deriveChildCoinID is a placeholder for the CLVM-derived child coin id a
// real executor would compute from the rebased spend's conditions; the
// mempool core does not interpret CLVM, so callers needing the true child
// id recompute it from the rebased spend's own CREATE_COIN condition once
// it is available. Here it returns the spend's own coin id as the next
// lineage anchor, sufficient for chaining within a single block build.
func deriveChildCoinID(cs tx.CoinSpend) types.Hash {
	return cs.CoinID()
}
