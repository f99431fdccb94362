package mempool

import (
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// UnspentLineageInfo identifies the current on-chain tip of a singleton
// lineage: the live coin plus its immediate and grandparent ids, enough to
// rewrite an older fast-forward spend's parent references.
type UnspentLineageInfo struct {
	CoinID         types.Hash
	ParentID       types.Hash
	ParentParentID types.Hash
}

// BundleCoinSpend is the per-coin record attached to an admitted item: the
// original spend plus everything the store and block generator need to
// decide whether it can merge, rebase, or conflict with another spend.
type BundleCoinSpend struct {
	CoinSpend              tx.CoinSpend
	EligibleForDedup       bool
	EligibleForFastForward bool
	Children               []types.CreateCoin
	Cost                   uint64
	LatestSingletonLineage *UnspentLineageInfo
}

// MempoolItem is an admitted spend bundle. It is treated as immutable once
// constructed: block generation and fast-forward rebasing operate on
// shallow clones, never on the stored value.
type MempoolItem struct {
	SpendBundle          *tx.SpendBundle
	Conds                SpendBundleConditions
	Name                 types.Hash
	Fee                  uint64
	Cost                 uint64
	HeightAddedToMempool uint32
	Envelope             TimelockEnvelope
	BundleCoinSpends     map[types.Hash]*BundleCoinSpend
	CoinSpendOrder       []types.Hash // preserves insertion order for deterministic iteration
}

// FeePerCost is the item's ranking metric: fee per unit of CLVM cost.
func (m *MempoolItem) FeePerCost() float64 {
	if m.Cost == 0 {
		return 0
	}
	return float64(m.Fee) / float64(m.Cost)
}

// RemovalIDs returns the coin ids this item spends, in stable order.
func (m *MempoolItem) RemovalIDs() []types.Hash {
	ids := make([]types.Hash, len(m.CoinSpendOrder))
	copy(ids, m.CoinSpendOrder)
	return ids
}

// PuzzleHashes returns the distinct puzzle hashes this item's spends
// target, used to index the store for fast-forward rebasing lookups.
func (m *MempoolItem) PuzzleHashes() []types.Hash {
	seen := make(map[types.Hash]struct{})
	var out []types.Hash
	for _, id := range m.CoinSpendOrder {
		bcs := m.BundleCoinSpends[id]
		if bcs == nil {
			continue
		}
		ph := bcs.CoinSpend.Coin.PuzzleHash
		if _, ok := seen[ph]; ok {
			continue
		}
		seen[ph] = struct{}{}
		out = append(out, ph)
	}
	return out
}

// Hints returns the distinct non-empty CREATE_COIN hints this item's
// children carry, used to index the store for mempool-update notifications.
func (m *MempoolItem) Hints() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, id := range m.CoinSpendOrder {
		bcs := m.BundleCoinSpends[id]
		if bcs == nil {
			continue
		}
		for _, child := range bcs.Children {
			if len(child.Hint) == 0 {
				continue
			}
			h := string(child.Hint)
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}

// Clone returns a shallow copy of the item safe for in-place mutation by
// block-build fast-forward rebasing: the BundleCoinSpends map and its
// *BundleCoinSpend values are duplicated, but CoinSpend.PuzzleReveal/
// Solution byte slices are shared (never mutated, only replaced wholesale).
func (m *MempoolItem) Clone() *MempoolItem {
	clone := *m
	clone.BundleCoinSpends = make(map[types.Hash]*BundleCoinSpend, len(m.BundleCoinSpends))
	for id, bcs := range m.BundleCoinSpends {
		bcsCopy := *bcs
		clone.BundleCoinSpends[id] = &bcsCopy
	}
	clone.CoinSpendOrder = append([]types.Hash(nil), m.CoinSpendOrder...)
	return &clone
}

// RemovalReason identifies why an item left the store.
type RemovalReason int

const (
	ReasonBlockInclusion RemovalReason = iota
	ReasonConflict
	ReasonPoolFull
	ReasonExpired
)

func (r RemovalReason) String() string {
	switch r {
	case ReasonBlockInclusion:
		return "BLOCK_INCLUSION"
	case ReasonConflict:
		return "CONFLICT"
	case ReasonPoolFull:
		return "POOL_FULL"
	case ReasonExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}
