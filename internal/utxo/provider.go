package utxo

import (
	"github.com/Klingon-tech/klingnet-chain/internal/mempool"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Provider adapts a Store to mempool.CoinRecordProvider, the only view the
// mempool core gets of confirmed chain state.
type Provider struct {
	store *Store
}

// NewProvider wraps store as a mempool.CoinRecordProvider.
func NewProvider(store *Store) *Provider {
	return &Provider{store: store}
}

// GetCoinRecords resolves confirmed coin records for a set of coin ids.
// Unknown or not-yet-confirmed ids are simply absent from the result.
func (p *Provider) GetCoinRecords(ids []types.Hash) map[types.Hash]mempool.CoinRecord {
	out := make(map[types.Hash]mempool.CoinRecord, len(ids))
	for _, id := range ids {
		r, err := p.store.Get(id)
		if err != nil {
			continue
		}
		out[id] = mempool.CoinRecord{
			Coin:                r.Coin,
			ConfirmedBlockIndex: r.ConfirmedBlockIndex,
			SpentBlockIndex:     r.SpentBlockIndex,
			Coinbase:            r.Coinbase,
			Timestamp:           r.Timestamp,
		}
	}
	return out
}

// GetUnspentLineageInfoForPuzzleHash resolves the current unspent tip of a
// singleton lineage, used to decide fast-forward eligibility and to rebase
// fast-forward spends at new-peak and block-build time.
func (p *Provider) GetUnspentLineageInfoForPuzzleHash(puzzleHash types.Hash) (*mempool.UnspentLineageInfo, bool) {
	tipID, ok, err := p.store.LineageTip(puzzleHash)
	if err != nil || !ok {
		return nil, false
	}
	tip, err := p.store.Get(tipID)
	if err != nil {
		return nil, false
	}

	var parentParentID types.Hash
	if parent, err := p.store.Get(tip.Coin.ParentID); err == nil {
		parentParentID = parent.Coin.ParentID
	}

	return &mempool.UnspentLineageInfo{
		CoinID:         tipID,
		ParentID:       tip.Coin.ParentID,
		ParentParentID: parentParentID,
	}, true
}
