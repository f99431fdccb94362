// Package utxo is the node's coin-store adapter: the persistent record of
// which coins exist, whether they've been spent, and, for singleton
// puzzles, which coin is currently the live tip of the lineage. The
// mempool core treats this package purely through the
// mempool.CoinRecordProvider interface; everything else here is
// implementation.
package utxo

import "github.com/Klingon-tech/klingnet-chain/pkg/types"

// Record is the persisted view of one coin: its contents plus confirmation
// and spend state.
type Record struct {
	Coin                types.Coin `json:"coin"`
	ConfirmedBlockIndex uint32     `json:"confirmed_block_index"`
	SpentBlockIndex     uint32     `json:"spent_block_index,omitempty"`
	Coinbase            bool       `json:"coinbase"`
	Timestamp           uint64     `json:"timestamp"`
}

// Spent reports whether this coin has been spent on-chain.
func (r Record) Spent() bool {
	return r.SpentBlockIndex != 0
}

// Set is the storage interface Store implements: persisted coin records
// plus the singleton-lineage pointer used for fast-forward rebasing.
type Set interface {
	Get(coinID types.Hash) (*Record, error)
	Put(r *Record) error
	Spend(coinID types.Hash, spentBlockIndex uint32) error
	Has(coinID types.Hash) (bool, error)

	// SetLineageTip records that coinID is the current unspent tip of the
	// singleton identified by puzzleHash.
	SetLineageTip(puzzleHash types.Hash, coinID types.Hash) error
	// LineageTip returns the current unspent tip coin id for a singleton
	// puzzle hash, if the singleton is still live.
	LineageTip(puzzleHash types.Hash) (types.Hash, bool, error)
}
