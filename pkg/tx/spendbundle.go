// Package tx defines spend bundles: the atomic, signed groups of coin
// spends that travel through the mempool on their way to a block.
package tx

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// CoinSpend is a single coin being spent: the coin itself, the puzzle
// (locking program) it must satisfy, and the solution (puzzle argument).
// Evaluating PuzzleReveal with Solution yields the spend's conditions.
type CoinSpend struct {
	Coin         types.Coin `json:"coin"`
	PuzzleReveal []byte     `json:"puzzle_reveal"`
	Solution     []byte     `json:"solution"`
}

// CoinID returns the identity hash of the coin being spent.
func (cs CoinSpend) CoinID() types.Hash {
	return cs.Coin.ID(crypto.Hash)
}

// SpendBundle is an ordered list of coin spends plus a single aggregated
// signature covering all of them. It is all-or-nothing: either every spend
// is valid and the aggregate signature checks out, or the whole bundle is
// rejected.
type SpendBundle struct {
	CoinSpends          []CoinSpend `json:"coin_spends"`
	AggregatedSignature []byte      `json:"aggregated_signature"`
}

// signingBytes returns the canonical byte representation hashed to produce
// the bundle's name. It deliberately excludes the aggregated signature:
// the name identifies *what* is being spent and how, not who signed for it,
// mirroring how pkg/crypto.Hash is used elsewhere for content-addressed ids.
func (sb *SpendBundle) signingBytes() []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(sb.CoinSpends)))
	for _, cs := range sb.CoinSpends {
		buf = append(buf, cs.Coin.ParentID[:]...)
		buf = append(buf, cs.Coin.PuzzleHash[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, cs.Coin.Amount)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(cs.PuzzleReveal)))
		buf = append(buf, cs.PuzzleReveal...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(cs.Solution)))
		buf = append(buf, cs.Solution...)
	}
	return buf
}

// Name computes the bundle's id: the hash callers use to refer to it in the
// mempool, in relay filters, and in RPC responses.
func (sb *SpendBundle) Name() types.Hash {
	return crypto.Hash(sb.signingBytes())
}

// RemovalIDs returns the coin ids spent by this bundle, in CoinSpends order.
func (sb *SpendBundle) RemovalIDs() []types.Hash {
	ids := make([]types.Hash, len(sb.CoinSpends))
	for i, cs := range sb.CoinSpends {
		ids[i] = cs.CoinID()
	}
	return ids
}
