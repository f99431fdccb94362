package mempool

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// mockCoins is a simple in-memory coin-record provider for tests.
type mockCoins struct {
	records  map[types.Hash]CoinRecord
	lineages map[types.Hash]*UnspentLineageInfo
}

func newMockCoins() *mockCoins {
	return &mockCoins{
		records:  make(map[types.Hash]CoinRecord),
		lineages: make(map[types.Hash]*UnspentLineageInfo),
	}
}

// addCoin registers an unspent coin confirmed at the given height/timestamp
// and returns its id.
func (m *mockCoins) addCoin(c types.Coin, height uint32, ts uint64) types.Hash {
	id := c.ID(crypto.Hash)
	m.records[id] = CoinRecord{Coin: c, ConfirmedBlockIndex: height, Timestamp: ts}
	return id
}

// spend marks a registered coin as spent at the given height.
func (m *mockCoins) spend(id types.Hash, height uint32) {
	r := m.records[id]
	r.SpentBlockIndex = height
	m.records[id] = r
}

func (m *mockCoins) setLineage(ph types.Hash, info *UnspentLineageInfo) {
	if info == nil {
		delete(m.lineages, ph)
		return
	}
	m.lineages[ph] = info
}

func (m *mockCoins) GetCoinRecords(ids []types.Hash) map[types.Hash]CoinRecord {
	out := make(map[types.Hash]CoinRecord)
	for _, id := range ids {
		if r, ok := m.records[id]; ok {
			out[id] = r
		}
	}
	return out
}

func (m *mockCoins) GetUnspentLineageInfoForPuzzleHash(ph types.Hash) (*UnspentLineageInfo, bool) {
	info, ok := m.lineages[ph]
	return info, ok
}

// spendSpec describes one coin spend for buildBundle.
type spendSpec struct {
	coin     types.Coin
	ff       bool
	dedup    bool
	solution []byte // defaults to a hash of children, or the canonical NIL atom
	children []types.CreateCoin
}

// canonicalNil is the canonical CLVM encoding of the empty list.
var canonicalNil = []byte{0x80}

// buildBundle assembles a spend bundle and matching pre-validated
// conditions. The per-spend cost is split evenly over totalCost.
func buildBundle(specs []spendSpec, totalCost uint64) (*tx.SpendBundle, SpendBundleConditions) {
	bundle := &tx.SpendBundle{}
	conds := SpendBundleConditions{Cost: totalCost, ValidatedSignature: true}

	perSpend := totalCost
	if len(specs) > 0 {
		perSpend = totalCost / uint64(len(specs))
	}

	for _, spec := range specs {
		reveal := []byte{0x01, 0x02, 0x03}
		if spec.ff {
			reveal = []byte{0xff, 0x01, 0x04}
		}
		sol := spec.solution
		if sol == nil && len(spec.children) > 0 {
			// A spend's conditions come from its solution, so spends creating
			// different children get different solutions (and bundle names):
			// a canonical 32-byte atom holding a hash of the children.
			var enc []byte
			for _, child := range spec.children {
				enc = append(enc, child.PuzzleHash[:]...)
				enc = binary.BigEndian.AppendUint64(enc, child.Amount)
				enc = append(enc, child.Hint...)
			}
			h := crypto.Hash(enc)
			sol = append([]byte{0xA0}, h[:]...)
		}
		if sol == nil {
			sol = canonicalNil
		}
		cs := tx.CoinSpend{Coin: spec.coin, PuzzleReveal: reveal, Solution: sol}
		bundle.CoinSpends = append(bundle.CoinSpends, cs)

		var flags ConditionFlag
		if spec.ff {
			flags |= EligibleForFastForward
		}
		if spec.dedup {
			flags |= EligibleForDedup
		}
		sc := SpendConditions{
			CoinID:        cs.CoinID(),
			PuzzleHash:    spec.coin.PuzzleHash,
			ExecutionCost: perSpend,
			Flags:         flags,
		}
		for _, child := range spec.children {
			sc.CreateCoin = append(sc.CreateCoin, CreateCoinCondition{
				PuzzleHash: child.PuzzleHash,
				Amount:     child.Amount,
				Hint:       child.Hint,
			})
		}
		conds.Spends = append(conds.Spends, sc)
	}

	return bundle, conds
}

// testCfg returns the default mempool config with a single pre-validation
// worker. Capacity tests shrink the budgets through smallPoolCfg.
func testCfg() config.MempoolConfig {
	cfg := config.DefaultMempoolConfig()
	cfg.WorkerCount = 1
	return cfg
}

func smallPoolCfg(poolCap uint64) config.MempoolConfig {
	cfg := testCfg()
	cfg.MaxTxClvmCost = poolCap
	cfg.MaxBlockClvmCost = poolCap
	cfg.MempoolBlockBuffer = 1
	return cfg
}

func hashOf(b byte) types.Hash {
	var h types.Hash
	h[0] = b
	return h
}

func u32ptr(v uint32) *uint32 { return &v }
func u64ptr(v uint64) *uint64 { return &v }

// idHasher is the hash function coin ids are derived with.
var idHasher = crypto.Hash
