package mempool

import (
	"testing"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

var testPeak = PeakInfo{Height: 10, Timestamp: 10_000}

// admit runs the validator and commits the outcome to the store, failing the
// test on anything but admission.
func admit(t *testing.T, v *Validator, store *Store, coins *mockCoins, peak PeakInfo, specs []spendSpec, cost uint64) *MempoolItem {
	t.Helper()
	bundle, conds := buildBundle(specs, cost)
	outcome := v.ValidateSpendBundle(bundle, conds, bundle.Name(), peak.Height, store, coins, peak, 0)
	if outcome.Result != Admitted {
		t.Fatalf("expected admission, got result=%d err=%v", outcome.Result, outcome.Err)
	}
	for _, r := range outcome.Removals {
		store.RemoveFromPool([]types.Hash{r.Name}, ReasonConflict)
	}
	if _, err := store.Add(outcome.Item); err != nil {
		t.Fatalf("store.Add: %v", err)
	}
	return outcome.Item
}

func TestValidator_Admit(t *testing.T) {
	coins := newMockCoins()
	coin := types.Coin{ParentID: hashOf(0x01), PuzzleHash: hashOf(0xAA), Amount: 1000}
	coins.addCoin(coin, 5, 5000)

	v := NewValidator(testCfg())
	store := NewStore(testCfg().MempoolMaxCost())

	item := admit(t, v, store, coins, testPeak, []spendSpec{{
		coin:     coin,
		children: []types.CreateCoin{{PuzzleHash: hashOf(0xBB), Amount: 800}},
	}}, 100)

	if item.Fee != 200 {
		t.Errorf("fee = %d, want 200", item.Fee)
	}
	if item.Cost != 100 {
		t.Errorf("cost = %d, want 100", item.Cost)
	}
	if got := item.FeePerCost(); got != 2.0 {
		t.Errorf("fee_per_cost = %v, want 2.0", got)
	}
	if store.Len() != 1 {
		t.Errorf("store size = %d, want 1", store.Len())
	}
}

func TestValidator_Idempotent(t *testing.T) {
	coins := newMockCoins()
	coin := types.Coin{ParentID: hashOf(0x01), PuzzleHash: hashOf(0xAA), Amount: 1000}
	coins.addCoin(coin, 5, 5000)

	v := NewValidator(testCfg())
	store := NewStore(testCfg().MempoolMaxCost())

	bundle, conds := buildBundle([]spendSpec{{coin: coin}}, 100)
	first := v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if first.Result != Admitted {
		t.Fatalf("first submission: result=%d err=%v", first.Result, first.Err)
	}
	store.Add(first.Item)

	second := v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if second.Result != Admitted {
		t.Fatalf("resubmission: result=%d err=%v", second.Result, second.Err)
	}
	if second.Item != first.Item {
		t.Error("resubmission should return the already-admitted item")
	}
	if len(second.Removals) != 0 {
		t.Error("resubmission should not report removals")
	}
}

func TestValidator_SpendCountMismatch(t *testing.T) {
	coins := newMockCoins()
	coin := types.Coin{ParentID: hashOf(0x01), PuzzleHash: hashOf(0xAA), Amount: 1000}
	coins.addCoin(coin, 5, 5000)

	v := NewValidator(testCfg())
	store := NewStore(testCfg().MempoolMaxCost())

	bundle, conds := buildBundle([]spendSpec{{coin: coin}}, 100)
	conds.Spends = nil

	outcome := v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Failed || outcome.Err.Kind != ErrInvalidSpendBundle {
		t.Errorf("expected INVALID_SPEND_BUNDLE, got result=%d err=%v", outcome.Result, outcome.Err)
	}
}

func TestValidator_CostBounds(t *testing.T) {
	coins := newMockCoins()
	coin := types.Coin{ParentID: hashOf(0x01), PuzzleHash: hashOf(0xAA), Amount: 1000}
	coins.addCoin(coin, 5, 5000)

	cfg := testCfg()
	v := NewValidator(cfg)
	store := NewStore(cfg.MempoolMaxCost())

	bundle, conds := buildBundle([]spendSpec{{coin: coin}}, 0)
	outcome := v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Failed || outcome.Err.Kind != ErrInvalidSpendBundle {
		t.Errorf("zero cost: expected INVALID_SPEND_BUNDLE, got %v", outcome.Err)
	}

	bundle, conds = buildBundle([]spendSpec{{coin: coin}}, cfg.MaxTxClvmCost+1)
	outcome = v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Failed || outcome.Err.Kind != ErrBlockCostExceedsMax {
		t.Errorf("oversized cost: expected BLOCK_COST_EXCEEDS_MAX, got %v", outcome.Err)
	}
}

func TestValidator_DedupCanonicality(t *testing.T) {
	coins := newMockCoins()
	coin := types.Coin{ParentID: hashOf(0x01), PuzzleHash: hashOf(0xAA), Amount: 1000}
	coins.addCoin(coin, 5, 5000)

	v := NewValidator(testCfg())
	store := NewStore(testCfg().MempoolMaxCost())

	// A 5-byte atom encoded with a two-byte length prefix: decodes fine,
	// but the canonical form would use the single-byte prefix.
	oversized := []byte{0xC0, 0x05, 0x01, 0x02, 0x03, 0x04, 0x05}
	bundle, conds := buildBundle([]spendSpec{{coin: coin, dedup: true, solution: oversized}}, 100)
	outcome := v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Failed || outcome.Err.Kind != ErrInvalidCoinSolution {
		t.Fatalf("expected INVALID_COIN_SOLUTION, got result=%d err=%v", outcome.Result, outcome.Err)
	}

	// Same atom, canonical single-byte prefix: accepted.
	canonical := []byte{0x85, 0x01, 0x02, 0x03, 0x04, 0x05}
	admit(t, v, store, coins, testPeak, []spendSpec{{coin: coin, dedup: true, solution: canonical}}, 100)
}

func TestValidator_AllFastForwardRejected(t *testing.T) {
	coins := newMockCoins()
	singleton := types.Coin{ParentID: hashOf(0x02), PuzzleHash: hashOf(0xCC), Amount: 1337}
	sid := coins.addCoin(singleton, 5, 5000)
	coins.setLineage(singleton.PuzzleHash, &UnspentLineageInfo{CoinID: sid, ParentID: singleton.ParentID})

	v := NewValidator(testCfg())
	store := NewStore(testCfg().MempoolMaxCost())

	bundle, conds := buildBundle([]spendSpec{{coin: singleton, ff: true}}, 100)
	outcome := v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Failed || outcome.Err.Kind != ErrInvalidSpendBundle {
		t.Errorf("expected INVALID_SPEND_BUNDLE for all-FF bundle, got %v", outcome.Err)
	}
}

func TestValidator_FastForwardMelted(t *testing.T) {
	coins := newMockCoins()
	singleton := types.Coin{ParentID: hashOf(0x02), PuzzleHash: hashOf(0xCC), Amount: 1337}
	coins.addCoin(singleton, 5, 5000)
	// No lineage registered: the singleton has been melted.

	companion := types.Coin{ParentID: hashOf(0x03), PuzzleHash: hashOf(0xAA), Amount: 500}
	coins.addCoin(companion, 5, 5000)

	v := NewValidator(testCfg())
	store := NewStore(testCfg().MempoolMaxCost())

	bundle, conds := buildBundle([]spendSpec{
		{coin: singleton, ff: true},
		{coin: companion},
	}, 100)
	outcome := v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Failed || outcome.Err.Kind != ErrDoubleSpend {
		t.Errorf("expected DOUBLE_SPEND for melted singleton, got %v", outcome.Err)
	}
}

func TestValidator_UnknownCoin(t *testing.T) {
	coins := newMockCoins()
	unknown := types.Coin{ParentID: hashOf(0x09), PuzzleHash: hashOf(0xAA), Amount: 1000}

	v := NewValidator(testCfg())
	store := NewStore(testCfg().MempoolMaxCost())

	bundle, conds := buildBundle([]spendSpec{{coin: unknown}}, 100)
	outcome := v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Failed || outcome.Err.Kind != ErrUnknownUnspent {
		t.Errorf("expected UNKNOWN_UNSPENT, got %v", outcome.Err)
	}
}

func TestValidator_EphemeralCoin(t *testing.T) {
	coins := newMockCoins()
	parent := types.Coin{ParentID: hashOf(0x01), PuzzleHash: hashOf(0xAA), Amount: 1000}
	parentID := coins.addCoin(parent, 5, 5000)

	// The parent's spend creates a child the same bundle then spends.
	child := types.Coin{ParentID: parentID, PuzzleHash: hashOf(0xBB), Amount: 500}

	v := NewValidator(testCfg())
	store := NewStore(testCfg().MempoolMaxCost())

	item := admit(t, v, store, coins, testPeak, []spendSpec{
		{coin: parent, children: []types.CreateCoin{{PuzzleHash: child.PuzzleHash, Amount: child.Amount}}},
		{coin: child},
	}, 100)

	// fee = (1000 + 500) removed - 500 created
	if item.Fee != 1000 {
		t.Errorf("fee = %d, want 1000", item.Fee)
	}
}

func TestValidator_NegativeFee(t *testing.T) {
	coins := newMockCoins()
	coin := types.Coin{ParentID: hashOf(0x01), PuzzleHash: hashOf(0xAA), Amount: 100}
	coins.addCoin(coin, 5, 5000)

	v := NewValidator(testCfg())
	store := NewStore(testCfg().MempoolMaxCost())

	bundle, conds := buildBundle([]spendSpec{{
		coin:     coin,
		children: []types.CreateCoin{{PuzzleHash: hashOf(0xBB), Amount: 200}},
	}}, 100)
	outcome := v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Failed || outcome.Err.Kind != ErrInvalidBlockFeeAmount {
		t.Errorf("expected INVALID_BLOCK_FEE_AMOUNT, got %v", outcome.Err)
	}
}

func TestValidator_WrongPuzzleHash(t *testing.T) {
	coins := newMockCoins()
	coin := types.Coin{ParentID: hashOf(0x01), PuzzleHash: hashOf(0xAA), Amount: 1000}
	coins.addCoin(coin, 5, 5000)

	v := NewValidator(testCfg())
	store := NewStore(testCfg().MempoolMaxCost())

	bundle, conds := buildBundle([]spendSpec{{coin: coin}}, 100)
	conds.Spends[0].PuzzleHash = hashOf(0xEE)

	outcome := v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Failed || outcome.Err.Kind != ErrWrongPuzzleHash {
		t.Errorf("expected WRONG_PUZZLE_HASH, got %v", outcome.Err)
	}
}

func TestValidator_HeightLockPending(t *testing.T) {
	coins := newMockCoins()
	coin := types.Coin{ParentID: hashOf(0x01), PuzzleHash: hashOf(0xAA), Amount: 1000}
	coins.addCoin(coin, 5, 5000)

	v := NewValidator(testCfg())
	store := NewStore(testCfg().MempoolMaxCost())

	bundle, conds := buildBundle([]spendSpec{{coin: coin}}, 100)
	conds.HeightAbsolute = 105

	outcome := v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Pending {
		t.Fatalf("expected Pending, got result=%d err=%v", outcome.Result, outcome.Err)
	}
	if outcome.Err.Kind != ErrAssertHeightAbsoluteFailed {
		t.Errorf("expected ASSERT_HEIGHT_ABSOLUTE_FAILED, got %v", outcome.Err)
	}
	if outcome.Item == nil || outcome.Item.Envelope.AssertHeight != 105 {
		t.Error("pending item should carry its envelope for the height cache")
	}
}

func TestValidator_SecondsLockFails(t *testing.T) {
	coins := newMockCoins()
	coin := types.Coin{ParentID: hashOf(0x01), PuzzleHash: hashOf(0xAA), Amount: 1000}
	coins.addCoin(coin, 5, 5000)

	v := NewValidator(testCfg())
	store := NewStore(testCfg().MempoolMaxCost())

	bundle, conds := buildBundle([]spendSpec{{coin: coin}}, 100)
	conds.SecondsAbsolute = testPeak.Timestamp + 1

	outcome := v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Failed || outcome.Err.Kind != ErrAssertSecondsAbsoluteFailed {
		t.Errorf("expected ASSERT_SECONDS_ABSOLUTE_FAILED, got %v", outcome.Err)
	}
}

func TestValidator_EnvelopeBoundaries(t *testing.T) {
	coins := newMockCoins()
	coin := types.Coin{ParentID: hashOf(0x01), PuzzleHash: hashOf(0xAA), Amount: 1000}
	coins.addCoin(coin, 5, 5000)

	v := NewValidator(testCfg())
	store := NewStore(testCfg().MempoolMaxCost())

	// assert_before_height == assert_height: never satisfiable.
	bundle, conds := buildBundle([]spendSpec{{coin: coin}}, 100)
	conds.HeightAbsolute = 10
	conds.BeforeHeightAbsolute = u32ptr(10)
	outcome := v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Failed || outcome.Err.Kind != ErrImpossibleHeightAbsoluteConstraints {
		t.Errorf("equal bounds: expected IMPOSSIBLE_HEIGHT_ABSOLUTE_CONSTRAINTS, got %v", outcome.Err)
	}

	// assert_before_height == assert_height + 1: a one-block window is fine.
	bundle, conds = buildBundle([]spendSpec{{coin: coin}}, 100)
	conds.HeightAbsolute = 10
	conds.BeforeHeightAbsolute = u32ptr(11)
	outcome = v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Admitted {
		t.Errorf("one-block window: expected admission, got result=%d err=%v", outcome.Result, outcome.Err)
	}
}

func TestValidator_Replacement_FeeIncreaseBoundary(t *testing.T) {
	cfg := testCfg()
	coins := newMockCoins()
	coin := types.Coin{ParentID: hashOf(0x01), PuzzleHash: hashOf(0xAA), Amount: 50_000_000}
	coins.addCoin(coin, 5, 5000)

	v := NewValidator(cfg)
	store := NewStore(cfg.MempoolMaxCost())

	// B pays fee 200 (creates amount-200 change).
	admit(t, v, store, coins, testPeak, []spendSpec{{
		coin:     coin,
		children: []types.CreateCoin{{PuzzleHash: hashOf(0xBB), Amount: coin.Amount - 200}},
	}}, 100)

	// B2: fee bump of MIN_FEE_INCREASE - 1 over B. Rejected as conflict.
	lowFee := 200 + cfg.MinFeeIncrease - 1
	bundle2, conds2 := buildBundle([]spendSpec{{
		coin:     coin,
		children: []types.CreateCoin{{PuzzleHash: hashOf(0xB2), Amount: coin.Amount - lowFee}},
	}}, 100)
	outcome := v.ValidateSpendBundle(bundle2, conds2, bundle2.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Pending || outcome.Err.Kind != ErrMempoolConflict {
		t.Fatalf("insufficient bump: expected MEMPOOL_CONFLICT pending, got result=%d err=%v", outcome.Result, outcome.Err)
	}

	// B3: fee bump of exactly MIN_FEE_INCREASE. Replaces B.
	okFee := 200 + cfg.MinFeeIncrease
	bundle3, conds3 := buildBundle([]spendSpec{{
		coin:     coin,
		children: []types.CreateCoin{{PuzzleHash: hashOf(0xB3), Amount: coin.Amount - okFee}},
	}}, 100)
	outcome = v.ValidateSpendBundle(bundle3, conds3, bundle3.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Admitted {
		t.Fatalf("exact bump: expected admission, got result=%d err=%v", outcome.Result, outcome.Err)
	}
	if len(outcome.Removals) != 1 {
		t.Errorf("replacement should evict exactly the conflicting item, got %d", len(outcome.Removals))
	}
}

func TestValidator_Replacement_SupersetRule(t *testing.T) {
	cfg := testCfg()
	coins := newMockCoins()
	c1 := types.Coin{ParentID: hashOf(0x01), PuzzleHash: hashOf(0xAA), Amount: 50_000_000}
	c2 := types.Coin{ParentID: hashOf(0x02), PuzzleHash: hashOf(0xAA), Amount: 50_000_000}
	coins.addCoin(c1, 5, 5000)
	coins.addCoin(c2, 5, 5000)

	v := NewValidator(cfg)
	store := NewStore(cfg.MempoolMaxCost())

	// Existing item spends both coins.
	admit(t, v, store, coins, testPeak, []spendSpec{
		{coin: c1, children: []types.CreateCoin{{PuzzleHash: hashOf(0xBB), Amount: c1.Amount - 200}}},
		{coin: c2},
	}, 100)

	// N spends only c1, with an enormous fee. Superset rule still rejects.
	bundle, conds := buildBundle([]spendSpec{{coin: c1}}, 100)
	outcome := v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Pending || outcome.Err.Kind != ErrMempoolConflict {
		t.Errorf("partial removal set: expected MEMPOOL_CONFLICT, got result=%d err=%v", outcome.Result, outcome.Err)
	}
}

func TestValidator_Replacement_EligibilityPreserved(t *testing.T) {
	cfg := testCfg()
	coins := newMockCoins()
	dedupCoin := types.Coin{ParentID: hashOf(0x01), PuzzleHash: hashOf(0xAA), Amount: 50_000_000}
	coins.addCoin(dedupCoin, 5, 5000)

	v := NewValidator(cfg)
	store := NewStore(cfg.MempoolMaxCost())

	admit(t, v, store, coins, testPeak, []spendSpec{{
		coin:     dedupCoin,
		dedup:    true,
		children: []types.CreateCoin{{PuzzleHash: hashOf(0xBB), Amount: dedupCoin.Amount - 200}},
	}}, 100)

	// N spends the same coin without dedup eligibility and a huge fee bump.
	// Stripping eligibility is not allowed.
	bundle, conds := buildBundle([]spendSpec{{coin: dedupCoin}}, 100)
	outcome := v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Pending || outcome.Err.Kind != ErrMempoolConflict {
		t.Errorf("eligibility strip: expected MEMPOOL_CONFLICT, got result=%d err=%v", outcome.Result, outcome.Err)
	}
}

func TestValidator_DedupIdenticalSolutionsCompatible(t *testing.T) {
	cfg := testCfg()
	coins := newMockCoins()
	dedupCoin := types.Coin{ParentID: hashOf(0x01), PuzzleHash: hashOf(0xAA), Amount: 1000}
	other1 := types.Coin{ParentID: hashOf(0x02), PuzzleHash: hashOf(0xAA), Amount: 1000}
	other2 := types.Coin{ParentID: hashOf(0x03), PuzzleHash: hashOf(0xAA), Amount: 1000}
	coins.addCoin(dedupCoin, 5, 5000)
	coins.addCoin(other1, 5, 5000)
	coins.addCoin(other2, 5, 5000)

	v := NewValidator(cfg)
	store := NewStore(cfg.MempoolMaxCost())

	admit(t, v, store, coins, testPeak, []spendSpec{
		{coin: dedupCoin, dedup: true},
		{coin: other1},
	}, 100)

	// A second item spending the same dedup coin with the identical solution
	// is compatible: both stay admitted.
	second := admit(t, v, store, coins, testPeak, []spendSpec{
		{coin: dedupCoin, dedup: true},
		{coin: other2},
	}, 100)

	if store.Len() != 2 {
		t.Errorf("store size = %d, want 2", store.Len())
	}
	if second.BundleCoinSpends[dedupCoin.ID(idHasher)] == nil {
		t.Error("second item should record the shared dedup spend")
	}
}

func TestValidator_PoolFull_FeeChecks(t *testing.T) {
	cfg := smallPoolCfg(1000)
	coins := newMockCoins()
	big := types.Coin{ParentID: hashOf(0x01), PuzzleHash: hashOf(0xAA), Amount: 1_000_000}
	coins.addCoin(big, 5, 5000)

	v := NewValidator(cfg)
	store := NewStore(cfg.MempoolMaxCost())

	// Fill the pool: cost 1000, fee 10_000 (fpc 10).
	admit(t, v, store, coins, testPeak, []spendSpec{{
		coin:     big,
		children: []types.CreateCoin{{PuzzleHash: hashOf(0xBB), Amount: big.Amount - 10_000}},
	}}, 1000)

	// A nonzero fee below the nonzero floor while the pool is full.
	lowCoin := types.Coin{ParentID: hashOf(0x02), PuzzleHash: hashOf(0xAA), Amount: 1_000_000}
	coins.addCoin(lowCoin, 5, 5000)
	bundle, conds := buildBundle([]spendSpec{{
		coin:     lowCoin,
		children: []types.CreateCoin{{PuzzleHash: hashOf(0xBC), Amount: lowCoin.Amount - 100}},
	}}, 500)
	outcome := v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Failed || outcome.Err.Kind != ErrInvalidFeeTooCloseToZero {
		t.Errorf("expected INVALID_FEE_TOO_CLOSE_TO_ZERO, got %v", outcome.Err)
	}

	// A zero fee while the pool is full trips the same floor.
	zeroCoin := types.Coin{ParentID: hashOf(0x04), PuzzleHash: hashOf(0xAA), Amount: 1_000_000}
	coins.addCoin(zeroCoin, 5, 5000)
	bundle, conds = buildBundle([]spendSpec{{
		coin:     zeroCoin,
		children: []types.CreateCoin{{PuzzleHash: hashOf(0xBE), Amount: zeroCoin.Amount}},
	}}, 500)
	outcome = v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Failed || outcome.Err.Kind != ErrInvalidFeeTooCloseToZero {
		t.Errorf("zero fee: expected INVALID_FEE_TOO_CLOSE_TO_ZERO, got %v", outcome.Err)
	}

	// A fee rate exactly equal to the displaced rate: strictly-greater rule
	// rejects it.
	eqCoin := types.Coin{ParentID: hashOf(0x03), PuzzleHash: hashOf(0xAA), Amount: 1_000_000}
	coins.addCoin(eqCoin, 5, 5000)
	bundle, conds = buildBundle([]spendSpec{{
		coin:     eqCoin,
		children: []types.CreateCoin{{PuzzleHash: hashOf(0xBD), Amount: eqCoin.Amount - 5_000}},
	}}, 500) // fpc 10, equal to the resident item's
	outcome = v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Failed || outcome.Err.Kind != ErrInvalidFeeLowFee {
		t.Errorf("expected INVALID_FEE_LOW_FEE for equal rate, got %v", outcome.Err)
	}
}

func TestValidator_PoolFull_FeeCheckPrecedesDoubleSpend(t *testing.T) {
	cfg := smallPoolCfg(1000)
	coins := newMockCoins()
	big := types.Coin{ParentID: hashOf(0x01), PuzzleHash: hashOf(0xAA), Amount: 1_000_000}
	coins.addCoin(big, 5, 5000)

	v := NewValidator(cfg)
	store := NewStore(cfg.MempoolMaxCost())

	admit(t, v, store, coins, testPeak, []spendSpec{{
		coin:     big,
		children: []types.CreateCoin{{PuzzleHash: hashOf(0xBB), Amount: big.Amount - 10_000}},
	}}, 1000)

	// A bundle that both spends an already-spent coin and fails the fee
	// rule: the capacity check runs first, so the fee kind is reported.
	spentCoin := types.Coin{ParentID: hashOf(0x02), PuzzleHash: hashOf(0xAA), Amount: 1_000_000}
	spentID := coins.addCoin(spentCoin, 5, 5000)
	coins.spend(spentID, 9)

	bundle, conds := buildBundle([]spendSpec{{
		coin:     spentCoin,
		children: []types.CreateCoin{{PuzzleHash: hashOf(0xBC), Amount: spentCoin.Amount - 4_000}},
	}}, 500) // fpc 8, above the floor but below the resident rate
	outcome := v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Failed || outcome.Err.Kind != ErrInvalidFeeLowFee {
		t.Errorf("expected INVALID_FEE_LOW_FEE before double-spend detection, got %v", outcome.Err)
	}

	// With an ample fee, the same bundle is rejected as a double-spend.
	bundle, conds = buildBundle([]spendSpec{{
		coin:     spentCoin,
		children: []types.CreateCoin{{PuzzleHash: hashOf(0xBD), Amount: spentCoin.Amount - 500_000}},
	}}, 500)
	outcome = v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Failed || outcome.Err.Kind != ErrDoubleSpend {
		t.Errorf("expected DOUBLE_SPEND once the fee clears, got %v", outcome.Err)
	}
}

func TestValidator_PoolFull_CostExceedsBudget(t *testing.T) {
	// Per-tx budget above the pool budget, so an oversized-for-the-pool cost
	// reaches the capacity check instead of failing the per-tx bound.
	cfg := smallPoolCfg(1000)
	cfg.MaxTxClvmCost = 2000

	coins := newMockCoins()
	coin := types.Coin{ParentID: hashOf(0x01), PuzzleHash: hashOf(0xAA), Amount: 1_000_000}
	coins.addCoin(coin, 5, 5000)

	v := NewValidator(cfg)
	store := NewStore(cfg.MempoolMaxCost())

	bundle, conds := buildBundle([]spendSpec{{
		coin:     coin,
		children: []types.CreateCoin{{PuzzleHash: hashOf(0xBB), Amount: coin.Amount - 500_000}},
	}}, 1500)
	outcome := v.ValidateSpendBundle(bundle, conds, bundle.Name(), 10, store, coins, testPeak, 0)
	if outcome.Result != Failed || outcome.Err.Kind != ErrInvalidCostResult {
		t.Errorf("expected INVALID_COST_RESULT for a cost no eviction can fit, got %v", outcome.Err)
	}
}
