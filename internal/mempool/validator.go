package mempool

import (
	"time"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// CoinRecordProvider is the coin-store capability the validator depends on.
// It is intentionally tiny: the validator never needs anything from the
// coin store beyond these two lookups.
type CoinRecordProvider interface {
	GetCoinRecords(ids []types.Hash) map[types.Hash]CoinRecord
	GetUnspentLineageInfoForPuzzleHash(ph types.Hash) (*UnspentLineageInfo, bool)
}

// PeakInfo is the subset of the current chain tip the validator needs.
type PeakInfo struct {
	Height    uint32
	Timestamp uint64
}

// Outcome classifies a validation attempt's result.
type Outcome int

const (
	Admitted Outcome = iota
	Pending
	Failed
)

// ValidationOutcome is the validator's result: either an admitted item (with
// any conflicting items it replaced), a pending item parked for later retry,
// or a hard failure.
type ValidationOutcome struct {
	Result   Outcome
	Item     *MempoolItem
	Removals []*MempoolItem
	Err      *ValidationError
}

// Validator turns a spend bundle plus its pre-validated conditions into an
// admission decision.
type Validator struct {
	cfg config.MempoolConfig
}

// NewValidator constructs a validator bound to cfg's cost/fee tunables.
func NewValidator(cfg config.MempoolConfig) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateSpendBundle runs the full admission algorithm.
// elapsed is the wall-clock time already spent processing this bundle
// (pre-validation plus everything up to this call), used for the DoS time
// budget guard in step 13.
func (v *Validator) ValidateSpendBundle(
	bundle *tx.SpendBundle,
	conds SpendBundleConditions,
	name types.Hash,
	firstAddedHeight uint32,
	store *Store,
	provider CoinRecordProvider,
	peak PeakInfo,
	elapsed time.Duration,
) ValidationOutcome {
	// 1. short-circuit on idempotent re-submission.
	if existing, ok := store.Get(name); ok {
		return ValidationOutcome{Result: Admitted, Item: existing}
	}

	// 2. sanity checks.
	if len(bundle.CoinSpends) != len(conds.Spends) {
		return fail(NewValidationError(ErrInvalidSpendBundle, "coin spend count %d != condition count %d", len(bundle.CoinSpends), len(conds.Spends)))
	}
	if conds.Cost == 0 {
		return fail(NewValidationError(ErrInvalidSpendBundle, "zero cost"))
	}
	if conds.Cost > v.cfg.MaxTxClvmCost {
		return fail(NewValidationError(ErrBlockCostExceedsMax, "cost %d exceeds max_tx_clvm_cost %d", conds.Cost, v.cfg.MaxTxClvmCost))
	}

	// 3. per-spend eligibility and bookkeeping.
	bundleCoinSpends := make(map[types.Hash]*BundleCoinSpend, len(bundle.CoinSpends))
	order := make([]types.Hash, 0, len(bundle.CoinSpends))
	for i, cs := range bundle.CoinSpends {
		sc := conds.Spends[i]
		coinID := cs.CoinID()

		bcs := &BundleCoinSpend{
			CoinSpend: cs,
			Cost:      sc.Cost(),
		}
		for _, cc := range sc.CreateCoin {
			bcs.Children = append(bcs.Children, types.CreateCoin{
				PuzzleHash: cc.PuzzleHash,
				Amount:     cc.Amount,
				Hint:       cc.Hint,
			})
		}

		if sc.Flags.Has(EligibleForDedup) {
			if !tx.IsCanonicalSerialization(cs.Solution) {
				return fail(NewValidationError(ErrInvalidCoinSolution, "non-canonical solution for dedup-eligible coin %s", coinID))
			}
			bcs.EligibleForDedup = true
		}

		if sc.Flags.Has(EligibleForFastForward) && tx.SupportsFastForward(cs) {
			lineage, ok := provider.GetUnspentLineageInfoForPuzzleHash(sc.PuzzleHash)
			if !ok {
				return fail(NewValidationError(ErrDoubleSpend, "singleton for puzzle %s has no unspent descendant", sc.PuzzleHash))
			}
			bcs.EligibleForFastForward = true
			bcs.LatestSingletonLineage = lineage
		}

		bundleCoinSpends[coinID] = bcs
		order = append(order, coinID)
	}

	// 4. reject all-FF bundles.
	if conds.AllFastForward() {
		return fail(NewValidationError(ErrInvalidSpendBundle, "bundle consists entirely of fast-forward spends"))
	}

	// 5. fetch removal records, synthesizing ephemeral ones.
	records := provider.GetCoinRecords(order)
	childIndex := buildChildIndex(order, bundleCoinSpends)
	for _, coinID := range order {
		if _, ok := records[coinID]; ok {
			continue
		}
		if parentCoin, ok := childIndex[coinID]; ok {
			records[coinID] = CoinRecord{
				Coin:                parentCoin,
				ConfirmedBlockIndex: peak.Height + 1,
				Timestamp:           peak.Timestamp,
			}
			continue
		}
		return fail(NewValidationError(ErrUnknownUnspent, "coin %s not found and not ephemeral", coinID))
	}

	// 6. fee computation.
	var removalTotal, additionTotal uint64
	for _, coinID := range order {
		removalTotal += records[coinID].Coin.Amount
	}
	for _, coinID := range order {
		for _, child := range bundleCoinSpends[coinID].Children {
			additionTotal += child.Amount
		}
	}
	if additionTotal > removalTotal {
		return fail(NewValidationError(ErrInvalidBlockFeeAmount, "spend creates more value (%d) than it removes (%d)", additionTotal, removalTotal))
	}
	fee := removalTotal - additionTotal
	const int63Max = 1<<63 - 1
	if fee > int63Max {
		return fail(NewValidationError(ErrInvalidBlockFeeAmount, "fee %d overflows signed 63-bit bound", fee))
	}

	// 7. capacity / min-fee-rate check. The nonzero-fee floor only applies
	// when the pool is full: an uncongested pool accepts any non-negative fee.
	feePerCost := float64(fee) / float64(conds.Cost)
	if store.AtFullCapacity(conds.Cost) {
		if feePerCost < float64(v.cfg.NonzeroFeeMinFPC) {
			return fail(NewValidationError(ErrInvalidFeeTooCloseToZero, "fee_per_cost %.6f below nonzero minimum %d", feePerCost, v.cfg.NonzeroFeeMinFPC))
		}
		minRate := store.GetMinFeeRate(conds.Cost)
		if minRate == nil {
			return fail(NewValidationError(ErrInvalidCostResult, "cost %d alone exceeds pool capacity", conds.Cost))
		}
		if feePerCost <= *minRate {
			return fail(NewValidationError(ErrInvalidFeeLowFee, "fee_per_cost %.6f does not exceed pool min %.6f", feePerCost, *minRate))
		}
	}

	// 8. double-spend and conflict detection. A coin already spent on-chain
	// only survives here when its spend can be fast-forwarded.
	for _, coinID := range order {
		if records[coinID].Spent() && !bundleCoinSpends[coinID].EligibleForFastForward {
			return fail(NewValidationError(ErrDoubleSpend, "coin %s already spent on-chain", coinID))
		}
	}
	conflicts, hardConflict := detectConflicts(store, order, bundleCoinSpends)

	// 9. puzzle-hash match.
	for i, cs := range bundle.CoinSpends {
		sc := conds.Spends[i]
		coinID := cs.CoinID()
		if records[coinID].Coin.PuzzleHash != sc.PuzzleHash {
			return fail(NewValidationError(ErrWrongPuzzleHash, "coin %s declared puzzle hash mismatch", coinID))
		}
	}

	// 10. time-lock check.
	env := ComputeTimelockEnvelope(records, conds)
	if env.AssertHeight > peak.Height {
		return ValidationOutcome{
			Result: Pending,
			Item:   buildItem(bundle, conds, name, firstAddedHeight, fee, env, order, bundleCoinSpends),
			Err:    NewValidationError(ErrAssertHeightAbsoluteFailed, "assert_height %d > peak height %d", env.AssertHeight, peak.Height),
		}
	}
	if env.AssertSeconds > peak.Timestamp {
		return fail(NewValidationError(ErrAssertSecondsAbsoluteFailed, "assert_seconds %d > peak timestamp %d", env.AssertSeconds, peak.Timestamp))
	}

	// 11. envelope consistency.
	if !env.Valid() {
		if env.AssertBeforeHeight != nil && *env.AssertBeforeHeight <= env.AssertHeight {
			return fail(NewValidationError(ErrImpossibleHeightAbsoluteConstraints, "assert_before_height %d <= assert_height %d", *env.AssertBeforeHeight, env.AssertHeight))
		}
		return fail(NewValidationError(ErrImpossibleSecondsAbsoluteConstraints, "assert_before_seconds %d <= assert_seconds %d", *env.AssertBeforeSeconds, env.AssertSeconds))
	}

	item := buildItem(bundle, conds, name, firstAddedHeight, fee, env, order, bundleCoinSpends)

	// 12. replacement policy.
	if hardConflict {
		if len(conflicts) == 0 {
			return ValidationOutcome{Result: Pending, Item: item, Err: NewValidationError(ErrMempoolConflict, "conflict detected but no specific conflicting items resolved")}
		}
		if v.canReplace(conflicts, item) {
			return ValidationOutcome{Result: Admitted, Item: item, Removals: conflicts}
		}
		return ValidationOutcome{Result: Pending, Item: item, Err: NewValidationError(ErrMempoolConflict, "replacement rules not satisfied")}
	}

	// 13. time budget guard.
	if v.cfg.ValidateTimeBudgetSeconds > 0 && elapsed.Seconds() > v.cfg.ValidateTimeBudgetSeconds {
		return fail(NewValidationError(ErrInvalidSpendBundle, "validation exceeded time budget of %.1fs", v.cfg.ValidateTimeBudgetSeconds))
	}

	return ValidationOutcome{Result: Admitted, Item: item}
}

func fail(err *ValidationError) ValidationOutcome {
	return ValidationOutcome{Result: Failed, Err: err}
}

func buildItem(
	bundle *tx.SpendBundle,
	conds SpendBundleConditions,
	name types.Hash,
	firstAddedHeight uint32,
	fee uint64,
	env TimelockEnvelope,
	order []types.Hash,
	bundleCoinSpends map[types.Hash]*BundleCoinSpend,
) *MempoolItem {
	return &MempoolItem{
		SpendBundle:          bundle,
		Conds:                conds,
		Name:                 name,
		Fee:                  fee,
		Cost:                 conds.Cost,
		HeightAddedToMempool: firstAddedHeight,
		Envelope:             env,
		BundleCoinSpends:     bundleCoinSpends,
		CoinSpendOrder:       order,
	}
}

// buildChildIndex maps every coin id created by this bundle's own spends
// back to the created coin, from which step 5 synthesizes the CoinRecord an
// ephemeral removal resolves to, recognizing intra-bundle chaining without a
// store lookup.
func buildChildIndex(order []types.Hash, bundleCoinSpends map[types.Hash]*BundleCoinSpend) map[types.Hash]types.Coin {
	out := make(map[types.Hash]types.Coin)
	for _, parentID := range order {
		bcs := bundleCoinSpends[parentID]
		for _, child := range bcs.Children {
			coin := types.Coin{ParentID: parentID, PuzzleHash: child.PuzzleHash, Amount: child.Amount}
			out[coin.ID(crypto.Hash)] = coin
		}
	}
	return out
}

// detectConflicts looks up existing admitted items spending any of this
// bundle's removals and classifies each as a hard conflict or a compatible
// (mergeable) overlap per step 8's rules.
func detectConflicts(store *Store, order []types.Hash, bundleCoinSpends map[types.Hash]*BundleCoinSpend) (conflicts []*MempoolItem, hard bool) {
	seen := make(map[types.Hash]struct{})
	for _, coinID := range order {
		newSpend := bundleCoinSpends[coinID]
		for _, existing := range store.ItemsWithCoinIDs([]types.Hash{coinID}) {
			existingSpend := existing.BundleCoinSpends[coinID]
			if existingSpend == nil {
				continue
			}

			compatible := false
			switch {
			case !newSpend.EligibleForFastForward && !newSpend.EligibleForDedup:
				compatible = false
			case newSpend.EligibleForFastForward != existingSpend.EligibleForFastForward:
				compatible = false
			case newSpend.EligibleForDedup && existingSpend.EligibleForDedup:
				compatible = solutionsEqual(newSpend.CoinSpend.Solution, existingSpend.CoinSpend.Solution)
			case newSpend.EligibleForFastForward && existingSpend.EligibleForFastForward:
				compatible = true
			}

			if compatible {
				continue
			}
			hard = true
			if _, ok := seen[existing.Name]; ok {
				continue
			}
			seen[existing.Name] = struct{}{}
			conflicts = append(conflicts, existing)
		}
	}
	return conflicts, hard
}

func solutionsEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// canReplace implements the fee-bump replacement policy: all
// five checks must pass for N to evict the conflicting set C.
func (v *Validator) canReplace(conflicts []*MempoolItem, n *MempoolItem) bool {
	conflictRemovals := make(map[types.Hash]struct{})
	var conflictFee, conflictCost uint64
	var maxAssertHeight uint32
	var maxAssertSeconds uint64
	var minBeforeHeight *uint32
	var minBeforeSeconds *uint64
	ffCoins := make(map[types.Hash]bool)
	dedupCoins := make(map[types.Hash]bool)

	for _, c := range conflicts {
		for _, id := range c.RemovalIDs() {
			conflictRemovals[id] = struct{}{}
			if bcs := c.BundleCoinSpends[id]; bcs != nil {
				ffCoins[id] = bcs.EligibleForFastForward
				dedupCoins[id] = bcs.EligibleForDedup
			}
		}
		conflictFee += c.Fee
		conflictCost += c.Cost
		if c.Envelope.AssertHeight > maxAssertHeight {
			maxAssertHeight = c.Envelope.AssertHeight
		}
		if c.Envelope.AssertSeconds > maxAssertSeconds {
			maxAssertSeconds = c.Envelope.AssertSeconds
		}
		if c.Envelope.AssertBeforeHeight != nil {
			if minBeforeHeight == nil || *c.Envelope.AssertBeforeHeight < *minBeforeHeight {
				minBeforeHeight = c.Envelope.AssertBeforeHeight
			}
		}
		if c.Envelope.AssertBeforeSeconds != nil {
			if minBeforeSeconds == nil || *c.Envelope.AssertBeforeSeconds < *minBeforeSeconds {
				minBeforeSeconds = c.Envelope.AssertBeforeSeconds
			}
		}
	}

	// Superset rule: every coin the conflicting items removed must also be
	// removed by N; no orphaning an ancestor spend.
	nRemovals := make(map[types.Hash]struct{})
	for _, id := range n.RemovalIDs() {
		nRemovals[id] = struct{}{}
	}
	for id := range conflictRemovals {
		if _, ok := nRemovals[id]; !ok {
			return false
		}
	}

	// Fee-rate bump.
	if conflictCost == 0 {
		return false
	}
	if n.FeePerCost() <= float64(conflictFee)/float64(conflictCost) {
		return false
	}

	// Absolute fee bump.
	if n.Fee <= conflictFee || n.Fee-conflictFee < v.cfg.MinFeeIncrease {
		return false
	}

	// Timelock stability.
	if n.Envelope.AssertHeight != maxAssertHeight {
		return false
	}
	if n.Envelope.AssertSeconds != maxAssertSeconds {
		return false
	}
	if !equalOptionalUint32(n.Envelope.AssertBeforeHeight, minBeforeHeight) {
		return false
	}
	if !equalOptionalUint64(n.Envelope.AssertBeforeSeconds, minBeforeSeconds) {
		return false
	}

	// Eligibility preservation: N cannot strip FF/dedup off a coin the
	// conflicting set relied on those properties for.
	for id := range conflictRemovals {
		nSpend := n.BundleCoinSpends[id]
		if nSpend == nil {
			continue
		}
		if ffCoins[id] && !nSpend.EligibleForFastForward {
			return false
		}
		if dedupCoins[id] && !nSpend.EligibleForDedup {
			return false
		}
	}

	return true
}

func equalOptionalUint32(a, b *uint32) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalOptionalUint64(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
