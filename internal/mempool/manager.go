// Package mempool implements the mempool core: admission, ranking, conflict
// resolution, and block-candidate generation for spend bundles awaiting
// confirmation.
package mempool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/internal/feeestimator"
	"github.com/Klingon-tech/klingnet-chain/internal/log"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// PreValidationProvider is the CLVM + signature pre-validator. It is the
// only collaborator allowed to run off the manager's cooperative task.
// Alongside the conditions it returns the signature verifications it
// performed, so the caller's signature cache can skip them next time.
type PreValidationProvider interface {
	ValidateClvmAndSignature(ctx context.Context, bundle *tx.SpendBundle, maxCost uint64, peakHeight uint32) (SpendBundleConditions, []crypto.SigCacheEntry, error)
}

// BlockRecord is the minimal chain-tip description the manager needs from
// new_peak notifications.
type BlockRecord struct {
	HeaderHash types.Hash
	PrevHash   types.Hash
	Height     uint32
	Timestamp  uint64
	IsTxBlock  bool
}

// NewPeakInfo is the result of processing a new_peak call: items that
// became admitted (drained from the pending caches) and items removed.
type NewPeakInfo struct {
	Items    []*MempoolItem
	Removals []*MempoolItem
}

// AddStatus reports the outcome of add_spend_bundle to the caller.
type AddStatus int

const (
	StatusSuccess AddStatus = iota
	StatusPending
	StatusFailed
)

// AddResult is what add_spend_bundle returns to callers.
type AddResult struct {
	Status   AddStatus
	Item     *MempoolItem
	Removals []*MempoolItem
	Err      *ValidationError
}

// Manager is the mempool's public entry point. It owns the store, the
// pending caches, the fee estimator, the current peak, and the
// pre-validation worker pool.
type Manager struct {
	cfg config.MempoolConfig

	mu sync.Mutex // guards store, caches, peak, and the seen set

	store         *Store
	conflictCache *ConflictCache
	pendingCache  *PendingCache
	validator     *Validator
	feeEstimator  feeestimator.Estimator
	coinProvider  CoinRecordProvider
	preValidator  PreValidationProvider

	peak *BlockRecord

	seen      map[types.Hash]struct{}
	seenOrder []types.Hash

	jobs      chan preValidateJob
	queueSize atomic.Int32
	workers   sync.WaitGroup
	closing   chan struct{}
}

type preValidateJob struct {
	ctx      context.Context
	bundle   *tx.SpendBundle
	peakHt   uint32
	resultCh chan preValidateResult
}

type preValidateResult struct {
	conds      SpendBundleConditions
	sigEntries []crypto.SigCacheEntry
	err        error
}

// NewManager constructs a manager and starts its pre-validation worker
// pool. Callers own the only mutex all mutating entry points share; per the
// concurrency model, new_peak and add_spend_bundle are expected to already
// be serialized by the caller, but Manager locks defensively so it is safe
// to use standalone (e.g. in tests) without that external discipline.
func NewManager(cfg config.MempoolConfig, coinProvider CoinRecordProvider, preValidator PreValidationProvider, feeEstimator feeestimator.Estimator) *Manager {
	maxCost := cfg.MempoolMaxCost()
	m := &Manager{
		cfg:           cfg,
		store:         NewStore(maxCost),
		conflictCache: NewConflictCache(cfg.ConflictCacheCapacityCost, cfg.ConflictCacheCapacityItems),
		pendingCache:  NewPendingCache(cfg.PendingCacheCapacityCost, cfg.PendingCacheCapacityItems),
		validator:     NewValidator(cfg),
		feeEstimator:  feeEstimator,
		coinProvider:  coinProvider,
		preValidator:  preValidator,
		seen:          make(map[types.Hash]struct{}),
		jobs:          make(chan preValidateJob, 64),
		closing:       make(chan struct{}),
	}

	workerCount := int(cfg.WorkerCount)
	if workerCount == 0 {
		workerCount = 1 // no inline mode: 0 runs one worker goroutine, the same as 1
	}
	for i := 0; i < workerCount; i++ {
		m.workers.Add(1)
		go m.preValidateWorker()
	}
	return m
}

// Close stops the pre-validation worker pool.
func (m *Manager) Close() {
	close(m.closing)
	m.workers.Wait()
}

func (m *Manager) preValidateWorker() {
	defer m.workers.Done()
	for {
		select {
		case <-m.closing:
			return
		case job := <-m.jobs:
			conds, sigEntries, err := m.preValidator.ValidateClvmAndSignature(job.ctx, job.bundle, m.cfg.MaxTxClvmCost, job.peakHt)
			m.queueSize.Add(-1)
			select {
			case job.resultCh <- preValidateResult{conds: conds, sigEntries: sigEntries, err: err}:
			case <-job.ctx.Done():
			}
		}
	}
}

// PreValidateSpendBundle runs CLVM + signature validation on the worker
// pool, returning the resulting conditions. It touches no mempool state and
// may run concurrently with other calls. When sigCache is non-nil, the
// verifications the pre-validator performed are merged into it so repeat
// submissions skip the Schnorr checks.
func (m *Manager) PreValidateSpendBundle(ctx context.Context, bundle *tx.SpendBundle, sigCache *crypto.SignatureCache) (SpendBundleConditions, error) {
	if len(bundle.CoinSpends) == 0 {
		return SpendBundleConditions{}, NewValidationError(ErrInvalidSpendBundle, "empty bundle")
	}

	m.mu.Lock()
	peakHeight := uint32(0)
	if m.peak != nil {
		peakHeight = m.peak.Height
	}
	m.mu.Unlock()

	start := time.Now()
	resultCh := make(chan preValidateResult, 1)
	m.queueSize.Add(1)
	select {
	case m.jobs <- preValidateJob{ctx: ctx, bundle: bundle, peakHt: peakHeight, resultCh: resultCh}:
	case <-ctx.Done():
		m.queueSize.Add(-1)
		return SpendBundleConditions{}, ctx.Err()
	}

	select {
	case res := <-resultCh:
		if time.Since(start) > 2*time.Second {
			log.Mempool.Warn().Dur("elapsed", time.Since(start)).Msg("pre-validation exceeded 2s")
		}
		if res.err == nil && sigCache != nil {
			sigCache.Merge(res.sigEntries)
		}
		return res.conds, res.err
	case <-ctx.Done():
		return SpendBundleConditions{}, ctx.Err()
	}
}

// WorkerQueueSize reports how many pre-validation jobs are queued or
// running, a backlog gauge for operators.
func (m *Manager) WorkerQueueSize() int {
	return int(m.queueSize.Load())
}

// IsFeeEnough is a cheap pre-check a caller can run before paying for
// pre-validation: would a bundle with this fee and cost even be considered?
func (m *Manager) IsFeeEnough(fee, cost uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cost == 0 || cost > m.cfg.MaxTxClvmCost {
		return false
	}
	if !m.store.AtFullCapacity(cost) {
		return true
	}
	feePerCost := float64(fee) / float64(cost)
	if feePerCost < float64(m.cfg.NonzeroFeeMinFPC) {
		return false
	}
	minRate := m.store.GetMinFeeRate(cost)
	return minRate != nil && feePerCost > *minRate
}

// AddSpendBundle runs the validator against the currently admitted set and
// mutates the store/caches accordingly.
func (m *Manager) AddSpendBundle(bundle *tx.SpendBundle, conds SpendBundleConditions, name types.Hash, firstAddedHeight uint32, startedAt time.Time) AddResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.peak == nil {
		return AddResult{Status: StatusFailed, Err: NewValidationError(ErrMempoolNotInitialized, "add_spend_bundle called before any peak")}
	}

	peak := PeakInfo{Height: m.peak.Height, Timestamp: m.peak.Timestamp}
	outcome := m.validator.ValidateSpendBundle(bundle, conds, name, firstAddedHeight, m.store, m.coinProvider, peak, time.Since(startedAt))
	return m.applyOutcome(outcome)
}

// applyOutcome commits a validation outcome to the store/caches: evicting
// replaced conflicts, inserting the item (which may itself evict on a full
// pool), or parking the item in the appropriate pending cache.
func (m *Manager) applyOutcome(outcome ValidationOutcome) AddResult {
	switch outcome.Result {
	case Admitted:
		if len(outcome.Removals) > 0 {
			names := make([]types.Hash, len(outcome.Removals))
			for i, r := range outcome.Removals {
				names[i] = r.Name
				m.conflictCache.Remove(r.Name)
				m.notifyRemoved(r, ReasonConflict)
			}
			m.store.RemoveFromPool(names, ReasonConflict)
			log.Mempool.Debug().
				Stringer("item", outcome.Item.Name).
				Int("replaced", len(names)).
				Msg("fee bump replaced conflicting items")
		}
		info, err := m.store.Add(outcome.Item)
		if err != nil {
			return AddResult{Status: StatusFailed, Err: err.(*ValidationError)}
		}
		for _, evicted := range info.Removals {
			m.notifyRemoved(evicted, ReasonPoolFull)
		}
		m.notifyAdded(outcome.Item)
		return AddResult{Status: StatusSuccess, Item: outcome.Item, Removals: append(outcome.Removals, info.Removals...)}

	case Pending:
		if outcome.Err != nil && outcome.Err.Kind.isHeightPending() {
			m.pendingCache.Add(outcome.Item, outcome.Err)
		} else {
			m.conflictCache.Add(outcome.Item, outcome.Err)
		}
		return AddResult{Status: StatusPending, Item: outcome.Item, Err: outcome.Err}

	default:
		return AddResult{Status: StatusFailed, Err: outcome.Err}
	}
}

func (m *Manager) notifyAdded(item *MempoolItem) {
	if m.feeEstimator == nil {
		return
	}
	m.feeEstimator.AddMempoolItem(feeestimator.MempoolItemInfo{
		Name:        item.Name,
		FeePerCost:  item.FeePerCost(),
		HeightAdded: item.HeightAddedToMempool,
	})
}

func (m *Manager) notifyRemoved(item *MempoolItem, reason RemovalReason) {
	if m.feeEstimator == nil || reason == ReasonBlockInclusion {
		return // block inclusions are folded into NewBlock feedback instead
	}
	m.feeEstimator.RemoveMempoolItem(feeestimator.MempoolItemInfo{
		Name:        item.Name,
		FeePerCost:  item.FeePerCost(),
		HeightAdded: item.HeightAddedToMempool,
	})
}

// NewPeak processes a chain-tip update. spentCoins, when non-nil, lists
// the coins spent between the previous and new peak; its presence is what
// selects the fast path over the slow rebuild path.
func (m *Manager) NewPeak(newPeak *BlockRecord, spentCoins []types.Hash) (NewPeakInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if newPeak == nil || !newPeak.IsTxBlock {
		return NewPeakInfo{}, nil
	}
	if m.peak != nil && newPeak.HeaderHash == m.peak.HeaderHash {
		return NewPeakInfo{}, nil
	}

	var info NewPeakInfo

	expired := m.store.NewTxBlock(newPeak.Height, newPeak.Timestamp)
	info.Removals = append(info.Removals, expired.Removals...)
	for _, item := range expired.Removals {
		m.notifyRemoved(item, ReasonExpired)
		m.removeSeen(item.Name)
	}

	fastPath := m.peak != nil && newPeak.PrevHash == m.peak.HeaderHash && spentCoins != nil
	var includedForFeedback []*MempoolItem

	if fastPath {
		removed, rebased := m.runFastPath(spentCoins)
		info.Removals = append(info.Removals, removed...)
		includedForFeedback = append(includedForFeedback, removed...)
		if rebased > 0 {
			log.Mempool.Debug().
				Uint32("height", newPeak.Height).
				Int("rebased", rebased).
				Msg("fast-forwarded singleton spends to new lineage")
		}
	} else {
		stop := log.Benchmark("mempool_rebuild")
		removed, included := m.runSlowPath(newPeak)
		stop()
		log.Mempool.Debug().
			Uint32("height", newPeak.Height).
			Int("removed", len(removed)).
			Int("included", len(included)).
			Msg("rebuilt mempool on non-linear peak change")
		info.Removals = append(info.Removals, removed...)
		includedForFeedback = append(includedForFeedback, included...)
	}

	m.peak = newPeak

	// Drain both pending caches and re-attempt admission.
	drained := m.pendingCache.DrainUpTo(newPeak.Height)
	drained = append(drained, m.conflictCache.Drain()...)
	for _, item := range drained {
		peak := PeakInfo{Height: newPeak.Height, Timestamp: newPeak.Timestamp}
		outcome := m.validator.ValidateSpendBundle(item.SpendBundle, item.Conds, item.Name, item.HeightAddedToMempool, m.store, m.coinProvider, peak, 0)
		if res := m.applyOutcome(outcome); res.Status == StatusSuccess {
			info.Items = append(info.Items, res.Item)
		}
	}

	if m.feeEstimator != nil {
		m.feeEstimator.NewBlockHeight(newPeak.Height)
		items := make([]feeestimator.MempoolItemInfo, len(includedForFeedback))
		for i, it := range includedForFeedback {
			items[i] = feeestimator.MempoolItemInfo{Name: it.Name, FeePerCost: it.FeePerCost(), HeightAdded: it.HeightAddedToMempool}
		}
		m.feeEstimator.NewBlock(feeestimator.FeeBlockInfo{Height: newPeak.Height, IncludedItems: items})
	}

	return info, nil
}

// runFastPath handles the direct-successor case: items whose non-FF coins
// were spent are evicted as block-included; FF items are rebased against
// the puzzle's new unspent lineage, or evicted if the singleton melted.
func (m *Manager) runFastPath(spentCoins []types.Hash) (removed []*MempoolItem, rebased int) {
	lineageCache := make(map[types.Hash]*UnspentLineageInfo)
	toEvict := make(map[types.Hash]*MempoolItem)
	type deferredRebase struct {
		item   *MempoolItem
		bcs    *BundleCoinSpend
		coinID types.Hash
	}
	var deferredList []deferredRebase

	for _, coinID := range spentCoins {
		for _, item := range m.store.ItemsWithCoinIDs([]types.Hash{coinID}) {
			// BundleCoinSpends stays keyed by the original coin id; a spend
			// rebased on an earlier peak is found via its current lineage.
			bcs := item.BundleCoinSpends[coinID]
			if bcs == nil {
				for _, cand := range item.BundleCoinSpends {
					if cand.LatestSingletonLineage != nil && cand.LatestSingletonLineage.CoinID == coinID {
						bcs = cand
						break
					}
				}
			}
			if bcs == nil {
				continue
			}
			if !bcs.EligibleForFastForward {
				toEvict[item.Name] = item
				continue
			}
			deferredList = append(deferredList, deferredRebase{item: item, bcs: bcs, coinID: coinID})
		}
	}

	var updates []SpendIndexUpdate
	for _, d := range deferredList {
		if _, alreadyEvicted := toEvict[d.item.Name]; alreadyEvicted {
			continue
		}
		bcs := d.bcs
		ph := bcs.CoinSpend.Coin.PuzzleHash

		lineage, ok := lineageCache[ph]
		if !ok {
			l, found := m.coinProvider.GetUnspentLineageInfoForPuzzleHash(ph)
			if found {
				lineage = l
			}
			lineageCache[ph] = lineage
		}
		if lineage == nil {
			toEvict[d.item.Name] = d.item
			continue
		}

		bcs.LatestSingletonLineage = lineage
		updates = append(updates, SpendIndexUpdate{NewCoinID: lineage.CoinID, OldCoinID: d.coinID, ItemName: d.item.Name})
		rebased++
	}

	m.store.UpdateSpendIndex(updates)

	names := make([]types.Hash, 0, len(toEvict))
	for name := range toEvict {
		names = append(names, name)
	}
	info := m.store.RemoveFromPool(names, ReasonBlockInclusion)
	for _, name := range names {
		m.removeSeen(name)
	}
	return info.Removals, rebased
}

// runSlowPath drops the entire store and rebuilds it by replaying every
// admitted bundle through the validator, using coin records as they stand
// at the new peak. Items that now double-spend are counted as included;
// the true cause may occasionally be a competing spend, which over-counts
// inclusions in the fee estimator's feedback.
func (m *Manager) runSlowPath(newPeak *BlockRecord) (removed, included []*MempoolItem) {
	old := m.store.ItemsByFeerate()
	m.store = NewStore(m.cfg.MempoolMaxCost())

	peak := PeakInfo{Height: newPeak.Height, Timestamp: newPeak.Timestamp}
	for _, item := range old {
		outcome := m.validator.ValidateSpendBundle(item.SpendBundle, item.Conds, item.Name, item.HeightAddedToMempool, m.store, m.coinProvider, peak, 0)
		switch outcome.Result {
		case Admitted:
			if _, err := m.store.Add(outcome.Item); err == nil {
				m.addAndMaybePopSeen(item.Name)
				continue
			}
			removed = append(removed, item)
		case Failed:
			if outcome.Err != nil && outcome.Err.Kind == ErrDoubleSpend {
				included = append(included, item)
			} else {
				removed = append(removed, item)
			}
		default:
			removed = append(removed, item)
		}
	}
	for _, item := range removed {
		m.removeSeen(item.Name)
	}
	for _, item := range included {
		m.removeSeen(item.Name)
	}
	return removed, included
}

// CreateBlockGenerator delegates to the block-build selection logic,
// verifying the caller's view of the peak matches before proceeding.
func (m *Manager) CreateBlockGenerator(ctx context.Context, headerHash types.Hash, budget uint64, deadline time.Time) (*BlockGenerator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.peak == nil || m.peak.HeaderHash != headerHash {
		return nil, fmt.Errorf("mempool: peak header hash mismatch")
	}
	return buildBlockGenerator(m.store, budget, deadline), nil
}

// CreateBlockGenerator2 is the stricter selection variant: instead of
// skipping past an item that doesn't fit the remaining budget, it stops at
// the first such item. The result is a contiguous fee-rate prefix of the
// pool: cheaper to build and to audit, at the price of occasionally
// leaving small low-rate items out of a nearly-full block.
func (m *Manager) CreateBlockGenerator2(ctx context.Context, headerHash types.Hash, budget uint64, deadline time.Time) (*BlockGenerator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.peak == nil || m.peak.HeaderHash != headerHash {
		return nil, fmt.Errorf("mempool: peak header hash mismatch")
	}
	return buildBlockGenerator2(m.store, budget, deadline), nil
}

// GetSpendBundle returns the bundle for an admitted item, if any.
func (m *Manager) GetSpendBundle(name types.Hash) (*tx.SpendBundle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.store.Get(name)
	if !ok {
		return nil, false
	}
	return item.SpendBundle, true
}

// GetMempoolItem returns the admitted item by name; includePending also
// searches both pending caches.
func (m *Manager) GetMempoolItem(name types.Hash, includePending bool) (*MempoolItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.store.Get(name); ok {
		return item, true
	}
	if !includePending {
		return nil, false
	}
	if entry, ok := m.conflictCache.cache.entries[name]; ok {
		return entry.item, true
	}
	if entry, ok := m.pendingCache.cache.entries[name]; ok {
		return entry.item, true
	}
	return nil, false
}

// Seen reports whether name has been recorded as seen, so duplicate relays
// can be suppressed upstream.
func (m *Manager) Seen(name types.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[name]
	return ok
}

// AddAndMaybePopSeen records name as seen, evicting the oldest entry once
// the cache exceeds its configured size.
func (m *Manager) AddAndMaybePopSeen(name types.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addAndMaybePopSeen(name)
}

// addAndMaybePopSeen is the lock-held half of AddAndMaybePopSeen, also used
// when slow-path rebuilds re-admit an item.
func (m *Manager) addAndMaybePopSeen(name types.Hash) {
	if _, ok := m.seen[name]; ok {
		return
	}
	m.seen[name] = struct{}{}
	m.seenOrder = append(m.seenOrder, name)
	if uint32(len(m.seenOrder)) > m.cfg.SeenCacheSize {
		oldest := m.seenOrder[0]
		m.seenOrder = m.seenOrder[1:]
		delete(m.seen, oldest)
	}
}

// RemoveSeen forgets name, making the bundle eligible for re-relay, e.g.
// after a reorg evicts it from the pool.
func (m *Manager) RemoveSeen(name types.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeSeen(name)
}

// removeSeen is the lock-held half of RemoveSeen, used by the new_peak
// eviction paths.
func (m *Manager) removeSeen(name types.Hash) {
	if _, ok := m.seen[name]; !ok {
		return
	}
	delete(m.seen, name)
	for i, n := range m.seenOrder {
		if n == name {
			m.seenOrder = append(m.seenOrder[:i], m.seenOrder[i+1:]...)
			break
		}
	}
}
