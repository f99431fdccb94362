// Package feeestimator implements the mempool's pluggable fee-rate
// estimator: it observes admitted items and block-inclusion
// events and answers "what fee rate is needed to confirm within N seconds".
//
// The bucket/decay algorithm is the same one used by mature fee estimators:
// fee rates are bucketed geometrically, each bucket tracks how many of its
// transactions confirmed within each of a fixed set of confirmation-time
// windows, and old observations are exponentially decayed so the estimate
// tracks recent network conditions rather than historical ones.
package feeestimator

import (
	"math"
	"sort"
	"sync"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// MempoolItemInfo is the minimal per-item data the estimator needs: enough
// to bucket it by fee rate and track how long it sat before inclusion.
type MempoolItemInfo struct {
	Name        types.Hash
	FeePerCost  float64
	HeightAdded uint32
}

// FeeBlockInfo describes one newly-connected block for feedback purposes.
type FeeBlockInfo struct {
	Height        uint32
	IncludedItems []MempoolItemInfo
}

// FeeRate is a fee-per-cost estimate.
type FeeRate float64

// Estimator is the contract the mempool manager depends on. Any
// implementation satisfying it may be plugged in; BucketEstimator is the
// default.
type Estimator interface {
	NewBlockHeight(height uint32)
	NewBlock(info FeeBlockInfo)
	AddMempoolItem(info MempoolItemInfo)
	RemoveMempoolItem(info MempoolItemInfo)
	EstimateFeeRate(timeOffsetSeconds float64) FeeRate
}

const (
	defaultDecay       = 0.998
	defaultTimeWindows = 12   // tracked confirmation-time buckets, in units of ~one block interval
	secondsPerWindow   = 30.0 // approximate seconds represented by one window
	minBucketFeeRate   = 1e-3
	maxBucketFeeRate   = 1e6
	feeRateStep        = 1.3
	minTxsForEstimate  = 4.0
)

type bucketCount struct {
	txCount float64
	feeSum  float64
}

type bucket struct {
	windows      []bucketCount
	confirmCount float64
	feeSum       float64
}

// BucketEstimator is the default Estimator: a bucketed, exponentially
// decayed confirmation-time histogram over fee-per-cost rates.
type BucketEstimator struct {
	mu sync.Mutex

	bucketBounds []float64
	buckets      []bucket
	pending      []bucket

	// inMempool tracks live items so remove_mempool_item can find their
	// bucket and age without the caller repeating that bookkeeping.
	inMempool map[types.Hash]pendingTx

	bestHeight uint32
}

type pendingTx struct {
	bucketIndex int
	heightAdded uint32
	feeRate     float64
}

// NewBucketEstimator constructs an estimator with the standard geometric
// bucket ladder from minBucketFeeRate to maxBucketFeeRate.
func NewBucketEstimator() *BucketEstimator {
	var bounds []float64
	for f := minBucketFeeRate; f < maxBucketFeeRate; f *= feeRateStep {
		bounds = append(bounds, f)
	}
	bounds = append(bounds, math.Inf(1))

	e := &BucketEstimator{
		bucketBounds: bounds,
		buckets:      make([]bucket, len(bounds)),
		pending:      make([]bucket, len(bounds)),
		inMempool:    make(map[types.Hash]pendingTx),
	}
	for i := range bounds {
		e.buckets[i].windows = make([]bucketCount, defaultTimeWindows)
		e.pending[i].windows = make([]bucketCount, defaultTimeWindows)
	}
	return e
}

// bucketFor returns the index of the lowest bucket whose upper bound is >=
// rate (the bucket rate belongs to).
func (e *BucketEstimator) bucketFor(rate float64) int {
	return sort.Search(len(e.bucketBounds), func(i int) bool { return e.bucketBounds[i] >= rate })
}

func windowFor(blocksWaited uint32) int {
	idx := int(blocksWaited)
	if idx >= defaultTimeWindows {
		return defaultTimeWindows - 1
	}
	return idx
}

// NewBlockHeight records the current chain tip, ageing every pending item's
// window by one slot before any new_block feedback for that height arrives.
func (e *BucketEstimator) NewBlockHeight(height uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if height <= e.bestHeight {
		return
	}
	e.bestHeight = height
	e.decay()
	e.ageMempool(height)
}

func (e *BucketEstimator) decay() {
	for b := range e.buckets {
		bucket := &e.buckets[b]
		bucket.feeSum *= defaultDecay
		bucket.confirmCount *= defaultDecay
		for w := range bucket.windows {
			bucket.windows[w].feeSum *= defaultDecay
			bucket.windows[w].txCount *= defaultDecay
		}
	}
}

// ageMempool re-buckets every still-pending item's wait-time window to
// reflect it having survived one more block unconfirmed.
func (e *BucketEstimator) ageMempool(height uint32) {
	for name, p := range e.inMempool {
		waited := height - p.heightAdded
		w := windowFor(waited)
		bucket := &e.pending[p.bucketIndex]
		bucket.windows[w].txCount++
		bucket.windows[w].feeSum += p.feeRate
		e.inMempool[name] = p
	}
}

// NewBlock folds a block's newly-confirmed items into the confirmed
// histogram and drops them from the pending set.
func (e *BucketEstimator) NewBlock(info FeeBlockInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, item := range info.IncludedItems {
		p, ok := e.inMempool[item.Name]
		if !ok {
			p = pendingTx{
				bucketIndex: e.bucketFor(item.FeePerCost),
				heightAdded: item.HeightAdded,
				feeRate:     item.FeePerCost,
			}
		}
		delete(e.inMempool, item.Name)

		waited := uint32(0)
		if info.Height > p.heightAdded {
			waited = info.Height - p.heightAdded
		}
		w := windowFor(waited)

		bucket := &e.buckets[p.bucketIndex]
		bucket.windows[w].txCount++
		bucket.windows[w].feeSum += p.feeRate
		bucket.confirmCount++
		bucket.feeSum += p.feeRate
	}
}

// AddMempoolItem begins tracking a newly admitted item's time-to-confirm.
func (e *BucketEstimator) AddMempoolItem(info MempoolItemInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inMempool[info.Name] = pendingTx{
		bucketIndex: e.bucketFor(info.FeePerCost),
		heightAdded: info.HeightAdded,
		feeRate:     info.FeePerCost,
	}
}

// RemoveMempoolItem stops tracking an item that left the pool for a reason
// other than block inclusion (eviction, replacement, expiry).
func (e *BucketEstimator) RemoveMempoolItem(info MempoolItemInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inMempool, info.Name)
}

// EstimateFeeRate answers "what fee-per-cost is needed to likely confirm
// within timeOffsetSeconds". It walks buckets from the lowest fee rate
// upward and returns the first whose aggregate confirmation count within
// the requested window clears minTxsForEstimate, or 0 if none qualifies.
func (e *BucketEstimator) EstimateFeeRate(timeOffsetSeconds float64) FeeRate {
	e.mu.Lock()
	defer e.mu.Unlock()

	window := windowFor(uint32(timeOffsetSeconds / secondsPerWindow))

	for i := 0; i < len(e.bucketBounds); i++ {
		b := &e.buckets[i]
		var count float64
		for w := 0; w <= window; w++ {
			count += b.windows[w].txCount
		}
		if count >= minTxsForEstimate {
			if i == 0 {
				return FeeRate(minBucketFeeRate)
			}
			return FeeRate(e.bucketBounds[i-1])
		}
	}
	return 0
}
