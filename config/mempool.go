package config

// =============================================================================
// Mempool configuration (operational: can vary per node without breaking
// consensus, but the default budgets below are derived from the block cost
// limit MaxBlockClvmCost so a node's mempool never admits something a block
// could not include).
// =============================================================================

// CLVM + condition cost limits: they bound how much CPU/IO a single spend
// bundle (and the mempool as a whole) may demand.
const (
	// MaxBlockClvmCost is the maximum total CLVM cost a single block may spend.
	MaxBlockClvmCost uint64 = 11_000_000_000

	// BlockCostOverhead accounts for the fixed wrapping cost every block pays
	// regardless of its contents (quote opcode bytes + execution cost).
	BlockCostOverhead uint64 = 742

	// MempoolBlockBufferBlocks is the multiplier (in units of MaxBlockClvmCost)
	// applied to size the mempool's total cost cap above a single block's
	// worth of transactions, so the mempool can hold more than fits in the
	// very next block.
	MempoolBlockBufferBlocks uint32 = 10
)

// MempoolConfig holds the tunables of the mempool core.
type MempoolConfig struct {
	// MaxTxClvmCost bounds the cost of any single admitted spend bundle.
	MaxTxClvmCost uint64 `conf:"mempool.max_tx_clvm_cost"`

	// MaxBlockClvmCost bounds the cost a block candidate generator may fill.
	MaxBlockClvmCost uint64 `conf:"mempool.max_block_clvm_cost"`

	// MempoolBlockBuffer multiplies MaxBlockClvmCost to get the mempool's
	// total admitted-cost cap.
	MempoolBlockBuffer uint32 `conf:"mempool.block_buffer"`

	// NonzeroFeeMinFPC is the minimum fee-per-cost (as an integer numerator
	// over cost) a bundle must clear before it's allowed to evict anything
	// from a full pool.
	NonzeroFeeMinFPC uint8 `conf:"mempool.nonzero_fee_min_fpc"`

	// MinFeeIncrease is the minimum absolute fee bump (in base units) a
	// replacement must add over the conflicting items it evicts.
	MinFeeIncrease uint64 `conf:"mempool.min_fee_increase"`

	// ConflictCacheCapacityCost/Items bound the conflict-pending cache. The
	// config file loader does not read these two keys; only values set in
	// code (the defaults) apply.
	ConflictCacheCapacityCost  uint64 `conf:"mempool.conflict_cache.cost"`
	ConflictCacheCapacityItems uint32 `conf:"mempool.conflict_cache.items"`

	// PendingCacheCapacityCost/Items bound the height-pending cache. The
	// config file loader does not read these two keys; only values set in
	// code (the defaults) apply.
	PendingCacheCapacityCost  uint64 `conf:"mempool.pending_cache.cost"`
	PendingCacheCapacityItems uint32 `conf:"mempool.pending_cache.items"`

	// WorkerCount is the size of the pre-validation worker pool. 0 is
	// treated as 1: a single worker goroutine. There is no inline
	// (same-goroutine) execution mode.
	WorkerCount uint8 `conf:"mempool.worker_count"`

	// SeenCacheSize bounds the "recently seen bundle id" cache.
	SeenCacheSize uint32 `conf:"mempool.seen_cache_size"`

	// ValidateTimeBudgetSeconds is the DoS guard on add_spend_bundle's own
	// wall-clock duration.
	ValidateTimeBudgetSeconds float64 `conf:"mempool.validate_time_budget_s"`
}

// MempoolMaxCost returns MEMPOOL_MAX_COST: the total admitted-item cost cap.
func (c MempoolConfig) MempoolMaxCost() uint64 {
	return c.MaxBlockClvmCost * uint64(c.MempoolBlockBuffer)
}

// DefaultMempoolConfig returns the default mempool tunables.
func DefaultMempoolConfig() MempoolConfig {
	maxBlockCost := MaxBlockClvmCost - BlockCostOverhead
	return MempoolConfig{
		MaxTxClvmCost:              MaxBlockClvmCost / 2,
		MaxBlockClvmCost:           maxBlockCost,
		MempoolBlockBuffer:         MempoolBlockBufferBlocks,
		NonzeroFeeMinFPC:           5,
		MinFeeIncrease:             10_000_000,
		ConflictCacheCapacityCost:  maxBlockCost,
		ConflictCacheCapacityItems: 1000,
		PendingCacheCapacityCost:   maxBlockCost,
		PendingCacheCapacityItems:  1000,
		WorkerCount:                2,
		SeenCacheSize:              10_000,
		ValidateTimeBudgetSeconds:  2.0,
	}
}
