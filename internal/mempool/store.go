package mempool

import (
	"sort"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// AddInfo is the result of a successful store insertion: the items evicted
// to make room, if any.
type AddInfo struct {
	Removals []*MempoolItem
}

// RemoveInfo is the result of a removal sweep: the items removed and why.
type RemoveInfo struct {
	Removals []*MempoolItem
	Reason   RemovalReason
}

// Store is the indexed collection of admitted mempool items. All
// methods assume single-threaded access from the manager's cooperative
// task; Store itself does no locking.
type Store struct {
	maxCost uint64

	byName       map[types.Hash]*MempoolItem
	byCoinID     map[types.Hash]map[types.Hash]struct{} // coin_id -> set of item names
	byPuzzleHash map[types.Hash]map[types.Hash]struct{} // puzzle_hash -> set of item names
	byHint       map[string]map[types.Hash]struct{}     // hint -> set of item names

	// ordered holds every admitted item's name sorted ascending by
	// (fee_per_cost, height_added_to_mempool, name) so the low end is the
	// eviction candidate and the high end (reversed) is the block-build order.
	ordered   []types.Hash
	totalCost uint64
}

// NewStore constructs an empty store bounded by maxCost (MEMPOOL_MAX_COST).
func NewStore(maxCost uint64) *Store {
	return &Store{
		maxCost:      maxCost,
		byName:       make(map[types.Hash]*MempoolItem),
		byCoinID:     make(map[types.Hash]map[types.Hash]struct{}),
		byPuzzleHash: make(map[types.Hash]map[types.Hash]struct{}),
		byHint:       make(map[string]map[types.Hash]struct{}),
	}
}

// less implements the store's total order: ascending fee_per_cost, then
// ascending height_added_to_mempool, then ascending name, so index 0 is
// always the next eviction candidate.
func (s *Store) less(a, b types.Hash) bool {
	ia, ib := s.byName[a], s.byName[b]
	fa, fb := ia.FeePerCost(), ib.FeePerCost()
	if fa != fb {
		return fa < fb
	}
	if ia.HeightAddedToMempool != ib.HeightAddedToMempool {
		return ia.HeightAddedToMempool < ib.HeightAddedToMempool
	}
	return lessHash(a, b)
}

func lessHash(a, b types.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func (s *Store) insertOrdered(name types.Hash) {
	i := sort.Search(len(s.ordered), func(i int) bool { return !s.less(s.ordered[i], name) })
	s.ordered = append(s.ordered, types.Hash{})
	copy(s.ordered[i+1:], s.ordered[i:])
	s.ordered[i] = name
}

func (s *Store) removeOrdered(name types.Hash) {
	for i, n := range s.ordered {
		if n == name {
			s.ordered = append(s.ordered[:i], s.ordered[i+1:]...)
			return
		}
	}
}

// Get returns the admitted item by name, if any.
func (s *Store) Get(name types.Hash) (*MempoolItem, bool) {
	item, ok := s.byName[name]
	return item, ok
}

// TotalCost returns the sum of every admitted item's cost.
func (s *Store) TotalCost() uint64 {
	return s.totalCost
}

// AtFullCapacity reports whether admitting extraCost more would exceed
// MEMPOOL_MAX_COST.
func (s *Store) AtFullCapacity(extraCost uint64) bool {
	return s.totalCost+extraCost > s.maxCost
}

// GetMinFeeRate returns the fee-per-cost a new item must exceed to displace
// enough low-ranked items to fit extraCost, or nil if extraCost alone
// exceeds the pool's budget (can never fit regardless of eviction).
func (s *Store) GetMinFeeRate(extraCost uint64) *float64 {
	if extraCost > s.maxCost {
		return nil
	}
	freed := s.maxCost - s.totalCost
	for _, name := range s.ordered {
		if freed >= extraCost {
			break
		}
		item := s.byName[name]
		freed += item.Cost
		rate := item.FeePerCost()
		if freed >= extraCost {
			return &rate
		}
	}
	zero := 0.0
	return &zero
}

func (s *Store) index(item *MempoolItem) {
	for _, coinID := range item.RemovalIDs() {
		set := s.byCoinID[coinID]
		if set == nil {
			set = make(map[types.Hash]struct{})
			s.byCoinID[coinID] = set
		}
		set[item.Name] = struct{}{}
	}
	for _, ph := range item.PuzzleHashes() {
		set := s.byPuzzleHash[ph]
		if set == nil {
			set = make(map[types.Hash]struct{})
			s.byPuzzleHash[ph] = set
		}
		set[item.Name] = struct{}{}
	}
	for _, hint := range item.Hints() {
		set := s.byHint[hint]
		if set == nil {
			set = make(map[types.Hash]struct{})
			s.byHint[hint] = set
		}
		set[item.Name] = struct{}{}
	}
}

func (s *Store) unindex(item *MempoolItem) {
	for _, coinID := range item.RemovalIDs() {
		set := s.byCoinID[coinID]
		delete(set, item.Name)
		if len(set) == 0 {
			delete(s.byCoinID, coinID)
		}
	}
	for _, ph := range item.PuzzleHashes() {
		set := s.byPuzzleHash[ph]
		delete(set, item.Name)
		if len(set) == 0 {
			delete(s.byPuzzleHash, ph)
		}
	}
	for _, hint := range item.Hints() {
		set := s.byHint[hint]
		delete(set, item.Name)
		if len(set) == 0 {
			delete(s.byHint, hint)
		}
	}
}

// Add inserts item, evicting the lowest fee_per_cost items until it fits if
// necessary. Re-adding an already-admitted name is a no-op: the store is left
// unchanged and an empty AddInfo (no removals) is returned.
func (s *Store) Add(item *MempoolItem) (AddInfo, error) {
	if _, ok := s.byName[item.Name]; ok {
		return AddInfo{}, nil
	}

	var removals []*MempoolItem
	for s.totalCost+item.Cost > s.maxCost && len(s.ordered) > 0 {
		victimName := s.ordered[0]
		victim := s.byName[victimName]
		s.removeItem(victimName)
		removals = append(removals, victim)
	}
	if s.totalCost+item.Cost > s.maxCost {
		return AddInfo{}, NewValidationError(ErrInvalidCostResult, "item cost %d exceeds pool capacity after eviction", item.Cost)
	}

	s.byName[item.Name] = item
	s.insertOrdered(item.Name)
	s.index(item)
	s.totalCost += item.Cost

	return AddInfo{Removals: removals}, nil
}

// removeItem removes one item from every index without recording a reason;
// callers wrap this to produce a RemoveInfo.
func (s *Store) removeItem(name types.Hash) *MempoolItem {
	item, ok := s.byName[name]
	if !ok {
		return nil
	}
	s.unindex(item)
	s.removeOrdered(name)
	delete(s.byName, name)
	s.totalCost -= item.Cost
	return item
}

// RemoveFromPool removes the named items, tagging the removal with reason
// for the fee estimator and callers.
func (s *Store) RemoveFromPool(names []types.Hash, reason RemovalReason) RemoveInfo {
	info := RemoveInfo{Reason: reason}
	for _, name := range names {
		if item := s.removeItem(name); item != nil {
			info.Removals = append(info.Removals, item)
		}
	}
	return info
}

// NewTxBlock evicts every item whose assert_before_height or
// assert_before_seconds envelope has become unsatisfiable at the new peak.
func (s *Store) NewTxBlock(height uint32, timestamp uint64) RemoveInfo {
	var expired []types.Hash
	for name, item := range s.byName {
		env := item.Envelope
		if env.AssertBeforeHeight != nil && *env.AssertBeforeHeight <= height {
			expired = append(expired, name)
			continue
		}
		if env.AssertBeforeSeconds != nil && *env.AssertBeforeSeconds <= timestamp {
			expired = append(expired, name)
		}
	}
	return s.RemoveFromPool(expired, ReasonExpired)
}

// SpendIndexUpdate re-keys a fast-forward item's coin-id index entry after
// its singleton advances on-chain.
type SpendIndexUpdate struct {
	NewCoinID types.Hash
	OldCoinID types.Hash
	ItemName  types.Hash
}

// UpdateSpendIndex applies a batch of fast-forward re-keys atomically.
func (s *Store) UpdateSpendIndex(updates []SpendIndexUpdate) {
	for _, u := range updates {
		if set := s.byCoinID[u.OldCoinID]; set != nil {
			delete(set, u.ItemName)
			if len(set) == 0 {
				delete(s.byCoinID, u.OldCoinID)
			}
		}
		set := s.byCoinID[u.NewCoinID]
		if set == nil {
			set = make(map[types.Hash]struct{})
			s.byCoinID[u.NewCoinID] = set
		}
		set[u.ItemName] = struct{}{}
	}
}

// ItemsByFeerate returns every admitted item ordered descending by
// fee_per_cost (ties broken by descending recency then descending name),
// the order block-candidate selection iterates in.
func (s *Store) ItemsByFeerate() []*MempoolItem {
	out := make([]*MempoolItem, len(s.ordered))
	for i, name := range s.ordered {
		out[len(s.ordered)-1-i] = s.byName[name]
	}
	return out
}

// ItemsWithCoinIDs returns every admitted item spending any of the given
// coin ids.
func (s *Store) ItemsWithCoinIDs(ids []types.Hash) []*MempoolItem {
	seen := make(map[types.Hash]struct{})
	var out []*MempoolItem
	for _, id := range ids {
		for name := range s.byCoinID[id] {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, s.byName[name])
		}
	}
	return out
}

// ItemsWithPuzzleHashes returns every admitted item spending any of the
// given puzzle hashes, used for fast-forward rebasing lookups and
// mempool-update notifications.
func (s *Store) ItemsWithPuzzleHashes(hashes []types.Hash, includeHints bool) []*MempoolItem {
	seen := make(map[types.Hash]struct{})
	var out []*MempoolItem
	for _, ph := range hashes {
		for name := range s.byPuzzleHash[ph] {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, s.byName[name])
		}
	}
	if includeHints {
		for _, ph := range hashes {
			for name := range s.byHint[string(ph[:])] {
				if _, ok := seen[name]; ok {
					continue
				}
				seen[name] = struct{}{}
				out = append(out, s.byName[name])
			}
		}
	}
	return out
}

// Len returns the number of admitted items.
func (s *Store) Len() int {
	return len(s.byName)
}
