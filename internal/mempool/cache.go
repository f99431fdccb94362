package mempool

import "github.com/Klingon-tech/klingnet-chain/pkg/types"

// pendingEntry pairs a not-yet-admitted item with the error that parked it,
// so draining can re-attempt admission with the original context.
type pendingEntry struct {
	item *MempoolItem
	err  *ValidationError
}

// boundedCache is a FIFO cache bounded by both total item cost and item
// count. When either cap is exceeded, the oldest entry is dropped silently;
// there is no eviction callback.
type boundedCache struct {
	capacityCost  uint64
	capacityItems uint32

	order     []types.Hash
	entries   map[types.Hash]pendingEntry
	totalCost uint64
}

func newBoundedCache(capacityCost uint64, capacityItems uint32) *boundedCache {
	return &boundedCache{
		capacityCost:  capacityCost,
		capacityItems: capacityItems,
		entries:       make(map[types.Hash]pendingEntry),
	}
}

func (c *boundedCache) add(entry pendingEntry) {
	name := entry.item.Name
	if _, ok := c.entries[name]; ok {
		return
	}
	c.entries[name] = entry
	c.order = append(c.order, name)
	c.totalCost += entry.item.Cost

	for (c.totalCost > c.capacityCost || uint32(len(c.order)) > c.capacityItems) && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if old, ok := c.entries[oldest]; ok {
			c.totalCost -= old.item.Cost
			delete(c.entries, oldest)
		}
	}
}

func (c *boundedCache) remove(name types.Hash) {
	entry, ok := c.entries[name]
	if !ok {
		return
	}
	delete(c.entries, name)
	c.totalCost -= entry.item.Cost
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// drain empties the cache and returns every entry in FIFO order.
func (c *boundedCache) drain() []pendingEntry {
	out := make([]pendingEntry, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.entries[name])
	}
	c.order = nil
	c.entries = make(map[types.Hash]pendingEntry)
	c.totalCost = 0
	return out
}

// ConflictCache holds items that failed admission due to a conflict with a
// currently-admitted item, but may become valid once that item is evicted.
type ConflictCache struct {
	cache *boundedCache
}

// NewConflictCache constructs an empty conflict-pending cache.
func NewConflictCache(capacityCost uint64, capacityItems uint32) *ConflictCache {
	return &ConflictCache{cache: newBoundedCache(capacityCost, capacityItems)}
}

// Add parks item after a MEMPOOL_CONFLICT rejection.
func (c *ConflictCache) Add(item *MempoolItem, err *ValidationError) {
	c.cache.add(pendingEntry{item: item, err: err})
}

// Remove drops item from the cache, e.g. because it was admitted elsewhere.
func (c *ConflictCache) Remove(name types.Hash) {
	c.cache.remove(name)
}

// Drain empties the cache for a new_peak replay pass.
func (c *ConflictCache) Drain() []*MempoolItem {
	entries := c.cache.drain()
	items := make([]*MempoolItem, len(entries))
	for i, e := range entries {
		items[i] = e.item
	}
	return items
}

// Len reports the number of parked items.
func (c *ConflictCache) Len() int {
	return len(c.cache.entries)
}

// PendingCache holds items whose assert_height exceeds the current peak,
// keyed additionally by that height for an efficient bounded drain.
type PendingCache struct {
	cache    *boundedCache
	byHeight map[uint32]map[types.Hash]struct{}
	heightOf map[types.Hash]uint32
}

// NewPendingCache constructs an empty height-pending cache.
func NewPendingCache(capacityCost uint64, capacityItems uint32) *PendingCache {
	return &PendingCache{
		cache:    newBoundedCache(capacityCost, capacityItems),
		byHeight: make(map[uint32]map[types.Hash]struct{}),
		heightOf: make(map[types.Hash]uint32),
	}
}

// Add parks item, keyed at its envelope's assert_height.
func (c *PendingCache) Add(item *MempoolItem, err *ValidationError) {
	name := item.Name
	if _, ok := c.heightOf[name]; ok {
		return
	}
	c.cache.add(pendingEntry{item: item, err: err})
	height := item.Envelope.AssertHeight
	set := c.byHeight[height]
	if set == nil {
		set = make(map[types.Hash]struct{})
		c.byHeight[height] = set
	}
	set[name] = struct{}{}
	c.heightOf[name] = height
}

// DrainUpTo removes and returns every item whose assert_height is <= height.
func (c *PendingCache) DrainUpTo(height uint32) []*MempoolItem {
	var names []types.Hash
	for h, set := range c.byHeight {
		if h > height {
			continue
		}
		for name := range set {
			names = append(names, name)
		}
		delete(c.byHeight, h)
	}

	var out []*MempoolItem
	for _, name := range names {
		if entry, ok := c.cache.entries[name]; ok {
			out = append(out, entry.item)
			c.cache.remove(name)
		}
		delete(c.heightOf, name)
	}
	return out
}

// Len reports the number of parked items.
func (c *PendingCache) Len() int {
	return len(c.cache.entries)
}
