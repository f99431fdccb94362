package mempool

import "testing"

func pendingItem(seed byte, cost uint64, assertHeight uint32) *MempoolItem {
	item := storeItem(seed, 200, cost, 10)
	item.Envelope.AssertHeight = assertHeight
	return item
}

func TestConflictCache_AddRemoveDrain(t *testing.T) {
	c := NewConflictCache(10_000, 100)

	a := pendingItem(1, 100, 0)
	b := pendingItem(2, 100, 0)
	c.Add(a, NewValidationError(ErrMempoolConflict, ""))
	c.Add(b, NewValidationError(ErrMempoolConflict, ""))

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}

	c.Remove(a.Name)
	if c.Len() != 1 {
		t.Fatalf("Len after Remove = %d, want 1", c.Len())
	}

	drained := c.Drain()
	if len(drained) != 1 || drained[0] != b {
		t.Errorf("Drain = %v, want [b]", drained)
	}
	if c.Len() != 0 {
		t.Error("cache should be empty after Drain")
	}
}

func TestConflictCache_BoundedByCost(t *testing.T) {
	c := NewConflictCache(250, 100)

	first := pendingItem(1, 100, 0)
	second := pendingItem(2, 100, 0)
	third := pendingItem(3, 100, 0)
	c.Add(first, nil)
	c.Add(second, nil)
	c.Add(third, nil) // total 300 > 250: oldest dropped silently

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	drained := c.Drain()
	if drained[0] != second || drained[1] != third {
		t.Error("oldest entry should have been dropped")
	}
}

func TestConflictCache_BoundedByItems(t *testing.T) {
	c := NewConflictCache(10_000, 2)

	c.Add(pendingItem(1, 10, 0), nil)
	c.Add(pendingItem(2, 10, 0), nil)
	c.Add(pendingItem(3, 10, 0), nil)

	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestPendingCache_DrainUpTo(t *testing.T) {
	c := NewPendingCache(10_000, 100)

	at105 := pendingItem(1, 100, 105)
	at110 := pendingItem(2, 100, 110)
	at120 := pendingItem(3, 100, 120)
	c.Add(at105, NewValidationError(ErrAssertHeightAbsoluteFailed, ""))
	c.Add(at110, NewValidationError(ErrAssertHeightAbsoluteFailed, ""))
	c.Add(at120, NewValidationError(ErrAssertHeightAbsoluteFailed, ""))

	drained := c.DrainUpTo(110)
	if len(drained) != 2 {
		t.Fatalf("DrainUpTo(110) = %d items, want 2", len(drained))
	}
	for _, item := range drained {
		if item.Envelope.AssertHeight > 110 {
			t.Errorf("drained item locked until %d", item.Envelope.AssertHeight)
		}
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}

	// The remaining item drains once its height is reached.
	drained = c.DrainUpTo(120)
	if len(drained) != 1 || drained[0] != at120 {
		t.Error("remaining item should drain at its assert height")
	}
}

func TestPendingCache_DuplicateAdd(t *testing.T) {
	c := NewPendingCache(10_000, 100)
	item := pendingItem(1, 100, 105)

	c.Add(item, nil)
	c.Add(item, nil)

	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}
