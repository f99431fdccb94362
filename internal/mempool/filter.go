package mempool

import (
	"github.com/btcsuite/btcd/btcutil/gcs"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// filterP and filterM are the golomb-coded-set parameters: P=19 is the value
// BIP-158 uses for its regular filter, and M is set to 2^P here (not BIP-158's
// 784931), giving a false-positive rate of 1/2^19.
const (
	filterP = 19
	filterM = 1 << filterP
)

// filterKey is the SipHash key both sides of a mempool-diff exchange use.
// Unlike BIP-158 block filters there is no natural per-object key to derive
// it from (the filter describes a moving pool), so a fixed key keeps the
// sender's filter matchable by every receiver.
var filterKey [gcs.KeySize]byte

// GetFilter builds a BIP-158-style golomb-coded-set filter over every
// currently admitted item's name, letting peers request only the bundles
// they don't already have. The serialization carries the element count, so
// the bytes are self-contained.
func (m *Manager) GetFilter() ([]byte, error) {
	m.mu.Lock()
	items := m.store.ItemsByFeerate()
	m.mu.Unlock()

	data := make([][]byte, len(items))
	for i, item := range items {
		h := item.Name
		data[i] = h[:]
	}

	filter, err := gcs.BuildGCSFilter(filterP, filterM, filterKey, data)
	if err != nil {
		return nil, err
	}
	return filter.NBytes()
}

// GetItemsNotInFilter returns admitted items whose names a peer's filter
// does not match, highest fee rate first, up to limit: the diff the peer
// is missing. False positives in the filter may suppress a few items; they
// are recovered on the next exchange.
func (m *Manager) GetItemsNotInFilter(filterBytes []byte, limit int) ([]*MempoolItem, error) {
	filter, err := gcs.FromNBytes(filterP, filterM, filterBytes)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	items := m.store.ItemsByFeerate()
	m.mu.Unlock()

	var out []*MempoolItem
	for _, item := range items {
		h := item.Name
		match, err := filter.Match(filterKey, h[:])
		if err != nil {
			return nil, err
		}
		if match {
			continue
		}
		out = append(out, item)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// filterMatches reports whether the serialized filter matches name; shared
// by tests and diagnostics.
func filterMatches(filterBytes []byte, name types.Hash) (bool, error) {
	filter, err := gcs.FromNBytes(filterP, filterM, filterBytes)
	if err != nil {
		return false, err
	}
	return filter.Match(filterKey, name[:])
}
