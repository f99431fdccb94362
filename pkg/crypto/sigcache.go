package crypto

import (
	"sync"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// SigCacheEntry records one signature verification that already succeeded:
// the key is the hash of (message || pubkey || signature), so a later
// verification of the exact same triple can be skipped.
type SigCacheEntry struct {
	Key       types.Hash
	PublicKey []byte
	Signature []byte
}

// SigCacheKey computes the cache key for a (message hash, pubkey, signature)
// triple.
func SigCacheKey(msgHash, publicKey, signature []byte) types.Hash {
	buf := make([]byte, 0, len(msgHash)+len(publicKey)+len(signature))
	buf = append(buf, msgHash...)
	buf = append(buf, publicKey...)
	buf = append(buf, signature...)
	return Hash(buf)
}

// SignatureCache remembers signature verifications that have already
// succeeded, so pre-validation of a bundle seen before (or sharing spends
// with one seen before) skips the expensive Schnorr check. Entries are
// evicted in insertion order once capacity is reached.
type SignatureCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[types.Hash]struct{}
	order    []types.Hash
}

// NewSignatureCache constructs a cache bounded to capacity entries.
func NewSignatureCache(capacity int) *SignatureCache {
	return &SignatureCache{
		capacity: capacity,
		entries:  make(map[types.Hash]struct{}),
	}
}

// Contains reports whether key's verification has already succeeded.
func (c *SignatureCache) Contains(key types.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Merge folds newly-verified entries into the cache, evicting the oldest
// entries when over capacity.
func (c *SignatureCache) Merge(entries []SigCacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		if _, ok := c.entries[e.Key]; ok {
			continue
		}
		c.entries[e.Key] = struct{}{}
		c.order = append(c.order, e.Key)
	}
	for c.capacity > 0 && len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Len reports the number of cached verifications.
func (c *SignatureCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
