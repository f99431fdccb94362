package utxo

import (
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Key prefixes for the coin store.
var (
	prefixCoin    = []byte("c/") // c/<coin_id> -> Record JSON
	prefixPuzzle  = []byte("p/") // p/<puzzle_hash><coin_id> -> empty (index)
	prefixLineage = []byte("l/") // l/<puzzle_hash> -> coin_id (singleton tip pointer)
)

// Store implements Set backed by a storage.DB.
type Store struct {
	db storage.DB
}

// NewStore creates a new coin store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

func coinKey(id types.Hash) []byte {
	key := make([]byte, len(prefixCoin)+types.HashSize)
	copy(key, prefixCoin)
	copy(key[len(prefixCoin):], id[:])
	return key
}

func puzzleKey(puzzleHash, coinID types.Hash) []byte {
	key := make([]byte, len(prefixPuzzle)+types.HashSize*2)
	copy(key, prefixPuzzle)
	copy(key[len(prefixPuzzle):], puzzleHash[:])
	copy(key[len(prefixPuzzle)+types.HashSize:], coinID[:])
	return key
}

func lineageKey(puzzleHash types.Hash) []byte {
	key := make([]byte, len(prefixLineage)+types.HashSize)
	copy(key, prefixLineage)
	copy(key[len(prefixLineage):], puzzleHash[:])
	return key
}

// Get retrieves a coin record by coin id.
func (s *Store) Get(coinID types.Hash) (*Record, error) {
	data, err := s.db.Get(coinKey(coinID))
	if err != nil {
		return nil, fmt.Errorf("coin get: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("coin unmarshal: %w", err)
	}
	return &r, nil
}

// Put stores a coin record and updates its puzzle-hash index. When the
// backing DB supports batches, the record and its index are committed
// together so a crash can't leave the index pointing at a missing record.
func (s *Store) Put(r *Record) error {
	coinID := r.Coin.ID(crypto.Hash)
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("coin marshal: %w", err)
	}

	if batcher, ok := s.db.(storage.Batcher); ok {
		b := batcher.NewBatch()
		if err := b.Put(coinKey(coinID), data); err != nil {
			return fmt.Errorf("coin batch put: %w", err)
		}
		if err := b.Put(puzzleKey(r.Coin.PuzzleHash, coinID), []byte{}); err != nil {
			return fmt.Errorf("coin puzzle index batch put: %w", err)
		}
		if err := b.Commit(); err != nil {
			return fmt.Errorf("coin batch commit: %w", err)
		}
		return nil
	}

	if err := s.db.Put(coinKey(coinID), data); err != nil {
		return fmt.Errorf("coin put: %w", err)
	}
	if err := s.db.Put(puzzleKey(r.Coin.PuzzleHash, coinID), []byte{}); err != nil {
		return fmt.Errorf("coin puzzle index put: %w", err)
	}
	return nil
}

// Spend marks a coin as spent at spentBlockIndex.
func (s *Store) Spend(coinID types.Hash, spentBlockIndex uint32) error {
	r, err := s.Get(coinID)
	if err != nil {
		return err
	}
	r.SpentBlockIndex = spentBlockIndex
	return s.Put(r)
}

// Has reports whether a coin record exists for coinID.
func (s *Store) Has(coinID types.Hash) (bool, error) {
	return s.db.Has(coinKey(coinID))
}

// SetLineageTip records coinID as the current unspent tip of the singleton
// lineage identified by puzzleHash.
func (s *Store) SetLineageTip(puzzleHash types.Hash, coinID types.Hash) error {
	return s.db.Put(lineageKey(puzzleHash), coinID[:])
}

// LineageTip returns the current unspent tip coin id for puzzleHash, if the
// singleton is still live (has not melted).
func (s *Store) LineageTip(puzzleHash types.Hash) (types.Hash, bool, error) {
	data, err := s.db.Get(lineageKey(puzzleHash))
	if err != nil {
		return types.Hash{}, false, nil
	}
	if len(data) != types.HashSize {
		return types.Hash{}, false, fmt.Errorf("corrupt lineage tip for puzzle %s", puzzleHash)
	}
	var id types.Hash
	copy(id[:], data)
	return id, true, nil
}

// GetByPuzzleHash returns every coin record ever stored under puzzleHash,
// spent or not, used to reconstruct a lineage's history.
func (s *Store) GetByPuzzleHash(puzzleHash types.Hash) ([]*Record, error) {
	prefix := make([]byte, len(prefixPuzzle)+types.HashSize)
	copy(prefix, prefixPuzzle)
	copy(prefix[len(prefixPuzzle):], puzzleHash[:])

	var records []*Record
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		off := len(prefixPuzzle) + types.HashSize
		if len(key) < off+types.HashSize {
			return nil
		}
		var coinID types.Hash
		copy(coinID[:], key[off:off+types.HashSize])
		r, err := s.Get(coinID)
		if err != nil {
			return nil
		}
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan puzzle index: %w", err)
	}
	return records, nil
}

// ForEach iterates every coin record in the store.
func (s *Store) ForEach(fn func(*Record) error) error {
	return s.db.ForEach(prefixCoin, func(_, value []byte) error {
		var r Record
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("coin unmarshal: %w", err)
		}
		return fn(&r)
	})
}

