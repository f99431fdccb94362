package utxo

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Commitment computes a merkle root over every coin record in the store.
// Each record is hashed deterministically, the hashes are sorted, and a
// merkle tree is built from them. Returns a zero hash for an empty set.
func Commitment(store *Store) (types.Hash, error) {
	var hashes []types.Hash

	err := store.ForEach(func(r *Record) error {
		hashes = append(hashes, hashRecord(r))
		return nil
	})
	if err != nil {
		return types.Hash{}, fmt.Errorf("coin commitment: %w", err)
	}

	if len(hashes) == 0 {
		return types.Hash{}, nil
	}

	// Sort for deterministic ordering (map/iteration order varies).
	sort.Slice(hashes, func(i, j int) bool {
		return hashLess(hashes[i], hashes[j])
	})

	return computeMerkleRoot(hashes), nil
}

// hashRecord produces a deterministic BLAKE3 hash of a coin record.
// Format: parent_id(32) | puzzle_hash(32) | amount(8) | confirmed(4) | spent(4)
func hashRecord(r *Record) types.Hash {
	var buf []byte
	buf = append(buf, r.Coin.ParentID[:]...)
	buf = append(buf, r.Coin.PuzzleHash[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, r.Coin.Amount)
	buf = binary.LittleEndian.AppendUint32(buf, r.ConfirmedBlockIndex)
	buf = binary.LittleEndian.AppendUint32(buf, r.SpentBlockIndex)
	return crypto.Hash(buf)
}

func hashLess(a, b types.Hash) bool {
	for i := 0; i < types.HashSize; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// computeMerkleRoot builds a binary merkle tree over already-sorted leaf
// hashes, duplicating the final node of an odd-sized level as Bitcoin-style
// trees do.
func computeMerkleRoot(leaves []types.Hash) types.Hash {
	level := leaves
	for len(level) > 1 {
		next := make([]types.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, crypto.HashConcat(level[i], level[i+1]))
			} else {
				next = append(next, crypto.HashConcat(level[i], level[i]))
			}
		}
		level = next
	}
	return level[0]
}
