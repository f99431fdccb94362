// Package crypto provides cryptographic primitives for Klingnet: BLAKE3
// hashing, Schnorr signing, and the signature-verification cache used by
// spend-bundle pre-validation.
package crypto

import (
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data. Coin ids and spend
// bundle names are produced by this function.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// p2pkPuzzleTag domain-separates the standard pay-to-pubkey puzzle hash
// from a plain hash of the key bytes.
var p2pkPuzzleTag = []byte("klingnet/p2pk/v1")

// PuzzleHashForPubKey derives the puzzle hash of the standard
// pay-to-pubkey locking program for a compressed public key. Coins paid to
// this puzzle hash are spendable by a Schnorr signature from the key.
func PuzzleHashForPubKey(pubKey []byte) types.Hash {
	buf := make([]byte, 0, len(p2pkPuzzleTag)+len(pubKey))
	buf = append(buf, p2pkPuzzleTag...)
	buf = append(buf, pubKey...)
	return Hash(buf)
}

// AddressFromPubKey derives the address of the standard pay-to-pubkey
// puzzle for a compressed public key.
func AddressFromPubKey(pubKey []byte) types.Address {
	return types.AddressFromPuzzleHash(PuzzleHashForPubKey(pubKey))
}

// HashConcat hashes the concatenation of two hashes.
// Used for building merkle trees.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}
