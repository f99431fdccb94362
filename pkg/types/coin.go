package types

import (
	"encoding/binary"
	"encoding/json"
)

// Coin is an unspent output identified by the hash of its
// (parent_id, puzzle_hash, amount) triple. Unlike an Outpoint-indexed UTXO,
// a Coin's identity is fully determined by its contents: spending the same
// parent for the same amount under the same puzzle always yields the same id.
type Coin struct {
	ParentID   Hash   `json:"parent_coin_info"`
	PuzzleHash Hash   `json:"puzzle_hash"`
	Amount     uint64 `json:"amount"`
}

// serialize returns the canonical byte layout hashed to produce a Coin's id:
// parent_id(32) | puzzle_hash(32) | amount(8, big-endian).
func (c Coin) serialize() []byte {
	buf := make([]byte, 0, HashSize*2+8)
	buf = append(buf, c.ParentID[:]...)
	buf = append(buf, c.PuzzleHash[:]...)
	buf = binary.BigEndian.AppendUint64(buf, c.Amount)
	return buf
}

// ID returns the coin's identity hash. Callers needing a hash function
// inject one (see pkg/crypto.Hash) to avoid an import cycle between types
// and crypto; ID here takes the hasher explicitly.
func (c Coin) ID(hash func([]byte) Hash) Hash {
	return hash(c.serialize())
}

// IsZero reports whether this is the zero-value coin.
func (c Coin) IsZero() bool {
	return c.ParentID.IsZero() && c.PuzzleHash.IsZero() && c.Amount == 0
}

// CreateCoin describes a CREATE_COIN condition emitted by a spend: the child
// puzzle hash, its amount, and an optional opaque hint used for
// mempool-update notifications and wallet scanning.
type CreateCoin struct {
	PuzzleHash Hash   `json:"puzzle_hash"`
	Amount     uint64 `json:"amount"`
	Hint       []byte `json:"hint,omitempty"`
}

// coinJSON mirrors Coin with the field names used on the wire.
type coinJSON struct {
	ParentID   Hash   `json:"parent_coin_info"`
	PuzzleHash Hash   `json:"puzzle_hash"`
	Amount     uint64 `json:"amount"`
}

// MarshalJSON encodes the coin using its wire field names.
func (c Coin) MarshalJSON() ([]byte, error) {
	return json.Marshal(coinJSON(c))
}

// UnmarshalJSON decodes a coin from its wire field names.
func (c *Coin) UnmarshalJSON(data []byte) error {
	var j coinJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*c = Coin(j)
	return nil
}
