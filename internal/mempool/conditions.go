package mempool

import (
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// ConditionFlag is a bit in SpendConditions.Flags describing an eligibility
// or behavioral property of a single coin spend, as reported by CLVM
// pre-validation.
type ConditionFlag uint32

const (
	// EligibleForDedup marks a spend whose coin value is fully determined by
	// its (puzzle, solution) pair, so identical solutions may be merged.
	EligibleForDedup ConditionFlag = 1 << iota
	// EligibleForFastForward marks a spend whose puzzle is structurally a
	// singleton and whose conditions don't pin a particular parent.
	EligibleForFastForward
)

// Has reports whether flags contains f.
func (f ConditionFlag) Has(flags ConditionFlag) bool {
	return flags&f != 0
}

// String names the flag for logging; flags is expected to hold at most the
// two bits currently defined, so no bitmask-decomposition is needed.
func (f ConditionFlag) String() string {
	switch f {
	case EligibleForDedup:
		return "ELIGIBLE_FOR_DEDUP"
	case EligibleForFastForward:
		return "ELIGIBLE_FOR_FF"
	case 0:
		return "NONE"
	default:
		return "MIXED"
	}
}

// CreateCoinCondition is a single CREATE_COIN condition emitted by a spend.
type CreateCoinCondition struct {
	PuzzleHash types.Hash
	Amount     uint64
	Hint       []byte
}

// SpendConditions is the pre-validated per-coin result of evaluating one
// CoinSpend's puzzle against its solution.
type SpendConditions struct {
	CoinID                types.Hash
	PuzzleHash            types.Hash
	ConditionCost         uint64
	ExecutionCost         uint64
	Flags                 ConditionFlag
	HeightRelative        *uint32
	SecondsRelative       *uint64
	BeforeHeightRelative  *uint32
	BeforeSecondsRelative *uint64
	CreateCoin            []CreateCoinCondition
}

// Cost returns this spend's total contribution to the bundle's CLVM cost.
func (sc SpendConditions) Cost() uint64 {
	return sc.ConditionCost + sc.ExecutionCost
}

// SpendBundleConditions is the typed result of pre-validating an entire
// spend bundle: one CLVM+signature pass producing a cost figure, a per-spend
// breakdown, and the bundle-wide absolute timelock envelope.
type SpendBundleConditions struct {
	Cost                  uint64
	Spends                []SpendConditions
	HeightAbsolute        uint32
	SecondsAbsolute       uint64
	BeforeHeightAbsolute  *uint32
	BeforeSecondsAbsolute *uint64
	ValidatedSignature    bool
}

// AllFastForward reports whether every spend in the bundle is FF-eligible:
// such a bundle can never be invalidated by anything other than the
// singleton melting, so admission rejects it outright.
func (c SpendBundleConditions) AllFastForward() bool {
	if len(c.Spends) == 0 {
		return false
	}
	for _, s := range c.Spends {
		if !s.Flags.Has(EligibleForFastForward) {
			return false
		}
	}
	return true
}

// TimelockEnvelope is the bundle's effective, fully-resolved time-lock: the
// lower bounds it must satisfy and the optional upper bounds beyond which it
// becomes stale and must be evicted.
type TimelockEnvelope struct {
	AssertHeight        uint32
	AssertSeconds       uint64
	AssertBeforeHeight  *uint32
	AssertBeforeSeconds *uint64
}

// Valid reports whether the envelope's upper bounds strictly exceed its
// lower bounds (invariant 4: an envelope that doesn't is never satisfiable).
func (e TimelockEnvelope) Valid() bool {
	if e.AssertBeforeHeight != nil && *e.AssertBeforeHeight <= e.AssertHeight {
		return false
	}
	if e.AssertBeforeSeconds != nil && *e.AssertBeforeSeconds <= e.AssertSeconds {
		return false
	}
	return true
}

// CoinRecord is the coin-store's view of one coin: whether and when it was
// confirmed, and whether it has since been spent.
type CoinRecord struct {
	Coin                types.Coin
	ConfirmedBlockIndex uint32
	SpentBlockIndex     uint32
	Coinbase            bool
	Timestamp           uint64
}

// Spent reports whether this coin has been spent on-chain.
func (r CoinRecord) Spent() bool {
	return r.SpentBlockIndex != 0
}

// ComputeTimelockEnvelope resolves a bundle's effective timelock by combining
// its absolute constraints (taken directly from conds) with each spend's
// relative constraints, resolved against the corresponding coin's on-chain
// confirmation height/timestamp. Relative lower bounds combine by max (the
// envelope must exceed every one of them); relative upper bounds combine by
// min (it must not exceed any of them).
func ComputeTimelockEnvelope(records map[types.Hash]CoinRecord, conds SpendBundleConditions) TimelockEnvelope {
	env := TimelockEnvelope{
		AssertHeight:        conds.HeightAbsolute,
		AssertSeconds:       conds.SecondsAbsolute,
		AssertBeforeHeight:  conds.BeforeHeightAbsolute,
		AssertBeforeSeconds: conds.BeforeSecondsAbsolute,
	}

	for _, s := range conds.Spends {
		rec, ok := records[s.CoinID]
		if !ok {
			continue
		}
		if s.HeightRelative != nil {
			h := rec.ConfirmedBlockIndex + *s.HeightRelative
			if h > env.AssertHeight {
				env.AssertHeight = h
			}
		}
		if s.SecondsRelative != nil {
			sec := rec.Timestamp + *s.SecondsRelative
			if sec > env.AssertSeconds {
				env.AssertSeconds = sec
			}
		}
		if s.BeforeHeightRelative != nil {
			h := rec.ConfirmedBlockIndex + *s.BeforeHeightRelative
			if env.AssertBeforeHeight == nil || h < *env.AssertBeforeHeight {
				env.AssertBeforeHeight = &h
			}
		}
		if s.BeforeSecondsRelative != nil {
			sec := rec.Timestamp + *s.BeforeSecondsRelative
			if env.AssertBeforeSeconds == nil || sec < *env.AssertBeforeSeconds {
				env.AssertBeforeSeconds = &sec
			}
		}
	}

	return env
}
