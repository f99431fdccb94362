package mempool

import "fmt"

// Err is a stable error kind surfaced by every public entry point.
// Other subsystems pattern-match on these, so the values and names never
// change even as the underlying message text does.
type Err int

const (
	ErrUnknown Err = iota
	ErrInvalidSpendBundle
	ErrUnknownUnspent
	ErrDoubleSpend
	ErrMempoolConflict
	ErrWrongPuzzleHash
	ErrInvalidCoinSolution
	ErrAssertHeightAbsoluteFailed
	ErrAssertHeightRelativeFailed
	ErrAssertSecondsAbsoluteFailed
	ErrAssertSecondsRelativeFailed
	ErrImpossibleHeightAbsoluteConstraints
	ErrImpossibleSecondsAbsoluteConstraints
	ErrBlockCostExceedsMax
	ErrInvalidBlockFeeAmount
	ErrInvalidFeeLowFee
	ErrInvalidFeeTooCloseToZero
	ErrInvalidCostResult
	ErrMempoolNotInitialized
)

// String returns the stable, pattern-matchable name of the error kind.
func (e Err) String() string {
	switch e {
	case ErrInvalidSpendBundle:
		return "INVALID_SPEND_BUNDLE"
	case ErrUnknownUnspent:
		return "UNKNOWN_UNSPENT"
	case ErrDoubleSpend:
		return "DOUBLE_SPEND"
	case ErrMempoolConflict:
		return "MEMPOOL_CONFLICT"
	case ErrWrongPuzzleHash:
		return "WRONG_PUZZLE_HASH"
	case ErrInvalidCoinSolution:
		return "INVALID_COIN_SOLUTION"
	case ErrAssertHeightAbsoluteFailed:
		return "ASSERT_HEIGHT_ABSOLUTE_FAILED"
	case ErrAssertHeightRelativeFailed:
		return "ASSERT_HEIGHT_RELATIVE_FAILED"
	case ErrAssertSecondsAbsoluteFailed:
		return "ASSERT_SECONDS_ABSOLUTE_FAILED"
	case ErrAssertSecondsRelativeFailed:
		return "ASSERT_SECONDS_RELATIVE_FAILED"
	case ErrImpossibleHeightAbsoluteConstraints:
		return "IMPOSSIBLE_HEIGHT_ABSOLUTE_CONSTRAINTS"
	case ErrImpossibleSecondsAbsoluteConstraints:
		return "IMPOSSIBLE_SECONDS_ABSOLUTE_CONSTRAINTS"
	case ErrBlockCostExceedsMax:
		return "BLOCK_COST_EXCEEDS_MAX"
	case ErrInvalidBlockFeeAmount:
		return "INVALID_BLOCK_FEE_AMOUNT"
	case ErrInvalidFeeLowFee:
		return "INVALID_FEE_LOW_FEE"
	case ErrInvalidFeeTooCloseToZero:
		return "INVALID_FEE_TOO_CLOSE_TO_ZERO"
	case ErrInvalidCostResult:
		return "INVALID_COST_RESULT"
	case ErrMempoolNotInitialized:
		return "MEMPOOL_NOT_INITIALIZED"
	default:
		return "UNKNOWN"
	}
}

// isHeightPending reports whether this kind sends an item to the
// height-pending cache rather than failing outright.
func (e Err) isHeightPending() bool {
	return e == ErrAssertHeightAbsoluteFailed || e == ErrAssertHeightRelativeFailed
}

// ValidationError is returned by every public entry point on failure.
type ValidationError struct {
	Kind Err
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// NewValidationError builds a ValidationError, optionally formatting Msg.
func NewValidationError(kind Err, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
