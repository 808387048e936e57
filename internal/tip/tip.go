/*

Tip accrual: the continuously vesting performance fee, minted as new shares
to a configured recipient. The calculation is pure; the vault applies it at
the head of every state-changing entry point and advances its last-accrual
timestamp atomically with the mint.

*/

package tip

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

var ErrRateInvalid = errors.New("tip rate is invalid")

// ValidateRate rejects nil or negative per-second rates and rates at or
// above 100% per second.
func ValidateRate(ratePerSecond sdkmath.LegacyDec) error {
	if ratePerSecond.IsNil() {
		return fmt.Errorf("%w: rate is nil", ErrRateInvalid)
	}
	if ratePerSecond.IsNegative() {
		return fmt.Errorf("%w: rate is negative: %s", ErrRateInvalid, ratePerSecond)
	}
	if ratePerSecond.GTE(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: rate %s is at or above 100%% per second", ErrRateInvalid, ratePerSecond)
	}
	return nil
}

// AccruedShares computes the shares newly owed to the tip recipient:
// totalShares * ratePerSecond * elapsedSeconds, truncated toward zero.
// Minting these shares dilutes every holder at the current share price,
// which is exactly a fee taken on total value.
func AccruedShares(totalShares sdkmath.Int, ratePerSecond sdkmath.LegacyDec, elapsed time.Duration) sdkmath.Int {
	if elapsed <= 0 || ratePerSecond.IsZero() || !totalShares.IsPositive() {
		return sdkmath.ZeroInt()
	}
	seconds := int64(elapsed / time.Second)
	if seconds <= 0 {
		return sdkmath.ZeroInt()
	}
	return ratePerSecond.
		MulInt(totalShares).
		MulInt64(seconds).
		TruncateInt()
}
