package strategy

import (
	sdkmath "cosmossdk.io/math"

	"github.com/fleetvault/fvm/internal/types"
)

// Strategy defines the capability interface for a pluggable strategy unit.
// The vault is the only caller; a unit's internal yield mechanics are opaque
// beyond these five operations. Every call crosses a trust boundary: a unit
// may be slow, may fail, and may attempt to re-enter the vault.
type Strategy interface {
	// ID returns the unit's registry identifier.
	ID() types.StrategyID

	// TotalAssets reports the unit's current balance in the underlying
	// asset. May be expensive: some units accrue interest on read.
	TotalAssets() (sdkmath.Int, error)

	// WithdrawableTotalAssets reports the portion of TotalAssets the vault
	// can force out right now. Units with term-committed capital report
	// less than TotalAssets, possibly zero.
	WithdrawableTotalAssets() (sdkmath.Int, error)

	// Accept takes custody of amount. extra carries unit-specific routing
	// data for units that require it.
	Accept(amount sdkmath.Int, extra []byte) error

	// Release returns up to amount to the vault and reports the amount
	// actually released.
	Release(amount sdkmath.Int, extra []byte) (sdkmath.Int, error)

	// Harvest collects any pending rewards into the unit's balance and
	// reports the amount collected.
	Harvest() (sdkmath.Int, error)
}
