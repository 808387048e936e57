package strategy

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/fleetvault/fvm/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrAmountInvalid       = errors.New("amount is invalid")
	ErrInsufficientFunds   = errors.New("strategy balance is insufficient")
	ErrExtraDataUnexpected = errors.New("strategy does not take extra data")
)

// Buffer is the designated liquidity strategy: it holds the underlying asset
// without deploying it anywhere, so its entire balance is always
// withdrawable and it earns nothing. Ordinary withdrawals are served from
// here before any forced liquidation is considered.
type Buffer struct {
	id      types.StrategyID
	balance sdkmath.Int
}

// NewBuffer creates an empty buffer strategy.
func NewBuffer(id types.StrategyID) *Buffer {
	return &Buffer{id: id, balance: sdkmath.ZeroInt()}
}

func (b *Buffer) ID() types.StrategyID {
	return b.id
}

func (b *Buffer) TotalAssets() (sdkmath.Int, error) {
	return b.balance, nil
}

func (b *Buffer) WithdrawableTotalAssets() (sdkmath.Int, error) {
	return b.balance, nil
}

func (b *Buffer) Accept(amount sdkmath.Int, extra []byte) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: accept amount must be positive", ErrAmountInvalid)
	}
	if len(extra) != 0 {
		return ErrExtraDataUnexpected
	}
	b.balance = b.balance.Add(amount)
	return nil
}

func (b *Buffer) Release(amount sdkmath.Int, extra []byte) (sdkmath.Int, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: release amount must be positive", ErrAmountInvalid)
	}
	if len(extra) != 0 {
		return sdkmath.ZeroInt(), ErrExtraDataUnexpected
	}
	if b.balance.LT(amount) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: have %s, want %s", ErrInsufficientFunds, b.balance, amount)
	}
	b.balance = b.balance.Sub(amount)
	return amount, nil
}

func (b *Buffer) Harvest() (sdkmath.Int, error) {
	return sdkmath.ZeroInt(), nil
}
