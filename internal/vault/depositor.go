/*

Depositor-facing operations: deposit, mint, withdraw, redeem, plus the
buffer-only withdrawal variants. Ordinary withdrawals drain the buffer
first; any shortfall is covered by forced liquidation of eligible
strategies, largest withdrawable balance first.

*/

package vault

import (
	"errors"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/fleetvault/fvm/internal/strategy"
	"github.com/fleetvault/fvm/internal/types"
)

// MaxRequest, passed as the assets or shares argument of a withdrawal-class
// operation, resolves to the owner's exact maximum before execution.
var MaxRequest = sdkmath.NewInt(-1)

// Deposit places assets into the buffer strategy and mints shares to
// receiver. Deposits never trigger automatic rebalancing.
func (v *Vault) Deposit(caller string, assets sdkmath.Int, receiver string) (sdkmath.Int, error) {
	op, err := v.begin("deposit")
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer v.end(op)
	v.accrueTip(op)

	if err := v.primeCache(op); err != nil {
		return sdkmath.ZeroInt(), err
	}
	total, err := v.totalAssets(op)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	if err := v.checkDeposit(assets, receiver, total); err != nil {
		return sdkmath.ZeroInt(), err
	}

	shares := sharesForDeposit(assets, total, v.ledger.totalSupply())
	if !shares.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: deposit of %s mints zero shares", ErrAmountInvalid, assets)
	}

	if err := v.buffer.Accept(assets, nil); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: accept on %s: %w", ErrUnitFailure, v.buffer.ID(), err)
	}
	op.cache.Invalidate(v.buffer.ID())

	v.ledger.mint(receiver, shares)
	v.record(op, types.Record{
		Kind:     types.RecordDeposit,
		Caller:   caller,
		Receiver: receiver,
		Assets:   assets,
		Shares:   shares,
	})
	op.log.Info().
		Str("receiver", receiver).
		Str("assets", assets.String()).
		Str("shares", shares.String()).
		Msg("Deposit executed")
	return shares, nil
}

// Mint is Deposit driven by an exact share count; the asset amount owed is
// derived rounding up.
func (v *Vault) Mint(caller string, shares sdkmath.Int, receiver string) (sdkmath.Int, error) {
	op, err := v.begin("mint")
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer v.end(op)
	v.accrueTip(op)

	if err := v.primeCache(op); err != nil {
		return sdkmath.ZeroInt(), err
	}
	total, err := v.totalAssets(op)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	if shares.IsNil() || !shares.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: mint of %v shares", ErrAmountInvalid, shares)
	}
	assets := assetsForMint(shares, total, v.ledger.totalSupply())
	if err := v.checkDeposit(assets, receiver, total); err != nil {
		return sdkmath.ZeroInt(), err
	}

	if err := v.buffer.Accept(assets, nil); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: accept on %s: %w", ErrUnitFailure, v.buffer.ID(), err)
	}
	op.cache.Invalidate(v.buffer.ID())

	v.ledger.mint(receiver, shares)
	v.record(op, types.Record{
		Kind:     types.RecordDeposit,
		Caller:   caller,
		Receiver: receiver,
		Assets:   assets,
		Shares:   shares,
	})
	op.log.Info().
		Str("receiver", receiver).
		Str("assets", assets.String()).
		Str("shares", shares.String()).
		Msg("Mint executed")
	return assets, nil
}

func (v *Vault) checkDeposit(assets sdkmath.Int, receiver string, total sdkmath.Int) error {
	if v.paused {
		return fmt.Errorf("%w: deposits are blocked", ErrVaultPaused)
	}
	if receiver == "" {
		return fmt.Errorf("%w: receiver is empty", ErrAddressInvalid)
	}
	if assets.IsNil() || !assets.IsPositive() {
		return fmt.Errorf("%w: deposit of %v", ErrAmountInvalid, assets)
	}
	if total.Add(assets).GT(v.depositCap) {
		return fmt.Errorf("%w: %s over cap %s with %s pooled", ErrDepositCapExceeded, assets, v.depositCap, total)
	}
	return nil
}

// Withdraw pays receiver exactly assets, burning owner's shares rounded up.
// Buffer first, forced liquidation for any shortfall. Withdrawals remain
// allowed while the vault is paused.
func (v *Vault) Withdraw(caller string, assets sdkmath.Int, receiver, owner string) (sdkmath.Int, error) {
	return v.withdraw("withdraw", caller, assets, receiver, owner, false)
}

// WithdrawFromBuffer is Withdraw restricted to buffer liquidity: any
// shortfall is a Liquidity rejection instead of a forced liquidation.
func (v *Vault) WithdrawFromBuffer(caller string, assets sdkmath.Int, receiver, owner string) (sdkmath.Int, error) {
	return v.withdraw("withdraw_from_buffer", caller, assets, receiver, owner, true)
}

func (v *Vault) withdraw(name, caller string, assets sdkmath.Int, receiver, owner string, bufferOnly bool) (sdkmath.Int, error) {
	op, err := v.begin(name)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer v.end(op)
	v.accrueTip(op)

	if err := v.primeCache(op); err != nil {
		return sdkmath.ZeroInt(), err
	}
	total, err := v.totalAssets(op)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	supply := v.ledger.totalSupply()
	entitlement := assetsForRedeem(v.ledger.balanceOf(owner), total, supply)

	// A max request resolves to the exact entitlement before execution.
	if assets.Equal(MaxRequest) {
		assets = entitlement
	}

	if receiver == "" || owner == "" {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: receiver or owner is empty", ErrAddressInvalid)
	}
	if assets.IsNil() || !assets.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: withdrawal of %v", ErrAmountInvalid, assets)
	}
	if assets.GT(entitlement) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s over entitlement %s", ErrExceedsMaxWithdraw, assets, entitlement)
	}

	shares := sharesForWithdraw(assets, total, supply)
	if err := v.checkSpender(caller, owner, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}

	if err := v.pullLiquidity(op, assets, bufferOnly); err != nil {
		return sdkmath.ZeroInt(), err
	}

	// Internal ledger mutations only after every external call succeeded;
	// both were pre-checked and cannot fail here.
	if err := v.ledger.spendAllowance(owner, caller, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := v.ledger.burn(owner, shares); err != nil {
		v.ledger.restoreAllowance(owner, caller, shares)
		return sdkmath.ZeroInt(), err
	}

	v.record(op, types.Record{
		Kind:     types.RecordWithdraw,
		Caller:   caller,
		Owner:    owner,
		Receiver: receiver,
		Assets:   assets,
		Shares:   shares,
	})
	op.log.Info().
		Str("owner", owner).
		Str("receiver", receiver).
		Str("assets", assets.String()).
		Str("shares", shares.String()).
		Msg("Withdrawal executed")
	return shares, nil
}

// Redeem burns exactly shares of owner's position and pays receiver the
// rounded-down asset equivalent.
func (v *Vault) Redeem(caller string, shares sdkmath.Int, receiver, owner string) (sdkmath.Int, error) {
	return v.redeem("redeem", caller, shares, receiver, owner, false)
}

// RedeemFromBuffer is Redeem restricted to buffer liquidity.
func (v *Vault) RedeemFromBuffer(caller string, shares sdkmath.Int, receiver, owner string) (sdkmath.Int, error) {
	return v.redeem("redeem_from_buffer", caller, shares, receiver, owner, true)
}

func (v *Vault) redeem(name, caller string, shares sdkmath.Int, receiver, owner string, bufferOnly bool) (sdkmath.Int, error) {
	op, err := v.begin(name)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer v.end(op)
	v.accrueTip(op)

	if err := v.primeCache(op); err != nil {
		return sdkmath.ZeroInt(), err
	}
	total, err := v.totalAssets(op)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	balance := v.ledger.balanceOf(owner)

	if shares.Equal(MaxRequest) {
		shares = balance
	}

	if receiver == "" || owner == "" {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: receiver or owner is empty", ErrAddressInvalid)
	}
	if shares.IsNil() || !shares.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: redemption of %v shares", ErrAmountInvalid, shares)
	}
	if shares.GT(balance) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s over balance %s", ErrExceedsMaxRedeem, shares, balance)
	}
	if err := v.checkSpender(caller, owner, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}

	assets := assetsForRedeem(shares, total, v.ledger.totalSupply())
	if assets.IsPositive() {
		if err := v.pullLiquidity(op, assets, bufferOnly); err != nil {
			return sdkmath.ZeroInt(), err
		}
	}

	if err := v.ledger.spendAllowance(owner, caller, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := v.ledger.burn(owner, shares); err != nil {
		v.ledger.restoreAllowance(owner, caller, shares)
		return sdkmath.ZeroInt(), err
	}

	v.record(op, types.Record{
		Kind:     types.RecordWithdraw,
		Caller:   caller,
		Owner:    owner,
		Receiver: receiver,
		Assets:   assets,
		Shares:   shares,
	})
	op.log.Info().
		Str("owner", owner).
		Str("receiver", receiver).
		Str("assets", assets.String()).
		Str("shares", shares.String()).
		Msg("Redemption executed")
	return assets, nil
}

// checkSpender enforces the owner-or-approved-delegate rule before any
// mutation.
func (v *Vault) checkSpender(caller, owner string, shares sdkmath.Int) error {
	if caller == owner {
		return nil
	}
	allowance := v.ledger.allowance(owner, caller)
	if allowance.IsZero() {
		return fmt.Errorf("%w: %s over position of %s", ErrNotOwnerNorDelegate, caller, owner)
	}
	if allowance.LT(shares) {
		return fmt.Errorf("%w: approved %s, need %s", ErrInsufficientAllowance, allowance, shares)
	}
	return nil
}

// liquidationStep is one planned forced release.
type liquidationStep struct {
	id     types.StrategyID
	unit   strategy.Strategy
	amount sdkmath.Int
}

// pullLiquidity sources exactly assets for a withdrawal: buffer first, then
// forced liquidation per the plan. The plan is fully resolved before the
// first external release, so a liquidity shortfall rejects the operation
// with zero state change.
func (v *Vault) pullLiquidity(op *operation, assets sdkmath.Int, bufferOnly bool) error {
	bufferBal, err := v.strategyBalance(op, v.buffer)
	if err != nil {
		return err
	}
	fromBuffer := sdkmath.MinInt(assets, bufferBal)
	shortfall := assets.Sub(fromBuffer)

	var plan []liquidationStep
	if shortfall.IsPositive() {
		if bufferOnly {
			return fmt.Errorf("%w: buffer holds %s of %s requested", ErrInsufficientLiquidity, bufferBal, assets)
		}
		plan, err = v.planForcedLiquidation(shortfall)
		if err != nil {
			return err
		}
	}

	recovered := sdkmath.ZeroInt()
	if fromBuffer.IsPositive() {
		actual, err := v.buffer.Release(fromBuffer, nil)
		op.cache.Invalidate(v.buffer.ID())
		if err != nil {
			return fmt.Errorf("%w: release on %s: %w", ErrUnitFailure, v.buffer.ID(), err)
		}
		if !actual.Equal(fromBuffer) {
			v.restituteToBuffer(op, actual)
			return fmt.Errorf("%w: %s released %s of %s", ErrUnitInconsistent, v.buffer.ID(), actual, fromBuffer)
		}
		recovered = recovered.Add(actual)
	}

	for _, step := range plan {
		actual, err := step.unit.Release(step.amount, nil)
		op.cache.Invalidate(step.id)
		if err != nil {
			// Funds already pulled go back into the buffer so the solvency
			// invariant holds across the abort.
			v.restituteToBuffer(op, recovered)
			return fmt.Errorf("%w: release on %s: %w", ErrUnitFailure, step.id, err)
		}
		if !actual.Equal(step.amount) {
			v.restituteToBuffer(op, recovered.Add(actual))
			return fmt.Errorf("%w: %s released %s of %s", ErrUnitInconsistent, step.id, actual, step.amount)
		}
		recovered = recovered.Add(actual)
		op.log.Debug().
			Str("strategy", string(step.id)).
			Str("amount", actual.String()).
			Msg("Force-liquidated strategy funds for withdrawal")
	}

	return nil
}

// planForcedLiquidation selects eligible strategies in descending order of
// withdrawable balance until the shortfall is covered. Size-greedy by
// design: fewer units touched means fewer expensive external calls, at the
// cost of proportional fairness.
func (v *Vault) planForcedLiquidation(shortfall sdkmath.Int) ([]liquidationStep, error) {
	type candidate struct {
		id           types.StrategyID
		unit         strategy.Strategy
		withdrawable sdkmath.Int
	}

	candidates := make([]candidate, 0, v.registry.Len())
	for _, entry := range v.registry.List() {
		withdrawable, err := entry.Unit.WithdrawableTotalAssets()
		if err != nil {
			return nil, fmt.Errorf("%w: withdrawableTotalAssets on %s: %w", ErrUnitFailure, entry.Registration.ID, err)
		}
		if withdrawable.IsNil() || withdrawable.IsNegative() {
			return nil, fmt.Errorf("%w: %s reported withdrawable %v", ErrUnitInconsistent, entry.Registration.ID, withdrawable)
		}
		if withdrawable.IsPositive() {
			candidates = append(candidates, candidate{
				id:           entry.Registration.ID,
				unit:         entry.Unit,
				withdrawable: withdrawable,
			})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].withdrawable.GT(candidates[j].withdrawable)
	})

	remaining := shortfall
	plan := make([]liquidationStep, 0, len(candidates))
	for _, c := range candidates {
		if !remaining.IsPositive() {
			break
		}
		take := sdkmath.MinInt(remaining, c.withdrawable)
		plan = append(plan, liquidationStep{id: c.id, unit: c.unit, amount: take})
		remaining = remaining.Sub(take)
	}
	if remaining.IsPositive() {
		return nil, fmt.Errorf("%w: short %s after all eligible strategies", ErrInsufficientLiquidity, remaining)
	}
	return plan, nil
}

// restituteToBuffer returns funds recovered by a failed multi-step pull to
// the buffer. Failure here means two units failed in one operation; the
// error is logged and the original abort still propagates.
func (v *Vault) restituteToBuffer(op *operation, amount sdkmath.Int) {
	if !amount.IsPositive() {
		return
	}
	if err := v.buffer.Accept(amount, nil); err != nil {
		op.log.Error().
			Err(errors.Join(ErrUnitFailure, err)).
			Str("amount", amount.String()).
			Msg("Restitution to buffer failed after aborted liquidation")
		return
	}
	op.cache.Invalidate(v.buffer.ID())
}
