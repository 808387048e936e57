/*

Admin surface: strategy lifecycle, cap updates and vault-wide parameters.
Every mutation is a state-changing entry point, so it runs tip accrual
first and emits one record; configuration reaches operations only through
these named actions.

*/

package vault

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/fleetvault/fvm/internal/strategy"
	"github.com/fleetvault/fvm/internal/tip"
	"github.com/fleetvault/fvm/internal/types"
)

func (v *Vault) checkAdmin(caller string) error {
	if caller != v.admin {
		return fmt.Errorf("%w: admin action attempted by %s", ErrUnauthorized, caller)
	}
	return nil
}

// AddStrategy registers a new strategy unit with its caps. The buffer id is
// reserved; duplicate registration is rejected.
func (v *Vault) AddStrategy(caller string, unit strategy.Strategy, caps types.StrategyCaps, requiresExtraData bool) error {
	op, err := v.begin("add_strategy")
	if err != nil {
		return err
	}
	defer v.end(op)
	v.accrueTip(op)

	if err := v.checkAdmin(caller); err != nil {
		return err
	}
	if unit != nil && unit.ID() == v.buffer.ID() {
		return fmt.Errorf("%w: id %s is reserved for the buffer", ErrConfigInvalid, unit.ID())
	}
	if err := v.registry.Add(unit, caps, requiresExtraData); err != nil {
		return err
	}

	v.record(op, types.Record{
		Kind:     types.RecordStrategyAdded,
		Strategy: unit.ID(),
		Caps:     &caps,
	})
	op.log.Info().Str("strategy", string(unit.ID())).Msg("Strategy registered")
	return nil
}

// RemoveStrategy drops a registration. The unit's reported balance must be
// zero; funds must be rebalanced away first.
func (v *Vault) RemoveStrategy(caller string, id types.StrategyID) error {
	op, err := v.begin("remove_strategy")
	if err != nil {
		return err
	}
	defer v.end(op)
	v.accrueTip(op)

	if err := v.checkAdmin(caller); err != nil {
		return err
	}
	entry, err := v.registry.Get(id)
	if err != nil {
		return err
	}
	balance, err := v.strategyBalance(op, entry.Unit)
	if err != nil {
		return err
	}
	if !balance.IsZero() {
		return fmt.Errorf("%w: %s holds %s", ErrStrategyNotEmpty, id, balance)
	}
	if err := v.registry.Remove(id); err != nil {
		return err
	}

	v.record(op, types.Record{
		Kind:     types.RecordStrategyRemoved,
		Strategy: id,
	})
	op.log.Info().Str("strategy", string(id)).Msg("Strategy removed")
	return nil
}

// UpdateCaps replaces a strategy's cap set. The change applies to the next
// operation; in-flight state is unaffected.
func (v *Vault) UpdateCaps(caller string, id types.StrategyID, caps types.StrategyCaps) error {
	op, err := v.begin("update_caps")
	if err != nil {
		return err
	}
	defer v.end(op)
	v.accrueTip(op)

	if err := v.checkAdmin(caller); err != nil {
		return err
	}
	if err := v.registry.UpdateCaps(id, caps); err != nil {
		return err
	}

	v.record(op, types.Record{
		Kind:     types.RecordCapsUpdated,
		Strategy: id,
		Caps:     &caps,
	})
	op.log.Info().Str("strategy", string(id)).Msg("Strategy caps updated")
	return nil
}

// SetStrategyActive toggles whether a strategy may receive funds. Inactive
// strategies can still be drained and force-liquidated.
func (v *Vault) SetStrategyActive(caller string, id types.StrategyID, active bool) error {
	op, err := v.begin("set_strategy_active")
	if err != nil {
		return err
	}
	defer v.end(op)
	v.accrueTip(op)

	if err := v.checkAdmin(caller); err != nil {
		return err
	}
	if err := v.registry.SetActive(id, active); err != nil {
		return err
	}

	v.record(op, types.Record{
		Kind:     types.RecordCapsUpdated,
		Strategy: id,
		Current:  fmt.Sprintf("active=%t", active),
	})
	op.log.Info().Str("strategy", string(id)).Bool("active", active).Msg("Strategy activity updated")
	return nil
}

// SetMinimumBufferBalance updates the floor a draining AdjustBuffer batch
// must respect.
func (v *Vault) SetMinimumBufferBalance(caller string, amount sdkmath.Int) error {
	op, err := v.begin("set_minimum_buffer")
	if err != nil {
		return err
	}
	defer v.end(op)
	v.accrueTip(op)

	if err := v.checkAdmin(caller); err != nil {
		return err
	}
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("%w: %v", ErrMinimumBufferInvalid, amount)
	}

	previous := v.minimumBuffer
	v.minimumBuffer = amount
	v.record(op, types.Record{
		Kind:     types.RecordBufferMinUpdated,
		Previous: previous.String(),
		Current:  amount.String(),
	})
	op.log.Info().Str("minimum", amount.String()).Msg("Minimum buffer balance updated")
	return nil
}

// SetMaxRebalanceBatchSize updates the instruction-count limit.
func (v *Vault) SetMaxRebalanceBatchSize(caller string, n int) error {
	op, err := v.begin("set_max_batch_size")
	if err != nil {
		return err
	}
	defer v.end(op)
	v.accrueTip(op)

	if err := v.checkAdmin(caller); err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrBatchSizeInvalid, n)
	}

	previous := v.maxBatchSize
	v.maxBatchSize = n
	v.record(op, types.Record{
		Kind:     types.RecordBatchSizeUpdated,
		Previous: fmt.Sprintf("%d", previous),
		Current:  fmt.Sprintf("%d", n),
	})
	op.log.Info().Int("maxBatchSize", n).Msg("Max rebalance batch size updated")
	return nil
}

// SetCooldownPeriod updates the gate's period. Deliberately does not reset
// the ordinary clock.
func (v *Vault) SetCooldownPeriod(caller string, period time.Duration) error {
	op, err := v.begin("set_cooldown_period")
	if err != nil {
		return err
	}
	defer v.end(op)
	v.accrueTip(op)

	if err := v.checkAdmin(caller); err != nil {
		return err
	}
	if period < 0 {
		return fmt.Errorf("%w: cooldown period is negative", ErrConfigInvalid)
	}

	previous := v.gate.Period()
	v.gate.SetPeriod(period)
	v.record(op, types.Record{
		Kind:     types.RecordCooldownUpdated,
		Previous: previous.String(),
		Current:  period.String(),
	})
	op.log.Info().Dur("cooldown", period).Msg("Cooldown period updated")
	return nil
}

// SetTipRate changes the per-second tip rate. Accrual at entry settles all
// elapsed time under the old rate first, so the change is prospective only.
func (v *Vault) SetTipRate(caller string, ratePerSecond sdkmath.LegacyDec) error {
	op, err := v.begin("set_tip_rate")
	if err != nil {
		return err
	}
	defer v.end(op)
	v.accrueTip(op)

	if err := v.checkAdmin(caller); err != nil {
		return err
	}
	if err := tip.ValidateRate(ratePerSecond); err != nil {
		return err
	}

	previous := v.tipRatePerSecond
	v.tipRatePerSecond = ratePerSecond
	v.record(op, types.Record{
		Kind:     types.RecordTipRateUpdated,
		Previous: previous.String(),
		Current:  ratePerSecond.String(),
	})
	op.log.Info().Str("ratePerSecond", ratePerSecond.String()).Msg("Tip rate updated")
	return nil
}

// SetTipRecipient redirects future tip mints. Already-accrued shares stay
// with the previous recipient.
func (v *Vault) SetTipRecipient(caller, recipient string) error {
	op, err := v.begin("set_tip_recipient")
	if err != nil {
		return err
	}
	defer v.end(op)
	v.accrueTip(op)

	if err := v.checkAdmin(caller); err != nil {
		return err
	}
	if recipient == "" {
		return ErrTipRecipientInvalid
	}

	previous := v.tipRecipient
	v.tipRecipient = recipient
	v.record(op, types.Record{
		Kind:     types.RecordTipRecipientUpdated,
		Previous: previous,
		Current:  recipient,
	})
	op.log.Info().Str("recipient", recipient).Msg("Tip recipient updated")
	return nil
}

// Pause blocks new deposits and rebalances. Withdrawals stay open.
func (v *Vault) Pause(caller string) error {
	op, err := v.begin("pause")
	if err != nil {
		return err
	}
	defer v.end(op)
	v.accrueTip(op)

	if err := v.checkAdmin(caller); err != nil {
		return err
	}
	v.paused = true
	v.record(op, types.Record{Kind: types.RecordPaused})
	op.log.Warn().Msg("Vault paused")
	return nil
}

// Unpause re-opens deposits and rebalances.
func (v *Vault) Unpause(caller string) error {
	op, err := v.begin("unpause")
	if err != nil {
		return err
	}
	defer v.end(op)
	v.accrueTip(op)

	if err := v.checkAdmin(caller); err != nil {
		return err
	}
	v.paused = false
	v.record(op, types.Record{Kind: types.RecordUnpaused})
	op.log.Info().Msg("Vault unpaused")
	return nil
}

// HarvestStrategy collects a unit's pending rewards into its balance.
// Keeper or admin.
func (v *Vault) HarvestStrategy(caller string, id types.StrategyID) (sdkmath.Int, error) {
	op, err := v.begin("harvest")
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer v.end(op)
	v.accrueTip(op)

	if caller != v.keeper && caller != v.admin {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: harvest requires keeper or admin, got %s", ErrUnauthorized, caller)
	}
	unit, err := v.unitFor(id)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	harvested, err := unit.Harvest()
	op.cache.Invalidate(id)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: harvest on %s: %w", ErrUnitFailure, id, err)
	}
	if harvested.IsNil() || harvested.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s harvested %v", ErrUnitInconsistent, id, harvested)
	}

	v.record(op, types.Record{
		Kind:     types.RecordHarvest,
		Strategy: id,
		Amount:   harvested,
	})
	op.log.Info().Str("strategy", string(id)).Str("harvested", harvested.String()).Msg("Strategy harvested")
	return harvested, nil
}
