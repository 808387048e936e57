/*

Rebalance engine. Three entry points share one validation and execution
path: Rebalance (non-buffer to non-buffer, cooldown-gated), AdjustBuffer
(exactly one side is the buffer, cooldown-gated) and ForceRebalance
(identical to Rebalance but bypassing the gate without resetting it).

The whole batch is validated before any execution. An instruction that
would breach any cap rejects the batch outright: no clamping, no partial
commit. If an external unit fails mid-batch, completed moves are unwound in
reverse order so internal accounting never reflects a half-applied batch.

*/

package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/fleetvault/fvm/internal/strategy"
	"github.com/fleetvault/fvm/internal/types"
)

type batchKind int

const (
	batchRebalance batchKind = iota
	batchAdjustBuffer
)

// Rebalance moves funds between non-buffer strategies, at most once per
// cooldown period. Keeper or admin only.
func (v *Vault) Rebalance(caller string, instructions []types.RebalanceInstruction) error {
	return v.runBatch("rebalance", caller, instructions, batchRebalance, false)
}

// ForceRebalance is the privileged escalation path: same execution as
// Rebalance, bypassing the cooldown gate without updating it. Admin only.
func (v *Vault) ForceRebalance(caller string, instructions []types.RebalanceInstruction) error {
	return v.runBatch("force_rebalance", caller, instructions, batchRebalance, true)
}

// AdjustBuffer tops up or drains the buffer strategy. Every instruction in
// the batch must touch the buffer on exactly one side and move in the same
// direction. Keeper or admin only, cooldown-gated.
func (v *Vault) AdjustBuffer(caller string, instructions []types.RebalanceInstruction) error {
	return v.runBatch("adjust_buffer", caller, instructions, batchAdjustBuffer, false)
}

func (v *Vault) runBatch(name, caller string, instructions []types.RebalanceInstruction, kind batchKind, forced bool) error {
	op, err := v.begin(name)
	if err != nil {
		return err
	}
	defer v.end(op)
	v.accrueTip(op)

	if v.paused {
		return fmt.Errorf("%w: rebalances are blocked", ErrVaultPaused)
	}
	if err := v.checkRebalanceRole(caller, forced); err != nil {
		return err
	}
	if !forced {
		if err := v.gate.Check(); err != nil {
			return err
		}
	}

	if err := v.validateBatch(op, kind, instructions); err != nil {
		return err
	}
	if err := v.executeBatch(op, instructions, forced); err != nil {
		return err
	}

	// The ordinary clock advances only on a successful ordinary action;
	// escalated actions leave it untouched.
	if !forced {
		v.gate.Advance()
	}

	op.log.Info().
		Int("instructions", len(instructions)).
		Bool("forced", forced).
		Msg("Rebalance batch executed")
	return nil
}

func (v *Vault) checkRebalanceRole(caller string, forced bool) error {
	if forced {
		if caller != v.admin {
			return fmt.Errorf("%w: force rebalance requires admin, got %s", ErrUnauthorized, caller)
		}
		return nil
	}
	if caller != v.keeper && caller != v.admin {
		return fmt.Errorf("%w: rebalance requires keeper or admin, got %s", ErrUnauthorized, caller)
	}
	return nil
}

// unitFor resolves an instruction endpoint to its live unit.
func (v *Vault) unitFor(id types.StrategyID) (strategy.Strategy, error) {
	if id == v.buffer.ID() {
		return v.buffer, nil
	}
	entry, err := v.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return entry.Unit, nil
}

// validateBatch applies every structural and cap check to the whole batch
// before any funds move.
func (v *Vault) validateBatch(op *operation, kind batchKind, instructions []types.RebalanceInstruction) error {
	if len(instructions) == 0 {
		return ErrBatchEmpty
	}
	if len(instructions) > v.maxBatchSize {
		return fmt.Errorf("%w: %d over limit %d", ErrBatchTooLarge, len(instructions), v.maxBatchSize)
	}

	bufferID := v.buffer.ID()
	inflow := make(map[types.StrategyID]sdkmath.Int)
	outflow := make(map[types.StrategyID]sdkmath.Int)
	direction := types.BufferDirectionUnknown

	for i, instr := range instructions {
		if instr.Amount.IsNil() || !instr.Amount.IsPositive() {
			return fmt.Errorf("%w: instruction %d has non-positive amount", ErrInstructionInvalid, i)
		}
		if instr.FromStrategy == instr.ToStrategy {
			return fmt.Errorf("%w: instruction %d has identical source and destination %s", ErrInstructionInvalid, i, instr.FromStrategy)
		}

		fromBuffer := instr.FromStrategy == bufferID
		toBuffer := instr.ToStrategy == bufferID

		switch kind {
		case batchRebalance:
			if fromBuffer || toBuffer {
				return fmt.Errorf("%w: instruction %d", ErrBufferNotAllowed, i)
			}
		case batchAdjustBuffer:
			if fromBuffer == toBuffer {
				return fmt.Errorf("%w: instruction %d", ErrBufferPatternInvalid, i)
			}
			instrDirection := types.BufferDirectionFill
			if fromBuffer {
				instrDirection = types.BufferDirectionDrain
			}
			if direction == types.BufferDirectionUnknown {
				direction = instrDirection
			} else if direction != instrDirection {
				return fmt.Errorf("%w: instruction %d moves %s, batch moves %s", ErrMixedBufferDirection, i, instrDirection, direction)
			}
		}

		// Endpoint registration, activity and extra-data requirements. The
		// buffer is itself exempt: it is the designated liquidity sink.
		if !fromBuffer {
			entry, err := v.registry.Get(instr.FromStrategy)
			if err != nil {
				return fmt.Errorf("instruction %d: %w", i, err)
			}
			if entry.Registration.RequiresExtraData && len(instr.ExtraFrom) == 0 {
				return fmt.Errorf("%w: instruction %d source %s", ErrExtraDataRequired, i, instr.FromStrategy)
			}
		}
		if !toBuffer {
			entry, err := v.registry.Get(instr.ToStrategy)
			if err != nil {
				return fmt.Errorf("instruction %d: %w", i, err)
			}
			if !entry.Registration.Active {
				return fmt.Errorf("%w: instruction %d destination %s", ErrStrategyInactive, i, instr.ToStrategy)
			}
			if entry.Registration.RequiresExtraData && len(instr.ExtraTo) == 0 {
				return fmt.Errorf("%w: instruction %d destination %s", ErrExtraDataRequired, i, instr.ToStrategy)
			}
		}

		addFlow(outflow, instr.FromStrategy, instr.Amount)
		addFlow(inflow, instr.ToStrategy, instr.Amount)
	}

	// Cap projections run against a freshly read vault total for this
	// operation.
	total, err := v.totalAssets(op)
	if err != nil {
		return err
	}

	for _, id := range flowIDs(inflow, outflow) {
		if id == bufferID {
			continue
		}
		entry, err := v.registry.Get(id)
		if err != nil {
			return err
		}
		caps := entry.Registration.Caps
		balance, err := v.strategyBalance(op, entry.Unit)
		if err != nil {
			return err
		}

		in := flowOrZero(inflow, id)
		out := flowOrZero(outflow, id)
		projected := balance.Add(in).Sub(out)

		if in.GT(caps.MaxInflowPerRebalance) {
			return fmt.Errorf("%w: %s inflow %s over %s", ErrInflowCapExceeded, id, in, caps.MaxInflowPerRebalance)
		}
		if out.GT(caps.MaxOutflowPerRebalance) {
			return fmt.Errorf("%w: %s outflow %s over %s", ErrOutflowCapExceeded, id, out, caps.MaxOutflowPerRebalance)
		}
		if projected.IsNegative() {
			return fmt.Errorf("%w: %s projects to %s", ErrSourceBalanceInsufficient, id, projected)
		}
		if in.IsPositive() {
			if projected.GT(caps.DepositCap) {
				return fmt.Errorf("%w: %s projects to %s over cap %s", ErrStrategyCapExceeded, id, projected, caps.DepositCap)
			}
			limit := caps.MaxPercentOfVaultTVL.MulInt(total)
			if sdkmath.LegacyNewDecFromInt(projected).GT(limit) {
				return fmt.Errorf("%w: %s projects to %s over %s of vault total %s",
					ErrTVLPercentCapExceeded, id, projected, caps.MaxPercentOfVaultTVL, total)
			}
		}
	}

	if kind == batchAdjustBuffer && direction == types.BufferDirectionDrain {
		bufferBal, err := v.strategyBalance(op, v.buffer)
		if err != nil {
			return err
		}
		projected := bufferBal.Add(flowOrZero(inflow, bufferID)).Sub(flowOrZero(outflow, bufferID))
		if projected.IsNegative() {
			return fmt.Errorf("%w: buffer projects to %s", ErrSourceBalanceInsufficient, projected)
		}
		if projected.LT(v.minimumBuffer) {
			return fmt.Errorf("%w: %s below minimum %s", ErrBufferMinimumBreached, projected, v.minimumBuffer)
		}
	}

	return nil
}

func addFlow(flows map[types.StrategyID]sdkmath.Int, id types.StrategyID, amount sdkmath.Int) {
	current, ok := flows[id]
	if !ok {
		current = sdkmath.ZeroInt()
	}
	flows[id] = current.Add(amount)
}

func flowOrZero(flows map[types.StrategyID]sdkmath.Int, id types.StrategyID) sdkmath.Int {
	if amt, ok := flows[id]; ok {
		return amt
	}
	return sdkmath.ZeroInt()
}

// flowIDs returns the union of touched strategies in first-touched order.
func flowIDs(inflow, outflow map[types.StrategyID]sdkmath.Int) []types.StrategyID {
	seen := make(map[types.StrategyID]bool, len(inflow)+len(outflow))
	ids := make([]types.StrategyID, 0, len(inflow)+len(outflow))
	for _, flows := range []map[types.StrategyID]sdkmath.Int{outflow, inflow} {
		for id := range flows {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

type executedMove struct {
	from   strategy.Strategy
	to     strategy.Strategy
	amount sdkmath.Int
	extraF []byte
	extraT []byte
}

// executeBatch moves every instruction's funds. Records are only emitted
// once the whole batch has succeeded.
func (v *Vault) executeBatch(op *operation, instructions []types.RebalanceInstruction, forced bool) error {
	executed := make([]executedMove, 0, len(instructions))

	for i, instr := range instructions {
		src, err := v.unitFor(instr.FromStrategy)
		if err != nil {
			v.unwind(op, executed)
			return fmt.Errorf("instruction %d: %w", i, err)
		}
		dst, err := v.unitFor(instr.ToStrategy)
		if err != nil {
			v.unwind(op, executed)
			return fmt.Errorf("instruction %d: %w", i, err)
		}

		actual, err := src.Release(instr.Amount, instr.ExtraFrom)
		op.cache.Invalidate(instr.FromStrategy)
		if err != nil {
			v.unwind(op, executed)
			return fmt.Errorf("%w: release on %s: %w", ErrUnitFailure, instr.FromStrategy, err)
		}
		if !actual.Equal(instr.Amount) {
			v.returnToUnit(op, src, actual)
			v.unwind(op, executed)
			return fmt.Errorf("%w: %s released %s of %s", ErrUnitInconsistent, instr.FromStrategy, actual, instr.Amount)
		}

		if err := dst.Accept(actual, instr.ExtraTo); err != nil {
			v.returnToUnit(op, src, actual)
			v.unwind(op, executed)
			return fmt.Errorf("%w: accept on %s: %w", ErrUnitFailure, instr.ToStrategy, err)
		}
		op.cache.Invalidate(instr.ToStrategy)

		executed = append(executed, executedMove{
			from: src, to: dst, amount: actual,
			extraF: instr.ExtraFrom, extraT: instr.ExtraTo,
		})
	}

	for _, move := range executed {
		v.record(op, types.Record{
			Kind:         types.RecordRebalanceMove,
			FromStrategy: move.from.ID(),
			ToStrategy:   move.to.ID(),
			Amount:       move.amount,
			Forced:       forced,
		})
		op.log.Debug().
			Str("from", string(move.from.ID())).
			Str("to", string(move.to.ID())).
			Str("amount", move.amount.String()).
			Msg("Rebalance instruction executed")
	}
	return nil
}

// unwind reverses completed moves in reverse order after a mid-batch
// failure, so the batch stays all-or-nothing. A unit failing during its own
// unwind is logged; the original abort still propagates.
func (v *Vault) unwind(op *operation, executed []executedMove) {
	for i := len(executed) - 1; i >= 0; i-- {
		move := executed[i]
		actual, err := move.to.Release(move.amount, move.extraT)
		op.cache.Invalidate(move.to.ID())
		if err != nil {
			op.log.Error().Err(err).
				Str("strategy", string(move.to.ID())).
				Str("amount", move.amount.String()).
				Msg("Unwind release failed; manual reconciliation required")
			continue
		}
		if err := move.from.Accept(actual, move.extraF); err != nil {
			op.log.Error().Err(err).
				Str("strategy", string(move.from.ID())).
				Str("amount", actual.String()).
				Msg("Unwind accept failed; manual reconciliation required")
			continue
		}
		op.cache.Invalidate(move.from.ID())
	}
}

// returnToUnit hands a partially released amount back to its source.
func (v *Vault) returnToUnit(op *operation, unit strategy.Strategy, amount sdkmath.Int) {
	if amount.IsNil() || !amount.IsPositive() {
		return
	}
	if err := unit.Accept(amount, nil); err != nil {
		op.log.Error().Err(err).
			Str("strategy", string(unit.ID())).
			Str("amount", amount.String()).
			Msg("Returning partial release failed; manual reconciliation required")
		return
	}
	op.cache.Invalidate(unit.ID())
}
