package vault

import (
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetvault/fvm/internal/cooldown"
	"github.com/fleetvault/fvm/internal/strategy"
	"github.com/fleetvault/fvm/internal/types"
)

func instr(from, to types.StrategyID, amount int64) types.RebalanceInstruction {
	return types.RebalanceInstruction{
		FromStrategy: from,
		ToStrategy:   to,
		Amount:       sdkmath.NewInt(amount),
	}
}

// rebalanceFixture builds a funded two-venue vault: buffer 400, venue-a 600.
func rebalanceFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	f := newFixture(t, opts...)
	f.addSim(t, "venue-a")
	f.addSim(t, "venue-b")
	f.deposit(t, alice, 1_000)
	f.move(t, "venue-a", 600)
	return f
}

func TestRebalanceMovesFunds(t *testing.T) {
	f := rebalanceFixture(t)

	err := f.vault.Rebalance(keeper, []types.RebalanceInstruction{
		instr("venue-a", "venue-b", 250),
	})
	require.NoError(t, err)

	aBal, err := f.vault.StrategyBalance("venue-a")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(350), aBal)

	bBal, err := f.vault.StrategyBalance("venue-b")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(250), bBal)

	// Moving between strategies leaves the vault total untouched.
	assert.Equal(t, sdkmath.NewInt(1_000), f.totalAssets(t))

	moves := f.sink.ofKind(types.RecordRebalanceMove)
	require.Len(t, moves, 1)
	assert.Equal(t, types.StrategyID("venue-a"), moves[0].FromStrategy)
	assert.Equal(t, types.StrategyID("venue-b"), moves[0].ToStrategy)
	assert.False(t, moves[0].Forced)
}

func TestRebalanceRoles(t *testing.T) {
	f := rebalanceFixture(t)
	batch := []types.RebalanceInstruction{instr("venue-a", "venue-b", 10)}

	assert.ErrorIs(t, f.vault.Rebalance(alice, batch), ErrUnauthorized)
	assert.ErrorIs(t, f.vault.ForceRebalance(keeper, batch), ErrUnauthorized)
	assert.NoError(t, f.vault.Rebalance(keeper, batch))
}

func TestRebalanceStructuralValidation(t *testing.T) {
	f := rebalanceFixture(t, withMaxBatchSize(2))

	tests := []struct {
		name    string
		batch   []types.RebalanceInstruction
		wantErr error
	}{
		{name: "empty batch", batch: nil, wantErr: ErrBatchEmpty},
		{
			name: "too large",
			batch: []types.RebalanceInstruction{
				instr("venue-a", "venue-b", 1),
				instr("venue-a", "venue-b", 1),
				instr("venue-a", "venue-b", 1),
			},
			wantErr: ErrBatchTooLarge,
		},
		{
			name:    "zero amount",
			batch:   []types.RebalanceInstruction{instr("venue-a", "venue-b", 0)},
			wantErr: ErrInstructionInvalid,
		},
		{
			name:    "same endpoints",
			batch:   []types.RebalanceInstruction{instr("venue-a", "venue-a", 10)},
			wantErr: ErrInstructionInvalid,
		},
		{
			name:    "buffer as source",
			batch:   []types.RebalanceInstruction{instr("buffer", "venue-a", 10)},
			wantErr: ErrBufferNotAllowed,
		},
		{
			name:    "buffer as destination",
			batch:   []types.RebalanceInstruction{instr("venue-a", "buffer", 10)},
			wantErr: ErrBufferNotAllowed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := f.vault.Rebalance(keeper, tc.batch)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	// None of the rejected batches moved anything.
	aBal, err := f.vault.StrategyBalance("venue-a")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(600), aBal)
}

func TestRebalanceUnknownStrategy(t *testing.T) {
	f := rebalanceFixture(t)

	err := f.vault.Rebalance(keeper, []types.RebalanceInstruction{
		instr("venue-a", "venue-ghost", 10),
	})
	assert.Error(t, err)

	aBal, berr := f.vault.StrategyBalance("venue-a")
	require.NoError(t, berr)
	assert.Equal(t, sdkmath.NewInt(600), aBal)
}

func TestRebalanceInactiveDestination(t *testing.T) {
	f := rebalanceFixture(t)
	f.move(t, "venue-b", 100)
	require.NoError(t, f.vault.SetStrategyActive(admin, "venue-b", false))

	err := f.vault.Rebalance(keeper, []types.RebalanceInstruction{
		instr("venue-a", "venue-b", 10),
	})
	assert.ErrorIs(t, err, ErrStrategyInactive)

	// Inactive strategies can still be drained.
	assert.NoError(t, f.vault.Rebalance(keeper, []types.RebalanceInstruction{
		instr("venue-b", "venue-a", 10),
	}))
}

func TestRebalanceExtraDataRequirement(t *testing.T) {
	f := rebalanceFixture(t)
	sim := strategy.NewSimulated("venue-extra", sdkmath.ZeroInt(), sdkmath.LegacyZeroDec(), f.clock.now)
	require.NoError(t, f.vault.AddStrategy(admin, sim, types.UnlimitedCaps(), true))

	err := f.vault.Rebalance(keeper, []types.RebalanceInstruction{
		instr("venue-a", "venue-extra", 10),
	})
	assert.ErrorIs(t, err, ErrExtraDataRequired)

	withExtra := types.RebalanceInstruction{
		FromStrategy: "venue-a",
		ToStrategy:   "venue-extra",
		Amount:       sdkmath.NewInt(10),
		ExtraTo:      []byte(`{"pool":"usdc-main"}`),
	}
	assert.NoError(t, f.vault.Rebalance(keeper, []types.RebalanceInstruction{withExtra}))
}

func TestRebalanceCapViolationRejectsWholeBatch(t *testing.T) {
	caps := types.StrategyCaps{
		MaxInflowPerRebalance:  sdkmath.NewInt(100),
		MaxOutflowPerRebalance: sdkmath.NewInt(100),
		DepositCap:             sdkmath.NewInt(10_000),
		MaxPercentOfVaultTVL:   sdkmath.LegacyOneDec(),
	}

	f := newFixture(t)
	f.addSim(t, "venue-a")
	f.addCappedSim(t, "venue-capped", caps)
	f.deposit(t, alice, 1_000)
	f.move(t, "venue-a", 600)

	// First instruction is fine alone; the second breaches the inflow cap,
	// so neither commits.
	err := f.vault.Rebalance(keeper, []types.RebalanceInstruction{
		instr("venue-a", "venue-capped", 60),
		instr("venue-a", "venue-capped", 50),
	})
	assert.ErrorIs(t, err, ErrInflowCapExceeded)

	cappedBal, berr := f.vault.StrategyBalance("venue-capped")
	require.NoError(t, berr)
	assert.True(t, cappedBal.IsZero())

	aBal, berr := f.vault.StrategyBalance("venue-a")
	require.NoError(t, berr)
	assert.Equal(t, sdkmath.NewInt(600), aBal)
}

func TestRebalanceOutflowCap(t *testing.T) {
	caps := types.StrategyCaps{
		MaxInflowPerRebalance:  sdkmath.NewInt(10_000),
		MaxOutflowPerRebalance: sdkmath.NewInt(150),
		DepositCap:             sdkmath.NewInt(10_000),
		MaxPercentOfVaultTVL:   sdkmath.LegacyOneDec(),
	}

	f := newFixture(t)
	f.addCappedSim(t, "venue-capped", caps)
	f.addSim(t, "venue-b")
	f.deposit(t, alice, 1_000)
	f.move(t, "venue-capped", 600)

	err := f.vault.Rebalance(keeper, []types.RebalanceInstruction{
		instr("venue-capped", "venue-b", 151),
	})
	assert.ErrorIs(t, err, ErrOutflowCapExceeded)

	err = f.vault.Rebalance(keeper, []types.RebalanceInstruction{
		instr("venue-capped", "venue-b", 150),
	})
	assert.NoError(t, err)
}

func TestRebalanceDepositCapProjection(t *testing.T) {
	caps := types.StrategyCaps{
		MaxInflowPerRebalance:  sdkmath.NewInt(10_000),
		MaxOutflowPerRebalance: sdkmath.NewInt(10_000),
		DepositCap:             sdkmath.NewInt(500),
		MaxPercentOfVaultTVL:   sdkmath.LegacyOneDec(),
	}

	f := newFixture(t)
	f.addSim(t, "venue-a")
	f.addCappedSim(t, "venue-capped", caps)
	f.deposit(t, alice, 1_000)
	f.move(t, "venue-a", 600)
	f.move(t, "venue-capped", 300)

	// 300 held + 201 projected breaches the 500 deposit cap.
	err := f.vault.Rebalance(keeper, []types.RebalanceInstruction{
		instr("venue-a", "venue-capped", 201),
	})
	assert.ErrorIs(t, err, ErrStrategyCapExceeded)

	err = f.vault.Rebalance(keeper, []types.RebalanceInstruction{
		instr("venue-a", "venue-capped", 200),
	})
	assert.NoError(t, err)
}

func TestRebalanceTVLPercentCap(t *testing.T) {
	caps := types.StrategyCaps{
		MaxInflowPerRebalance:  sdkmath.NewInt(10_000),
		MaxOutflowPerRebalance: sdkmath.NewInt(10_000),
		DepositCap:             sdkmath.NewInt(10_000),
		MaxPercentOfVaultTVL:   sdkmath.LegacyMustNewDecFromStr("0.25"),
	}

	f := newFixture(t)
	f.addSim(t, "venue-a")
	f.addCappedSim(t, "venue-capped", caps)
	f.deposit(t, alice, 1_000)
	f.move(t, "venue-a", 600)

	// 25% of 1000 is 250.
	err := f.vault.Rebalance(keeper, []types.RebalanceInstruction{
		instr("venue-a", "venue-capped", 251),
	})
	assert.ErrorIs(t, err, ErrTVLPercentCapExceeded)

	err = f.vault.Rebalance(keeper, []types.RebalanceInstruction{
		instr("venue-a", "venue-capped", 250),
	})
	assert.NoError(t, err)
}

func TestRebalanceSourceOverdraw(t *testing.T) {
	f := rebalanceFixture(t)

	err := f.vault.Rebalance(keeper, []types.RebalanceInstruction{
		instr("venue-a", "venue-b", 601),
	})
	assert.ErrorIs(t, err, ErrSourceBalanceInsufficient)
}

func TestRebalanceCooldown(t *testing.T) {
	f := rebalanceFixture(t)
	batch := []types.RebalanceInstruction{instr("venue-a", "venue-b", 10)}

	require.NoError(t, f.vault.Rebalance(keeper, batch))

	// The slot is consumed for a full period.
	err := f.vault.Rebalance(keeper, batch)
	assert.ErrorIs(t, err, cooldown.ErrCooldownActive)

	f.clock.advance(time.Hour)
	assert.NoError(t, f.vault.Rebalance(keeper, batch))
}

func TestFailedBatchDoesNotConsumeCooldown(t *testing.T) {
	f := rebalanceFixture(t)

	err := f.vault.Rebalance(keeper, []types.RebalanceInstruction{
		instr("venue-a", "venue-b", 601), // overdraw, rejected in validation
	})
	require.Error(t, err)

	// The gate is still open for a correct batch.
	assert.NoError(t, f.vault.Rebalance(keeper, []types.RebalanceInstruction{
		instr("venue-a", "venue-b", 10),
	}))
}

func TestForceRebalanceBypassesCooldownWithoutConsuming(t *testing.T) {
	f := rebalanceFixture(t)
	batch := []types.RebalanceInstruction{instr("venue-a", "venue-b", 10)}

	require.NoError(t, f.vault.Rebalance(keeper, batch))
	require.ErrorIs(t, f.vault.Rebalance(keeper, batch), cooldown.ErrCooldownActive)

	// Escalation runs during the cooldown.
	require.NoError(t, f.vault.ForceRebalance(admin, batch))

	// And it did not grant the ordinary path a fresh slot, nor did it push
	// the ordinary clock forward.
	remaining := f.vault.CooldownRemaining()
	require.ErrorIs(t, f.vault.Rebalance(keeper, batch), cooldown.ErrCooldownActive)
	f.clock.advance(remaining)
	assert.NoError(t, f.vault.Rebalance(keeper, batch))

	moves := f.sink.ofKind(types.RecordRebalanceMove)
	require.Len(t, moves, 3)
	assert.True(t, moves[1].Forced)
}

func TestRebalanceBlockedWhilePaused(t *testing.T) {
	f := rebalanceFixture(t)
	require.NoError(t, f.vault.Pause(admin))

	batch := []types.RebalanceInstruction{instr("venue-a", "venue-b", 10)}
	assert.ErrorIs(t, f.vault.Rebalance(keeper, batch), ErrVaultPaused)
	assert.ErrorIs(t, f.vault.ForceRebalance(admin, batch), ErrVaultPaused)
	assert.ErrorIs(t, f.vault.AdjustBuffer(keeper, batch), ErrVaultPaused)
}

func TestAdjustBufferFillAndDrain(t *testing.T) {
	f := rebalanceFixture(t)

	// Drain: buffer to venue.
	require.NoError(t, f.vault.AdjustBuffer(keeper, []types.RebalanceInstruction{
		instr("buffer", "venue-b", 100),
	}))
	f.clock.advance(time.Hour)

	// Fill: venue back to buffer.
	require.NoError(t, f.vault.AdjustBuffer(keeper, []types.RebalanceInstruction{
		instr("venue-b", "buffer", 50),
	}))

	bufferBal, err := f.vault.StrategyBalance("buffer")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(350), bufferBal)
}

func TestAdjustBufferPatternRules(t *testing.T) {
	f := rebalanceFixture(t)

	// Neither side the buffer.
	err := f.vault.AdjustBuffer(keeper, []types.RebalanceInstruction{
		instr("venue-a", "venue-b", 10),
	})
	assert.ErrorIs(t, err, ErrBufferPatternInvalid)

	// Mixed directions in one batch.
	err = f.vault.AdjustBuffer(keeper, []types.RebalanceInstruction{
		instr("buffer", "venue-b", 10),
		instr("venue-a", "buffer", 10),
	})
	assert.ErrorIs(t, err, ErrMixedBufferDirection)
}

func TestAdjustBufferRespectsDestinationCaps(t *testing.T) {
	caps := types.StrategyCaps{
		MaxInflowPerRebalance:  sdkmath.NewInt(500),
		MaxOutflowPerRebalance: sdkmath.NewInt(10_000),
		DepositCap:             sdkmath.NewInt(10_000),
		MaxPercentOfVaultTVL:   sdkmath.LegacyOneDec(),
	}

	f := newFixture(t)
	f.addCappedSim(t, "venue-capped", caps)
	f.deposit(t, alice, 1_500)

	err := f.vault.AdjustBuffer(keeper, []types.RebalanceInstruction{
		instr("buffer", "venue-capped", 501),
	})
	assert.ErrorIs(t, err, ErrInflowCapExceeded)

	require.NoError(t, f.vault.AdjustBuffer(keeper, []types.RebalanceInstruction{
		instr("buffer", "venue-capped", 500),
	}))

	cappedBal, berr := f.vault.StrategyBalance("venue-capped")
	require.NoError(t, berr)
	assert.Equal(t, sdkmath.NewInt(500), cappedBal)

	bufferBal, berr := f.vault.StrategyBalance("buffer")
	require.NoError(t, berr)
	assert.Equal(t, sdkmath.NewInt(1_000), bufferBal)
}

func TestAdjustBufferMinimumFloor(t *testing.T) {
	f := rebalanceFixture(t, withMinimumBuffer(300))

	// Buffer holds 400; draining 101 would leave 299.
	err := f.vault.AdjustBuffer(keeper, []types.RebalanceInstruction{
		instr("buffer", "venue-b", 101),
	})
	assert.ErrorIs(t, err, ErrBufferMinimumBreached)

	require.NoError(t, f.vault.AdjustBuffer(keeper, []types.RebalanceInstruction{
		instr("buffer", "venue-b", 100),
	}))

	// Filling the buffer is never floor-checked.
	f.clock.advance(time.Hour)
	require.NoError(t, f.vault.AdjustBuffer(keeper, []types.RebalanceInstruction{
		instr("venue-a", "buffer", 10),
	}))
}

func TestRebalanceUnwindOnMidBatchFailure(t *testing.T) {
	f := newFixture(t)
	f.addSim(t, "venue-a")
	b := f.addSim(t, "venue-b")
	f.addSim(t, "venue-c")
	f.deposit(t, alice, 1_000)
	f.move(t, "venue-a", 600)

	// Second instruction's destination fails; the completed first move must
	// be reversed.
	b.FailNextAccept(errors.New("venue rejected deposit"))
	err := f.vault.Rebalance(keeper, []types.RebalanceInstruction{
		instr("venue-a", "venue-c", 200),
		instr("venue-a", "venue-b", 100),
	})
	require.ErrorIs(t, err, ErrUnitFailure)

	aBal, berr := f.vault.StrategyBalance("venue-a")
	require.NoError(t, berr)
	assert.Equal(t, sdkmath.NewInt(600), aBal)

	cBal, berr := f.vault.StrategyBalance("venue-c")
	require.NoError(t, berr)
	assert.True(t, cBal.IsZero())

	// A failed batch emits no move records.
	assert.Empty(t, f.sink.ofKind(types.RecordRebalanceMove))
	assert.Equal(t, sdkmath.NewInt(1_000), f.totalAssets(t))
}

func TestRebalanceAggregatesFlowsAcrossBatch(t *testing.T) {
	caps := types.StrategyCaps{
		MaxInflowPerRebalance:  sdkmath.NewInt(10_000),
		MaxOutflowPerRebalance: sdkmath.NewInt(500),
		DepositCap:             sdkmath.NewInt(10_000),
		MaxPercentOfVaultTVL:   sdkmath.LegacyOneDec(),
	}

	f := newFixture(t)
	f.addCappedSim(t, "venue-capped", caps)
	f.addSim(t, "venue-b")
	f.addSim(t, "venue-c")
	f.deposit(t, alice, 1_000)
	f.move(t, "venue-capped", 600)

	// Individually under the 500 outflow cap, 600 in aggregate.
	err := f.vault.Rebalance(keeper, []types.RebalanceInstruction{
		instr("venue-capped", "venue-b", 300),
		instr("venue-capped", "venue-c", 300),
	})
	assert.ErrorIs(t, err, ErrOutflowCapExceeded)
}
