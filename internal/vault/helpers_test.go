package vault

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/fleetvault/fvm/internal/strategy"
	"github.com/fleetvault/fvm/internal/types"
)

const (
	admin    = "admin"
	keeper   = "keeper"
	treasury = "treasury"
	alice    = "alice"
	bob      = "bob"
)

type testClock struct {
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time {
	return c.current
}

func (c *testClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

// memorySink captures emitted records in order.
type memorySink struct {
	records []types.Record
}

func (m *memorySink) Append(rec types.Record) {
	m.records = append(m.records, rec)
}

func (m *memorySink) ofKind(kind types.RecordKind) []types.Record {
	var out []types.Record
	for _, rec := range m.records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

type fixture struct {
	vault  *Vault
	buffer *strategy.Buffer
	clock  *testClock
	sink   *memorySink
}

type fixtureOption func(*Config)

func withTipRate(rate string) fixtureOption {
	return func(cfg *Config) {
		cfg.TipRatePerSecond = sdkmath.LegacyMustNewDecFromStr(rate)
	}
}

func withCooldown(period time.Duration, startReady bool) fixtureOption {
	return func(cfg *Config) {
		cfg.CooldownPeriod = period
		cfg.CooldownStartReady = startReady
	}
}

func withDepositCap(cap int64) fixtureOption {
	return func(cfg *Config) {
		cfg.DepositCap = sdkmath.NewInt(cap)
	}
}

func withMinimumBuffer(amount int64) fixtureOption {
	return func(cfg *Config) {
		cfg.MinimumBufferBalance = sdkmath.NewInt(amount)
	}
}

func withMaxBatchSize(n int) fixtureOption {
	return func(cfg *Config) {
		cfg.MaxRebalanceBatchSize = n
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	clock := newTestClock()
	sink := &memorySink{}
	buffer := strategy.NewBuffer("buffer")

	cfg := Config{
		AssetDenom:            "uusdc",
		Buffer:                buffer,
		DepositCap:            sdkmath.NewInt(1_000_000),
		MinimumBufferBalance:  sdkmath.ZeroInt(),
		MaxRebalanceBatchSize: 5,
		CooldownPeriod:        time.Hour,
		CooldownStartReady:    true,
		TipRatePerSecond:      sdkmath.LegacyZeroDec(),
		TipRecipient:          treasury,
		Admin:                 admin,
		Keeper:                keeper,
		Sink:                  sink,
		Now:                   clock.now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	v, err := New(cfg)
	require.NoError(t, err)

	return &fixture{vault: v, buffer: buffer, clock: clock, sink: sink}
}

// addSim registers a zero-yield simulated strategy with caps that never
// bind. Fund it through move after depositing into the buffer.
func (f *fixture) addSim(t *testing.T, id types.StrategyID) *strategy.Simulated {
	t.Helper()
	sim := strategy.NewSimulated(id, sdkmath.ZeroInt(), sdkmath.LegacyZeroDec(), f.clock.now)
	require.NoError(t, f.vault.AddStrategy(admin, sim, types.UnlimitedCaps(), false))
	return sim
}

// addCappedSim registers a simulated strategy with explicit caps.
func (f *fixture) addCappedSim(t *testing.T, id types.StrategyID, caps types.StrategyCaps) *strategy.Simulated {
	t.Helper()
	sim := strategy.NewSimulated(id, sdkmath.ZeroInt(), sdkmath.LegacyZeroDec(), f.clock.now)
	require.NoError(t, f.vault.AddStrategy(admin, sim, caps, false))
	return sim
}

// deposit is a shorthand that fails the test on error.
func (f *fixture) deposit(t *testing.T, caller string, amount int64) sdkmath.Int {
	t.Helper()
	shares, err := f.vault.Deposit(caller, sdkmath.NewInt(amount), caller)
	require.NoError(t, err)
	return shares
}

// move shifts funds from the buffer into a strategy via AdjustBuffer, so
// tests can arrange multi-strategy balances through public operations.
func (f *fixture) move(t *testing.T, to types.StrategyID, amount int64) {
	t.Helper()
	err := f.vault.AdjustBuffer(keeper, []types.RebalanceInstruction{
		{FromStrategy: f.vault.BufferID(), ToStrategy: to, Amount: sdkmath.NewInt(amount)},
	})
	require.NoError(t, err)
	f.clock.advance(f.vault.CooldownRemaining())
}

func (f *fixture) totalAssets(t *testing.T) sdkmath.Int {
	t.Helper()
	total, err := f.vault.TotalAssets()
	require.NoError(t, err)
	return total
}
