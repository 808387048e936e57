/*

Vault core: pools a single underlying asset, issues proportional shares, and
allocates capital across registered strategy units. This file holds the
vault entity, its operation scaffolding (reentrancy guard, per-operation
cache, tip accrual) and the share/asset conversion math. Depositor-facing
operations live in depositor.go, the rebalance engine in rebalance.go and
the admin surface in admin.go.

*/

package vault

import (
	"fmt"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fleetvault/fvm/internal/cache"
	"github.com/fleetvault/fvm/internal/cooldown"
	"github.com/fleetvault/fvm/internal/logger"
	"github.com/fleetvault/fvm/internal/registry"
	"github.com/fleetvault/fvm/internal/strategy"
	"github.com/fleetvault/fvm/internal/tip"
	"github.com/fleetvault/fvm/internal/types"
)

// Vault owns the share ledger, the strategy registry and every parameter
// governing allocation. All state-changing entry points are serialized by
// the caller's environment; the entered flag below only defends against a
// strategy unit calling back into the vault mid-operation.
type Vault struct {
	log zerolog.Logger

	assetDenom string
	buffer     strategy.Strategy
	registry   *registry.Registry
	gate       *cooldown.Gate
	ledger     *shareLedger

	depositCap    sdkmath.Int
	minimumBuffer sdkmath.Int
	maxBatchSize  int

	tipRatePerSecond sdkmath.LegacyDec
	tipRecipient     string
	lastTipAccrual   time.Time

	admin  string
	keeper string
	paused bool

	sink types.RecordSink
	now  func() time.Time

	entered atomic.Bool
}

// Config holds everything needed to construct a vault.
type Config struct {
	AssetDenom            string
	Buffer                strategy.Strategy
	DepositCap            sdkmath.Int
	MinimumBufferBalance  sdkmath.Int
	MaxRebalanceBatchSize int
	CooldownPeriod        time.Duration
	CooldownStartReady    bool
	TipRatePerSecond      sdkmath.LegacyDec
	TipRecipient          string
	Admin                 string
	Keeper                string

	// Optional. Sink receives one record per observable action; nil means
	// records are dropped. Now overrides the clock for tests.
	Sink types.RecordSink
	Now  func() time.Time
}

// New creates a vault with comprehensive configuration validation.
func New(cfg Config) (*Vault, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("vault configuration validation failed: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	v := &Vault{
		log:              logger.GetForComponent("vault_core"),
		assetDenom:       cfg.AssetDenom,
		buffer:           cfg.Buffer,
		registry:         registry.New(),
		gate:             cooldown.NewGate(cfg.CooldownPeriod, cfg.CooldownStartReady, now),
		ledger:           newShareLedger(),
		depositCap:       cfg.DepositCap,
		minimumBuffer:    cfg.MinimumBufferBalance,
		maxBatchSize:     cfg.MaxRebalanceBatchSize,
		tipRatePerSecond: cfg.TipRatePerSecond,
		tipRecipient:     cfg.TipRecipient,
		lastTipAccrual:   now(),
		admin:            cfg.Admin,
		keeper:           cfg.Keeper,
		sink:             cfg.Sink,
		now:              now,
	}

	v.log.Info().
		Str("asset", v.assetDenom).
		Str("buffer", string(v.buffer.ID())).
		Str("depositCap", v.depositCap.String()).
		Dur("cooldown", cfg.CooldownPeriod).
		Msg("Vault initialized")

	return v, nil
}

func validateConfig(cfg Config) error {
	if cfg.AssetDenom == "" {
		return fmt.Errorf("%w: asset denom is empty", ErrConfigInvalid)
	}
	if cfg.Buffer == nil {
		return fmt.Errorf("%w: buffer strategy is nil", ErrConfigInvalid)
	}
	if cfg.Buffer.ID() == "" {
		return fmt.Errorf("%w: buffer strategy has empty id", ErrConfigInvalid)
	}
	if cfg.DepositCap.IsNil() || cfg.DepositCap.IsNegative() {
		return fmt.Errorf("%w: deposit cap is nil or negative", ErrConfigInvalid)
	}
	if cfg.MinimumBufferBalance.IsNil() || cfg.MinimumBufferBalance.IsNegative() {
		return fmt.Errorf("%w: minimum buffer balance is nil or negative", ErrConfigInvalid)
	}
	if cfg.MaxRebalanceBatchSize <= 0 {
		return fmt.Errorf("%w: max rebalance batch size must be positive", ErrConfigInvalid)
	}
	if cfg.CooldownPeriod < 0 {
		return fmt.Errorf("%w: cooldown period is negative", ErrConfigInvalid)
	}
	if err := tip.ValidateRate(cfg.TipRatePerSecond); err != nil {
		return err
	}
	if cfg.TipRecipient == "" {
		return fmt.Errorf("%w: tip recipient is empty", ErrConfigInvalid)
	}
	if cfg.Admin == "" {
		return fmt.Errorf("%w: admin address is empty", ErrConfigInvalid)
	}
	if cfg.Keeper == "" {
		return fmt.Errorf("%w: keeper address is empty", ErrConfigInvalid)
	}
	return nil
}

// operation is the scope of one externally invoked entry point: a tracing
// id, a logger carrying it, and the balance cache that dies with the
// operation.
type operation struct {
	id    string
	log   zerolog.Logger
	cache *cache.Balances
}

// begin opens an operation, taking the reentrancy guard. A strategy unit
// calling back into the vault lands here while the flag is set and is
// rejected before touching any state.
func (v *Vault) begin(name string) (*operation, error) {
	if !v.entered.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: %s", ErrReentrantCall, name)
	}
	op := &operation{
		id:    uuid.New().String(),
		cache: cache.New(),
	}
	op.log = v.log.With().Str("op_id", op.id).Str("op", name).Logger()
	return op, nil
}

// end closes the operation on every exit path. The cache is unreachable
// afterwards, so no balance observation survives into a later operation.
func (v *Vault) end(op *operation) {
	_ = op
	v.entered.Store(false)
}

// record stamps and emits one observability record.
func (v *Vault) record(op *operation, rec types.Record) {
	if v.sink == nil {
		return
	}
	rec.OpID = op.id
	rec.Timestamp = v.now()
	v.sink.Append(rec)
}

// accrueTip mints the performance fee vested since the last accrual. It
// runs at the head of every state-changing entry point; the timestamp
// advances together with the mint so no second is ever counted twice.
func (v *Vault) accrueTip(op *operation) {
	elapsed := v.now().Sub(v.lastTipAccrual)
	seconds := elapsed / time.Second
	if seconds <= 0 {
		return
	}
	// Advance only by whole seconds so sub-second remainders keep vesting.
	v.lastTipAccrual = v.lastTipAccrual.Add(seconds * time.Second)

	accrued := tip.AccruedShares(v.ledger.totalSupply(), v.tipRatePerSecond, elapsed)
	if !accrued.IsPositive() {
		return
	}
	v.ledger.mint(v.tipRecipient, accrued)
	v.record(op, types.Record{
		Kind:     types.RecordTipAccrued,
		Receiver: v.tipRecipient,
		Shares:   accrued,
	})
	op.log.Debug().
		Str("recipient", v.tipRecipient).
		Str("shares", accrued.String()).
		Msg("Tip accrued")
}

// strategyBalance reads one unit's balance through the operation cache:
// at most one external query per distinct strategy per operation.
func (v *Vault) strategyBalance(op *operation, unit strategy.Strategy) (sdkmath.Int, error) {
	id := unit.ID()
	if bal, ok := op.cache.Get(id); ok {
		return bal, nil
	}
	bal, err := unit.TotalAssets()
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: totalAssets on %s: %w", ErrUnitFailure, id, err)
	}
	if bal.IsNil() || bal.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s reported balance %v", ErrUnitInconsistent, id, bal)
	}
	op.cache.Put(id, bal)
	return bal, nil
}

// primeCache eagerly loads every balance the operation will need. Deposit
// and withdrawal paths always read the full vault total, so they pay the
// external queries once, up front.
func (v *Vault) primeCache(op *operation) error {
	if _, err := v.strategyBalance(op, v.buffer); err != nil {
		return err
	}
	for _, entry := range v.registry.List() {
		if _, err := v.strategyBalance(op, entry.Unit); err != nil {
			return err
		}
	}
	return nil
}

// totalAssets sums the buffer and every registered strategy through the
// operation cache.
func (v *Vault) totalAssets(op *operation) (sdkmath.Int, error) {
	total, err := v.strategyBalance(op, v.buffer)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	for _, entry := range v.registry.List() {
		bal, err := v.strategyBalance(op, entry.Unit)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		total = total.Add(bal)
	}
	return total, nil
}

// withdrawableTotalAssets sums the buffer and the forced-withdrawal-eligible
// portion of every registered strategy. Withdrawable balances are not
// cached: the cache memoizes TotalAssets, a different observable.
func (v *Vault) withdrawableTotalAssets(op *operation) (sdkmath.Int, error) {
	total, err := v.strategyBalance(op, v.buffer)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	for _, entry := range v.registry.List() {
		bal, err := entry.Unit.WithdrawableTotalAssets()
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: withdrawableTotalAssets on %s: %w", ErrUnitFailure, entry.Registration.ID, err)
		}
		if bal.IsNil() || bal.IsNegative() {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %s reported withdrawable %v", ErrUnitInconsistent, entry.Registration.ID, bal)
		}
		total = total.Add(bal)
	}
	return total, nil
}

// --- Share/asset conversion -------------------------------------------------
//
// All four corners round in the vault's favor so rounding error can never be
// farmed: deposits mint rounded-down shares, mints charge rounded-up assets,
// withdrawals burn rounded-up shares, redemptions pay rounded-down assets.

func mulDivDown(a, b, denom sdkmath.Int) sdkmath.Int {
	return a.Mul(b).Quo(denom)
}

func mulDivUp(a, b, denom sdkmath.Int) sdkmath.Int {
	n := a.Mul(b)
	q := n.Quo(denom)
	if !n.Mod(denom).IsZero() {
		q = q.AddRaw(1)
	}
	return q
}

// sharesForDeposit converts deposited assets to minted shares. An empty
// vault establishes the 1:1 baseline.
func sharesForDeposit(assets, totalAssets, totalShares sdkmath.Int) sdkmath.Int {
	if totalShares.IsZero() || totalAssets.IsZero() {
		return assets
	}
	return mulDivDown(assets, totalShares, totalAssets)
}

// assetsForMint converts requested shares to the assets the depositor owes.
func assetsForMint(shares, totalAssets, totalShares sdkmath.Int) sdkmath.Int {
	if totalShares.IsZero() || totalAssets.IsZero() {
		return shares
	}
	return mulDivUp(shares, totalAssets, totalShares)
}

// sharesForWithdraw converts withdrawn assets to the shares burned.
func sharesForWithdraw(assets, totalAssets, totalShares sdkmath.Int) sdkmath.Int {
	if totalShares.IsZero() || totalAssets.IsZero() {
		return assets
	}
	return mulDivUp(assets, totalShares, totalAssets)
}

// assetsForRedeem converts redeemed shares to the assets paid out.
func assetsForRedeem(shares, totalAssets, totalShares sdkmath.Int) sdkmath.Int {
	if totalShares.IsZero() {
		return sdkmath.ZeroInt()
	}
	return mulDivDown(shares, totalAssets, totalShares)
}

// --- Public views -----------------------------------------------------------

// TotalAssets reports buffer balance plus the sum of all registered strategy
// balances. Each public call opens its own transient cache, so repeated
// calls with no intervening state change return identical results.
func (v *Vault) TotalAssets() (sdkmath.Int, error) {
	op := &operation{cache: cache.New(), log: v.log}
	return v.totalAssets(op)
}

// WithdrawableTotalAssets reports the portion of TotalAssets servable by
// forced withdrawal right now.
func (v *Vault) WithdrawableTotalAssets() (sdkmath.Int, error) {
	op := &operation{cache: cache.New(), log: v.log}
	return v.withdrawableTotalAssets(op)
}

// TotalShares reports shares outstanding.
func (v *Vault) TotalShares() sdkmath.Int {
	return v.ledger.totalSupply()
}

// BalanceOf reports owner's share balance.
func (v *Vault) BalanceOf(owner string) sdkmath.Int {
	return v.ledger.balanceOf(owner)
}

// Allowance reports what delegate may spend of owner's shares.
func (v *Vault) Allowance(owner, delegate string) sdkmath.Int {
	return v.ledger.allowance(owner, delegate)
}

// AssetDenom reports the vault's underlying asset identity.
func (v *Vault) AssetDenom() string {
	return v.assetDenom
}

// BufferID reports the designated buffer strategy's id.
func (v *Vault) BufferID() types.StrategyID {
	return v.buffer.ID()
}

// Paused reports whether new deposits and rebalances are blocked.
func (v *Vault) Paused() bool {
	return v.paused
}

// CooldownRemaining reports time until the next ordinary gated rebalance.
func (v *Vault) CooldownRemaining() time.Duration {
	return v.gate.Remaining()
}

// MaxDeposit reports the hard deposit ceiling: remaining cap capacity, zero
// while paused. The read itself never rejects a caller.
func (v *Vault) MaxDeposit(string) (sdkmath.Int, error) {
	if v.paused {
		return sdkmath.ZeroInt(), nil
	}
	total, err := v.TotalAssets()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if total.GTE(v.depositCap) {
		return sdkmath.ZeroInt(), nil
	}
	return v.depositCap.Sub(total), nil
}

// MaxMint reports MaxDeposit expressed in shares.
func (v *Vault) MaxMint(receiver string) (sdkmath.Int, error) {
	maxAssets, err := v.MaxDeposit(receiver)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	total, err := v.TotalAssets()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return sharesForDeposit(maxAssets, total, v.ledger.totalSupply()), nil
}

// MaxWithdraw reports the most assets owner can withdraw right now: the
// lesser of their entitlement and what buffer plus forced liquidation can
// deliver.
func (v *Vault) MaxWithdraw(owner string) (sdkmath.Int, error) {
	op := &operation{cache: cache.New(), log: v.log}
	total, err := v.totalAssets(op)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	entitlement := assetsForRedeem(v.ledger.balanceOf(owner), total, v.ledger.totalSupply())
	withdrawable, err := v.withdrawableTotalAssets(op)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return sdkmath.MinInt(entitlement, withdrawable), nil
}

// MaxRedeem reports the most shares owner can redeem right now.
func (v *Vault) MaxRedeem(owner string) (sdkmath.Int, error) {
	op := &operation{cache: cache.New(), log: v.log}
	total, err := v.totalAssets(op)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	balance := v.ledger.balanceOf(owner)
	withdrawable, err := v.withdrawableTotalAssets(op)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	liquidShares := sharesForDeposit(withdrawable, total, v.ledger.totalSupply())
	return sdkmath.MinInt(balance, liquidShares), nil
}

// Strategies returns a snapshot of every registration in registration order.
func (v *Vault) Strategies() []types.StrategyRegistration {
	entries := v.registry.List()
	regs := make([]types.StrategyRegistration, 0, len(entries))
	for _, entry := range entries {
		regs = append(regs, entry.Registration)
	}
	return regs
}

// StrategyBalance reports one registered strategy's current balance, or the
// buffer's when id names it.
func (v *Vault) StrategyBalance(id types.StrategyID) (sdkmath.Int, error) {
	if id == v.buffer.ID() {
		bal, err := v.buffer.TotalAssets()
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: totalAssets on %s: %w", ErrUnitFailure, id, err)
		}
		return bal, nil
	}
	entry, err := v.registry.Get(id)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	bal, err := entry.Unit.TotalAssets()
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: totalAssets on %s: %w", ErrUnitFailure, id, err)
	}
	return bal, nil
}

// --- Share transfers --------------------------------------------------------

// Transfer moves shares between holders. Transfers stay open while the
// vault is paused, like withdrawals.
func (v *Vault) Transfer(caller, to string, shares sdkmath.Int) error {
	op, err := v.begin("transfer")
	if err != nil {
		return err
	}
	defer v.end(op)
	v.accrueTip(op)

	if to == "" {
		return fmt.Errorf("%w: transfer receiver is empty", ErrAddressInvalid)
	}
	if shares.IsNil() || !shares.IsPositive() {
		return fmt.Errorf("%w: transfer of %v shares", ErrAmountInvalid, shares)
	}
	return v.ledger.transfer(caller, to, shares)
}

// Approve authorizes delegate to withdraw or redeem against caller's
// position up to shares.
func (v *Vault) Approve(caller, delegate string, shares sdkmath.Int) error {
	op, err := v.begin("approve")
	if err != nil {
		return err
	}
	defer v.end(op)
	v.accrueTip(op)

	if delegate == "" {
		return fmt.Errorf("%w: delegate is empty", ErrAddressInvalid)
	}
	if shares.IsNil() || shares.IsNegative() {
		return fmt.Errorf("%w: approval of %v shares", ErrAmountInvalid, shares)
	}
	v.ledger.approve(caller, delegate, shares)
	return nil
}
