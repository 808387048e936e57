/*

Simulated is the paper counterpart of a live strategy unit. It accrues
linear interest on read, which makes balance queries as "expensive" as the
real thing from the vault's point of view, and it can be term-locked or
primed to fail so the vault's failure paths can be exercised without a live
venue.

*/

package strategy

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/fleetvault/fvm/internal/types"
)

type Simulated struct {
	id        types.StrategyID
	principal sdkmath.Int
	rewards   sdkmath.Int

	// Linear interest, fraction of principal per second.
	ratePerSecond sdkmath.LegacyDec
	lastAccrual   time.Time
	now           func() time.Time

	// Term-locked units report zero withdrawable balance.
	locked bool

	nextAcceptErr  error
	nextReleaseErr error

	// Counts external queries so tests can assert the per-operation cache
	// bounds them.
	TotalAssetsCalls int
}

// NewSimulated creates a simulated unit holding principal and accruing
// ratePerSecond of it as rewards. now may be nil, defaulting to time.Now.
func NewSimulated(id types.StrategyID, principal sdkmath.Int, ratePerSecond sdkmath.LegacyDec, now func() time.Time) *Simulated {
	if now == nil {
		now = time.Now
	}
	return &Simulated{
		id:            id,
		principal:     principal,
		rewards:       sdkmath.ZeroInt(),
		ratePerSecond: ratePerSecond,
		lastAccrual:   now(),
		now:           now,
	}
}

// SetLocked marks the unit's capital as term-committed. While locked the
// unit still reports its full balance via TotalAssets but refuses forced
// withdrawal.
func (s *Simulated) SetLocked(locked bool) {
	s.locked = locked
}

// FailNextAccept primes the unit to fail its next Accept call with err.
func (s *Simulated) FailNextAccept(err error) {
	s.nextAcceptErr = err
}

// FailNextRelease primes the unit to fail its next Release call with err.
func (s *Simulated) FailNextRelease(err error) {
	s.nextReleaseErr = err
}

func (s *Simulated) ID() types.StrategyID {
	return s.id
}

// accrue folds elapsed time into the rewards pot. Interest is linear on
// principal and truncated toward zero.
func (s *Simulated) accrue() {
	current := s.now()
	elapsed := current.Sub(s.lastAccrual)
	s.lastAccrual = current
	if elapsed <= 0 || s.ratePerSecond.IsZero() || !s.principal.IsPositive() {
		return
	}
	earned := s.ratePerSecond.
		MulInt(s.principal).
		MulInt64(int64(elapsed / time.Second)).
		TruncateInt()
	s.rewards = s.rewards.Add(earned)
}

func (s *Simulated) TotalAssets() (sdkmath.Int, error) {
	s.TotalAssetsCalls++
	s.accrue()
	return s.principal.Add(s.rewards), nil
}

func (s *Simulated) WithdrawableTotalAssets() (sdkmath.Int, error) {
	if s.locked {
		return sdkmath.ZeroInt(), nil
	}
	s.accrue()
	// Rewards must be harvested before they can be released.
	return s.principal, nil
}

func (s *Simulated) Accept(amount sdkmath.Int, extra []byte) error {
	if err := s.nextAcceptErr; err != nil {
		s.nextAcceptErr = nil
		return err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return ErrAmountInvalid
	}
	s.accrue()
	s.principal = s.principal.Add(amount)
	return nil
}

func (s *Simulated) Release(amount sdkmath.Int, extra []byte) (sdkmath.Int, error) {
	if err := s.nextReleaseErr; err != nil {
		s.nextReleaseErr = nil
		return sdkmath.ZeroInt(), err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), ErrAmountInvalid
	}
	s.accrue()
	if s.locked {
		return sdkmath.ZeroInt(), ErrInsufficientFunds
	}
	if s.principal.LT(amount) {
		return sdkmath.ZeroInt(), ErrInsufficientFunds
	}
	s.principal = s.principal.Sub(amount)
	return amount, nil
}

func (s *Simulated) Harvest() (sdkmath.Int, error) {
	s.accrue()
	harvested := s.rewards
	s.principal = s.principal.Add(harvested)
	s.rewards = sdkmath.ZeroInt()
	return harvested, nil
}
