/*

Share ledger: owner balances, delegate allowances, and total supply, with
standard fungible-conservation semantics. Supply changes only through
deposit mints, withdrawal burns and tip mints; rebalances never touch it.

*/

package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

type shareLedger struct {
	balances   map[string]sdkmath.Int
	allowances map[string]map[string]sdkmath.Int
	supply     sdkmath.Int
}

func newShareLedger() *shareLedger {
	return &shareLedger{
		balances:   make(map[string]sdkmath.Int),
		allowances: make(map[string]map[string]sdkmath.Int),
		supply:     sdkmath.ZeroInt(),
	}
}

func (l *shareLedger) totalSupply() sdkmath.Int {
	return l.supply
}

func (l *shareLedger) balanceOf(owner string) sdkmath.Int {
	bal, ok := l.balances[owner]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return bal
}

func (l *shareLedger) mint(owner string, shares sdkmath.Int) {
	l.balances[owner] = l.balanceOf(owner).Add(shares)
	l.supply = l.supply.Add(shares)
}

func (l *shareLedger) burn(owner string, shares sdkmath.Int) error {
	bal := l.balanceOf(owner)
	if bal.LT(shares) {
		return fmt.Errorf("%w: %s has %s, burning %s", ErrInsufficientShares, owner, bal, shares)
	}
	l.balances[owner] = bal.Sub(shares)
	l.supply = l.supply.Sub(shares)
	return nil
}

func (l *shareLedger) transfer(from, to string, shares sdkmath.Int) error {
	bal := l.balanceOf(from)
	if bal.LT(shares) {
		return fmt.Errorf("%w: %s has %s, sending %s", ErrInsufficientShares, from, bal, shares)
	}
	l.balances[from] = bal.Sub(shares)
	l.balances[to] = l.balanceOf(to).Add(shares)
	return nil
}

func (l *shareLedger) approve(owner, delegate string, shares sdkmath.Int) {
	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[string]sdkmath.Int)
	}
	l.allowances[owner][delegate] = shares
}

func (l *shareLedger) allowance(owner, delegate string) sdkmath.Int {
	if l.allowances[owner] == nil {
		return sdkmath.ZeroInt()
	}
	a, ok := l.allowances[owner][delegate]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return a
}

// spendAllowance consumes shares from delegate's allowance over owner's
// position. Owners spend their own shares without an allowance.
func (l *shareLedger) spendAllowance(owner, delegate string, shares sdkmath.Int) error {
	if owner == delegate {
		return nil
	}
	current := l.allowance(owner, delegate)
	if current.LT(shares) {
		return fmt.Errorf("%w: %s approved %s for %s, spending %s", ErrInsufficientAllowance, owner, current, delegate, shares)
	}
	l.allowances[owner][delegate] = current.Sub(shares)
	return nil
}

// restoreAllowance undoes a spendAllowance when a later step of the same
// operation fails.
func (l *shareLedger) restoreAllowance(owner, delegate string, shares sdkmath.Int) {
	if owner == delegate {
		return
	}
	l.allowances[owner][delegate] = l.allowance(owner, delegate).Add(shares)
}
