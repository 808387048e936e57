/*

Per-operation balance cache. Strategy balance queries can be expensive (some
units accrue interest on read), so one externally invoked vault operation
memoizes them here: at most one external query per distinct strategy
touched. The cache lives exactly as long as its operation; the vault
discards it unconditionally on every exit path.

*/

package cache

import (
	sdkmath "cosmossdk.io/math"

	"github.com/fleetvault/fvm/internal/types"
)

// Balances maps strategy id to the balance observed earlier in the same
// operation. It is not safe for concurrent use and is never shared between
// operations.
type Balances struct {
	entries map[types.StrategyID]sdkmath.Int
}

// New creates an empty cache for one operation.
func New() *Balances {
	return &Balances{entries: make(map[types.StrategyID]sdkmath.Int)}
}

// Get returns the cached balance for id, if one was stored this operation.
func (c *Balances) Get(id types.StrategyID) (sdkmath.Int, bool) {
	bal, ok := c.entries[id]
	return bal, ok
}

// Put stores or overwrites the balance for id.
func (c *Balances) Put(id types.StrategyID, balance sdkmath.Int) {
	c.entries[id] = balance
}

// Invalidate drops the entry for id. Used after the operation itself moves
// funds in or out of the strategy, making the observed value stale.
func (c *Balances) Invalidate(id types.StrategyID) {
	delete(c.entries, id)
}

// Len reports how many strategies have a cached balance.
func (c *Balances) Len() int {
	return len(c.entries)
}
