/*

Config registry: the set of registered strategy units and the caps governing
them. The registry is owned by a single vault and mutated only through that
vault's admin operations; it never changes out from under an in-flight
operation.

*/

package registry

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/fleetvault/fvm/internal/strategy"
	"github.com/fleetvault/fvm/internal/types"
)

var (
	ErrStrategyUnknown = errors.New("strategy is not registered")
	ErrStrategyExists  = errors.New("strategy is already registered")
	ErrCapsInvalid     = errors.New("strategy caps are invalid")
	ErrUnitInvalid     = errors.New("strategy unit is invalid")
)

// Entry pairs a registration with the live unit handle it governs.
type Entry struct {
	Registration types.StrategyRegistration
	Unit         strategy.Strategy
}

// Registry holds all registered strategies for one vault. Iteration order is
// registration order, so replayed operations observe strategies in a stable
// sequence.
type Registry struct {
	entries map[types.StrategyID]*Entry
	order   []types.StrategyID
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[types.StrategyID]*Entry)}
}

// ValidateCaps rejects nil or negative amounts and TVL percentages outside
// [0, 1].
func ValidateCaps(caps types.StrategyCaps) error {
	for _, amt := range []sdkmath.Int{caps.MaxInflowPerRebalance, caps.MaxOutflowPerRebalance, caps.DepositCap} {
		if amt.IsNil() {
			return fmt.Errorf("%w: cap amount is nil", ErrCapsInvalid)
		}
		if amt.IsNegative() {
			return fmt.Errorf("%w: cap amount is negative: %s", ErrCapsInvalid, amt)
		}
	}
	if caps.MaxPercentOfVaultTVL.IsNil() {
		return fmt.Errorf("%w: TVL percentage is nil", ErrCapsInvalid)
	}
	if caps.MaxPercentOfVaultTVL.IsNegative() || caps.MaxPercentOfVaultTVL.GT(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: TVL percentage %s outside [0, 1]", ErrCapsInvalid, caps.MaxPercentOfVaultTVL)
	}
	return nil
}

// Add registers a new strategy unit. Duplicate registration is a
// configuration error.
func (r *Registry) Add(unit strategy.Strategy, caps types.StrategyCaps, requiresExtraData bool) error {
	if unit == nil {
		return fmt.Errorf("%w: unit is nil", ErrUnitInvalid)
	}
	id := unit.ID()
	if id == "" {
		return fmt.Errorf("%w: unit has empty id", ErrUnitInvalid)
	}
	if _, exists := r.entries[id]; exists {
		return fmt.Errorf("%w: %s", ErrStrategyExists, id)
	}
	if err := ValidateCaps(caps); err != nil {
		return err
	}

	r.entries[id] = &Entry{
		Registration: types.StrategyRegistration{
			ID:                id,
			Caps:              caps,
			RequiresExtraData: requiresExtraData,
			Active:            true,
		},
		Unit: unit,
	}
	r.order = append(r.order, id)
	return nil
}

// Remove drops a registration. The balance-must-be-zero rule is enforced by
// the vault, which is the only caller with access to balances.
func (r *Registry) Remove(id types.StrategyID) error {
	if _, exists := r.entries[id]; !exists {
		return fmt.Errorf("%w: %s", ErrStrategyUnknown, id)
	}
	delete(r.entries, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// UpdateCaps replaces the caps for a registered strategy.
func (r *Registry) UpdateCaps(id types.StrategyID, caps types.StrategyCaps) error {
	entry, exists := r.entries[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrStrategyUnknown, id)
	}
	if err := ValidateCaps(caps); err != nil {
		return err
	}
	entry.Registration.Caps = caps
	return nil
}

// SetActive toggles whether the strategy may receive funds. Inactive
// strategies can still be drained.
func (r *Registry) SetActive(id types.StrategyID, active bool) error {
	entry, exists := r.entries[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrStrategyUnknown, id)
	}
	entry.Registration.Active = active
	return nil
}

// Get returns the entry for id.
func (r *Registry) Get(id types.StrategyID) (*Entry, error) {
	entry, exists := r.entries[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStrategyUnknown, id)
	}
	return entry, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id types.StrategyID) bool {
	_, exists := r.entries[id]
	return exists
}

// List returns all entries in registration order.
func (r *Registry) List() []*Entry {
	entries := make([]*Entry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, r.entries[id])
	}
	return entries
}

// Len reports the number of registered strategies.
func (r *Registry) Len() int {
	return len(r.entries)
}
