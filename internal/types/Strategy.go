/*

This file contains the types describing a registered strategy unit and the
caps governing how much capital may flow into or out of it.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// StrategyID uniquely identifies a registered strategy unit within one vault.
type StrategyID string

// StrategyCaps holds the per-unit limits enforced by the rebalance engine.
type StrategyCaps struct {
	MaxInflowPerRebalance  sdkmath.Int       `json:"max_inflow_per_rebalance"`  // Max amount the unit may receive in one rebalance batch
	MaxOutflowPerRebalance sdkmath.Int       `json:"max_outflow_per_rebalance"` // Max amount the unit may release in one rebalance batch
	DepositCap             sdkmath.Int       `json:"deposit_cap"`               // Hard ceiling on the unit's total allocation
	MaxPercentOfVaultTVL   sdkmath.LegacyDec `json:"max_percent_of_vault_tvl"`  // Share of total vault value the unit may hold (0.0 to 1.0)
}

// Unlimited returns an amount ceiling that never binds in practice.
func Unlimited() sdkmath.Int {
	return sdkmath.NewIntFromUint64(1 << 62).MulRaw(1 << 62)
}

// UnlimitedCaps returns a cap set that never binds. Used for the buffer
// strategy, which is the designated liquidity sink.
func UnlimitedCaps() StrategyCaps {
	max := Unlimited()
	return StrategyCaps{
		MaxInflowPerRebalance:  max,
		MaxOutflowPerRebalance: max,
		DepositCap:             max,
		MaxPercentOfVaultTVL:   sdkmath.LegacyOneDec(),
	}
}

// StrategyRegistration is the registry entry for one strategy unit.
type StrategyRegistration struct {
	ID                StrategyID   `json:"id"`
	Caps              StrategyCaps `json:"caps"`
	RequiresExtraData bool         `json:"requires_extra_data"` // Unit rejects Accept/Release without routing data
	Active            bool         `json:"active"`              // Inactive units cannot receive funds
}
