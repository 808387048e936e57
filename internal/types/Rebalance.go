/*

This file contains the types describing one rebalance batch. Instructions are
ephemeral: built per call, validated as a whole, executed or rejected, then
discarded.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// RebalanceInstruction moves Amount of the underlying asset from one
// strategy unit to another.
type RebalanceInstruction struct {
	FromStrategy StrategyID  `json:"from_strategy"`
	ToStrategy   StrategyID  `json:"to_strategy"`
	Amount       sdkmath.Int `json:"amount"`
	ExtraFrom    []byte      `json:"extra_from,omitempty"` // Routing data handed to the source unit's Release
	ExtraTo      []byte      `json:"extra_to,omitempty"`   // Routing data handed to the destination unit's Accept
}

// BufferDirection classifies which way an AdjustBuffer batch moves funds
// relative to the buffer strategy. A single batch may only move one way.
type BufferDirection int

const (
	BufferDirectionUnknown BufferDirection = iota
	BufferDirectionFill                    // funds flow into the buffer
	BufferDirectionDrain                   // funds flow out of the buffer
)

func (d BufferDirection) String() string {
	switch d {
	case BufferDirectionFill:
		return "fill"
	case BufferDirectionDrain:
		return "drain"
	default:
		return "unknown"
	}
}
