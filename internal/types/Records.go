/*

This file contains the observability records emitted by the vault. One record
is emitted per deposit, withdrawal, executed rebalance instruction, config
update and tip accrual; replaying the stream reconstructs vault state.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// RecordKind identifies what a Record describes.
type RecordKind string

const (
	RecordDeposit             RecordKind = "DEPOSIT"
	RecordWithdraw            RecordKind = "WITHDRAW"
	RecordRebalanceMove       RecordKind = "REBALANCE_MOVE"
	RecordTipAccrued          RecordKind = "TIP_ACCRUED"
	RecordHarvest             RecordKind = "HARVEST"
	RecordStrategyAdded       RecordKind = "STRATEGY_ADDED"
	RecordStrategyRemoved     RecordKind = "STRATEGY_REMOVED"
	RecordCapsUpdated         RecordKind = "CAPS_UPDATED"
	RecordCooldownUpdated     RecordKind = "COOLDOWN_UPDATED"
	RecordBufferMinUpdated    RecordKind = "BUFFER_MIN_UPDATED"
	RecordBatchSizeUpdated    RecordKind = "BATCH_SIZE_UPDATED"
	RecordTipRateUpdated      RecordKind = "TIP_RATE_UPDATED"
	RecordTipRecipientUpdated RecordKind = "TIP_RECIPIENT_UPDATED"
	RecordPaused              RecordKind = "PAUSED"
	RecordUnpaused            RecordKind = "UNPAUSED"
)

// Record is one emitted observability event. Fields not relevant to the
// record's kind are left at their zero value and omitted from JSON.
type Record struct {
	Kind      RecordKind `json:"kind"`
	OpID      string     `json:"op_id"`
	Timestamp time.Time  `json:"timestamp"`

	// Depositor-facing movements
	Caller   string      `json:"caller,omitempty"`
	Owner    string      `json:"owner,omitempty"`
	Receiver string      `json:"receiver,omitempty"`
	Assets   sdkmath.Int `json:"assets,omitempty"`
	Shares   sdkmath.Int `json:"shares,omitempty"`

	// Rebalance movements
	FromStrategy StrategyID  `json:"from_strategy,omitempty"`
	ToStrategy   StrategyID  `json:"to_strategy,omitempty"`
	Amount       sdkmath.Int `json:"amount,omitempty"`
	Forced       bool        `json:"forced,omitempty"`

	// Configuration changes
	Strategy StrategyID    `json:"strategy,omitempty"`
	Caps     *StrategyCaps `json:"caps,omitempty"`
	Previous string        `json:"previous,omitempty"`
	Current  string        `json:"current,omitempty"`
}

// RecordSink receives emitted records. Implementations must not call back
// into the vault; they observe committed state only.
type RecordSink interface {
	Append(rec Record)
}
