package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// StrategyBalanceEntry is one strategy's balance inside a snapshot.
type StrategyBalanceEntry struct {
	Strategy StrategyID  `json:"strategy"`
	Balance  sdkmath.Int `json:"balance"`
	Active   bool        `json:"active"`
}

// VaultSnapshot is a point-in-time capture of the vault's aggregate state,
// taken on a timer by the daemon rather than per operation.
type VaultSnapshot struct {
	SnapshotID        int64                  `json:"snapshot_id,omitempty"`
	Timestamp         time.Time              `json:"timestamp"`
	AssetDenom        string                 `json:"asset_denom"`
	TotalAssets       sdkmath.Int            `json:"total_assets"`
	WithdrawableTotal sdkmath.Int            `json:"withdrawable_total"`
	TotalShares       sdkmath.Int            `json:"total_shares"`
	BufferBalance     sdkmath.Int            `json:"buffer_balance"`
	StrategyBalances  []StrategyBalanceEntry `json:"strategy_balances"`
	Paused            bool                   `json:"paused"`
}
