// ./internal/state/snapshot_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fleetvault/fvm/internal/types"
)

// SaveVaultSnapshot saves a point-in-time vault snapshot to the database.
func SaveVaultSnapshot(snapshot types.VaultSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	balancesJSON, err := json.Marshal(snapshot.StrategyBalances)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal strategy_balances: %w", err)
	}

	query := `
		INSERT INTO vault_snapshots (
			snapshot_timestamp, asset_denom,
			total_assets, withdrawable_total, total_shares, buffer_balance,
			strategy_balances, paused
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = DB.QueryRow(
		query,
		snapshot.Timestamp, snapshot.AssetDenom,
		snapshot.TotalAssets.String(), snapshot.WithdrawableTotal.String(),
		snapshot.TotalShares.String(), snapshot.BufferBalance.String(),
		balancesJSON, snapshot.Paused,
	).Scan(&snapshotID)

	if err != nil {
		return 0, fmt.Errorf("failed to save vault snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Str("total_assets", snapshot.TotalAssets.String()).
		Str("total_shares", snapshot.TotalShares.String()).
		Msg("Vault snapshot saved to database")

	return snapshotID, nil
}

// LoadLatestSnapshot returns the most recent snapshot, or sql.ErrNoRows
// when none has been taken yet.
func LoadLatestSnapshot() (types.VaultSnapshot, error) {
	if DB == nil {
		return types.VaultSnapshot{}, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT snapshot_id, snapshot_timestamp, asset_denom,
			total_assets, withdrawable_total, total_shares, buffer_balance,
			strategy_balances, paused
		FROM vault_snapshots
		ORDER BY snapshot_timestamp DESC, snapshot_id DESC
		LIMIT 1;
	`

	var (
		snap        types.VaultSnapshot
		totalAssets string
		withdrawTot string
		totalShares string
		bufferBal   string
		balancesRaw []byte
	)
	err := DB.QueryRow(query).Scan(
		&snap.SnapshotID, &snap.Timestamp, &snap.AssetDenom,
		&totalAssets, &withdrawTot, &totalShares, &bufferBal,
		&balancesRaw, &snap.Paused,
	)
	if err == sql.ErrNoRows {
		return types.VaultSnapshot{}, err
	}
	if err != nil {
		return types.VaultSnapshot{}, fmt.Errorf("failed to load latest snapshot: %w", err)
	}

	if snap.TotalAssets, err = parseNullableInt(sql.NullString{String: totalAssets, Valid: true}); err != nil {
		return types.VaultSnapshot{}, err
	}
	if snap.WithdrawableTotal, err = parseNullableInt(sql.NullString{String: withdrawTot, Valid: true}); err != nil {
		return types.VaultSnapshot{}, err
	}
	if snap.TotalShares, err = parseNullableInt(sql.NullString{String: totalShares, Valid: true}); err != nil {
		return types.VaultSnapshot{}, err
	}
	if snap.BufferBalance, err = parseNullableInt(sql.NullString{String: bufferBal, Valid: true}); err != nil {
		return types.VaultSnapshot{}, err
	}
	if len(balancesRaw) > 0 {
		if err := json.Unmarshal(balancesRaw, &snap.StrategyBalances); err != nil {
			return types.VaultSnapshot{}, fmt.Errorf("failed to unmarshal strategy_balances: %w", err)
		}
	}

	log.Debug().Int64("snapshot_id", snap.SnapshotID).Msg("Loaded latest vault snapshot")
	return snap, nil
}
