// ./internal/state/record_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/fleetvault/fvm/internal/types"
)

// nullableInt maps an sdkmath.Int to a SQL parameter, treating the zero
// value (nil big.Int) as NULL.
func nullableInt(v sdkmath.Int) interface{} {
	if v.IsNil() {
		return nil
	}
	return v.String()
}

// SaveRecord persists a single vault record.
func SaveRecord(rec types.Record) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	var capsJSON interface{}
	if rec.Caps != nil {
		raw, err := json.Marshal(rec.Caps)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal caps: %w", err)
		}
		capsJSON = raw
	}

	query := `
		INSERT INTO vault_records (
			kind, op_id, record_timestamp,
			caller, owner_address, receiver, assets, shares,
			from_strategy, to_strategy, amount, forced,
			strategy, caps, previous_value, current_value
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING record_id;
	`

	var recordID int64
	err := DB.QueryRow(
		query,
		rec.Kind, rec.OpID, rec.Timestamp,
		nullableString(rec.Caller), nullableString(rec.Owner), nullableString(rec.Receiver),
		nullableInt(rec.Assets), nullableInt(rec.Shares),
		nullableString(string(rec.FromStrategy)), nullableString(string(rec.ToStrategy)),
		nullableInt(rec.Amount), rec.Forced,
		nullableString(string(rec.Strategy)), capsJSON,
		nullableString(rec.Previous), nullableString(rec.Current),
	).Scan(&recordID)

	if err != nil {
		return 0, fmt.Errorf("failed to save vault record: %w", err)
	}
	return recordID, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// LoadRecentRecords returns the newest records, newest first.
func LoadRecentRecords(limit int) ([]types.Record, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT kind, op_id, record_timestamp,
			caller, owner_address, receiver, assets, shares,
			from_strategy, to_strategy, amount, forced,
			strategy, caps, previous_value, current_value
		FROM vault_records
		ORDER BY record_timestamp DESC, record_id DESC
		LIMIT $1;
	`
	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query vault records: %w", err)
	}
	defer rows.Close()

	var records []types.Record
	for rows.Next() {
		var (
			rec        types.Record
			ts         time.Time
			caller     sql.NullString
			owner      sql.NullString
			receiver   sql.NullString
			assets     sql.NullString
			shares     sql.NullString
			fromStrat  sql.NullString
			toStrat    sql.NullString
			amount     sql.NullString
			strategyID sql.NullString
			capsRaw    []byte
			previous   sql.NullString
			current    sql.NullString
		)
		err := rows.Scan(
			&rec.Kind, &rec.OpID, &ts,
			&caller, &owner, &receiver, &assets, &shares,
			&fromStrat, &toStrat, &amount, &rec.Forced,
			&strategyID, &capsRaw, &previous, &current,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vault record: %w", err)
		}
		rec.Timestamp = ts
		rec.Caller = caller.String
		rec.Owner = owner.String
		rec.Receiver = receiver.String
		rec.FromStrategy = types.StrategyID(fromStrat.String)
		rec.ToStrategy = types.StrategyID(toStrat.String)
		rec.Strategy = types.StrategyID(strategyID.String)
		rec.Previous = previous.String
		rec.Current = current.String
		if rec.Assets, err = parseNullableInt(assets); err != nil {
			return nil, err
		}
		if rec.Shares, err = parseNullableInt(shares); err != nil {
			return nil, err
		}
		if rec.Amount, err = parseNullableInt(amount); err != nil {
			return nil, err
		}
		if len(capsRaw) > 0 {
			var caps types.StrategyCaps
			if err := json.Unmarshal(capsRaw, &caps); err != nil {
				return nil, fmt.Errorf("failed to unmarshal caps: %w", err)
			}
			rec.Caps = &caps
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return records, nil
}

func parseNullableInt(v sql.NullString) (sdkmath.Int, error) {
	if !v.Valid {
		return sdkmath.Int{}, nil
	}
	parsed, ok := sdkmath.NewIntFromString(v.String)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid integer column value %q", v.String)
	}
	return parsed, nil
}

// Journal is a RecordSink backed by the vault_records table. Append never
// blocks the vault operation on persistence failure; write errors are
// logged and the record is dropped from durable storage only.
type Journal struct{}

var _ types.RecordSink = Journal{}

func (Journal) Append(rec types.Record) {
	if _, err := SaveRecord(rec); err != nil {
		log.Error().Err(err).
			Str("kind", string(rec.Kind)).
			Str("op_id", rec.OpID).
			Msg("Failed to persist vault record")
	}
}
