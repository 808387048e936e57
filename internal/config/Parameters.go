/*

This file contains the operating parameters for the vault, loaded from the
environment alongside the general configuration.

Amounts are given in whole asset units (human denomination) and converted to
base units with the configured asset precision.

*/

package config

import (
	"errors"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/fleetvault/fvm/internal/types"
	"github.com/fleetvault/fvm/internal/utils"
)

var (
	// CooldownPeriod is the minimum spacing between ordinary rebalance and
	// buffer-adjust batches. Forced rebalances ignore it.
	CooldownPeriod time.Duration

	// MaxBatchSize is the maximum number of instructions in one batch.
	MaxBatchSize int

	// MinimumBuffer is the floor a draining buffer adjustment must leave
	// behind, in base units.
	MinimumBuffer sdkmath.Int

	// DepositCap is the vault-wide deposit cap in base units. Zero or
	// negative input disables the cap.
	DepositCap sdkmath.Int

	// TipRatePerSecond is the share-dilution tip rate applied per elapsed
	// second. Must be below 1.
	TipRatePerSecond sdkmath.LegacyDec
)

// loadVaultParameters loads vault operating parameters from environment
// variables. Called by LoadConfig() in General.go after AssetPrecision is set.
func loadVaultParameters() error {
	cooldownSeconds, err := getEnvAsInt("FVM_COOLDOWN_SECONDS")
	if err != nil {
		return err
	}
	if cooldownSeconds < 0 {
		return errors.New("environment variable FVM_COOLDOWN_SECONDS must not be negative")
	}
	CooldownPeriod = time.Duration(cooldownSeconds) * time.Second

	MaxBatchSize, err = getEnvAsInt("FVM_MAX_BATCH_SIZE")
	if err != nil {
		return err
	}
	if MaxBatchSize <= 0 {
		return errors.New("environment variable FVM_MAX_BATCH_SIZE must be positive")
	}

	minimumBuffer, err := getEnvAsFloat64("FVM_MINIMUM_BUFFER")
	if err != nil {
		return err
	}
	MinimumBuffer, err = utils.Float64ToSDKInt(minimumBuffer, AssetPrecision)
	if err != nil {
		return errors.New("environment variable FVM_MINIMUM_BUFFER is invalid: " + err.Error())
	}

	depositCap, err := getEnvAsFloat64("FVM_DEPOSIT_CAP")
	if err != nil {
		return err
	}
	if depositCap <= 0 {
		DepositCap = types.Unlimited()
	} else {
		DepositCap, err = utils.Float64ToSDKInt(depositCap, AssetPrecision)
		if err != nil {
			return errors.New("environment variable FVM_DEPOSIT_CAP is invalid: " + err.Error())
		}
	}

	tipRateStr, err := getEnv("FVM_TIP_RATE_PER_SECOND")
	if err != nil {
		return err
	}
	TipRatePerSecond, err = sdkmath.LegacyNewDecFromStr(tipRateStr)
	if err != nil {
		return errors.New("environment variable FVM_TIP_RATE_PER_SECOND must be a valid decimal, got: " + tipRateStr)
	}

	return nil
}
