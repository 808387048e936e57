package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// AssetDenom is the denomination of the vault's single underlying asset.
	AssetDenom string
	// AssetPrecision is the number of decimal places the asset carries.
	AssetPrecision int

	// AdminAddress may change vault configuration and force rebalances.
	AdminAddress string
	// KeeperAddress may submit ordinary rebalance and buffer-adjust batches.
	KeeperAddress string
	// TipRecipient receives continuously accrued tip shares.
	TipRecipient string

	// WebPort is the port the read-only HTTP API listens on.
	WebPort string
	// SnapshotInterval is how often the daemon persists a vault snapshot.
	SnapshotInterval time.Duration

	// Mode selects the operating mode, "live" or "sim". Anything other than
	// an explicit "live" runs with simulated strategy units only.
	Mode string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	AssetDenom, err = getEnv("FVM_ASSET_DENOM")
	if err != nil {
		return err
	}

	AssetPrecision, err = getEnvAsInt("FVM_ASSET_PRECISION")
	if err != nil {
		return err
	}

	AdminAddress, err = getEnv("FVM_ADMIN_ADDRESS")
	if err != nil {
		return err
	}

	KeeperAddress, err = getEnv("FVM_KEEPER_ADDRESS")
	if err != nil {
		return err
	}

	TipRecipient, err = getEnv("FVM_TIP_RECIPIENT")
	if err != nil {
		return err
	}

	WebPort, err = getEnv("FVM_WEB_PORT")
	if err != nil {
		return err
	}

	snapshotSeconds, err := getEnvAsInt("FVM_SNAPSHOT_INTERVAL_SECONDS")
	if err != nil {
		return err
	}
	if snapshotSeconds <= 0 {
		return errors.New("environment variable FVM_SNAPSHOT_INTERVAL_SECONDS must be positive")
	}
	SnapshotInterval = time.Duration(snapshotSeconds) * time.Second

	Mode, err = getEnv("FVM_MODE")
	if err != nil {
		return err
	}

	// Load vault parameters and remote endpoints
	if err := loadVaultParameters(); err != nil {
		return err
	}
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("AssetDenom", AssetDenom).
		Str("Admin", AdminAddress).
		Str("Keeper", KeeperAddress).
		Str("Mode", Mode).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsInt retrieves an environment variable as an int. Returns error if not set or invalid.
func getEnvAsInt(key string) (int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsFloat64 retrieves an environment variable as a float64. Returns error if not set or invalid.
func getEnvAsFloat64(key string) (float64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}
