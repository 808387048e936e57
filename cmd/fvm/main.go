package main

import (
	"os"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/fleetvault/fvm/internal/config"
	"github.com/fleetvault/fvm/internal/logger"
	"github.com/fleetvault/fvm/internal/state"
	"github.com/fleetvault/fvm/internal/strategy"
	"github.com/fleetvault/fvm/internal/types"
	"github.com/fleetvault/fvm/internal/vault"
	"github.com/fleetvault/fvm/internal/web"
)

const remoteCallTimeout = 30 * time.Second

// main is the entry point for the FVM daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("FVM Core Logic Starting...")

	// Initialize Database Connection
	dbCfg, err := config.LoadDBConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load database configuration")
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 2. Vault Construction (with Safety Switch) ---
	buffer := strategy.NewBuffer("buffer")

	v, err := vault.New(vault.Config{
		AssetDenom:            config.AssetDenom,
		Buffer:                buffer,
		DepositCap:            config.DepositCap,
		MinimumBufferBalance:  config.MinimumBuffer,
		MaxRebalanceBatchSize: config.MaxBatchSize,
		CooldownPeriod:        config.CooldownPeriod,
		CooldownStartReady:    true,
		TipRatePerSecond:      config.TipRatePerSecond,
		TipRecipient:          config.TipRecipient,
		Admin:                 config.AdminAddress,
		Keeper:                config.KeeperAddress,
		Sink:                  state.Journal{},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to construct vault")
	}

	if config.Mode == "live" {
		log.Warn().Msg("Initializing FVM in LIVE mode. Remote strategy endpoints will receive real instructions.")
		for _, endpoint := range config.RemoteStrategies {
			unit, err := strategy.NewRemote(types.StrategyID(endpoint.ID), endpoint.URL, remoteCallTimeout)
			if err != nil {
				log.Fatal().Err(err).Str("strategy", endpoint.ID).Msg("Failed to initialize remote strategy")
			}
			if err := v.AddStrategy(config.AdminAddress, unit, types.UnlimitedCaps(), false); err != nil {
				log.Fatal().Err(err).Str("strategy", endpoint.ID).Msg("Failed to register remote strategy")
			}
		}
	} else {
		log.Warn().Msg("FVM_MODE is not 'live'. Registering simulated strategy units only.")
		sim := strategy.NewSimulated("sim-yield", sdkmath.ZeroInt(), sdkmath.LegacyZeroDec(), time.Now)
		if err := v.AddStrategy(config.AdminAddress, sim, types.UnlimitedCaps(), false); err != nil {
			log.Fatal().Err(err).Msg("Failed to register simulated strategy")
		}
	}

	// --- 3. Start Web Server ---
	webServer := web.NewWebServer(v, config.WebPort)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting FVM web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 4. Snapshot Loop ---
	log.Info().Str("interval", config.SnapshotInterval.String()).Msg("Starting snapshot loop")
	runSnapshotLoop(v, config.SnapshotInterval)
}

// runSnapshotLoop persists a vault snapshot on every tick. Runs until the
// process is killed.
func runSnapshotLoop(v *vault.Vault, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := takeSnapshot(v); err != nil {
			log.Error().Err(err).Msg("Snapshot failed")
		}
		<-ticker.C
	}
}

func takeSnapshot(v *vault.Vault) error {
	totalAssets, err := v.TotalAssets()
	if err != nil {
		return err
	}
	withdrawable, err := v.WithdrawableTotalAssets()
	if err != nil {
		return err
	}
	bufferBalance, err := v.StrategyBalance(v.BufferID())
	if err != nil {
		return err
	}

	regs := v.Strategies()
	balances := make([]types.StrategyBalanceEntry, 0, len(regs))
	for _, reg := range regs {
		balance, err := v.StrategyBalance(reg.ID)
		if err != nil {
			return err
		}
		balances = append(balances, types.StrategyBalanceEntry{
			Strategy: reg.ID,
			Balance:  balance,
			Active:   reg.Active,
		})
	}

	_, err = state.SaveVaultSnapshot(types.VaultSnapshot{
		Timestamp:         time.Now().UTC(),
		AssetDenom:        v.AssetDenom(),
		TotalAssets:       totalAssets,
		WithdrawableTotal: withdrawable,
		TotalShares:       v.TotalShares(),
		BufferBalance:     bufferBalance,
		StrategyBalances:  balances,
		Paused:            v.Paused(),
	})
	return err
}
