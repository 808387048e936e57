package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"

	"github.com/fleetvault/fvm/internal/config"
	"github.com/fleetvault/fvm/internal/logger"
	"github.com/fleetvault/fvm/internal/state"
	"github.com/fleetvault/fvm/internal/utils"
	"github.com/fleetvault/fvm/internal/vault"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes read-only vault data over HTTP.
type WebServer struct {
	router *mux.Router
	vault  *vault.Vault
	port   string
}

// NewWebServer creates a new web server instance
func NewWebServer(v *vault.Vault, port string) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		vault:  v,
		port:   port,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/vault/summary", ws.handleGetVaultSummary).Methods("GET")
	api.HandleFunc("/strategies", ws.handleGetStrategies).Methods("GET")
	api.HandleFunc("/records", ws.handleGetRecords).Methods("GET")
	api.HandleFunc("/snapshots/latest", ws.handleGetLatestSnapshot).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server and dependency health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false

	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
		hasErrors = true
	}

	vaultHealthy := true
	if _, err := ws.vault.TotalAssets(); err != nil {
		vaultHealthy = false
		hasErrors = true
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":            runtime.Version(),
			"goroutines_count":   runtime.NumGoroutine(),
			"total_alloc_bytes":  memStats.TotalAlloc,
			"heap_objects_count": memStats.HeapObjects,
			"alloc_bytes":        memStats.Alloc,
			"sys_bytes":          memStats.Sys,
			"gc_cycles":          memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "fvm-fleet-vault-manager",
			"version": "1.0.0",
		},
		"vault_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"units_reachable":  vaultHealthy,
			"paused":           ws.vault.Paused(),
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetVaultSummary returns live vault aggregates
func (ws *WebServer) handleGetVaultSummary(w http.ResponseWriter, r *http.Request) {
	totalAssets, err := ws.vault.TotalAssets()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get total assets")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vault summary")
		return
	}
	withdrawable, err := ws.vault.WithdrawableTotalAssets()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get withdrawable total")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vault summary")
		return
	}
	bufferBalance, err := ws.vault.StrategyBalance(ws.vault.BufferID())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get buffer balance")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vault summary")
		return
	}

	totalShares := ws.vault.TotalShares()

	response := map[string]interface{}{
		"asset_denom":                ws.vault.AssetDenom(),
		"total_assets":               totalAssets.String(),
		"total_assets_display":       displayAmount(totalAssets),
		"withdrawable_total":         withdrawable.String(),
		"withdrawable_total_display": displayAmount(withdrawable),
		"total_shares":               totalShares.String(),
		"buffer_balance":             bufferBalance.String(),
		"buffer_balance_display":     displayAmount(bufferBalance),
		"share_price":                utils.SharePrice(totalAssets, totalShares),
		"paused":                     ws.vault.Paused(),
		"cooldown_remaining":         ws.vault.CooldownRemaining().String(),
		"timestamp":                  time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetStrategies returns registrations with live balances
func (ws *WebServer) handleGetStrategies(w http.ResponseWriter, r *http.Request) {
	regs := ws.vault.Strategies()

	strategies := make([]map[string]interface{}, 0, len(regs))
	for _, reg := range regs {
		balance, err := ws.vault.StrategyBalance(reg.ID)
		if err != nil {
			webLogger.Error().Err(err).Str("strategy", string(reg.ID)).Msg("Failed to read strategy balance")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve strategies")
			return
		}
		strategies = append(strategies, map[string]interface{}{
			"id":                  reg.ID,
			"active":              reg.Active,
			"requires_extra_data": reg.RequiresExtraData,
			"balance":             balance.String(),
			"balance_display":     displayAmount(balance),
			"caps":                reg.Caps,
		})
	}

	response := map[string]interface{}{
		"strategies": strategies,
		"count":      len(strategies),
		"buffer_id":  ws.vault.BufferID(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetRecords returns the newest persisted records
func (ws *WebServer) handleGetRecords(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 500 {
			limit = parsedLimit
		}
	}

	records, err := state.LoadRecentRecords(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent records")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve records")
		return
	}

	response := map[string]interface{}{
		"records": records,
		"count":   len(records),
		"limit":   limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetLatestSnapshot returns the most recent stored snapshot
func (ws *WebServer) handleGetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := state.LoadLatestSnapshot()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get latest snapshot")
		ws.writeErrorResponse(w, http.StatusNotFound, "No snapshots found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, snapshot)
}

// displayAmount renders a base-unit amount in the human asset denomination,
// or nil when the amount does not convert cleanly.
func displayAmount(amount sdkmath.Int) interface{} {
	value, err := utils.SDKIntToFloat64(amount, config.AssetPrecision)
	if err != nil {
		webLogger.Warn().Err(err).Str("amount", amount.String()).Msg("Failed to render display amount")
		return nil
	}
	return value
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
