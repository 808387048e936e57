package config

import (
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
)

// RemoteStrategyEndpoint names one HTTP-backed strategy unit and where it
// answers.
type RemoteStrategyEndpoint struct {
	ID  string
	URL string
}

// RemoteStrategies are the HTTP strategy units to register in live mode.
// Populated at startup by the LoadConfig function.
var RemoteStrategies []RemoteStrategyEndpoint

// loadEndpointConfig loads remote strategy endpoints from environment variables.
// This function is called by LoadConfig() in General.go.
//
// FVM_REMOTE_STRATEGIES is a comma-separated list of id=url pairs and may be
// empty outside live mode.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	raw, err := getEnv("FVM_REMOTE_STRATEGIES")
	if err != nil {
		return err
	}

	RemoteStrategies = nil
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if Mode == "live" {
			return errors.New("environment variable FVM_REMOTE_STRATEGIES must name at least one strategy in live mode")
		}
		return nil
	}

	for _, pair := range strings.Split(raw, ",") {
		id, url, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || id == "" || url == "" {
			return errors.New("environment variable FVM_REMOTE_STRATEGIES entry is malformed: " + pair)
		}
		RemoteStrategies = append(RemoteStrategies, RemoteStrategyEndpoint{ID: id, URL: url})
	}

	log.Debug().
		Int("RemoteStrategies", len(RemoteStrategies)).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
