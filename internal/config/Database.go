package config

import (
	"github.com/fleetvault/fvm/internal/state"
)

// LoadDBConfig assembles the database configuration from environment
// variables. Separate from LoadConfig so tooling (schema reset scripts) can
// reach the database without the full vault configuration.
func LoadDBConfig() (state.DBConfig, error) {
	host, err := getEnv("DB_HOST")
	if err != nil {
		return state.DBConfig{}, err
	}
	port, err := getEnvAsInt("DB_PORT")
	if err != nil {
		return state.DBConfig{}, err
	}
	user, err := getEnv("DB_USER")
	if err != nil {
		return state.DBConfig{}, err
	}
	password, err := getEnv("DB_PASSWORD")
	if err != nil {
		return state.DBConfig{}, err
	}
	dbName, err := getEnv("DB_NAME")
	if err != nil {
		return state.DBConfig{}, err
	}
	sslMode, err := getEnv("DB_SSLMODE")
	if err != nil {
		return state.DBConfig{}, err
	}

	return state.DBConfig{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		DBName:   dbName,
		SSLMode:  sslMode,
	}, nil
}
