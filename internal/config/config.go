// Package config loads service configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Ledger   LedgerConfig
	Signer   SignerConfig
	Scoring  ScoringConfig
	Pinning  PinningConfig
}

type ServerConfig struct {
	Addr           string
	ConfirmTimeout time.Duration
	Verbose        bool
}

type DatabaseConfig struct {
	PostgresDSN   string
	ClickhouseDSN string // optional, enables the audit trail
	UseMemory     bool
}

type LedgerConfig struct {
	RPCEndpoint     string
	WSEndpoint      string // optional, enables the receipt watcher
	RegistryAddress string // proposal registry contract
	IdentityAddress string // identity registry contract
	AssetAddress    string // settlement asset contract
}

type SignerConfig struct {
	OperatorSeed string // base58, 32 bytes
	WitnessSeed  string // base58, 32 bytes
}

type ScoringConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type PinningConfig struct {
	Endpoint string
	Token    string
}

// Load reads configuration from a .env file (if present) and the
// environment. Environment variables win over .env entries.
func Load() (*Config, error) {
	// No .env file is fine, the environment is authoritative.
	_ = godotenv.Load()

	confirmTimeout, err := time.ParseDuration(getEnv("CONFIRM_TIMEOUT", "3m"))
	if err != nil {
		return nil, fmt.Errorf("invalid CONFIRM_TIMEOUT: %w", err)
	}

	verbose, err := strconv.ParseBool(getEnv("VERBOSE", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid VERBOSE: %w", err)
	}

	useMemory, err := strconv.ParseBool(getEnv("USE_MEMORY", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid USE_MEMORY: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:           getEnv("SERVER_ADDR", ":8080"),
			ConfirmTimeout: confirmTimeout,
			Verbose:        verbose,
		},
		Database: DatabaseConfig{
			PostgresDSN:   os.Getenv("POSTGRES_DSN"),
			ClickhouseDSN: os.Getenv("CLICKHOUSE_DSN"),
			UseMemory:     useMemory,
		},
		Ledger: LedgerConfig{
			RPCEndpoint:     os.Getenv("LEDGER_RPC_ENDPOINT"),
			WSEndpoint:      os.Getenv("LEDGER_WS_ENDPOINT"),
			RegistryAddress: os.Getenv("REGISTRY_ADDRESS"),
			IdentityAddress: os.Getenv("IDENTITY_ADDRESS"),
			AssetAddress:    os.Getenv("ASSET_ADDRESS"),
		},
		Signer: SignerConfig{
			OperatorSeed: os.Getenv("OPERATOR_SEED"),
			WitnessSeed:  os.Getenv("WITNESS_SEED"),
		},
		Scoring: ScoringConfig{
			BaseURL: os.Getenv("SCORING_BASE_URL"),
			APIKey:  os.Getenv("SCORING_API_KEY"),
			Model:   getEnv("SCORING_MODEL", "risk-analyst-v2"),
		},
		Pinning: PinningConfig{
			Endpoint: os.Getenv("PINNING_ENDPOINT"),
			Token:    os.Getenv("PINNING_TOKEN"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Ledger.RPCEndpoint == "" {
		return fmt.Errorf("LEDGER_RPC_ENDPOINT is required")
	}
	if c.Ledger.AssetAddress == "" {
		return fmt.Errorf("ASSET_ADDRESS is required")
	}
	if c.Signer.OperatorSeed == "" {
		return fmt.Errorf("OPERATOR_SEED is required")
	}
	if !c.Database.UseMemory && c.Database.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (or set USE_MEMORY=true)")
	}
	return nil
}

// getEnv returns the environment value or a default when unset.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
