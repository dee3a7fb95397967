// Package config handles runtime configuration for the wallet engine.
//
// All settings come from the environment (EMBER_ prefix) with sensible
// defaults, so the engine runs unconfigured against public endpoints.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/emberwallet/ember-core/pkg/types"
)

// Config holds runtime configuration for the wallet engine.
type Config struct {
	Network string `envconfig:"NETWORK" default:"mainnet"`
	DataDir string `envconfig:"DATA_DIR"`

	// Chain RPC endpoints.
	EthereumRPCURL string `envconfig:"ETHEREUM_RPC_URL" default:"https://eth.llamarpc.com"`
	EthereumChainID int64 `envconfig:"ETHEREUM_CHAIN_ID" default:"1"`
	BitcoinAPIURL  string `envconfig:"BITCOIN_API_URL" default:"https://blockstream.info/api"`
	SolanaRPCURL   string `envconfig:"SOLANA_RPC_URL" default:"https://api.mainnet-beta.solana.com"`

	// Network client policy.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	MaxRetries     int           `envconfig:"MAX_RETRIES" default:"3"`
	RetryBackoff   time.Duration `envconfig:"RETRY_BACKOFF" default:"500ms"`

	// Replay guard policy.
	ReplayWindow       time.Duration `envconfig:"REPLAY_WINDOW" default:"5m"`
	ReplayMaxSeenTxIDs int           `envconfig:"REPLAY_MAX_SEEN_TXIDS" default:"4096"`
	ReplayMaxNonceJump uint64        `envconfig:"REPLAY_MAX_NONCE_JUMP" default:"1024"`

	// Authentication gate policy.
	AuthMaxAttempts int           `envconfig:"AUTH_MAX_ATTEMPTS" default:"5"`
	AuthLockout     time.Duration `envconfig:"AUTH_LOCKOUT" default:"1m"`

	// Logging.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogJSON  bool   `envconfig:"LOG_JSON" default:"false"`
	LogFile  string `envconfig:"LOG_FILE"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("ember", cfg); err != nil {
		return nil, fmt.Errorf("process config: %w", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	if !types.Network(cfg.Network).Valid() {
		return nil, fmt.Errorf("unknown network %q", cfg.Network)
	}
	return cfg, nil
}

// NetworkType returns the configured network as a typed value.
func (c *Config) NetworkType() types.Network {
	return types.Network(c.Network)
}

// KeystoreDir returns the per-network keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.DataDir, c.Network, "keystore")
}

// VaultDir returns the per-network encrypted vault database directory.
func (c *Config) VaultDir() string {
	return filepath.Join(c.DataDir, c.Network, "vault")
}

// DefaultDataDir returns the platform-appropriate data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ember"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Ember")
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "Ember")
	default:
		return filepath.Join(home, ".ember")
	}
}
