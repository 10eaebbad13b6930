package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/rickgao/chainbridge/internal/model"
)

// Config is the root configuration shared by the commands.
type Config struct {
	Network  string                   `yaml:"network"`  // Key into Networks
	Networks map[string]NetworkConfig `yaml:"networks"` // Known deployments
	API      APIConfig                `yaml:"api"`
	Stream   StreamConfig             `yaml:"stream"`
	Poller   PollerConfig             `yaml:"poller"`
	Database DatabaseConfig           `yaml:"database"`
	Log      LogConfig                `yaml:"log"`
	Health   HealthConfig             `yaml:"health"`
}

// NetworkConfig describes one chain deployment.
type NetworkConfig struct {
	ChainID    int64  `yaml:"chain_id"`
	RPCURL     string `yaml:"rpc_url"`
	BackendURL string `yaml:"backend_url"`
	StreamURL  string `yaml:"stream_url"`
	Family     string `yaml:"family"` // "ethereum", "binance", or empty to derive from chain_id
}

// APIConfig holds backend REST settings.
type APIConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	BlockchainPath string        `yaml:"blockchain_path"`
}

// StreamConfig holds subscription settings.
type StreamConfig struct {
	BufferSize         int           `yaml:"buffer_size"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	MinUptime          time.Duration `yaml:"min_uptime"` // Open time before the reconnect backoff resets
	Pairs              []string      `yaml:"pairs"` // Order books to follow
}

// PollerConfig holds fee-input sampling settings.
type PollerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`     // Per-sample timeout
	Concurrency int           `yaml:"concurrency"` // Max concurrent samples per cycle
	BaseAssets  []string      `yaml:"base_assets"` // One sample per base asset
	FeeAsset    string        `yaml:"fee_asset"`
}

// DatabaseConfig holds the TimescaleDB connection for recorded samples.
type DatabaseConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Timescale     DBConfig      `yaml:"timescale"`
	Hypertables   bool          `yaml:"hypertables"`    // Convert tables to TimescaleDB hypertables
	RecordTickers bool          `yaml:"record_tickers"` // Persist streamed tickers too
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level      string `yaml:"level"`        // debug, info, warn, error
	File       string `yaml:"file"`         // Optional JSON log file, rotated
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// SelectedNetwork resolves the active network descriptor.
func (c *Config) SelectedNetwork() (model.Network, error) {
	nc, ok := c.Networks[c.Network]
	if !ok {
		return model.Network{}, fmt.Errorf("network %q not found (known: %v)", c.Network, c.NetworkNames())
	}
	return nc.descriptor(c.Network), nil
}

// NetworkNames returns the keys of the networks table, sorted.
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (n NetworkConfig) descriptor(name string) model.Network {
	return model.Network{
		Name:       name,
		ChainID:    n.ChainID,
		RPCURL:     n.RPCURL,
		BackendURL: n.BackendURL,
		StreamURL:  n.StreamURL,
		Family:     model.Family(n.Family),
	}
}
