package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/rickgao/chainbridge/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Network == "" {
		return errors.New("network is required")
	}
	nc, ok := c.Networks[c.Network]
	if !ok {
		return fmt.Errorf("network %q is not defined in networks", c.Network)
	}
	if err := nc.validate("networks." + c.Network); err != nil {
		return err
	}

	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if c.Stream.BufferSize < 0 {
		return errors.New("stream.buffer_size must be >= 0")
	}
	if c.Stream.ReconnectBaseDelay > c.Stream.ReconnectMaxDelay {
		return fmt.Errorf("stream.reconnect_base_delay (%v) cannot exceed reconnect_max_delay (%v)",
			c.Stream.ReconnectBaseDelay, c.Stream.ReconnectMaxDelay)
	}
	if c.Stream.MinUptime < 0 {
		return fmt.Errorf("stream.min_uptime must be >= 0, got %v", c.Stream.MinUptime)
	}

	if c.Poller.Interval < 0 {
		return errors.New("poller.interval must be positive")
	}
	if c.Poller.Concurrency < 1 {
		return errors.New("poller.concurrency must be >= 1")
	}

	if c.Database.Enabled {
		if err := c.Database.Timescale.validate("database.timescale"); err != nil {
			return err
		}
		if c.Database.BatchSize < 1 {
			return errors.New("database.batch_size must be >= 1")
		}
		if c.Database.BufferSize < 1 {
			return errors.New("database.buffer_size must be >= 1")
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (n *NetworkConfig) validate(prefix string) error {
	if n.ChainID < 1 {
		return fmt.Errorf("%s.chain_id must be >= 1", prefix)
	}
	if err := validateURL(prefix+".backend_url", n.BackendURL, "http", "https"); err != nil {
		return err
	}

	family := model.Family(n.Family)
	switch family {
	case "":
		family = model.FamilyForChainID(n.ChainID)
	case model.FamilyEthereum, model.FamilyBinance:
	default:
		return fmt.Errorf("%s.family must be ethereum or binance, got %q", prefix, n.Family)
	}

	// Only non-Ethereum chains read gas from the node.
	if !family.IsEthereum() || n.RPCURL != "" {
		if err := validateURL(prefix+".rpc_url", n.RPCURL, "http", "https"); err != nil {
			return err
		}
	}

	if n.StreamURL != "" {
		if err := validateURL(prefix+".stream_url", n.StreamURL, "ws", "wss"); err != nil {
			return err
		}
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be a %v URL, got %q", field, schemes, raw)
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
