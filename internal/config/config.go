package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL     string `yaml:"ttl"`
		Catalog string `yaml:"catalog"`
	} `yaml:"quiz"`
	Chain struct {
		RPCURL         string `yaml:"rpc_url"`
		Contract       string `yaml:"contract"`
		From           string `yaml:"from"`
		Gas            uint64 `yaml:"gas"`
		ConfirmTimeout string `yaml:"confirm_timeout"`
		// TrustNode skips the eth_accounts check and treats the wallet as connected.
		TrustNode bool `yaml:"trust_node"`
	} `yaml:"chain"`
	Backend struct {
		BaseURL    string `yaml:"base_url"`
		Timeout    string `yaml:"timeout"`
		MaxRetries uint64 `yaml:"max_retries"`
	} `yaml:"backend"`
	Session struct {
		Tick         string `yaml:"tick"`
		PayloadOrder string `yaml:"payload_order"`
	} `yaml:"session"`
	Ledger struct {
		Driver string `yaml:"driver"`
		TTL    string `yaml:"ttl"`

		// ReconcileInterval paces the server's background reconcile; "0s" disables it.
		ReconcileInterval string `yaml:"reconcile_interval"`
		ReconcileLimit    int    `yaml:"reconcile_limit"`
	} `yaml:"ledger"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Ledger drivers.
const (
	LedgerMemory   = "memory"
	LedgerRedis    = "redis"
	LedgerPostgres = "postgres"
)

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-section requirements that would otherwise fail late.
func (c Config) Validate() error {
	switch c.Ledger.Driver {
	case "", LedgerMemory:
	case LedgerRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("ledger driver redis needs redis.addr")
		}
	case LedgerPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("ledger driver postgres needs postgres.url")
		}
	default:
		return fmt.Errorf("unknown ledger driver %q", c.Ledger.Driver)
	}
	switch c.Session.PayloadOrder {
	case "", "question", "recorded":
	default:
		return fmt.Errorf("unknown payload order %q", c.Session.PayloadOrder)
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
