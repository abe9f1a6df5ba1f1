// Package config loads a role's config.json and layers
// environment-variable overrides on top of it with viper: read a file,
// then AutomaticEnv().
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"synnergy-ledger/pkg/errs"
)

// Config is the on-disk config.json shape shared by all three roles.
type Config struct {
	Host    string   `mapstructure:"host" json:"host"`
	Port    int      `mapstructure:"port" json:"port"`
	Beacons []string `mapstructure:"beacons" json:"beacons"`

	SlotDuration   uint64 `mapstructure:"slotDuration" json:"slotDuration"`
	SlotsPerEpoch  uint64 `mapstructure:"slotsPerEpoch" json:"slotsPerEpoch"`
	CheckpointSize uint64 `mapstructure:"checkpointSize" json:"checkpointSize"`
	CheckpointAge  int64  `mapstructure:"checkpointAge" json:"checkpointAge"` // seconds

	MinerID string `mapstructure:"minerId" json:"minerId"`
	Stake   uint64 `mapstructure:"stake" json:"stake"`
	Keys    string `mapstructure:"keys" json:"keys"`
}

// defaults fills in every field a role can start from without a config.json
// override.
func defaults() Config {
	return Config{
		Host:           "localhost",
		SlotDuration:   5,
		SlotsPerEpoch:  432,
		CheckpointSize: 1 << 30,         // 1 GiB
		CheckpointAge:  365 * 24 * 3600, // 1 year
	}
}

// CheckpointAgeDuration converts the configured CheckpointAge seconds into
// a time.Duration for Ledger.
func (c Config) CheckpointAgeDuration() time.Duration {
	return time.Duration(c.CheckpointAge) * time.Second
}

// Load reads path as JSON into the defaults, then layers environment
// variables with the given envPrefix on top via viper.AutomaticEnv()
// (e.g. SYNN_PORT overrides "port"); only host, port, minerId, stake and
// keys are overlaid, and every other field comes from the file or the
// defaults. A ".env" file alongside path is loaded first, if present.
func Load(path string, envPrefix string) (*Config, error) {
	cfg := defaults()

	envPath := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envPath); err == nil {
		_ = godotenv.Load(envPath) // optional; missing or malformed .env is not fatal
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.ConfigErrorf(err, "read config file "+path)
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, errs.ConfigErrorf(err, "parse config file "+path)
		}
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	applyEnvOverrides(v, &cfg)

	if cfg.Port == 0 {
		return nil, errs.ConfigError("config: port must be set")
	}
	if cfg.SlotDuration == 0 {
		return nil, errs.ConfigError("config: slotDuration must be > 0")
	}
	if cfg.SlotsPerEpoch == 0 {
		return nil, errs.ConfigError("config: slotsPerEpoch must be > 0")
	}
	return &cfg, nil
}

// applyEnvOverrides overlays the set environment variables PREFIX_HOST,
// PREFIX_PORT, PREFIX_MINERID, PREFIX_STAKE and PREFIX_KEYS onto cfg,
// following viper's AutomaticEnv lookup.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if v.IsSet("host") {
		cfg.Host = v.GetString("host")
	}
	if v.IsSet("port") {
		cfg.Port = v.GetInt("port")
	}
	if v.IsSet("minerid") {
		cfg.MinerID = v.GetString("minerid")
	}
	if v.IsSet("stake") {
		cfg.Stake = v.GetUint64("stake")
	}
	if v.IsSet("keys") {
		cfg.Keys = v.GetString("keys")
	}
}

// Init writes a fresh default config.json to path (the `--init` CLI flag),
// failing if one already exists.
func Init(path string, host string, port int) error {
	if _, err := os.Stat(path); err == nil {
		return errs.ConfigError("config: " + path + " already exists")
	}
	cfg := defaults()
	cfg.Host = host
	cfg.Port = port
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errs.ConfigErrorf(err, "marshal default config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.IoErrorf(err, "create config dir")
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errs.IoErrorf(err, "write config file")
	}
	return nil
}
