// Package config implements the layered configuration of SPEC_FULL.md's
// ambient stack: CLI flags override environment, which overrides a
// JSON/TOML config file, which overrides built-in defaults, following the
// teacher's viper/pflag wiring (main.go's init()). WatchPools installs a
// file watcher that reports pool-list changes; cmd/gominer does not call
// it, so a running process keeps the pool list it started with.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// PoolConfig mirrors one entry of the "pools" config array, the direct
// descendant of the teacher's types.Pool.
type PoolConfig struct {
	URL          string  `mapstructure:"url"`
	User         string  `mapstructure:"user"`
	Pass         string  `mapstructure:"pass"`
	Algo         string  `mapstructure:"algo"`
	Active       bool    `mapstructure:"active"`
	ScanTime     int     `mapstructure:"scantime"`
	MaxDiff      float64 `mapstructure:"max_diff"`
	MaxRate      float64 `mapstructure:"max_rate"`
	TimeLimit    int     `mapstructure:"time_limit"`
	FailoverOnly bool    `mapstructure:"failover_only"`
}

// Config is the fully resolved runtime configuration for one process.
type Config struct {
	Pools []PoolConfig

	Workers      int
	Retries      int
	FailPause    time.Duration
	Proxy        string
	MaxTemp      float64
	PoolFailover bool
	LogLevel     string
	UserAgent    string

	// Vote is opt_vote, the miner's heavycoin-style block-version vote
	// (spec §3), packed into a Stratum job's header word 20 for algorithm
	// families with HasVote.
	Vote uint16
}

// Defaults matches the teacher's viper.SetDefault block, translated to
// this program's option names.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"workers":       1,
		"retries":       3,
		"fail_pause":    30,
		"max_temp":      0,
		"pool_failover": true,
		"debug":         "info",
		"useragent":     "gominer/1.0",
		"vote":          0,
	}
}

// BindFlags registers this program's CLI flags on fs and binds them into
// v, mirroring the teacher's pflag.String("cfg", ...)/viper.BindPFlags
// pairing.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	fs.String("cfg", "gominer.json", "config file path")
	fs.Int("workers", 1, "number of worker threads")
	fs.Int("retries", 3, "getwork/submit retry budget before terminating (-1 = unlimited)")
	fs.Int("fail_pause", 30, "seconds to sleep between failed retry attempts")
	fs.String("proxy", "", "SOCKS5 or HTTP CONNECT proxy URL for outbound connections")
	fs.Float64("max_temp", 0, "GPU temperature gate in Celsius (0 disables)")
	fs.Bool("pool_failover", true, "rotate to the next usable pool on persistent failure")
	fs.String("debug", "info", "log level: debug, info, error")
	fs.String("useragent", "gominer/1.0", "HTTP/Stratum user-agent string")
	fs.Int("vote", 0, "block-version vote for heavycoin-style algorithms (0-65535)")
	return v.BindPFlags(fs)
}

// Load resolves layered configuration exactly the way the teacher's
// init() does: defaults, then a config file (JSON/TOML/YAML, located by
// viper's search path), then environment, then flags (flags already took
// precedence via BindFlags's bind order).
func Load(v *viper.Viper, cfgPath string) (*Config, error) {
	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix("gominer")
	v.AutomaticEnv()

	if cfgPath != "" && cfgPath != "gominer.json" {
		v.SetConfigFile(cfgPath)
	} else {
		name := strings.TrimSuffix(cfgPath, ".json")
		if name == "" {
			name = "gominer"
		}
		v.SetConfigName(name)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/gominer")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	var pools []PoolConfig
	if err := v.UnmarshalKey("pools", &pools); err != nil {
		return nil, fmt.Errorf("config: pools: %w", err)
	}

	return &Config{
		Pools:        pools,
		Workers:      v.GetInt("workers"),
		Retries:      v.GetInt("retries"),
		FailPause:    time.Duration(v.GetInt("fail_pause")) * time.Second,
		Proxy:        v.GetString("proxy"),
		MaxTemp:      v.GetFloat64("max_temp"),
		PoolFailover: v.GetBool("pool_failover"),
		LogLevel:     v.GetString("debug"),
		UserAgent:    v.GetString("useragent"),
		Vote:         uint16(v.GetInt("vote")),
	}, nil
}

// WatchPools mirrors the teacher's viper.WatchConfig/OnConfigChange pair:
// on a config file write, it re-reads the "pools" key and invokes onChange
// with the fresh list. Applying that list is up to onChange; the
// supervisor has no hook for it.
func WatchPools(v *viper.Viper, onChange func([]PoolConfig)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		var pools []PoolConfig
		if err := v.UnmarshalKey("pools", &pools); err != nil {
			return
		}
		onChange(pools)
	})
	v.WatchConfig()
}
