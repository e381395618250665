package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Redis  RedisConfig
	Server ServerConfig
	Engine EngineConfig
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// EngineConfig is the explicit purchase cost model: a purchase must cover
// price*quantity plus BaseOverhead plus PerUnitOverhead*quantity, all in
// nano-units.
type EngineConfig struct {
	BaseOverhead    string `mapstructure:"base_overhead"`
	PerUnitOverhead string `mapstructure:"per_unit_overhead"`
	ShardCode       string `mapstructure:"shard_code"` // ledger shard code hash override, hex
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("engine.base_overhead", "10000000")
	v.SetDefault("engine.per_unit_overhead", "90000000")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"redis.addr":               "REDIS_ADDR",
		"redis.password":           "REDIS_PASSWORD",
		"server.port":              "PORT",
		"engine.base_overhead":     "BASE_OVERHEAD",
		"engine.per_unit_overhead": "PER_UNIT_OVERHEAD",
		"engine.shard_code":        "SHARD_CODE",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if _, ok := new(big.Int).SetString(c.Engine.BaseOverhead, 10); !ok {
		return fmt.Errorf("invalid BASE_OVERHEAD: %q", c.Engine.BaseOverhead)
	}
	if _, ok := new(big.Int).SetString(c.Engine.PerUnitOverhead, 10); !ok {
		return fmt.Errorf("invalid PER_UNIT_OVERHEAD: %q", c.Engine.PerUnitOverhead)
	}
	return nil
}
