package main

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"planforge/sql/compiler"
	"planforge/sql/plan"
)

type OptimizerConfig struct {
	TimeoutTables     int     `json:"timeout_tables" mapstructure:"timeout_tables"`
	NoTimeout         bool    `json:"no_timeout" mapstructure:"no_timeout"`
	HashJoinEnabled   bool    `json:"hash_join_enabled" mapstructure:"hash_join_enabled"`
	MaxMemoryPerTable float64 `json:"max_memory_per_table" mapstructure:"max_memory_per_table"`
	SortAvoidance     bool    `json:"sort_avoidance" mapstructure:"sort_avoidance"`
}

type PlanConfig struct {
	BulkFetchSize int    `json:"bulk_fetch_size" mapstructure:"bulk_fetch_size"`
	Isolation     string `json:"isolation" mapstructure:"isolation"`
}

type LimitsConfig struct {
	MaxColumnsInTable int `json:"max_columns_in_table" mapstructure:"max_columns_in_table"`
	MaxIndexesInTable int `json:"max_indexes_in_table" mapstructure:"max_indexes_in_table"`
}

type CacheConfig struct {
	Size int           `json:"size" mapstructure:"size"`
	TTL  time.Duration `json:"ttl" mapstructure:"ttl"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

type Config struct {
	LogLevel  string          `json:"log_level" mapstructure:"log_level"`
	LogFile   string          `json:"log_file" mapstructure:"log_file"`
	Optimizer OptimizerConfig `json:"optimizer" mapstructure:"optimizer"`
	Plan      PlanConfig      `json:"plan" mapstructure:"plan"`
	Limits    LimitsConfig    `json:"limits" mapstructure:"limits"`
	Cache     CacheConfig     `json:"cache" mapstructure:"cache"`
	Metrics   MetricsConfig   `json:"metrics" mapstructure:"metrics"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "warn",
		Optimizer: OptimizerConfig{
			TimeoutTables:     6,
			HashJoinEnabled:   true,
			MaxMemoryPerTable: 1 << 20,
			SortAvoidance:     true,
		},
		Plan:   PlanConfig{BulkFetchSize: 16, Isolation: "read_committed"},
		Limits: LimitsConfig{MaxColumnsInTable: 1012, MaxIndexesInTable: 32767},
		Cache:  CacheConfig{Size: 256, TTL: 10 * time.Minute},
	}
}

// LoadConfig reads configFile over the defaults. A missing or malformed
// file leaves the defaults in place.
func LoadConfig(configFile string) *Config {
	viperCfg := viper.New()
	viperCfg.SetConfigFile(configFile)
	if err := viperCfg.ReadInConfig(); err != nil {
		fmt.Println("Read Config error:", err.Error())
		return DefaultConfig()
	}

	config := DefaultConfig()
	if err := viperCfg.Unmarshal(config); err != nil {
		fmt.Println(err)
		return DefaultConfig()
	}
	return config
}

// CompilerOptions is the typed view of the configuration the compiler takes.
func (c *Config) CompilerOptions() (compiler.Options, error) {
	isolation, err := plan.ParseIsolation(c.Plan.Isolation)
	if err != nil {
		return compiler.Options{}, err
	}
	opts := compiler.DefaultOptions()
	opts.Binder.MaxColumnsInTable = c.Limits.MaxColumnsInTable
	opts.Binder.MaxIndexesInTable = c.Limits.MaxIndexesInTable
	opts.Optimizer.TimeoutTables = c.Optimizer.TimeoutTables
	opts.Optimizer.NoTimeout = c.Optimizer.NoTimeout
	opts.Optimizer.HashJoin = c.Optimizer.HashJoinEnabled
	opts.Optimizer.MaxMemoryPerTable = c.Optimizer.MaxMemoryPerTable
	opts.Optimizer.SortAvoidance = c.Optimizer.SortAvoidance
	opts.Plan = plan.Options{BulkFetchSize: c.Plan.BulkFetchSize, Isolation: isolation}
	opts.CacheSize, opts.CacheTTL = c.Cache.Size, c.Cache.TTL
	if c.Metrics.Enabled {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	return opts, nil
}
