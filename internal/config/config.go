// Package config loads the engine's YAML configuration via spf13/viper,
// with mapstructure tags for unmarshaling and defaults for every
// omittable field.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully recognized configuration surface: storage, buffer
// pool, index fanout, lock manager, transaction defaults, and server.
type Config struct {
	Storage struct {
		File     string `mapstructure:"file"`
		PageSize int    `mapstructure:"page_size"`
	} `mapstructure:"storage"`

	BufferPool struct {
		PoolSize   int `mapstructure:"pool_size"`
		ReplacerK  int `mapstructure:"replacer_k"`
	} `mapstructure:"buffer_pool"`

	Index struct {
		LeafMaxSize     uint16 `mapstructure:"leaf_max_size"`
		InternalMaxSize uint16 `mapstructure:"internal_max_size"`
	} `mapstructure:"index"`

	LockManager struct {
		CycleDetectionInterval time.Duration `mapstructure:"cycle_detection_interval"`
	} `mapstructure:"lock_manager"`

	Transaction struct {
		DefaultIsolationLevel string `mapstructure:"default_isolation_level"`
	} `mapstructure:"transaction"`

	Server struct {
		Debug bool `mapstructure:"debug"`
	} `mapstructure:"server"`
}

// Load reads and unmarshals the YAML configuration at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("storage.page_size", 4096)
	v.SetDefault("buffer_pool.pool_size", 128)
	v.SetDefault("buffer_pool.replacer_k", 2)
	v.SetDefault("index.leaf_max_size", 32)
	v.SetDefault("index.internal_max_size", 32)
	v.SetDefault("lock_manager.cycle_detection_interval", "50ms")
	v.SetDefault("transaction.default_isolation_level", "repeatable_read")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	return &cfg, nil
}

// IsolationLevel validates Transaction.DefaultIsolationLevel and returns
// it unchanged as a string. It does not import internal/lock, which keeps
// config a leaf package with no dependency on the engine's concurrency
// core; callers map the string to a lock.IsolationLevel.
func (c *Config) IsolationLevel() (string, error) {
	switch c.Transaction.DefaultIsolationLevel {
	case "read_uncommitted", "read_committed", "repeatable_read":
		return c.Transaction.DefaultIsolationLevel, nil
	default:
		return "", fmt.Errorf("config: unrecognized isolation level %q", c.Transaction.DefaultIsolationLevel)
	}
}
