package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config holds Redis configuration
type Config struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Connection settings
	Addr     string `mapstructure:"addr" yaml:"addr" json:"addr"`
	Password string `mapstructure:"password" yaml:"password" json:"password"`
	DB       int    `mapstructure:"db" yaml:"db" json:"db"`

	// Pool settings
	PoolSize        int           `mapstructure:"pool_size" yaml:"pool_size" json:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns" yaml:"min_idle_conns" json:"min_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout" yaml:"pool_timeout" json:"pool_timeout"`

	// Operational settings
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`

	// Timeout settings
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`

	// Sentinel settings
	EnableSentinel bool     `mapstructure:"enable_sentinel" yaml:"enable_sentinel" json:"enable_sentinel"`
	SentinelAddrs  []string `mapstructure:"sentinel_addrs" yaml:"sentinel_addrs" json:"sentinel_addrs"`
	MasterName     string   `mapstructure:"master_name" yaml:"master_name" json:"master_name"`
}

// DefaultConfig returns defaults sized for scan leases, not caching
func DefaultConfig() *Config {
	return &Config{
		Enabled:         false,
		Addr:            "localhost:6379",
		PoolSize:        20,
		MinIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 5 * time.Minute,
		PoolTimeout:     4 * time.Second,
		MaxRetries:      3,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
	}
}

// Client wraps the Redis client
type Client struct {
	rdb    redis.UniversalClient
	config *Config
	logger *zap.Logger
}

// NewClient connects and pings Redis
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	var rdb redis.UniversalClient
	if config.EnableSentinel {
		rdb = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:      config.MasterName,
			SentinelAddrs:   config.SentinelAddrs,
			Password:        config.Password,
			DB:              config.DB,
			PoolSize:        config.PoolSize,
			MinIdleConns:    config.MinIdleConns,
			ConnMaxLifetime: config.ConnMaxLifetime,
			ConnMaxIdleTime: config.ConnMaxIdleTime,
			PoolTimeout:     config.PoolTimeout,
			MaxRetries:      config.MaxRetries,
			DialTimeout:     config.DialTimeout,
			ReadTimeout:     config.ReadTimeout,
			WriteTimeout:    config.WriteTimeout,
		})
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:            config.Addr,
			Password:        config.Password,
			DB:              config.DB,
			PoolSize:        config.PoolSize,
			MinIdleConns:    config.MinIdleConns,
			ConnMaxLifetime: config.ConnMaxLifetime,
			ConnMaxIdleTime: config.ConnMaxIdleTime,
			PoolTimeout:     config.PoolTimeout,
			MaxRetries:      config.MaxRetries,
			DialTimeout:     config.DialTimeout,
			ReadTimeout:     config.ReadTimeout,
			WriteTimeout:    config.WriteTimeout,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("redis client connected",
		zap.String("addr", config.Addr),
		zap.Int("db", config.DB),
		zap.Int("pool_size", config.PoolSize),
		zap.Bool("sentinel_mode", config.EnableSentinel))

	return &Client{rdb: rdb, config: config, logger: logger}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() redis.UniversalClient {
	return c.rdb
}

// Health checks the health of the Redis connection
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}
