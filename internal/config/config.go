package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml/scheduler"
	"github.com/Aidin1998/amlwatch/internal/database"
	"github.com/Aidin1998/amlwatch/internal/messaging"
	"github.com/Aidin1998/amlwatch/internal/redis"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the process configuration. Detection thresholds live in a
// separate jurisdiction profile referenced by Detection.ThresholdsFile.
type Config struct {
	Env       string                `mapstructure:"env" validate:"required"`
	LogLevel  string                `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	HTTP      HTTPConfig            `mapstructure:"http"`
	Database  database.Config       `mapstructure:"database"`
	Redis     redis.Config          `mapstructure:"redis"`
	Kafka     messaging.KafkaConfig `mapstructure:"kafka"`
	Scheduler scheduler.Config      `mapstructure:"scheduler"`
	Detection DetectionConfig       `mapstructure:"detection"`
	Tracing   TracingConfig         `mapstructure:"tracing"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type DetectionConfig struct {
	ThresholdsFile string `mapstructure:"thresholds_file" validate:"required"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("http.cors_origins", []string{})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=amlwatch dbname=amlwatch sslmode=disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")

	rd := redis.DefaultConfig()
	v.SetDefault("redis.enabled", rd.Enabled)
	v.SetDefault("redis.addr", rd.Addr)
	v.SetDefault("redis.password", rd.Password)
	v.SetDefault("redis.db", rd.DB)
	v.SetDefault("redis.pool_size", rd.PoolSize)
	v.SetDefault("redis.min_idle_conns", rd.MinIdleConns)
	v.SetDefault("redis.conn_max_lifetime", rd.ConnMaxLifetime)
	v.SetDefault("redis.conn_max_idle_time", rd.ConnMaxIdleTime)
	v.SetDefault("redis.pool_timeout", rd.PoolTimeout)
	v.SetDefault("redis.max_retries", rd.MaxRetries)
	v.SetDefault("redis.dial_timeout", rd.DialTimeout)
	v.SetDefault("redis.read_timeout", rd.ReadTimeout)
	v.SetDefault("redis.write_timeout", rd.WriteTimeout)

	kc := messaging.DefaultKafkaConfig()
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", kc.Brokers)
	v.SetDefault("kafka.topic_prefix", kc.TopicPrefix)
	v.SetDefault("kafka.write_timeout", kc.WriteTimeout)
	v.SetDefault("kafka.batch_timeout", kc.BatchTimeout)
	v.SetDefault("kafka.required_acks", kc.RequiredAcks)
	v.SetDefault("kafka.compression", kc.Compression)
	v.SetDefault("kafka.retry_max", kc.RetryMax)

	sc := scheduler.DefaultConfig()
	v.SetDefault("scheduler.page_size", sc.PageSize)
	v.SetDefault("scheduler.concurrency", sc.Concurrency)
	v.SetDefault("scheduler.user_timeout", sc.UserTimeout)
	v.SetDefault("scheduler.lease_ttl", sc.LeaseTTL)
	v.SetDefault("scheduler.auto_file_threshold", sc.AutoFileThreshold)
	v.SetDefault("scheduler.scan_schedule", sc.ScanSchedule)
	v.SetDefault("scheduler.auto_file_schedule", sc.AutoFileSchedule)

	v.SetDefault("detection.thresholds_file", "configs/detection.yaml")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "amlwatch")
}

// LoadConfig reads amlwatch.yaml from the usual locations, or from path when
// given, then applies AMLWATCH_* environment overrides
// (AMLWATCH_DATABASE_DSN overrides database.dsn).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("amlwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/amlwatch")
	}

	v.SetEnvPrefix("AMLWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}
