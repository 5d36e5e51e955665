package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/clinic-queue/pkg/validator"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	JWT            JWTConfig            `mapstructure:"jwt"`
	Clinic         ClinicConfig         `mapstructure:"clinic"`
	Notification   NotificationConfig   `mapstructure:"notification"`
	Outbox         OutboxConfig         `mapstructure:"outbox"`
	Cleanup        CleanupConfig        `mapstructure:"cleanup"`
	RollingAverage RollingAverageConfig `mapstructure:"rolling_average" split_words:"true"`
	Log            LogConfig            `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" split_words:"true"`
	Mode            string        `mapstructure:"mode"`
	// JoinRate is joins per second across all callers. Zero disables the limit.
	JoinRate    float64 `mapstructure:"join_rate" split_words:"true"`
	JoinBurst   int     `mapstructure:"join_burst" split_words:"true"`
	MaxBodySize int64   `mapstructure:"max_body_size" split_words:"true"`
	// WorkerPort serves health and metrics for the worker binary.
	WorkerPort int `mapstructure:"worker_port" split_words:"true"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns" split_words:"true"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" split_words:"true"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Channel      string        `mapstructure:"channel"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type ClinicConfig struct {
	Code           string `mapstructure:"code"`
	Timezone       string `mapstructure:"timezone"`
	MaxQueueLength int    `mapstructure:"max_queue_length" split_words:"true"`
	EnforceHours   bool   `mapstructure:"enforce_hours" split_words:"true"`
}

// Location resolves the clinic timezone, falling back to UTC.
func (c ClinicConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type NotificationConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Threshold     int           `mapstructure:"threshold"`
	QueueSize     int           `mapstructure:"queue_size" split_words:"true"`
	DedupTTL      time.Duration `mapstructure:"dedup_ttl" envconfig:"DEDUP_TTL"`
	RatePerSecond float64       `mapstructure:"rate_per_second" split_words:"true"`
	Burst         int           `mapstructure:"burst"`
	SendTimeout   time.Duration `mapstructure:"send_timeout" split_words:"true"`
	SMTP          SMTPConfig    `mapstructure:"smtp"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size" split_words:"true"`
	PollInterval  time.Duration `mapstructure:"poll_interval" split_words:"true"`
	RetryAttempts int           `mapstructure:"retry_attempts" split_words:"true"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" split_words:"true"`
}

type CleanupConfig struct {
	Interval             time.Duration `mapstructure:"interval"`
	RetentionHours       int           `mapstructure:"retention_hours" split_words:"true"`
	OutboxRetentionHours int           `mapstructure:"outbox_retention_hours" split_words:"true"`
}

type RollingAverageConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Window   int           `mapstructure:"window"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.join_rate", 5.0)
	v.SetDefault("server.join_burst", 10)
	v.SetDefault("server.max_body_size", 16<<10)
	v.SetDefault("server.worker_port", 8081)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "clinic_queue")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.channel", "queue-events")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("jwt.issuer", "clinic-queue")

	v.SetDefault("clinic.code", "CLINIC")
	v.SetDefault("clinic.timezone", "UTC")
	v.SetDefault("clinic.max_queue_length", 50)
	v.SetDefault("clinic.enforce_hours", false)

	v.SetDefault("notification.enabled", true)
	v.SetDefault("notification.threshold", 3)
	v.SetDefault("notification.queue_size", 256)
	v.SetDefault("notification.dedup_ttl", 30*time.Minute)
	v.SetDefault("notification.rate_per_second", 5.0)
	v.SetDefault("notification.burst", 10)
	v.SetDefault("notification.send_timeout", 10*time.Second)
	v.SetDefault("notification.smtp.port", 587)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", 200*time.Millisecond)

	v.SetDefault("cleanup.interval", time.Hour)
	v.SetDefault("cleanup.retention_hours", 24)
	v.SetDefault("cleanup.outbox_retention_hours", 24)

	v.SetDefault("rolling_average.enabled", false)
	v.SetDefault("rolling_average.interval", 15*time.Minute)
	v.SetDefault("rolling_average.window", 20)

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yml (optional) and then applies QUEUE_* overrides.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("QUEUE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Clinic.Code == "":
		return fmt.Errorf("clinic.code must not be empty")
	case !validator.IsTicketCode(c.Clinic.Code):
		return fmt.Errorf("clinic.code %q must be upper-case letters only", c.Clinic.Code)
	case c.Clinic.MaxQueueLength <= 0:
		return fmt.Errorf("clinic.max_queue_length must be positive")
	case c.Outbox.BatchSize <= 0:
		return fmt.Errorf("outbox.batch_size must be positive")
	case c.Outbox.PollInterval <= 0:
		return fmt.Errorf("outbox.poll_interval must be positive")
	case c.Cleanup.RetentionHours <= 0:
		return fmt.Errorf("cleanup.retention_hours must be positive")
	}
	if _, err := time.LoadLocation(c.Clinic.Timezone); err != nil {
		return fmt.Errorf("clinic.timezone: %w", err)
	}
	return nil
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}
