// Package config provides configuration loading for the DNS broker.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Auth     AuthConfig     `mapstructure:"auth"`
	AWS      AWSConfig      `mapstructure:"aws"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"` // dev, staging, prod
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BrokerConfig holds process-wide domain configuration read by the request
// handler and pipeline steps: default CDN origin, DNS zone, and the ARNs of
// shared cloud resources. Per the design notes these are passed explicitly
// into handlers and steps rather than read from globals.
type BrokerConfig struct {
	DefaultCloudFrontOrigin string        `mapstructure:"default_cloudfront_origin"`
	HostedZoneID            string        `mapstructure:"hosted_zone_id"`
	WAFRateLimitRuleARN     string        `mapstructure:"waf_rate_limit_rule_arn"`
	CloudWatchLogGroupARN   string        `mapstructure:"cloudwatch_log_group_arn"`
	ACMEDirectoryURL        string        `mapstructure:"acme_directory_url"`
	ACMEContactEmail        string        `mapstructure:"acme_contact_email"`
	DNSChallengeOwnerTarget string        `mapstructure:"dns_challenge_owner_target"`
	DNSResolverAddr         string        `mapstructure:"dns_resolver_addr"`
	AlbListenerARN          string        `mapstructure:"alb_listener_arn"`
	AlbARN                  string        `mapstructure:"alb_arn"`
	AlbDomainInternal       string        `mapstructure:"alb_domain_internal"`
	ReconcilerInterval      time.Duration `mapstructure:"reconciler_interval"`
	StepMaxAttempts         int           `mapstructure:"step_max_attempts"`
	StepBaseBackoff         time.Duration `mapstructure:"step_base_backoff"`
	StepMaxBackoff          time.Duration `mapstructure:"step_max_backoff"`
	WAFDeleteMaxAttempts    int           `mapstructure:"waf_delete_max_attempts"`
}

// AuthConfig holds the Basic Auth credentials the broker proxy authenticates with.
type AuthConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// AWSConfig holds the region used to construct every AWS SDK v2 service client.
type AWSConfig struct {
	Region string `mapstructure:"region"`
}

// Load reads configuration from files and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/dns-broker")

	// Enable environment variable override
	v.SetEnvPrefix("BROKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.environment", "dev")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "broker")
	v.SetDefault("database.password", "broker")
	v.SetDefault("database.database", "dns_broker")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Broker domain defaults
	v.SetDefault("broker.default_cloudfront_origin", "origin.internal.example.com")
	v.SetDefault("broker.acme_directory_url", "https://acme-v02.api.letsencrypt.org/directory")
	v.SetDefault("broker.reconciler_interval", "1h")
	v.SetDefault("broker.step_max_attempts", 5)
	v.SetDefault("broker.step_base_backoff", "2s")
	v.SetDefault("broker.step_max_backoff", "2m")
	v.SetDefault("broker.waf_delete_max_attempts", 10)
	v.SetDefault("broker.dns_resolver_addr", "1.1.1.1:53")

	// AWS defaults
	v.SetDefault("aws.region", "us-east-1")
}
