package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. FOODBANK_SERVER_PORT
const EnvPrefix = "FOODBANK"

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AWS      AWSConfig      `yaml:"aws"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Admin    AdminConfig    `yaml:"admin"`
	Cache    CacheConfig    `yaml:"cache"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// AWSConfig holds the S3 bucket used for staff signatures
type AWSConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket" envconfig:"S3_BUCKET"`
	AccessKey string `yaml:"access_key" envconfig:"ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" envconfig:"SECRET_KEY"`
	// Endpoint is set for S3 compatible providers
	Endpoint string `yaml:"endpoint"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
	// Format is "console" or "json"
	Format string `yaml:"format"`
}

// RedisConfig holds Redis configuration. An empty address disables the
// renewal and signature caches.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RabbitMQConfig holds the domain event broker. An empty URL disables events.
type RabbitMQConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

// AdminConfig is the staff account created on first start
type AdminConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// CacheConfig holds cache lifetimes
type CacheConfig struct {
	RenewalTTL   time.Duration `yaml:"renewal_ttl" envconfig:"RENEWAL_TTL"`
	SignatureTTL time.Duration `yaml:"signature_ttl" envconfig:"SIGNATURE_TTL"`
}

// Default returns the configuration used for anything not set elsewhere
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "foodbank",
			SSLMode: "disable",
		},
		AWS:      AWSConfig{Region: "us-east-1"},
		JWT:      JWTConfig{TTL: 12 * time.Hour},
		Log:      LogConfig{Level: "info", Format: "console"},
		Redis:    RedisConfig{Prefix: "foodbank"},
		RabbitMQ: RabbitMQConfig{Queue: "foodbank.events"},
		Cache:    CacheConfig{RenewalTTL: 30 * time.Minute, SignatureTTL: 24 * time.Hour},
	}
}

// Load reads configuration from a YAML file, then applies a .env file and
// FOODBANK_ environment overrides. Both files are optional.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings the server cannot start without
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt secret is required")
	}
	if c.AWS.S3Bucket == "" {
		return errors.New("aws s3_bucket is required")
	}
	if (c.Admin.Email == "") != (c.Admin.Password == "") {
		return errors.New("admin email and password must be set together")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
