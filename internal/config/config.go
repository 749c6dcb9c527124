package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Database DatabaseConfig `yaml:"database" envconfig:"DATABASE"`
	Crypto   CryptoConfig   `yaml:"crypto" envconfig:"CRYPTO"`
	OTP      OTPConfig      `yaml:"otp" envconfig:"OTP"`
	Mail     MailConfig     `yaml:"mail" envconfig:"MAIL"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig contains the persistence configuration.
// Driver "memory" keeps everything in process and is intended for
// development and tests; "postgres" is the production store.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" envconfig:"DRIVER" default:"postgres"`
	DSN             string        `yaml:"dsn" envconfig:"DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME" default:"5m"`
}

// CryptoConfig contains the license payload codec configuration.
// MasterKey has no default on purpose: a missing master key is a fatal
// configuration error, not a request-time error.
type CryptoConfig struct {
	MasterKey string `yaml:"master_key" envconfig:"MASTER_KEY"`
}

// OTPConfig contains the one-time-passcode parameters
type OTPConfig struct {
	CodeLength  int           `yaml:"code_length" envconfig:"CODE_LENGTH" default:"6"`
	TTL         time.Duration `yaml:"ttl" envconfig:"TTL" default:"5m"`
	MaxAttempts int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS" default:"5"`
	QueueSize   int           `yaml:"queue_size" envconfig:"QUEUE_SIZE" default:"256"`
}

// MailConfig contains SMTP transport configuration
type MailConfig struct {
	SMTPHost     string        `yaml:"smtp_host" envconfig:"SMTP_HOST" default:"smtp.zoho.com"`
	SMTPPort     int           `yaml:"smtp_port" envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string        `yaml:"smtp_username" envconfig:"SMTP_USERNAME"`
	SMTPPassword string        `yaml:"smtp_password" envconfig:"SMTP_PASSWORD"`
	FromEmail    string        `yaml:"from_email" envconfig:"FROM_EMAIL"`
	FromName     string        `yaml:"from_name" envconfig:"FROM_NAME" default:"License System"`
	SendTimeout  time.Duration `yaml:"send_timeout" envconfig:"SEND_TIMEOUT" default:"60s"`
}

// IsConfigured reports whether the SMTP transport can be used
func (m MailConfig) IsConfigured() bool {
	return m.SMTPHost != "" && m.SMTPUsername != "" && m.SMTPPassword != "" && m.FromEmail != ""
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000,http://127.0.0.1:5173"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"stdout"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// Load loads configuration from environment variables and an optional
// YAML config file. Environment variables take precedence over the file.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("BIOLIC", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile := getConfigFilePath(); configFile != "" {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileCfg, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence)
func mergeConfigs(fileConfig, envConfig Config) Config {
	if envConfig.Server.Port == 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if envConfig.Database.DSN == "" {
		envConfig.Database.DSN = fileConfig.Database.DSN
	}
	if envConfig.Crypto.MasterKey == "" {
		envConfig.Crypto.MasterKey = fileConfig.Crypto.MasterKey
	}
	if envConfig.Mail.SMTPUsername == "" {
		envConfig.Mail.SMTPUsername = fileConfig.Mail.SMTPUsername
	}
	if envConfig.Mail.SMTPPassword == "" {
		envConfig.Mail.SMTPPassword = fileConfig.Mail.SMTPPassword
	}
	if envConfig.Mail.FromEmail == "" {
		envConfig.Mail.FromEmail = fileConfig.Mail.FromEmail
	}

	return envConfig
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}

	if c.OTP.CodeLength < 4 || c.OTP.CodeLength > 10 {
		return fmt.Errorf("otp code length must be between 4 and 10, got %d", c.OTP.CodeLength)
	}

	if c.OTP.TTL <= 0 {
		return fmt.Errorf("otp ttl must be positive")
	}

	if c.OTP.MaxAttempts <= 0 {
		return fmt.Errorf("otp max attempts must be positive")
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		c.Logging.Format = "json"
	}

	return nil
}

// getConfigFilePath returns the path to the config file, if one exists
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns a default configuration suitable for tests
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "memory",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		OTP: OTPConfig{
			CodeLength:  6,
			TTL:         5 * time.Minute,
			MaxAttempts: 5,
			QueueSize:   256,
		},
		Mail: MailConfig{
			SMTPHost:    "smtp.zoho.com",
			SMTPPort:    587,
			FromName:    "License System",
			SendTimeout: 60 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}
