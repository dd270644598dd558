package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers for authorization codes and sessions.
const (
	StoreDriverMongo  = "mongo"
	StoreDriverRedis  = "redis"
	StoreDriverMemory = "memory"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling; each key is also read from
// the environment variable of the same name.
type ServerConfig struct {
	HTTPPort        string        `mapstructure:"HTTP_PORT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	StoreDriver   string `mapstructure:"STORE_DRIVER"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	OtelStdout      bool   `mapstructure:"OTEL_STDOUT"`

	// Token signing
	Issuer         string        `mapstructure:"JWT_ISSUER"`
	Audience       []string      `mapstructure:"JWT_AUDIENCE"`
	PrivateKeyPEM  string        `mapstructure:"JWT_PRIVATE_KEY"`
	PublicKeyPEM   string        `mapstructure:"JWT_PUBLIC_KEY"`
	KeysDir        string        `mapstructure:"JWT_KEYS_DIR"`
	KeyID          string        `mapstructure:"JWT_KEY_ID"`
	AccessTokenTTL time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`

	AuthCodeTTL         time.Duration `mapstructure:"AUTH_CODE_TTL"`
	RejectInactiveUsers bool          `mapstructure:"REJECT_INACTIVE_USERS"`

	SessionTTL           time.Duration `mapstructure:"SESSION_TTL"`
	RememberMeSessionTTL time.Duration `mapstructure:"REMEMBER_ME_SESSION_TTL"`
	SessionCookieName    string        `mapstructure:"SESSION_COOKIE_NAME"`
	SessionCookieSecure  bool          `mapstructure:"SESSION_COOKIE_SECURE"`
}

var defaults = map[string]interface{}{
	"HTTP_PORT":               "8080",
	"SHUTDOWN_TIMEOUT":        "10s",
	"REQUEST_TIMEOUT":         "15s",
	"MONGO_URI":               "mongodb://localhost:27017",
	"MONGO_DB_NAME":           "authserver",
	"STORE_DRIVER":            StoreDriverMongo,
	"REDIS_ADDR":              "localhost:6379",
	"REDIS_PASSWORD":          "",
	"REDIS_DB":                0,
	"LOG_LEVEL":               "info",
	"LOG_PRETTY":              false,
	"OTEL_SERVICE_NAME":       "authserver",
	"OTEL_STDOUT":             false,
	"JWT_ISSUER":              "http://localhost:8080",
	"JWT_AUDIENCE":            "api",
	"JWT_PRIVATE_KEY":         "",
	"JWT_PUBLIC_KEY":          "",
	"JWT_KEYS_DIR":            "keys",
	"JWT_KEY_ID":              "",
	"ACCESS_TOKEN_TTL":        "1h",
	"AUTH_CODE_TTL":           "5m",
	"REJECT_INACTIVE_USERS":   true,
	"SESSION_TTL":             "24h",
	"REMEMBER_ME_SESSION_TTL": "720h",
	"SESSION_COOKIE_NAME":     "session_id",
	"SESSION_COOKIE_SECURE":   true,
}

// LoadConfig reads configuration from file, environment variables, and defaults.
// An empty configFile searches the default locations for config.yaml.
func LoadConfig(configFile string) (*ServerConfig, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/authserver/")
		v.AddConfigPath("$HOME/.authserver")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Env vars are only picked up by Unmarshal for keys viper already knows.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing file means defaults and env vars only.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *ServerConfig) Validate() error {
	switch c.StoreDriver {
	case StoreDriverMongo, StoreDriverRedis, StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	if c.Issuer == "" {
		return errors.New("JWT_ISSUER must be set")
	}

	if c.AuthCodeTTL <= 0 || c.AccessTokenTTL <= 0 {
		return errors.New("AUTH_CODE_TTL and ACCESS_TOKEN_TTL must be positive")
	}

	if c.SessionTTL <= 0 || c.RememberMeSessionTTL <= 0 {
		return errors.New("SESSION_TTL and REMEMBER_ME_SESSION_TTL must be positive")
	}

	return nil
}
