package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/wes-io-live/collab-service/pkg/config"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/jwt"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Registry RegistryConfig
	JWT      JWTConfig
	Password PasswordConfig
	Room     RoomConfig
	Relay    RelayConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

// RedisConfig is optional: an empty Address disables the room cache, the
// relay session registry and relay events.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	PoolSize int `mapstructure:"pool_size"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

type CacheConfig struct {
	Prefix string
	TTL    time.Duration
}

type RegistryConfig struct {
	Prefix            string
	KeyTTL            time.Duration `mapstructure:"key_ttl"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type JWTConfig struct {
	Secret          string
	Algorithm       string
	ExpirationHours int `mapstructure:"expiration_hours"`
	Issuer          string
}

// Duration returns the token lifetime.
func (j JWTConfig) Duration() time.Duration {
	return time.Duration(j.ExpirationHours) * time.Hour
}

type PasswordConfig struct {
	Cost int
}

type RoomConfig struct {
	MaxSlugAttempts int `mapstructure:"max_slug_attempts"`
}

type RelayConfig struct {
	UpstreamURL    string        `mapstructure:"upstream_url"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	ForwardToken   bool          `mapstructure:"forward_token"`
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	setDefaults(v)

	if err := pkgconfig.BindEnvs(v, map[string]string{
		"server.port":                 "PORT",
		"server.cors_allowed_origins": "CORS_ALLOWED_ORIGINS",
		"database.driver":             "DB_DRIVER",
		"database.host":               "DB_HOST",
		"database.port":               "DB_PORT",
		"database.user":               "DB_USER",
		"database.password":           "DB_PASSWORD",
		"database.dbname":             "DB_NAME",
		"database.sslmode":            "DB_SSLMODE",
		"database.file_path":          "DB_FILE_PATH",
		"database.max_idle_conns":     "DB_MAX_IDLE_CONNS",
		"database.max_open_conns":     "DB_MAX_OPEN_CONNS",
		"database.conn_max_lifetime":  "DB_CONN_MAX_LIFETIME",
		"redis.address":               "REDIS_ADDRESS",
		"redis.password":              "REDIS_PASSWORD",
		"redis.db":                    "REDIS_DB",
		"cache.ttl":                   "CACHE_TTL",
		"jwt.secret":                  "JWT_SECRET",
		"jwt.algorithm":               "JWT_ALGORITHM",
		"jwt.expiration_hours":        "JWT_EXPIRATION_HOURS",
		"jwt.issuer":                  "JWT_ISSUER",
		"password.cost":               "BCRYPT_COST",
		"room.max_slug_attempts":      "ROOM_MAX_SLUG_ATTEMPTS",
		"relay.upstream_url":          "UPSTREAM_URL",
		"relay.dial_timeout":          "RELAY_DIAL_TIMEOUT",
		"relay.write_wait":            "RELAY_WRITE_WAIT",
		"relay.max_message_size":      "RELAY_MAX_MESSAGE_SIZE",
		"relay.forward_token":         "RELAY_FORWARD_TOKEN",
		"log.level":                   "LOG_LEVEL",
	}); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Comma-separated env values arrive as a single string.
	cfg.Server.CORSAllowedOrigins = splitList(v.GetStringSlice("server.cors_allowed_origins"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "collab")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/collab.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("cache.prefix", "collab:room")
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("registry.prefix", "collab:relay")
	v.SetDefault("registry.key_ttl", "60s")
	v.SetDefault("registry.heartbeat_interval", "20s")
	v.SetDefault("jwt.algorithm", jwt.DefaultAlgorithm)
	v.SetDefault("jwt.expiration_hours", 168)
	v.SetDefault("jwt.issuer", "collab-service")
	v.SetDefault("password.cost", 10)
	v.SetDefault("room.max_slug_attempts", 3)
	v.SetDefault("relay.upstream_url", "ws://localhost:1234")
	v.SetDefault("relay.dial_timeout", "10s")
	v.SetDefault("relay.write_wait", "10s")
	v.SetDefault("relay.max_message_size", 16<<20)
	v.SetDefault("relay.forward_token", true)
	v.SetDefault("log.level", "info")
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret (JWT_SECRET) is required"))
	}
	if err := jwt.CheckAlgorithm(c.JWT.Algorithm); err != nil {
		errs = append(errs, fmt.Errorf("jwt.algorithm must be an HMAC algorithm: %w", err))
	}
	if c.JWT.ExpirationHours <= 0 {
		errs = append(errs, fmt.Errorf("jwt.expiration_hours must be positive, got %d", c.JWT.ExpirationHours))
	}
	if c.Room.MaxSlugAttempts < 1 {
		errs = append(errs, fmt.Errorf("room.max_slug_attempts must be at least 1, got %d", c.Room.MaxSlugAttempts))
	}

	u, err := url.Parse(c.Relay.UpstreamURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("relay.upstream_url is invalid: %w", err))
	case u.Scheme != "ws" && u.Scheme != "wss":
		errs = append(errs, fmt.Errorf("relay.upstream_url must use ws or wss, got %q", u.Scheme))
	}

	return errors.Join(errs...)
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
