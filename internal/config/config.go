package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Storage   StorageConfig
	MongoDB   MongoDBConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Keycloak  KeycloakConfig
	RateLimit RateLimitConfig
	MinIO     MinIOConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig selects the metadata backend. Driver is memory, mongo or postgres.
type StorageConfig struct {
	Driver           string
	OffloadThreshold int
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisConfig) Addr() string { return net.JoinHostPort(r.Host, r.Port) }

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	Issuer    string
}

type KeycloakConfig struct {
	URL      string
	Realm    string
	ClientID string
}

type RateLimitConfig struct {
	Enabled           bool
	UseRedis          bool
	GenericPerMinute  int
	UploadPerMinute   int
	DownloadPerMinute int
	MaxKeys           int
	IdleTTL           time.Duration
}

type MinIOConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	Bucket     string
	PresignTTL time.Duration
}

func (m MinIOConfig) Enabled() bool { return m.Endpoint != "" }

const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// LoadConfig loads configuration from environment variables and an optional
// .env file (ENV_FILE, default .env). Missing or inconsistent settings are
// reported as an error.
func LoadConfig() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("STORAGE_DRIVER", DriverMemory)
	v.SetDefault("STORAGE_OFFLOAD_THRESHOLD", 256*1024)
	v.SetDefault("MONGODB_DATABASE", "chunkvault")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("POSTGRES_MAX_OPEN_CONNS", 20)
	v.SetDefault("POSTGRES_MAX_IDLE_CONNS", 5)
	v.SetDefault("POSTGRES_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("POSTGRES_AUTO_MIGRATE", false)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_TOKEN_TTL", 60)
	v.SetDefault("JWT_ISSUER", "chunkvault")
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_USE_REDIS", false)
	v.SetDefault("RATE_LIMIT_GENERIC_PER_MINUTE", 60)
	v.SetDefault("RATE_LIMIT_UPLOAD_PER_MINUTE", 20)
	v.SetDefault("RATE_LIMIT_DOWNLOAD_PER_MINUTE", 40)
	v.SetDefault("RATE_LIMIT_MAX_KEYS", 10000)
	v.SetDefault("RATE_LIMIT_IDLE_TTL", "5m")
	v.SetDefault("MINIO_BUCKET", "chunkvault-chunks")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("MINIO_PRESIGN_TTL", "15m")

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Storage: StorageConfig{
			Driver:           strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_DRIVER"))),
			OffloadThreshold: v.GetInt("STORAGE_OFFLOAD_THRESHOLD"),
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Postgres: PostgresConfig{
			DSN:             v.GetString("POSTGRES_DSN"),
			MaxOpenConns:    v.GetInt("POSTGRES_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("POSTGRES_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("POSTGRES_CONN_MAX_LIFETIME"),
			AutoMigrate:     v.GetBool("POSTGRES_AUTO_MIGRATE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
			TokenTTL:  time.Duration(v.GetInt("JWT_TOKEN_TTL")) * time.Minute,
			Issuer:    v.GetString("JWT_ISSUER"),
		},
		Keycloak: KeycloakConfig{
			URL:      v.GetString("KEYCLOAK_URL"),
			Realm:    v.GetString("KEYCLOAK_REALM"),
			ClientID: v.GetString("KEYCLOAK_CLIENT_ID"),
		},
		RateLimit: RateLimitConfig{
			Enabled:           v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:          v.GetBool("RATE_LIMIT_USE_REDIS"),
			GenericPerMinute:  v.GetInt("RATE_LIMIT_GENERIC_PER_MINUTE"),
			UploadPerMinute:   v.GetInt("RATE_LIMIT_UPLOAD_PER_MINUTE"),
			DownloadPerMinute: v.GetInt("RATE_LIMIT_DOWNLOAD_PER_MINUTE"),
			MaxKeys:           v.GetInt("RATE_LIMIT_MAX_KEYS"),
			IdleTTL:           v.GetDuration("RATE_LIMIT_IDLE_TTL"),
		},
		MinIO: MinIOConfig{
			Endpoint:   v.GetString("MINIO_ENDPOINT"),
			AccessKey:  v.GetString("MINIO_ACCESS_KEY"),
			SecretKey:  v.GetString("MINIO_SECRET_KEY"),
			UseSSL:     v.GetBool("MINIO_USE_SSL"),
			Bucket:     v.GetString("MINIO_BUCKET"),
			PresignTTL: v.GetDuration("MINIO_PRESIGN_TTL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverMongo:
		if c.MongoDB.URI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required for the mongo storage driver"))
		}
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver))
	}
	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be set to at least 32 bytes"))
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.GenericPerMinute <= 0 || c.RateLimit.UploadPerMinute <= 0 || c.RateLimit.DownloadPerMinute <= 0 {
			errs = append(errs, errors.New("rate limit allowances must be positive"))
		}
		if c.RateLimit.UseRedis && c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when RATE_LIMIT_USE_REDIS is set"))
		}
	}
	if c.MinIO.Enabled() && (c.MinIO.AccessKey == "" || c.MinIO.SecretKey == "") {
		errs = append(errs, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required with MINIO_ENDPOINT"))
	}
	if c.Keycloak.URL != "" && c.Keycloak.Realm == "" {
		errs = append(errs, errors.New("KEYCLOAK_REALM is required with KEYCLOAK_URL"))
	}
	return errors.Join(errs...)
}
