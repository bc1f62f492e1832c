// Package config reads service settings from the environment, after loading
// an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tokenlease/pkg/tokens"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type Config struct {
	Port       string
	Env        string // "production" or "development"
	LogLevel   string
	Backend    string
	SoldPolicy tokens.SoldPolicy
	TLS        TLSSettings
	CORS       CORS
	Database   Database
	Auth       Auth
	SendGrid   SendGrid
}

type CORS struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

type Database struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
	ApplySchema     bool
	SchemaPath      string
}

type Auth struct {
	JWTSecret  string
	TokenTTL   time.Duration
	AdminEmail string
}

type SendGrid struct {
	APIKey      string
	SenderEmail string
	SenderName  string
}

// LoadDotEnv loads .env into the process environment. It reports whether a
// file was found.
func LoadDotEnv() bool {
	return godotenv.Load() == nil
}

func Load() (Config, error) {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	if env == "" {
		env = strings.ToLower(strings.TrimSpace(os.Getenv("ENV")))
	}
	if env == "" {
		env = "development"
	}

	policy, err := tokens.ParseSoldPolicy(strings.ToLower(os.Getenv("SOLD_POLICY")))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Env:        env,
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		Backend:    strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		SoldPolicy: policy,
		TLS:        loadTLSSettings(env),
		CORS: CORS{
			AllowedOrigins:   splitOrigins(os.Getenv("CORS_ALLOWED_ORIGINS")),
			AllowCredentials: strings.EqualFold(os.Getenv("CORS_ALLOW_CREDENTIALS"), "true"),
		},
		Database: Database{
			URL:             os.Getenv("DATABASE_URL"),
			MaxConns:        int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:        int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			ApplySchema:     !strings.EqualFold(os.Getenv("APPLY_SCHEMA_ON_START"), "false"),
			SchemaPath:      getEnv("SCHEMA_PATH", "pkg/db/schema.sql"),
		},
		Auth: Auth{
			JWTSecret:  os.Getenv("JWT_SECRET"),
			TokenTTL:   getEnvAsDuration("JWT_TTL", 24*time.Hour),
			AdminEmail: strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))),
		},
		SendGrid: SendGrid{
			APIKey:      os.Getenv("SENDGRID_API_KEY"),
			SenderEmail: os.Getenv("SENDGRID_SENDER_EMAIL"),
			SenderName:  os.Getenv("SENDGRID_SENDER_NAME"),
		},
	}

	cfg.Port = os.Getenv("SERVER_PORT")
	if cfg.Port == "" {
		if cfg.TLS.EnableTLS {
			cfg.Port = "8443"
		} else {
			cfg.Port = "8080"
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Backend)
	}

	if c.Auth.JWTSecret == "" {
		if c.Env == "production" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
	}
	return c.TLS.Validate()
}

func splitOrigins(raw string) []string {
	origins := make([]string, 0)
	for _, p := range strings.Split(raw, ",") {
		if o := strings.TrimSpace(p); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	duration, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return duration
}
