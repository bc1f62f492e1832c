package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tokenlease/pkg/tokens"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("ENV", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("ENABLE_TLS", "")
	t.Setenv("SOLD_POLICY", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("JWT_TTL", "")

	cfg, err := Load()

	require.NoError(t, err)
	require.Equal(t, "development", cfg.Env)
	require.Equal(t, BackendMemory, cfg.Backend)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, tokens.SoldPolicyStrict, cfg.SoldPolicy)
	require.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	require.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/tokens")
	t.Setenv("DB_MAX_CONNS", "20")
	t.Setenv("DB_MAX_CONN_IDLE_TIME", "1m")
	t.Setenv("SOLD_POLICY", "lenient")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("ADMIN_EMAIL", " Admin@Example.com ")
	t.Setenv("ENABLE_TLS", "true")
	t.Setenv("SERVER_PORT", "")

	cfg, err := Load()

	require.NoError(t, err)
	require.Equal(t, BackendPostgres, cfg.Backend)
	require.Equal(t, int32(20), cfg.Database.MaxConns)
	require.Equal(t, time.Minute, cfg.Database.MaxConnIdleTime)
	require.Equal(t, tokens.SoldPolicyLenient, cfg.SoldPolicy)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	require.Equal(t, "admin@example.com", cfg.Auth.AdminEmail)
	require.Equal(t, "8443", cfg.Port)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("SOLD_POLICY", "sometimes")

	_, err = Load()
	require.Error(t, err)
}

func TestTLSSettings_Validate(t *testing.T) {
	require.NoError(t, TLSSettings{Env: "development"}.Validate())
	require.Error(t, TLSSettings{Env: "production", EnableTLS: false}.Validate())
	require.Error(t, TLSSettings{Env: "production", EnableTLS: true}.Validate())
	require.NoError(t, TLSSettings{Env: "production", EnableTLS: true, CertPath: "c", KeyPath: "k"}.Validate())
}

func TestTLSSettings_Build_SelfSigned(t *testing.T) {
	cfg, err := TLSSettings{Env: "development", EnableTLS: true, AllowSelfSigned: true}.Build()

	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)

	_, err = TLSSettings{Env: "development", EnableTLS: true}.Build()
	require.Error(t, err)
}
