package testhelpers

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	"tokenlease/pkg/db"
	"tokenlease/pkg/tokens"
)

var uniqueCounter int64

func nextSuffix() int64 {
	return atomic.AddInt64(&uniqueCounter, 1)
}

// NewTestPool connects to DATABASE_URL_FOR_TEST and applies the schema.
// Skips if the variable is not set to keep CI deterministic.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if err := godotenv.Load(); err != nil {
		t.Log("No .env file found, using environment variables")
	}
	dsn := os.Getenv("DATABASE_URL_FOR_TEST")
	if dsn == "" {
		t.Skip("DATABASE_URL_FOR_TEST not set; skipping integration tests")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.MaxConns = 4

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	schemaPath := os.Getenv("SCHEMA_PATH_FOR_TEST")
	if schemaPath == "" {
		schemaPath = SchemaPath()
	}
	require.NoError(t, db.ApplySchema(ctx, pool, schemaPath))
	return pool
}

// CreateTestAccount inserts an account row with a funded ledger balance and
// returns its address.
func CreateTestAccount(t *testing.T, pool *pgxpool.Pool, balance int64) tokens.Address {
	t.Helper()

	ctx := context.Background()
	suffix := nextSuffix()
	addr := uuid.NewString()
	name := fmt.Sprintf("test-account-%d", suffix)
	email := fmt.Sprintf("%s-%s@example.com", name, addr[:8])

	_, err := pool.Exec(ctx, "INSERT INTO accounts (address, name, email, password_hash) VALUES ($1, $2, $3, $4)", addr, name, email, "hash")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, "INSERT INTO balances (address, amount, accepts_payments) VALUES ($1, $2, true)", addr, balance)
	require.NoError(t, err)
	return tokens.Address(addr)
}

// MintTestToken inserts an idle token owned by owner and returns its id.
func MintTestToken(t *testing.T, pool *pgxpool.Pool, owner tokens.Address, price int64) int64 {
	t.Helper()

	ctx := context.Background()
	var id int64
	err := pool.QueryRow(ctx, "INSERT INTO registry (holder) VALUES ($1) RETURNING id", string(owner)).Scan(&id)
	require.NoError(t, err)

	metadata := fmt.Sprintf("ipfs://test-token-%d", nextSuffix())
	_, err = pool.Exec(ctx, "INSERT INTO tokens (id, owner, price, metadata, state, sold) VALUES ($1, $2, $3, $4, 'idle', true)", id, string(owner), price, metadata)
	require.NoError(t, err)
	return id
}
