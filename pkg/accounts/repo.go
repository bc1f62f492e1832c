package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tokenlease/pkg/tokens"
)

const uniqueViolation = "23505"

type AccountRepository interface {
	CreateAccount(ctx context.Context, a Account, passwordHash string) (Account, error)
	GetAccountByAddress(ctx context.Context, addr tokens.Address) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	// GetAccountAuthByEmail returns the account and its password hash.
	GetAccountAuthByEmail(ctx context.Context, email string) (Account, string, error)
}

// Directory resolves notification addresses straight from the repository.
type Directory struct {
	repo AccountRepository
}

func NewDirectory(repo AccountRepository) Directory {
	return Directory{repo: repo}
}

func (d Directory) EmailFor(ctx context.Context, addr tokens.Address) (string, error) {
	a, err := d.repo.GetAccountByAddress(ctx, addr)
	if err != nil {
		return "", err
	}
	return a.Email, nil
}

type postgresAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &postgresAccountRepository{pool: pool}
}

func (r *postgresAccountRepository) CreateAccount(ctx context.Context, a Account, passwordHash string) (Account, error) {
	query := `INSERT INTO accounts (address, name, email, password_hash, is_admin, created_at)
              VALUES ($1, $2, $3, $4, $5, NOW())
              RETURNING id, address, name, email, is_admin, created_at`
	row := r.pool.QueryRow(ctx, query, string(a.Address), a.Name, a.Email, passwordHash, a.IsAdmin)

	out, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Account{}, ErrEmailTaken
		}
		return Account{}, err
	}
	return out, nil
}

func (r *postgresAccountRepository) GetAccountByAddress(ctx context.Context, addr tokens.Address) (Account, error) {
	query := `SELECT id, address, name, email, is_admin, created_at
              FROM accounts
              WHERE address = $1`
	return r.get(ctx, query, string(addr))
}

func (r *postgresAccountRepository) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	query := `SELECT id, address, name, email, is_admin, created_at
              FROM accounts
              WHERE email = $1`
	return r.get(ctx, query, email)
}

func (r *postgresAccountRepository) GetAccountAuthByEmail(ctx context.Context, email string) (Account, string, error) {
	query := `SELECT id, address, name, email, is_admin, created_at, password_hash
              FROM accounts
              WHERE email = $1`

	var (
		a    Account
		addr string
		hash string
	)
	err := r.pool.QueryRow(ctx, query, email).Scan(&a.ID, &addr, &a.Name, &a.Email, &a.IsAdmin, &a.CreatedAt, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, "", ErrAccountNotFound
		}
		return Account{}, "", err
	}
	a.Address = tokens.Address(addr)
	return a, hash, nil
}

func (r *postgresAccountRepository) get(ctx context.Context, query string, arg any) (Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a    Account
		addr string
	)
	if err := row.Scan(&a.ID, &addr, &a.Name, &a.Email, &a.IsAdmin, &a.CreatedAt); err != nil {
		return Account{}, err
	}
	a.Address = tokens.Address(addr)
	return a, nil
}
