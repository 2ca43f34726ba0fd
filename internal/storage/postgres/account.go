package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/fishnet/internal/domain/auth"
)

const accountColumns = `id, name, email, password_hash, role, street_address, city, state,
	phone, cpf, cnpj, picture, created_at`

const (
	insertAccountSQL = `INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	getAccountByIDSQL = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	getAccountByEmailSQL = `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	listAccountsSQL = `SELECT ` + accountColumns + ` FROM accounts
		WHERE $1 = '' OR role = $1 ORDER BY created_at, id`

	updateAccountSQL = `UPDATE accounts SET name = $2, role = $3, street_address = $4, city = $5,
		state = $6, phone = $7, picture = $8 WHERE id = $1`

	updatePasswordSQL = `UPDATE accounts SET password_hash = $2 WHERE id = $1`

	deleteAccountSQL = `DELETE FROM accounts WHERE id = $1`
)

var _ auth.Repository = (*AccountRepository)(nil)

// AccountRepository implements auth.Repository backed by PostgreSQL.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns an AccountRepository that uses the given pool.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create inserts an account. A duplicate email yields auth.ErrEmailTaken.
func (r *AccountRepository) Create(ctx context.Context, a *auth.Account) error {
	_, err := r.pool.Exec(ctx, insertAccountSQL,
		a.ID, a.Name, a.Email, a.PasswordHash, string(a.Role), a.StreetAddress, a.City,
		a.State, a.Phone, a.CPF, a.CNPJ, a.Picture, a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

// GetByID returns an account by its identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*auth.Account, error) {
	return r.getOne(ctx, getAccountByIDSQL, id)
}

// GetByEmail returns an account by its normalized email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	return r.getOne(ctx, getAccountByEmailSQL, email)
}

func (r *AccountRepository) getOne(ctx context.Context, sql string, arg string) (*auth.Account, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting account: %w", err)
	}

	a, err := pgx.CollectExactlyOneRow(rows, scanAccount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrAccountNotFound
		}
		return nil, fmt.Errorf("getting account: %w", err)
	}
	return &a, nil
}

// List returns accounts, filtered by role when role is non-empty.
func (r *AccountRepository) List(ctx context.Context, role auth.Role) ([]auth.Account, error) {
	rows, err := r.pool.Query(ctx, listAccountsSQL, string(role))
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return pgx.CollectRows(rows, scanAccount)
}

// Update stores the mutable profile fields.
func (r *AccountRepository) Update(ctx context.Context, a *auth.Account) error {
	tag, err := r.pool.Exec(ctx, updateAccountSQL,
		a.ID, a.Name, string(a.Role), a.StreetAddress, a.City, a.State, a.Phone, a.Picture,
	)
	if err != nil {
		return fmt.Errorf("updating account %q: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrAccountNotFound
	}
	return nil
}

// UpdatePassword replaces the password hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id string, hash []byte) error {
	tag, err := r.pool.Exec(ctx, updatePasswordSQL, id, hash)
	if err != nil {
		return fmt.Errorf("updating password of %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrAccountNotFound
	}
	return nil
}

// Delete removes an account.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteAccountSQL, id)
	if err != nil {
		return fmt.Errorf("deleting account %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.CollectableRow) (auth.Account, error) {
	var (
		a    auth.Account
		role string
	)
	err := row.Scan(
		&a.ID, &a.Name, &a.Email, &a.PasswordHash, &role, &a.StreetAddress, &a.City,
		&a.State, &a.Phone, &a.CPF, &a.CNPJ, &a.Picture, &a.CreatedAt,
	)
	a.Role = auth.Role(role)
	return a, err
}
