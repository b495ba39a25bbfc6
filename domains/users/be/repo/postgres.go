package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xreason-ai/identity-core/platform/go/identity"
	"github.com/xreason-ai/identity-core/platform/go/rbac"
)

// PostgresRepository implements Repository on pgx. The denormalized
// permissions column is not stored; readers recompute it from the role.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a repository backed by a pgx pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("pgx pool is required")
	}
	return &PostgresRepository{pool: pool}
}

const userColumns = `id, email, name, avatar, role, is_active, is_verified, last_login, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, u identity.User) (identity.User, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Email, u.Name, u.Avatar, string(u.Role), u.IsActive, u.IsVerified, u.LastLogin, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return identity.User{}, mapPgError(err)
	}
	return u, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (identity.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (identity.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = lower($1)`, email)
	return scanUser(row)
}

func (r *PostgresRepository) Update(ctx context.Context, u identity.User) (identity.User, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET email = lower($2), name = $3, avatar = $4, role = $5,
		    is_active = $6, is_verified = $7, last_login = $8, updated_at = $9
		WHERE id = $1`,
		u.ID, u.Email, u.Name, u.Avatar, string(u.Role), u.IsActive, u.IsVerified, u.LastLogin, u.UpdatedAt)
	if err != nil {
		return identity.User{}, mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return identity.User{}, ErrNotFound
	}
	return u, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (identity.User, error) {
	var u identity.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Avatar, &role, &u.IsActive, &u.IsVerified, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return identity.User{}, ErrNotFound
	}
	if err != nil {
		return identity.User{}, err
	}
	u.Role = rbac.Role(role)
	return u, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	return err
}

// Ensure interface compliance.
var _ Repository = (*PostgresRepository)(nil)
