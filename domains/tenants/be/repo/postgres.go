package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xreason-ai/identity-core/domains/tenants/be/service"
	"github.com/xreason-ai/identity-core/platform/go/identity"
)

// PostgresRepository implements the tenant repository on pgx. Memberships and
// active selections live in tenant_members and tenant_active_selections with
// ON DELETE CASCADE, so Delete cascades in the database.
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

const tenantColumns = `id, name, slug, domain, subscription_tier, status, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, t identity.Tenant) (identity.Tenant, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Name, t.Slug, t.Domain, string(t.SubscriptionTier), string(t.Status), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return identity.Tenant{}, mapConflict(err)
	}
	return t, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (identity.Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

func (r *PostgresRepository) FindBySlug(ctx context.Context, slug string) (identity.Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug)
	return scanTenant(row)
}

func (r *PostgresRepository) Update(ctx context.Context, t identity.Tenant) (identity.Tenant, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tenants
		SET name = $2, slug = $3, domain = $4, subscription_tier = $5, status = $6, updated_at = $7
		WHERE id = $1`,
		t.ID, t.Name, t.Slug, t.Domain, string(t.SubscriptionTier), string(t.Status), t.UpdatedAt)
	if err != nil {
		return identity.Tenant{}, mapConflict(err)
	}
	if tag.RowsAffected() == 0 {
		return identity.Tenant{}, service.ErrNotFound
	}
	return t, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return service.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) AddMember(ctx context.Context, m service.Membership) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tenant_members (tenant_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, user_id) DO NOTHING`,
		m.TenantID, m.UserID, string(m.Role), m.CreatedAt)
	return err
}

func (r *PostgresRepository) RemoveMember(ctx context.Context, tenantID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM tenant_members WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID)
	return err
}

func (r *PostgresRepository) IsMember(ctx context.Context, tenantID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tenant_members WHERE tenant_id = $1 AND user_id = $2
		)`, tenantID, userID).Scan(&exists)
	return exists, err
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]identity.Tenant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.name, t.slug, t.domain, t.subscription_tier, t.status, t.created_at, t.updated_at
		FROM tenants t
		JOIN tenant_members m ON m.tenant_id = t.id
		WHERE m.user_id = $1
		ORDER BY t.created_at, t.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []identity.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetActive(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT tenant_id FROM tenant_active_selections WHERE user_id = $1`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

func (r *PostgresRepository) SetActive(ctx context.Context, userID, tenantID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tenant_active_selections (user_id, tenant_id, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET tenant_id = EXCLUDED.tenant_id, updated_at = now()`,
		userID, tenantID)
	return err
}

func (r *PostgresRepository) ClearActive(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM tenant_active_selections WHERE user_id = $1`, userID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (identity.Tenant, error) {
	var t identity.Tenant
	var tier, status string
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Domain, &tier, &status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return identity.Tenant{}, service.ErrNotFound
	}
	if err != nil {
		return identity.Tenant{}, err
	}
	t.SubscriptionTier = identity.SubscriptionTier(tier)
	t.Status = identity.TenantStatus(status)
	return t, nil
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return service.ErrConflictSlug
	}
	return err
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
