package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/xreason-ai/identity-core/platform/go/identity"
)

// Persistence sentinel errors.
var (
	ErrNotFound = errors.New("user record not found")
	ErrConflict = errors.New("user record conflict")
)

// Repository defines the persistence operations required by the users service.
type Repository interface {
	Create(ctx context.Context, u identity.User) (identity.User, error)
	Get(ctx context.Context, id uuid.UUID) (identity.User, error)
	GetByEmail(ctx context.Context, email string) (identity.User, error)
	Update(ctx context.Context, u identity.User) (identity.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
