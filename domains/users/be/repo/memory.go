package repo

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/xreason-ai/identity-core/platform/go/identity"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and early development.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]identity.User
	byEmail map[string]uuid.UUID
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[uuid.UUID]identity.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, u identity.User) (identity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(u.Email)
	if _, exists := r.byEmail[key]; exists {
		return identity.User{}, ErrConflict
	}

	r.byID[u.ID] = u
	r.byEmail[key] = u.ID
	return u, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (identity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return identity.User{}, ErrNotFound
	}
	return u, nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (identity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return identity.User{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryRepository) Update(ctx context.Context, u identity.User) (identity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[u.ID]
	if !ok {
		return identity.User{}, ErrNotFound
	}

	newKey := strings.ToLower(u.Email)
	oldKey := strings.ToLower(current.Email)
	if newKey != oldKey {
		if _, exists := r.byEmail[newKey]; exists {
			return identity.User{}, ErrConflict
		}
		delete(r.byEmail, oldKey)
		r.byEmail[newKey] = u.ID
	}

	r.byID[u.ID] = u
	return u, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	delete(r.byEmail, strings.ToLower(u.Email))
	return nil
}

// Ensure interface compliance.
var _ Repository = (*MemoryRepository)(nil)
