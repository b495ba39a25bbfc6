package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xreason-ai/identity-core/domains/users/be/repo"
	"github.com/xreason-ai/identity-core/platform/go/identity"
	"github.com/xreason-ai/identity-core/platform/go/rbac"
)

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// ValidationError is returned when the input payload is invalid.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

// Domain sentinel errors.
var (
	ErrNotFound = errors.New("user not found")
	ErrConflict = errors.New("user conflict")
)

// CreateInput represents the payload required to register a new user.
type CreateInput struct {
	Email  string
	Name   string
	Avatar *string
	Role   rbac.Role
}

// UpdateInput encapsulates fields that administrators can modify.
type UpdateInput struct {
	Name       *string
	Avatar     *string
	IsActive   *bool
	IsVerified *bool
}

// Service defines the business operations for the users domain. The
// permissions carried on returned users are always recomputed from the role,
// never read back from storage.
type Service interface {
	Create(ctx context.Context, input CreateInput) (identity.User, error)
	Get(ctx context.Context, id uuid.UUID) (identity.User, error)
	GetByEmail(ctx context.Context, email string) (identity.User, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (identity.User, error)
	SetRole(ctx context.Context, id uuid.UUID, role rbac.Role) (identity.User, error)
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo     repo.Repository
	resolver *rbac.Resolver
}

// New constructs a users Service instance backed by the provided repository.
func New(r repo.Repository, resolver *rbac.Resolver) Service {
	if r == nil {
		panic("users repository is required")
	}
	if resolver == nil {
		resolver = rbac.NewDefaultResolver()
	}
	return &service{repo: r, resolver: resolver}
}

func (s *service) Create(ctx context.Context, input CreateInput) (identity.User, error) {
	fieldErrors := FieldErrors{}

	email := strings.TrimSpace(input.Email)
	if email == "" {
		fieldErrors.add("email", "email is required")
	} else if !strings.Contains(email, "@") {
		fieldErrors.add("email", "email must contain '@'")
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		fieldErrors.add("name", "name is required")
	}

	role := input.Role
	if role == "" {
		role = rbac.RoleViewer
	}

	if len(fieldErrors) > 0 {
		return identity.User{}, &ValidationError{Fields: fieldErrors}
	}

	perms, err := s.resolver.Resolve(role)
	if err != nil {
		return identity.User{}, err
	}

	now := time.Now().UTC()
	record, err := s.repo.Create(ctx, identity.User{
		ID:          uuid.New(),
		Email:       strings.ToLower(email),
		Name:        name,
		Avatar:      input.Avatar,
		Role:        role,
		Permissions: perms,
		IsActive:    true,
		IsVerified:  false,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return identity.User{}, mapRepoError(err)
	}

	return s.withPermissions(record)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (identity.User, error) {
	if id == uuid.Nil {
		return identity.User{}, ErrNotFound
	}

	record, err := s.repo.Get(ctx, id)
	if err != nil {
		return identity.User{}, mapRepoError(err)
	}
	return s.withPermissions(record)
}

func (s *service) GetByEmail(ctx context.Context, email string) (identity.User, error) {
	record, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return identity.User{}, mapRepoError(err)
	}
	return s.withPermissions(record)
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (identity.User, error) {
	if id == uuid.Nil {
		return identity.User{}, ErrNotFound
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return identity.User{}, mapRepoError(err)
	}

	next := current
	fieldsSet := 0
	fieldErrors := FieldErrors{}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			fieldErrors.add("name", "name cannot be empty")
		} else {
			next.Name = name
			fieldsSet++
		}
	}
	if input.Avatar != nil {
		next.Avatar = input.Avatar
		fieldsSet++
	}
	if input.IsActive != nil {
		next.IsActive = *input.IsActive
		fieldsSet++
	}
	if input.IsVerified != nil {
		next.IsVerified = *input.IsVerified
		fieldsSet++
	}

	if fieldsSet == 0 {
		fieldErrors.add("payload", "at least one field must be provided")
	}
	if len(fieldErrors) > 0 {
		return identity.User{}, &ValidationError{Fields: fieldErrors}
	}

	next.UpdatedAt = time.Now().UTC()
	record, err := s.repo.Update(ctx, next)
	if err != nil {
		return identity.User{}, mapRepoError(err)
	}
	return s.withPermissions(record)
}

// SetRole changes the user's role and recomputes the permission closure.
func (s *service) SetRole(ctx context.Context, id uuid.UUID, role rbac.Role) (identity.User, error) {
	perms, err := s.resolver.Resolve(role)
	if err != nil {
		return identity.User{}, err
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return identity.User{}, mapRepoError(err)
	}

	current.Role = role
	current.Permissions = perms
	current.UpdatedAt = time.Now().UTC()

	record, err := s.repo.Update(ctx, current)
	if err != nil {
		return identity.User{}, mapRepoError(err)
	}
	return s.withPermissions(record)
}

func (s *service) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return mapRepoError(err)
	}
	current.LastLogin = &at
	current.UpdatedAt = time.Now().UTC()
	if _, err := s.repo.Update(ctx, current); err != nil {
		return mapRepoError(err)
	}
	return nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapRepoError(err)
	}
	return nil
}

// withPermissions overwrites the stored permission list with the closure
// derived from the role.
func (s *service) withPermissions(u identity.User) (identity.User, error) {
	perms, err := s.resolver.Resolve(u.Role)
	if err != nil {
		return identity.User{}, fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.Permissions = perms
	return u, nil
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repo.ErrConflict):
		return ErrConflict
	default:
		return err
	}
}

func (f FieldErrors) add(field, message string) {
	if f == nil {
		return
	}
	f[field] = append(f[field], message)
}
