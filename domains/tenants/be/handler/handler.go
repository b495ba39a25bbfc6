package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xreason-ai/identity-core/domains/tenants/be/service"
	"github.com/xreason-ai/identity-core/platform/go/authz"
	"github.com/xreason-ai/identity-core/platform/go/identity"
	"github.com/xreason-ai/identity-core/platform/go/rbac"
)

const (
	problemTypeValidation   = "https://xreason.ai/problems/validation-error"
	problemTypeNotFound     = "https://xreason.ai/problems/not-found"
	problemTypeConflict     = "https://xreason.ai/problems/conflict"
	problemTypeInternal     = "https://xreason.ai/problems/internal-error"
	problemTypeNotMember    = "https://xreason.ai/problems/not-a-member"
	problemTypeInactive     = "https://xreason.ai/problems/tenant-inactive"
	problemTypeNoTenant     = "https://xreason.ai/problems/no-tenant-available"
	problemTypeUnauthorized = "https://xreason.ai/problems/unauthorized"
)

type problemDetails struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler exposes the tenant directory over HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the tenant endpoints. Callers must already be authenticated;
// write operations are additionally gated on the tenant management permission.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(authz.RequireAuthenticated)

		r.Get("/v1/tenants", h.list)
		r.Post("/v1/tenants/{tenantID}/switch", h.switchActive)
		r.Get("/v1/tenants/{tenantID}", h.get)

		r.Group(func(r chi.Router) {
			r.Use(authz.RequirePermission(rbac.PermManageTenant))
			r.Post("/v1/tenants", h.create)
			r.Patch("/v1/tenants/{tenantID}", h.update)
			r.Delete("/v1/tenants/{tenantID}", h.delete)
		})
	})
}

// list implements GET /v1/tenants, returning the caller's memberships.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ac, ok := authz.FromContext(r.Context())
	if !ok {
		h.writeProblem(w, http.StatusUnauthorized, problemTypeUnauthorized, "Unauthorized", "")
		return
	}

	tenants, err := h.svc.ListMemberships(r.Context(), ac.User.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if tenants == nil {
		tenants = []identity.Tenant{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

// switchActive implements POST /v1/tenants/{tenantID}/switch.
func (h *Handler) switchActive(w http.ResponseWriter, r *http.Request) {
	ac, _ := authz.FromContext(r.Context())
	tenantID, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.svc.SwitchActive(r.Context(), ac.User.ID, tenantID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// get implements GET /v1/tenants/{tenantID}.
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.parseID(w, r)
	if !ok {
		return
	}

	t, err := h.svc.Get(r.Context(), tenantID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

type createRequest struct {
	Name             string                    `json:"name"`
	Slug             string                    `json:"slug"`
	Domain           *string                   `json:"domain"`
	SubscriptionTier identity.SubscriptionTier `json:"subscriptionTier"`
}

// create implements POST /v1/tenants.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ac, _ := authz.FromContext(r.Context())

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeProblem(w, http.StatusBadRequest, problemTypeValidation, "Invalid request body", err.Error())
		return
	}

	t, err := h.svc.Create(r.Context(), service.CreateInput{
		Name:             req.Name,
		Slug:             req.Slug,
		Domain:           req.Domain,
		SubscriptionTier: req.SubscriptionTier,
		CreatedBy:        ac.User.ID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Location", "/v1/tenants/"+t.ID.String())
	h.writeJSON(w, http.StatusCreated, t)
}

type updateRequest struct {
	Name             *string                    `json:"name"`
	Domain           *string                    `json:"domain"`
	SubscriptionTier *identity.SubscriptionTier `json:"subscriptionTier"`
	Status           *identity.TenantStatus     `json:"status"`
}

// update implements PATCH /v1/tenants/{tenantID}.
func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeProblem(w, http.StatusBadRequest, problemTypeValidation, "Invalid request body", err.Error())
		return
	}

	t, err := h.svc.Update(r.Context(), tenantID, service.UpdateInput{
		Name:             req.Name,
		Domain:           req.Domain,
		SubscriptionTier: req.SubscriptionTier,
		Status:           req.Status,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

// delete implements DELETE /v1/tenants/{tenantID}.
func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), tenantID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		h.writeProblem(w, http.StatusBadRequest, problemTypeValidation, "Invalid tenant id", err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		h.writeProblem(w, http.StatusBadRequest, problemTypeValidation, "Invalid input", err.Error())
	case errors.Is(err, service.ErrNotFound):
		h.writeProblem(w, http.StatusNotFound, problemTypeNotFound, "Not found", err.Error())
	case errors.Is(err, service.ErrConflictSlug):
		h.writeProblem(w, http.StatusConflict, problemTypeConflict, "Conflict", err.Error())
	case errors.Is(err, identity.ErrNotMember):
		h.writeProblem(w, http.StatusForbidden, problemTypeNotMember, "Not a member", err.Error())
	case errors.Is(err, identity.ErrTenantInactive):
		h.writeProblem(w, http.StatusConflict, problemTypeInactive, "Tenant inactive", err.Error())
	case errors.Is(err, identity.ErrNoTenantAvailable):
		h.writeProblem(w, http.StatusConflict, problemTypeNoTenant, "No tenant available", err.Error())
	default:
		h.logger.Error("tenant operation failed", zap.Error(err))
		h.writeProblem(w, http.StatusInternalServerError, problemTypeInternal, "Internal error", "internal error")
	}
}

func (h *Handler) writeProblem(w http.ResponseWriter, status int, problemType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problemDetails{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
