package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xreason-ai/identity-core/domains/users/be/service"
	"github.com/xreason-ai/identity-core/platform/go/authz"
	"github.com/xreason-ai/identity-core/platform/go/rbac"
)

const (
	problemTypeValidation   = "https://xreason.ai/problems/validation-error"
	problemTypeNotFound     = "https://xreason.ai/problems/not-found"
	problemTypeConflict     = "https://xreason.ai/problems/conflict"
	problemTypeInternal     = "https://xreason.ai/problems/internal-error"
	problemTypeUnauthorized = "https://xreason.ai/problems/unauthorized"
)

type problemDetails struct {
	Type   string              `json:"type"`
	Title  string              `json:"title"`
	Status int                 `json:"status"`
	Detail string              `json:"detail,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// Handler exposes the user registry over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("users service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the user endpoints. Self-service endpoints need only an
// authenticated caller; administration is gated on the user management
// permission.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(authz.RequireAuthenticated)

		r.Get("/v1/users/me", h.getSelf)
		r.Patch("/v1/users/me", h.updateSelf)

		r.Group(func(r chi.Router) {
			r.Use(authz.RequirePermission(rbac.PermManageUsers))
			r.Post("/v1/users", h.create)
			r.Get("/v1/users/{userID}", h.get)
			r.Patch("/v1/users/{userID}", h.update)
			r.Put("/v1/users/{userID}/role", h.setRole)
			r.Delete("/v1/users/{userID}", h.delete)
		})
	})
}

func (h *Handler) getSelf(w http.ResponseWriter, r *http.Request) {
	ac, ok := authz.FromContext(r.Context())
	if !ok {
		h.writeProblem(w, http.StatusUnauthorized, problemTypeUnauthorized, "Unauthorized", "", nil)
		return
	}

	u, err := h.svc.Get(r.Context(), ac.User.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

type updateSelfRequest struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
}

func (h *Handler) updateSelf(w http.ResponseWriter, r *http.Request) {
	ac, _ := authz.FromContext(r.Context())

	var req updateSelfRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeProblem(w, http.StatusBadRequest, problemTypeValidation, "Invalid request body", err.Error(), nil)
		return
	}

	u, err := h.svc.Update(r.Context(), ac.User.ID, service.UpdateInput{Name: req.Name, Avatar: req.Avatar})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

type createRequest struct {
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Avatar *string   `json:"avatar"`
	Role   rbac.Role `json:"role"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeProblem(w, http.StatusBadRequest, problemTypeValidation, "Invalid request body", err.Error(), nil)
		return
	}

	u, err := h.svc.Create(r.Context(), service.CreateInput{
		Email:  req.Email,
		Name:   req.Name,
		Avatar: req.Avatar,
		Role:   req.Role,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Location", "/v1/users/"+u.ID.String())
	h.writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseID(w, r)
	if !ok {
		return
	}

	u, err := h.svc.Get(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

type updateRequest struct {
	Name       *string `json:"name"`
	Avatar     *string `json:"avatar"`
	IsActive   *bool   `json:"isActive"`
	IsVerified *bool   `json:"isVerified"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeProblem(w, http.StatusBadRequest, problemTypeValidation, "Invalid request body", err.Error(), nil)
		return
	}

	u, err := h.svc.Update(r.Context(), userID, service.UpdateInput{
		Name:       req.Name,
		Avatar:     req.Avatar,
		IsActive:   req.IsActive,
		IsVerified: req.IsVerified,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

type setRoleRequest struct {
	Role rbac.Role `json:"role"`
}

func (h *Handler) setRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req setRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeProblem(w, http.StatusBadRequest, problemTypeValidation, "Invalid request body", err.Error(), nil)
		return
	}

	u, err := h.svc.SetRole(r.Context(), userID, req.Role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), userID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.writeProblem(w, http.StatusBadRequest, problemTypeValidation, "Invalid user id", err.Error(), nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeProblem(w, http.StatusBadRequest, problemTypeValidation, "Validation error", "", verr.Fields)
	case errors.Is(err, service.ErrNotFound):
		h.writeProblem(w, http.StatusNotFound, problemTypeNotFound, "Not found", err.Error(), nil)
	case errors.Is(err, service.ErrConflict):
		h.writeProblem(w, http.StatusConflict, problemTypeConflict, "Conflict", err.Error(), nil)
	case errors.Is(err, rbac.ErrUnknownRole):
		h.writeProblem(w, http.StatusBadRequest, problemTypeValidation, "Unknown role", err.Error(), nil)
	default:
		h.logger.Error("user operation failed", zap.Error(err))
		h.writeProblem(w, http.StatusInternalServerError, problemTypeInternal, "Internal error", "internal error", nil)
	}
}

func (h *Handler) writeProblem(w http.ResponseWriter, status int, problemType, title, detail string, fields map[string][]string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problemDetails{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
		Errors: fields,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
