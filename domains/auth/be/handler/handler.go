package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xreason-ai/identity-core/domains/auth/be/service"
	"github.com/xreason-ai/identity-core/platform/go/authz"
	"github.com/xreason-ai/identity-core/platform/go/identity"
)

const (
	problemTypeValidation  = "https://xreason.ai/problems/validation-error"
	problemTypeCredentials = "https://xreason.ai/problems/invalid-credentials"
	problemTypeExpired     = "https://xreason.ai/problems/session-expired"
	problemTypeInternal    = "https://xreason.ai/problems/internal-error"
	problemTypeNotMember   = "https://xreason.ai/problems/not-a-member"
	problemTypeInactive    = "https://xreason.ai/problems/tenant-inactive"
)

type problemDetails struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler exposes the session protocol over HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("auth service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the auth endpoints. The token endpoints pull the bearer token
// directly off the request rather than going through the auth middleware,
// because an expired token must still reach logout.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/v1/auth/login", h.login)
	r.Get("/v1/auth/session", h.session)
	r.Post("/v1/auth/refresh", h.refresh)
	r.Post("/v1/auth/logout", h.logout)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var creds identity.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		h.writeProblem(w, http.StatusBadRequest, problemTypeValidation, "Invalid request body", err.Error())
		return
	}

	sess, err := h.svc.Login(r.Context(), creds)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	raw, ok := authz.ExtractBearerToken(r)
	if !ok {
		h.writeProblem(w, http.StatusUnauthorized, problemTypeExpired, "Missing token", "bearer token required")
		return
	}

	sess, err := h.svc.Validate(r.Context(), raw)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	raw, ok := authz.ExtractBearerToken(r)
	if !ok {
		h.writeProblem(w, http.StatusUnauthorized, problemTypeExpired, "Missing token", "bearer token required")
		return
	}

	sess, err := h.svc.Refresh(r.Context(), raw)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	raw, ok := authz.ExtractBearerToken(r)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.svc.Logout(r.Context(), raw); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrCredentials):
		h.writeProblem(w, http.StatusUnauthorized, problemTypeCredentials, "Invalid credentials", err.Error())
	case errors.Is(err, identity.ErrSessionExpired):
		h.writeProblem(w, http.StatusUnauthorized, problemTypeExpired, "Session expired", err.Error())
	case errors.Is(err, identity.ErrNotMember):
		h.writeProblem(w, http.StatusForbidden, problemTypeNotMember, "Not a member", err.Error())
	case errors.Is(err, identity.ErrTenantInactive):
		h.writeProblem(w, http.StatusForbidden, problemTypeInactive, "Tenant inactive", err.Error())
	default:
		h.logger.Error("auth operation failed", zap.Error(err))
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
