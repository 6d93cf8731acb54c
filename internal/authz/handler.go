package authz

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-erp/atlas-authz/internal/audit"
	"github.com/atlas-erp/atlas-authz/internal/observability"
	"github.com/atlas-erp/atlas-authz/internal/platform/httpx"
)

// Handler exposes the admin API and the decision API over JSON.
type Handler struct {
	logger   *slog.Logger
	engine   *Engine
	metrics  *observability.Metrics
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:   logger,
		engine:   engine,
		metrics:  metrics,
		validate: validator.New(),
	}
}

// MountRoutes registers all routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.Get("/", h.listRoles)
		r.Post("/", h.createRole)
		r.Get("/{id}", h.getRole)
		r.Put("/{id}/parent", h.reparentRole)
		r.Get("/{id}/permissions", h.rolePermissions)
		r.Post("/{id}/permissions", h.grantPermission)
		r.Delete("/{id}/permissions/{permID}", h.revokePermission)
		r.Get("/{id}/users", h.usersWithRole)
	})
	r.Route("/permissions", func(r chi.Router) {
		r.Get("/", h.listPermissions)
		r.Post("/", h.createPermission)
		r.Get("/{id}", h.getPermission)
	})
	r.Route("/users/{id}", func(r chi.Router) {
		r.Get("/roles", h.userRoles)
		r.Get("/permissions", h.userPermissions)
		r.Put("/roles/{roleID}", h.assignRole)
		r.Delete("/roles/{roleID}", h.removeRole)
	})
	r.Post("/check", h.check)
	r.Get("/stats", h.stats)
}

type createRoleRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=500"`
	Level       int    `json:"level" validate:"gte=0,lte=1000"`
	ParentID    string `json:"parent_id" validate:"omitempty,max=160"`
}

type createPermissionRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Category    string `json:"category" validate:"required,max=60"`
	Description string `json:"description" validate:"max=500"`
}

type reparentRequest struct {
	ParentID string `json:"parent_id" validate:"omitempty,max=160"`
}

type grantRequest struct {
	PermissionID string `json:"permission_id" validate:"required,max=160"`
}

type checkRequest struct {
	Subject     string   `json:"subject" validate:"required,max=160"`
	Permissions []string `json:"permissions" validate:"dive,max=160"`
	Mode        string   `json:"mode" validate:"omitempty,oneof=any all"`
}

type checkResponse struct {
	Subject string `json:"subject"`
	Mode    string `json:"mode"`
	Granted bool   `json:"granted"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.engine.CreateRole(r.Context(), req.Name, req.Description, req.Level, req.ParentID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.observeMutation(audit.ActionRoleCreated)
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": h.engine.ListRoles()})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	role, ok := h.engine.GetRole(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "role does not exist")
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) reparentRole(w http.ResponseWriter, r *http.Request) {
	var req reparentRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.engine.ReparentRole(r.Context(), chi.URLParam(r, "id"), req.ParentID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.observeMutation(audit.ActionRoleReparented)
	httpx.JSON(w, http.StatusOK, role)
}

// rolePermissions returns both the direct grants and the resolved closure
// so admin screens can show inherited permissions distinctly.
func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "id")
	direct := h.engine.GetRolePermissions(roleID)
	resolved, err := h.engine.ResolveRolePermissions(roleID)
	if err != nil {
		h.logger.Error("resolve role permissions", slog.String("role_id", roleID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role_id":  roleID,
		"direct":   direct,
		"resolved": resolved,
	})
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.AssignPermissionToRole(r.Context(), chi.URLParam(r, "id"), req.PermissionID); err != nil {
		h.respondError(w, err)
		return
	}
	h.observeMutation(audit.ActionPermissionGranted)
	httpx.NoContent(w)
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RemovePermissionFromRole(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "permID")); err != nil {
		h.respondError(w, err)
		return
	}
	h.observeMutation(audit.ActionPermissionRevoked)
	httpx.NoContent(w)
}

func (h *Handler) usersWithRole(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "id")
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role_id": roleID,
		"users":   h.engine.GetUsersWithRole(roleID),
	})
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := h.engine.CreatePermission(r.Context(), req.Name, req.Category, req.Description)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.observeMutation(audit.ActionPermissionCreated)
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": h.engine.ListPermissions()})
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	perm, ok := h.engine.GetPermission(chi.URLParam(r, "id"))
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "permission does not exist")
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) userRoles(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"roles":   h.engine.GetUserRoles(userID),
	})
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	resolved, err := h.engine.ResolveUserPermissions(userID)
	if err != nil {
		h.logger.Error("resolve user permissions", slog.String("user_id", userID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"permissions": resolved,
	})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.AssignRoleToUser(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "roleID")); err != nil {
		h.respondError(w, err)
		return
	}
	h.observeMutation(audit.ActionRoleAssigned)
	httpx.NoContent(w)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RemoveRoleFromUser(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "roleID")); err != nil {
		h.respondError(w, err)
		return
	}
	h.observeMutation(audit.ActionRoleRemoved)
	httpx.NoContent(w)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !h.decode(w, r, &req) {
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = "all"
	}
	var granted bool
	switch mode {
	case "any":
		granted = h.engine.HasAnyPermission(req.Subject, req.Permissions)
	default:
		granted = h.engine.HasAllPermissions(req.Subject, req.Permissions)
	}
	if h.metrics != nil {
		h.metrics.ObserveCheck(granted)
	}
	httpx.JSON(w, http.StatusOK, checkResponse{Subject: req.Subject, Mode: mode, Granted: granted})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.engine.Statistics())
}

// decode parses and validates the request body, responding with a 400 on
// failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

// respondError maps engine error kinds to problem responses.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
	case errors.Is(err, ErrDuplicatePermission), errors.Is(err, ErrDuplicateRole):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrRoleNotFound), errors.Is(err, ErrPermissionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrSystemRoleImmutable):
		httpx.Problem(w, http.StatusForbidden, "System Role Immutable", err.Error())
	case errors.Is(err, ErrCycleDetected):
		httpx.Problem(w, http.StatusConflict, "Cycle Detected", err.Error())
	default:
		h.logger.Error("unhandled engine error", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (h *Handler) observeMutation(action string) {
	if h.metrics != nil {
		h.metrics.ObserveMutation(action)
	}
}
