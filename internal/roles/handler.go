package roles

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stratus-console/stratus/internal/ability"
	"github.com/stratus-console/stratus/internal/platform/httpx"
	"github.com/stratus-console/stratus/internal/shared"
)

// Handler wires HTTP endpoints for role administration.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers role routes on the provided router. Each route
// declares the ability ids that satisfy it; possession of any one passes.
func (h *Handler) MountRoutes(r chi.Router, require func(abilityIDs ...int64) func(http.Handler) http.Handler) {
	view := require(ability.IDRolesView, ability.IDRolesEdit)
	edit := require(ability.IDRolesEdit)
	r.With(view).Get("/roles", h.list)
	r.With(view).Get("/roles/{roleID}", h.get)
	r.With(edit).Post("/roles", h.create)
	r.With(edit).Post("/roles/{roleID}/enable", h.setEnabled(true))
	r.With(edit).Post("/roles/{roleID}/disable", h.setEnabled(false))
	r.With(edit).Post("/roles/{roleID}/abilities", h.grant)
	r.With(edit).Delete("/roles/{roleID}/abilities", h.revoke)
}

type roleResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	AbilityIDs  []int64 `json:"ability_ids"`
	Enabled     bool    `json:"enabled"`
	OperateID   int64   `json:"operate_id"`
}

func toResponse(role Role) roleResponse {
	ids := role.AbilityIDs
	if ids == nil {
		ids = []int64{}
	}
	return roleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		AbilityIDs:  ids,
		Enabled:     role.Enabled(),
		OperateID:   role.OperateID,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]roleResponse, 0, len(list))
	for _, role := range list {
		out = append(out, toResponse(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondError(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(role))
}

type createRoleRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	AbilityIDs  []int64 `json:"ability_ids"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description, req.AbilityIDs)
	if err != nil {
		h.respondError(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(role))
}

func (h *Handler) setEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.roleID(w, r)
		if !ok {
			return
		}
		role, err := h.service.SetEnabled(r.Context(), id, enabled)
		if err != nil {
			h.respondError(w, "set role status", err)
			return
		}
		httpx.JSON(w, http.StatusOK, toResponse(role))
	}
}

type abilityIDsRequest struct {
	AbilityIDs []int64 `json:"ability_ids" validate:"required,min=1"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	h.mutateAbilities(w, r, h.service.GrantAbilities)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	h.mutateAbilities(w, r, h.service.RevokeAbilities)
}

func (h *Handler) mutateAbilities(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64, ids []int64) (Role, error)) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	var req abilityIDsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := op(r.Context(), id, req.AbilityIDs)
	if err != nil {
		h.respondError(w, "mutate role abilities", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(role))
}

func (h *Handler) roleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "role not found")
	case errors.Is(err, shared.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
