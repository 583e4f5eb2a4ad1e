package users

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

// Handler wires HTTP endpoints for user administration.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers user routes on the provided router. Each route
// declares the ability ids that satisfy it; possession of any one passes.
func (h *Handler) MountRoutes(r chi.Router, require func(abilityIDs ...int64) func(http.Handler) http.Handler) {
	view := require(ability.IDUsersView, ability.IDUsersEdit)
	edit := require(ability.IDUsersEdit)
	r.With(view).Get("/users", h.list)
	r.With(view).Get("/users/{userID}", h.get)
	r.With(edit).Post("/users", h.create)
	r.With(edit).Post("/users/{userID}/enable", h.setEnabled(true))
	r.With(edit).Post("/users/{userID}/disable", h.setEnabled(false))
	r.With(edit).Post("/users/{userID}/roles", h.grant)
	r.With(edit).Delete("/users/{userID}/roles", h.revoke)
}

type userResponse struct {
	ID        int64   `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name,omitempty"`
	RoleIDs   []int64 `json:"role_ids"`
	Enabled   bool    `json:"enabled"`
	OperateID int64   `json:"operate_id"`
}

func toResponse(user User) userResponse {
	ids := user.RoleIDs
	if ids == nil {
		ids = []int64{}
	}
	return userResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		RoleIDs:   ids,
		Enabled:   user.Enabled(),
		OperateID: user.OperateID,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]userResponse, 0, len(list))
	for _, user := range list {
		out = append(out, toResponse(user))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.respondError(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

type createUserRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Name     string  `json:"name"`
	Password string  `json:"password" validate:"required,min=8"`
	RoleIDs  []int64 `json:"role_ids"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.CreateUser(r.Context(), req.Email, req.Name, req.Password, req.RoleIDs)
	if err != nil {
		if errors.Is(err, httpx.ErrDuplicate) {
			httpx.Problem(w, http.StatusConflict, "Duplicate", "email already registered")
			return
		}
		h.respondError(w, "create user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(user))
}

func (h *Handler) setEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.userID(w, r)
		if !ok {
			return
		}
		user, err := h.service.SetEnabled(r.Context(), id, enabled)
		if err != nil {
			h.respondError(w, "set user status", err)
			return
		}
		httpx.JSON(w, http.StatusOK, toResponse(user))
	}
}

type roleIDsRequest struct {
	RoleIDs []int64 `json:"role_ids" validate:"required,min=1"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	h.mutateRoles(w, r, h.service.GrantRoles)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	h.mutateRoles(w, r, h.service.RevokeRoles)
}

func (h *Handler) mutateRoles(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64, ids []int64) (User, error)) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req roleIDsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := op(r.Context(), id, req.RoleIDs)
	if err != nil {
		h.respondError(w, "mutate user roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "user not found")
	case errors.Is(err, shared.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
