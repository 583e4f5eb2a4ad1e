package passport

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/stratus-console/stratus/internal/platform/httpx"
	"github.com/stratus-console/stratus/internal/session"
	"github.com/stratus-console/stratus/internal/shared"
)

// Handler wires HTTP endpoints for the login and token lifecycle.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	tokenHeader string
	validator   *validator.Validate
}

// NewHandler constructs a Handler instance. tokenHeader is the request header
// carrying the opaque token, matching the route guard's configuration.
func NewHandler(logger *slog.Logger, service *Service, tokenHeader string) *Handler {
	if tokenHeader == "" {
		tokenHeader = "X-Auth-Token"
	}
	return &Handler{
		logger:      logger,
		service:     service,
		tokenHeader: tokenHeader,
		validator:   validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router. Login and rotate
// are rate limited per client IP.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
	r.With(limiter).Post("/auth/login", h.handleLogin)
	r.With(limiter).Post("/auth/rotate", h.handleRotate)
	r.Post("/auth/logout", h.handleLogout)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	UserID    int64  `json:"user_id"`
	ExpiresAt int64  `json:"expires_at"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	rec, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, tokenResponse{
		Token:     rec.Token,
		UserID:    rec.UserID,
		ExpiresAt: rec.ExpiresAt.Unix(),
	})
}

type rotateRequest struct {
	Token string `json:"token" validate:"required"`
}

func (h *Handler) handleRotate(w http.ResponseWriter, r *http.Request) {
	var req rotateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	rec, err := h.service.Rotate(r.Context(), req.Token)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRotateConflict):
			// Either a retry collision or a replayed token; worth a log line.
			h.logger.Warn("token rotation conflict", slog.String("remote", r.RemoteAddr))
			httpx.Problem(w, http.StatusConflict, "Rotation Conflict", "token rotation collided")
		case errors.Is(err, session.ErrNotFound):
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "unknown token")
		default:
			h.logger.Error("token rotation", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	httpx.JSON(w, http.StatusOK, tokenResponse{
		Token:     rec.Token,
		UserID:    rec.UserID,
		ExpiresAt: rec.ExpiresAt.Unix(),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(h.tokenHeader)
	if token == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	if err := h.service.Logout(r.Context(), token); err != nil {
		h.logger.Warn("logout", slog.Any("error", err))
	}
	w.WriteHeader(http.StatusNoContent)
}
