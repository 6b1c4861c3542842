package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/agrimart/backoffice/internal/platform/httpx"
	"github.com/agrimart/backoffice/internal/platform/validation"
	"github.com/agrimart/backoffice/internal/rbac"
	"github.com/agrimart/backoffice/internal/shared"
)

// AccountDirectory is the governance view the auth endpoints need: the
// permission grid of an actor and a hook to stamp sign-ins.
type AccountDirectory interface {
	PermissionGrid(actor shared.Actor) []rbac.ModulePermissions
	RecordLogin(accountID string, at time.Time)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	directory      AccountDirectory
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, directory AccountDirectory) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		directory:      directory,
		validator:      validation.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.handleCSRF)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type sessionResponse struct {
	AccountID   string                   `json:"accountId,omitempty"`
	Email       string                   `json:"email,omitempty"`
	CSRFToken   string                   `json:"csrfToken,omitempty"`
	Permissions []rbac.ModulePermissions `json:"permissions,omitempty"`
}

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "session unavailable")
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{CSRFToken: token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "session unavailable")
		return
	}

	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if errs := validation.Struct(h.validator, req); len(errs) > 0 {
		httpx.ValidationProblem(w, errs.Fields())
		return
	}

	cred, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Info("login rejected", slog.String("email", req.Email))
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Invalid email or password")
		return
	}

	sess.SignIn(cred.AccountID, cred.Email)
	token, err := h.csrfManager.Rotate(r.Context(), sess)
	if err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "session unavailable")
		return
	}
	now := time.Now()
	if err := h.service.RegisterSession(r.Context(), sess.ID, cred.AccountID, now.Add(h.sessionManager.TTL()), r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	if h.directory != nil {
		h.directory.RecordLogin(cred.AccountID, now)
	}
	h.logger.Info("login", slog.String("account_id", cred.AccountID))

	httpx.JSON(w, http.StatusOK, h.describe(sess.Actor(), token))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		sess.SignOut()
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor.IsSystem() {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return
	}
	token := ""
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		token = sess.Get(shared.CSRFSessionKey)
	}
	httpx.JSON(w, http.StatusOK, h.describe(actor, token))
}

func (h *Handler) describe(actor shared.Actor, token string) sessionResponse {
	out := sessionResponse{AccountID: actor.AccountID, Email: actor.Email, CSRFToken: token}
	if h.directory != nil {
		out.Permissions = h.directory.PermissionGrid(actor)
	}
	return out
}
