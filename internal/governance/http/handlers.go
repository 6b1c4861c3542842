package governancehttp

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/agrimart/backoffice/internal/accounts"
	"github.com/agrimart/backoffice/internal/governance"
	"github.com/agrimart/backoffice/internal/platform/httpx"
	"github.com/agrimart/backoffice/internal/platform/validation"
	"github.com/agrimart/backoffice/internal/roles"
	"github.com/agrimart/backoffice/internal/shared"
)

// Handler serves account and role administration over JSON.
type Handler struct {
	logger *slog.Logger
	facade *governance.Facade
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, facade *governance.Facade) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, facade: facade}
}

type accountResponse struct {
	Account accounts.Account `json:"account"`
	Outcome shared.Outcome   `json:"outcome"`
}

type roleResponse struct {
	Role    governance.RoleView `json:"role"`
	Outcome shared.Outcome      `json:"outcome"`
}

type outcomeResponse struct {
	Outcome shared.Outcome `json:"outcome"`
}

type confirmBody struct {
	Confirm bool `json:"confirm"`
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	q, err := parseAccountQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": h.facade.ListAccounts(q)})
}

func (h *Handler) exportAccounts(w http.ResponseWriter, r *http.Request) {
	q, err := parseAccountQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"accounts.csv\"")
	if err := h.facade.ExportAccounts(w, q); err != nil {
		h.logger.Warn("write accounts csv", slog.Any("error", err))
	}
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.facade.Account(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var form accounts.Form
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	account, outcome, err := h.facade.CreateAccount(r.Context(), shared.ActorFromContext(r.Context()), form)
	if err != nil {
		h.respondError(w, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, accountResponse{Account: account, Outcome: outcome})
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	var form accounts.Form
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	account, outcome, err := h.facade.UpdateAccount(r.Context(), shared.ActorFromContext(r.Context()), chi.URLParam(r, "id"), form)
	if err != nil {
		h.respondError(w, "update account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, accountResponse{Account: account, Outcome: outcome})
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.facade.DeleteAccount(r.Context(), shared.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "delete account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, outcomeResponse{Outcome: outcome})
}

// transitionAccount applies activate/deactivate/suspend. Without an explicit
// {"confirm": true} body it answers 428 with the prompt the client must show.
func (h *Handler) transitionAccount(t accounts.Transition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var body confirmBody
		if err := httpx.DecodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
		if !body.Confirm {
			account, err := h.facade.Account(id)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			httpx.Problem(w, http.StatusPreconditionRequired, "Confirmation Required", accounts.ConfirmationPrompt(account, t))
			return
		}
		account, outcome, err := h.facade.TransitionAccount(r.Context(), shared.ActorFromContext(r.Context()), id, t)
		if err != nil {
			h.respondError(w, string(t)+" account", err)
			return
		}
		httpx.JSON(w, http.StatusOK, accountResponse{Account: account, Outcome: outcome})
	}
}

func (h *Handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	if err := h.facade.ResendVerification(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, "resend verification", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) sendPasswordReset(w http.ResponseWriter, r *http.Request) {
	if err := h.facade.SendPasswordReset(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, "send password reset", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	q, err := parseRoleQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": h.facade.ListRoles(q)})
}

func (h *Handler) exportRoles(w http.ResponseWriter, r *http.Request) {
	q, err := parseRoleQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"roles.csv\"")
	if err := h.facade.ExportRoles(w, q); err != nil {
		h.logger.Warn("write roles csv", slog.Any("error", err))
	}
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.facade.Role(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var form roles.Form
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	role, outcome, err := h.facade.CreateRole(r.Context(), shared.ActorFromContext(r.Context()), form)
	if err != nil {
		h.respondError(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, roleResponse{Role: role, Outcome: outcome})
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var form roles.Form
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	role, outcome, err := h.facade.UpdateRole(r.Context(), shared.ActorFromContext(r.Context()), chi.URLParam(r, "id"), form)
	if err != nil {
		h.respondError(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, roleResponse{Role: role, Outcome: outcome})
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.facade.DeleteRole(r.Context(), shared.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "delete role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, outcomeResponse{Outcome: outcome})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var fields validation.Errors
	if !errors.As(err, &fields) && !errors.Is(err, httpx.ErrNotFound) {
		h.logger.Info(op+" rejected", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseAccountQuery(r *http.Request) (governance.AccountQuery, error) {
	query := r.URL.Query()
	errs := validation.Errors{}
	q := governance.AccountQuery{
		Search: strings.TrimSpace(query.Get("q")),
		Role:   strings.TrimSpace(query.Get("role")),
		Sort:   governance.ParseSortKey(query.Get("sort")),
		Desc:   strings.EqualFold(strings.TrimSpace(query.Get("dir")), "desc"),
	}
	if raw := query.Get("status"); raw != "" {
		status, ok := accounts.ParseStatus(raw)
		if !ok {
			errs.Add("status", "Unknown status")
		}
		q.Status = status
	}
	if raw := query.Get("type"); raw != "" {
		typ, ok := accounts.ParseType(raw)
		if !ok {
			errs.Add("type", "Unknown account type")
		}
		q.Type = typ
	}
	return q, errs.Err()
}

func parseRoleQuery(r *http.Request) (governance.RoleQuery, error) {
	query := r.URL.Query()
	q := governance.RoleQuery{
		Search: strings.TrimSpace(query.Get("q")),
		Sort:   governance.ParseSortKey(query.Get("sort")),
		Desc:   strings.EqualFold(strings.TrimSpace(query.Get("dir")), "desc"),
	}
	if raw := query.Get("scope"); raw != "" {
		scope, ok := roles.ParseScope(raw)
		if !ok {
			return q, validation.Errors{"scope": "Unknown scope"}
		}
		q.Scope = scope
	}
	return q, nil
}
