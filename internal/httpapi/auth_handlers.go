package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"ecportal.org/internal/audit"
	"ecportal.org/internal/auth"
	"ecportal.org/internal/clientip"
	"ecportal.org/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User      auth.Identity `json:"user"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.loginLimiter != nil {
		d := a.loginLimiter.Allow(r.Context(), clientip.FromRequest(r))
		if !d.Allowed {
			obs.ObserveRateLimited("login")
			w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter(time.Now())))
			writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many login attempts, try again later")
			return
		}
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	id, err := a.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		reason := "invalid_credentials"
		if errors.Is(err, auth.ErrDeactivated) {
			reason = "deactivated"
		}
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrDeactivated) {
			a.audit.RecordRequest(r, "", audit.ActionLoginFailed, map[string]string{
				"email":  req.Email,
				"reason": reason,
			})
		}
		handleAccountError(w, r, err)
		return
	}

	token, exp, err := a.resolver.Codec().Issue(id, 0)
	if err != nil {
		obs.Logger().Error().Err(err).Str("user_id", id.UserID).Msg("issue session")
		writeError(w, r, http.StatusInternalServerError, "internal", "could not create session")
		return
	}
	a.setSessionCookie(w, token, exp)
	a.audit.RecordRequest(r, id.UserID, audit.ActionLoginSuccess, nil)

	writeJSON(w, http.StatusOK, loginResponse{User: id, Token: token, ExpiresAt: exp})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())
	if err := a.resolver.EndSession(r); err != nil {
		obs.Logger().Error().Err(err).Str("user_id", id.UserID).Msg("revoke session")
		writeError(w, r, http.StatusInternalServerError, "internal", "could not end session")
		return
	}
	a.clearSessionCookie(w)
	a.audit.RecordRequest(r, id.UserID, audit.ActionLogout, nil)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, id)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if err := a.accounts.ChangePassword(r.Context(), id.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, r, http.StatusBadRequest, "invalid_credentials", "current password is incorrect")
			return
		}
		handleAccountError(w, r, err)
		return
	}
	a.audit.RecordRequest(r, id.UserID, audit.ActionPasswordChange, nil)

	// Every session issued with the old password ends here; the caller
	// continues on a fresh one.
	err := a.resolver.EndUserSessions(r.Context(), id.UserID)
	if err == nil {
		err = a.resolver.EndSession(r)
	}
	if err != nil {
		obs.Logger().Error().Err(err).Str("user_id", id.UserID).Msg("revoke sessions after password change")
		writeError(w, r, http.StatusInternalServerError, "internal", "password changed but sessions could not be ended")
		return
	}
	token, exp, err := a.resolver.Codec().Issue(id, 0)
	if err != nil {
		obs.Logger().Error().Err(err).Str("user_id", id.UserID).Msg("issue session")
		writeError(w, r, http.StatusInternalServerError, "internal", "could not create session")
		return
	}
	a.setSessionCookie(w, token, exp)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) setSessionCookie(w http.ResponseWriter, token string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.resolver.CookieName(),
		Value:    token,
		Path:     "/",
		Expires:  exp,
		MaxAge:   int(time.Until(exp).Seconds()),
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.resolver.CookieName(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
