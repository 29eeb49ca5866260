package httpapi

import (
	"net/http"
	"strings"

	"ecportal.org/internal/audit"
	"ecportal.org/internal/auth"
)

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Active   *bool  `json:"is_active"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

type updateStatusRequest struct {
	Active *bool `json:"is_active"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := a.accounts.ListUsers(r.Context())
		if err != nil {
			handleAccountError(w, r, err)
			return
		}
		if users == nil {
			users = []auth.User{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		a.createUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFromContext(r.Context())
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	in := auth.NewUser{Name: req.Name, Email: req.Email, Password: req.Password, Active: true}
	if req.Active != nil {
		in.Active = *req.Active
	}
	if strings.TrimSpace(req.Role) != "" {
		role, err := auth.ParseRole(req.Role)
		if err != nil {
			handleAccountError(w, r, err)
			return
		}
		in.Role = role
	}
	user, err := a.accounts.CreateUser(r.Context(), in)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	a.audit.RecordRequest(r, actor.UserID, audit.ActionUserCreate, map[string]any{
		"target_user_id": user.ID,
		"email":          user.Email,
		"role":           user.Role,
	})
	w.Header().Set("Location", "/api/admin/users/"+user.ID)
	writeJSON(w, http.StatusCreated, user)
}

// handleUserResource serves /api/admin/users/{id}[/role|/status].
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/admin/users/"), "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) > 2 {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	userID := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		user, err := a.accounts.GetUser(r.Context(), userID)
		if err != nil {
			handleAccountError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
		return
	}
	switch parts[1] {
	case "role":
		a.updateRole(w, r, userID)
	case "status":
		a.updateStatus(w, r, userID)
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	}
}

func (a *API) updateRole(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	actor, _ := auth.IdentityFromContext(r.Context())
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	user, err := a.accounts.UpdateRole(r.Context(), actor, userID, role)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	a.audit.RecordRequest(r, actor.UserID, audit.ActionRoleChange, map[string]any{
		"target_user_id": user.ID,
		"role":           user.Role,
	})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) updateStatus(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	actor, _ := auth.IdentityFromContext(r.Context())
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if req.Active == nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", "is_active is required")
		return
	}
	user, err := a.accounts.SetActive(r.Context(), actor, userID, *req.Active)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	action := audit.ActionUserDeactivate
	if user.Active {
		action = audit.ActionUserActivate
	}
	a.audit.RecordRequest(r, actor.UserID, action, map[string]any{"target_user_id": user.ID})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	f, ok := auditFilter(w, r)
	if !ok {
		return
	}
	f.UserID = strings.TrimSpace(r.URL.Query().Get("userId"))
	a.writeAuditPage(w, r, f)
}

func (a *API) handleOwnAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	f, ok := auditFilter(w, r)
	if !ok {
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())
	f.UserID = id.UserID
	a.writeAuditPage(w, r, f)
}

func (a *API) handleSupportSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"user":       id,
		"role_rank":  id.Role.Rank(),
		"request_id": RequestIDFromContext(r.Context()),
	})
}

func auditFilter(w http.ResponseWriter, r *http.Request) (audit.Filter, bool) {
	q := r.URL.Query()
	page, err := parsePositiveInt(q.Get("page"), 1, 1, 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", "page "+err.Error())
		return audit.Filter{}, false
	}
	limit, err := parsePositiveInt(q.Get("limit"), audit.DefaultLimit, 1, audit.MaxLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", "limit "+err.Error())
		return audit.Filter{}, false
	}
	return audit.Filter{
		Page:   page,
		Limit:  limit,
		Search: q.Get("search"),
		Action: q.Get("action"),
	}, true
}

func (a *API) writeAuditPage(w http.ResponseWriter, r *http.Request, f audit.Filter) {
	page, err := a.audit.List(r.Context(), f)
	if err != nil {
		writeInternalError(w, r, err, "list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, page)
}
