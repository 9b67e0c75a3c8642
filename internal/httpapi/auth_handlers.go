package httpapi

import (
	"net/http"
	"time"

	"roomledger.org/internal/audit"
	"roomledger.org/internal/auth"
)

type credentialsRequest struct {
	User     string `json:"user" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

// register creates a user without roles. Admins are only bootstrapped from
// configuration.
func (a *API) register(w http.ResponseWriter, r *http.Request) {
	if a.directory == nil {
		writeError(w, r, http.StatusServiceUnavailable, "registration disabled")
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.directory.Register(r.Context(), req.User, req.Password, nil)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.user.registered", map[string]any{"user": u.ID})
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, http.StatusCreated, userResponse{ID: u.ID, Roles: roles, CreatedAt: u.CreatedAt})
}

func (a *API) issueToken(w http.ResponseWriter, r *http.Request) {
	if a.directory == nil {
		writeError(w, r, http.StatusServiceUnavailable, "token issuance disabled")
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	token, expiresAt, err := a.directory.Issue(r.Context(), req.User, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(auth.ContextWithUser(r.Context(), req.User, nil), "auth.token.issued", map[string]any{
		"user":       req.User,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
