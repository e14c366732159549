package handlers

import (
	"net/http"
	"strings"

	svc "github.com/leadhub/crm/internal/services"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// readCredentials accepts a JSON body or an OAuth2-style password form.
func readCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var c credentials
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return c, decodeJSON(w, r, &c)
	}
	if err := r.ParseForm(); err != nil {
		httpError(w, http.StatusBadRequest, "invalid form")
		return c, false
	}
	c.Username = r.PostFormValue("username")
	c.Password = r.PostFormValue("password")
	return c, true
}

// POST /api/token
func Token(auth *Auth, accounts *svc.Accounts, limiter *RateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(clientIP(r)) {
			httpError(w, http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
			return
		}
		c, ok := readCredentials(w, r)
		if !ok {
			return
		}
		acc, err := accounts.Authenticate(r.Context(), c.Username, c.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		tok, exp, err := auth.Issue(acc)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": tok,
			"token_type":   "bearer",
			"expires_at":   exp.UTC(),
		})
	}
}

// POST /api/register
func Register(accounts *svc.Accounts, limiter *RateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(clientIP(r)) {
			httpError(w, http.StatusTooManyRequests, "Too many attempts. Please try again later.")
			return
		}
		c, ok := readCredentials(w, r)
		if !ok {
			return
		}
		acc, err := accounts.Register(r.Context(), c.Username, c.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, acc)
	}
}

// GET /api/users/me
func Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CurrentAccount(r))
}
