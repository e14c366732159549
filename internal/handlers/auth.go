package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/leadhub/crm/internal/models"
	svc "github.com/leadhub/crm/internal/services"
)

type ctxKey int

const accountKey ctxKey = iota

var errNoAccount = errors.New("no account in request context")

// Auth issues and verifies HS256 bearer tokens.
type Auth struct {
	secret   []byte
	ttl      time.Duration
	accounts *svc.Accounts
	now      func() time.Time
}

func NewAuth(secret string, ttl time.Duration, accounts *svc.Accounts) *Auth {
	return &Auth{secret: []byte(secret), ttl: ttl, accounts: accounts, now: time.Now}
}

type tokenClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func (a *Auth) Issue(acc *models.Account) (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.ttl)
	claims := tokenClaims{
		Username: acc.Username,
		Role:     acc.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(acc.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	return signed, exp, err
}

func (a *Auth) verify(raw string) (uint, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("token has no subject")
	}
	return uint(id), nil
}

// RequireAccount loads the caller's account from a bearer token. The account
// is re-read on every request so role and balance changes apply immediately.
func (a *Auth) RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			unauthorized(w, "Not authenticated")
			return
		}
		id, err := a.verify(raw)
		if err != nil {
			unauthorized(w, "Could not validate credentials")
			return
		}
		acc, err := a.accounts.Get(r.Context(), id)
		if svc.IsNotFound(err) {
			unauthorized(w, "Could not validate credentials")
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountKey, acc)))
	})
}

// RequireAdmin must run after RequireAccount.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acc := CurrentAccount(r)
		if acc == nil || acc.Role != models.RoleAdmin {
			httpError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func CurrentAccount(r *http.Request) *models.Account {
	acc, _ := r.Context().Value(accountKey).(*models.Account)
	return acc
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
		return "", false
	}
	return strings.TrimSpace(tok), true
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	httpError(w, http.StatusUnauthorized, detail)
}
