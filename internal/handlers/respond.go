package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	svc "github.com/leadhub/crm/internal/services"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"detail": detail})
}

// writeError maps service errors onto status codes. Anything unrecognised is
// logged and reported as 500 without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ib *svc.InsufficientBalanceError
		ie *svc.ImportError
	)
	switch {
	case svc.IsNotFound(err):
		httpError(w, http.StatusNotFound, err.Error())
	case svc.IsConflict(err):
		httpError(w, http.StatusConflict, err.Error())
	case svc.IsInvalidArgument(err):
		httpError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &ib):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"detail":    "Insufficient balance",
			"balance":   ib.Balance,
			"requested": ib.Requested,
			"shortfall": ib.Shortfall(),
		})
	case errors.As(err, &ie):
		httpError(w, http.StatusBadRequest, ie.Error())
	case errors.Is(err, svc.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", "Bearer")
		httpError(w, http.StatusUnauthorized, "Incorrect username or password")
	default:
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		httpError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		httpError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return uint(id), true
}

func queryInt(r *http.Request, names ...string) int {
	for _, n := range names {
		if v, err := strconv.Atoi(r.URL.Query().Get(n)); err == nil {
			return v
		}
	}
	return 0
}

func queryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

// clientIP expects chi's RealIP middleware to have rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
