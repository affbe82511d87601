package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"counselsoc.org/internal/auth"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeServiceError maps the service error taxonomy onto status codes. Login
// and token flows deliberately collapse not-found into 401 so responses do
// not enumerate accounts.
func writeServiceError(w http.ResponseWriter, err error) {
	var forbidden *auth.ForbiddenError
	switch {
	case errors.As(err, &forbidden):
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":         "forbidden",
			"required_role": string(forbidden.Required),
			"actual_role":   string(forbidden.Actual),
		})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrAccountNotActive):
		writeError(w, http.StatusForbidden, "account is not active")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token expired")
	case errors.Is(err, auth.ErrTokenMalformed), errors.Is(err, auth.ErrTokenPurposeMismatch):
		writeError(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrDuplicateUsername):
		writeError(w, http.StatusConflict, "username or email already taken")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeTokenFlowError is writeServiceError for endpoints that receive the
// token in the request body rather than the Authorization header.
func writeTokenFlowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusBadRequest, "token expired")
	case errors.Is(err, auth.ErrTokenMalformed), errors.Is(err, auth.ErrTokenPurposeMismatch):
		writeError(w, http.StatusBadRequest, "invalid token")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusBadRequest, "invalid token")
	default:
		writeServiceError(w, err)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// pathSuffix returns the path segments after the given prefix, e.g.
// pathSuffix("/api/admin/members/42", "/api/admin/members/") == ["42"].
func pathSuffix(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
