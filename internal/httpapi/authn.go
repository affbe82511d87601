package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"counselsoc.org/internal/auth"
)

const bearerPrefix = "Bearer "

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerPrefix)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// withAdmin authenticates the bearer token as an admin session and attaches
// the principal and verified token to the request context.
func (a *API) withAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		principal, verified, err := a.auth.AuthenticateAdmin(r.Context(), token)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		ctx := auth.ContextWithAdmin(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, verified)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withMember is withAdmin for the member portal.
func (a *API) withMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		principal, verified, err := a.auth.AuthenticateMember(r.Context(), token)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		ctx := auth.ContextWithMember(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, verified)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func authMemberFrom(r *http.Request) (*auth.MemberPrincipal, bool) {
	return auth.MemberFromContext(r.Context())
}

// authorize runs the policy check for the admin on the request context.
// It writes the error response on failure and reports whether to proceed.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, resource, action string) (*auth.AdminPrincipal, bool) {
	principal, ok := auth.AdminFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	if err := a.auth.Authorize(principal, resource, action); err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	return principal, true
}
