package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"vedarc.org/internal/auth"
	"vedarc.org/internal/domain"
)

const (
	authHeader    = "Authorization"
	sessionHeader = "X-Session-ID"
	bearer        = "Bearer "
)

// authenticate resolves the bearer token into a principal. A session named by
// X-Session-ID must be active and belong to the same principal; it is touched
// on every request.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="vedarc"`)
			writeErrorCode(w, r, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}
		claims, err := a.svc.Tokens.ParseAndValidate(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="vedarc", error="invalid_token"`)
			writeErrorCode(w, r, http.StatusUnauthorized, "unauthenticated", "invalid token")
			return
		}
		role, err := domain.ParseRole(claims.UserType)
		if err != nil {
			writeErrorCode(w, r, http.StatusUnauthorized, "unauthenticated", "invalid token")
			return
		}
		principal := auth.NewPrincipal(claims.Subject, role)

		sid := strings.TrimSpace(r.Header.Get(sessionHeader))
		switch {
		case sid != "":
			if _, err := a.svc.Sessions.Validate(r.Context(), sid, principal.Subject, role); err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					writeErrorCode(w, r, http.StatusUnauthorized, "invalid_session", "Invalid or expired session")
					return
				}
				writeDomainError(w, r, err)
				return
			}
			if err := a.svc.Sessions.Touch(r.Context(), sid); err != nil && !errors.Is(err, domain.ErrNotFound) {
				writeDomainError(w, r, err)
				return
			}
			principal.SessionID = sid
		case a.sessionRequired:
			writeErrorCode(w, r, http.StatusUnauthorized, "invalid_session", "Missing X-Session-ID header")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission rejects principals whose role lacks the permission.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="vedarc"`)
				writeErrorCode(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}
			if !principal.HasPermission(perm) {
				writeErrorCode(w, r, http.StatusForbidden, "forbidden", "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func principalOf(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
