package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const tokenContextKey contextKey = "token"

// TokenFromContext returns the token Require authenticated.
func TokenFromContext(ctx context.Context) (*Token, bool) {
	t, ok := ctx.Value(tokenContextKey).(*Token)
	return t, ok
}

// Require returns middleware that rejects requests whose bearer token is
// missing, unknown, or lacks permission for act on obj.
func (g *Guard) Require(obj, act string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
				return
			}
			token, err := g.Authenticate(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
				return
			}

			allowed, err := g.Enforce(token.Name, obj, act)
			if err != nil {
				g.logger.Error("policy check failed", "token", token.Name, "error", err)
				writeError(w, http.StatusInternalServerError, "INTERNAL", "authorization failed")
				return
			}
			if !allowed {
				g.logger.Warn("permission denied", "token", token.Name, "role", token.Role, "obj", obj, "act", act)
				writeError(w, http.StatusForbidden, "FORBIDDEN", "token may not "+act+" "+obj)
				return
			}

			ctx := context.WithValue(r.Context(), tokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearer(header string) (string, bool) {
	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || value == "" {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func writeError(w http.ResponseWriter, status int, kind, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"kind": kind, "detail": detail},
	})
}
