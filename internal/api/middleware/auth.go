package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"
)

type contextKey string

const (
	// UserIDHeader carries the caller-asserted user every memory is scoped to.
	UserIDHeader = "X-User-ID"

	userContextKey contextKey = "user_id"
	maxUserIDLen              = 128
)

// UserIDFromContext returns the user ID stored by UserScope.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userContextKey).(string)
	return id
}

// TokenAuth rejects requests whose bearer token does not match token.
// An empty token disables the check.
func TokenAuth(token string) func(http.Handler) http.Handler {
	want := sha256.Sum256([]byte(token))
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			got := sha256.Sum256([]byte(parts[1]))
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid API token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// UserScope requires the X-User-ID header and stores it in the request context.
func UserScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			writeError(w, http.StatusBadRequest, "missing "+UserIDHeader+" header")
			return
		}
		if utf8.RuneCountInString(userID) > maxUserIDLen {
			writeError(w, http.StatusBadRequest, UserIDHeader+" header too long")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
