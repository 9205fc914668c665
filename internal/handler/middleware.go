package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/xenking/storefront/internal/domain/user"
)

type contextKey int

const userKey contextKey = iota

// requireAuth authenticates the request with a Bearer access token and puts
// the resolved user on the context. Requests without a valid token get a 401.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, "authorization required")
			return
		}

		userID, err := h.tokens.VerifyAccess(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		usr, err := h.users.GetByID(r.Context(), userID)
		if err != nil {
			// A valid token for a deleted account is treated as unauthorized.
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userKey, usr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// currentUser returns the authenticated user placed on the context by
// requireAuth.
func currentUser(ctx context.Context) *user.User {
	usr, _ := ctx.Value(userKey).(*user.User)
	return usr
}
