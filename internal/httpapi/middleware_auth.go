package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey string

const ctxUserID ctxKey = "user_id"

func (s server) sessionAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}

		userID, ok, err := s.sessions.Validate(r.Context(), token)
		if err != nil {
			logError(r.Context(), "session lookup failed", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "auth lookup failed"})
			return
		}
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid session"})
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserID, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(ctxUserID)
	id, ok := v.(uuid.UUID)
	return id, ok
}
