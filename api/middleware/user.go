package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sergeJAVA/contractor-service/pkg/logger"
)

const userIDHeader = "X-User-Id"

type userIDKey struct{}

// UserID stores the acting user from the X-User-Id header. Authentication
// happens upstream; the value only feeds the audit columns.
func UserID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(userIDHeader))
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey{}, userID)
			if logg != nil {
				ctx = logg.WithField(ctx, "user_id", userID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey{}).(string)
	return v
}
