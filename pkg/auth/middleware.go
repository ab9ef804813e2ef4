package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/chainsafe/mintwatch/pkg/app/errors"
	apphttp "github.com/chainsafe/mintwatch/pkg/app/http"
)

// Middleware rejects requests without a valid bearer token and stores the
// token subject on the request context.
func Middleware(v *JWTValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.IsConfigured() {
				apphttp.DefaultErrorHandler(w, apperrors.ForbiddenError(ErrNotConfigured, "ops api is disabled"))
				return
			}

			raw, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(nil, "missing bearer token"))
				return
			}

			claims, err := v.ValidateToken(raw)
			if err != nil {
				logger.Debug("Rejected ops token", zap.Error(err))
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(err, "invalid token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), claims.Subject)))
		})
	}
}

func bearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
