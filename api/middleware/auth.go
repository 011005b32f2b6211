package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/dishdash-backend/api/responses"
	pkgAuth "github.com/angelmondragon/dishdash-backend/pkg/auth"
	"github.com/angelmondragon/dishdash-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

// Auth verifies the bearer token and attaches the caller's Identity to the request.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	keys := pkgAuth.NewKeys(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := keys.Verify(token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			id := Identity{
				UserID:     claims.UserID,
				Role:       claims.Role.String(),
				BusinessID: claims.BusinessID,
				DriverID:   claims.DriverID,
			}
			ctx := WithIdentity(r.Context(), id)
			if logg != nil {
				ctx = logg.WithFields(ctx, identityFields(id))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts both "Bearer <jwt>" and a bare token.
func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = raw[7:]
	}
	return strings.TrimSpace(raw)
}

func identityFields(id Identity) map[string]any {
	fields := map[string]any{"user_id": id.UserID.String(), "actor_role": id.Role}
	if s := optionalString(id.BusinessID); s != "" {
		fields["business_id"] = s
	}
	if s := optionalString(id.DriverID); s != "" {
		fields["driver_id"] = s
	}
	return fields
}
