package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/datacloud-project/orchestrator/internal/api/types"
	"github.com/datacloud-project/orchestrator/internal/auth"
	"github.com/datacloud-project/orchestrator/internal/models"
	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
)

type identityKeyType string

const identityKey identityKeyType = "identity"

// Identity is the resolved caller attached to the request context.
type Identity struct {
	User *models.User
	Info *auth.UserInfo
}

// UserResolver maps a verified token identity to its database row, creating
// the row on first authentication.
type UserResolver interface {
	GetOrCreate(ctx context.Context, info *auth.UserInfo) (*models.User, error)
}

// Authenticate verifies the bearer token and resolves the caller. Routes
// behind it can assume CallerFrom returns a non-nil identity.
func Authenticate(authn auth.Authenticator, users UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			info, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				types.WriteError(w, err)
				return
			}
			user, err := users.GetOrCreate(r.Context(), info)
			if err != nil {
				types.WriteError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), identityKey, &Identity{User: user, Info: info})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Require enforces an access level through the configured authorizer.
func Require(authz auth.Authorizer, level auth.AccessLevel) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := CallerFrom(r.Context())
			var info *auth.UserInfo
			if id != nil {
				info = id.Info
			}
			if err := authz.Authorize(r, info, level); err != nil {
				types.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CallerFrom returns the authenticated identity, or nil on public routes.
func CallerFrom(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey).(*Identity); ok {
		return id
	}
	return nil
}

// MustCaller is for handlers behind Authenticate.
func MustCaller(ctx context.Context) (*models.User, error) {
	id := CallerFrom(ctx)
	if id == nil || id.User == nil {
		return nil, appErr.New(appErr.CodeUnauthenticated, "no verified identity")
	}
	return id.User, nil
}

func bearerToken(r *http.Request) string {
	ah := r.Header.Get("Authorization")
	if len(ah) > 7 && strings.EqualFold(ah[:7], "bearer ") {
		return strings.TrimSpace(ah[7:])
	}
	return ""
}
