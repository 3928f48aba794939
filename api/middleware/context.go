package middleware

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
)

type contextKey string

const ctxUser contextKey = "current_user"

// UserFromContext returns the authenticated principal, or nil for anonymous requests.
func UserFromContext(ctx context.Context) *auth.CurrentUser {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxUser).(auth.CurrentUser); ok {
		return &v
	}
	return nil
}

// WithUser injects the principal into the context.
func WithUser(ctx context.Context, user auth.CurrentUser) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUser, user)
}

func userScope(ctx context.Context) string {
	if user := UserFromContext(ctx); user != nil {
		return "user:" + user.ID.String()
	}
	return ""
}
