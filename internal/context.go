package internal

import (
	"context"
	"time"
)

type ctxKey string

const ContextUserKey ctxKey = "authUser"

// AuthUser is the authenticated caller identity extracted from the bearer
// token. NgoID is non-zero only for NGO-operated accounts.
type AuthUser struct {
	ID          string
	DisplayName string
	NgoID       int64
}

func UserFromContext(ctx context.Context) (*AuthUser, bool) {
	if ctx == nil {
		return nil, false
	}
	if user, ok := ctx.Value(ContextUserKey).(*AuthUser); ok && user != nil {
		return user, true
	}
	return nil, false
}

func ContextWithUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, ContextUserKey, user)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
