package auth

import (
	"context"

	"github.com/codu-code/codu/internal/model"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const (
	ContextKeyUserID       ContextKey = "userID"
	ContextKeySessionToken ContextKey = "sessionToken"
)

func ContextWithUserID(ctx context.Context, userID model.UserID) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

func UserIDFromContext(ctx context.Context) (model.UserID, bool) {
	userID, ok := ctx.Value(ContextKeyUserID).(model.UserID)
	return userID, ok && userID != ""
}

func contextWithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ContextKeySessionToken, token)
}

func sessionTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(ContextKeySessionToken).(string)
	return token
}
